// Package middleware provides endpoint.Processor implementations for RPC
// routes: security headers, CORS, request logging and body size limits.
package middleware

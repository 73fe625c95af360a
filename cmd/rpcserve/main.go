// Command rpcserve serves JSON-RPC 2.0 services over HTTP and websockets and
// publishes their OpenAPI documentation.
//
// Usage:
//
//	rpcserve serve [--addr :8080] [--config rpcserve.yaml]
//	rpcserve openapi [--convention snake_case] [--format yaml]
//
// Settings come from flags, RPCSERVE_* environment variables (a .env file in
// the working directory is loaded first), and an optional config file, in
// that order of precedence.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

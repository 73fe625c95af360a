// Package openapi documents JSON-RPC methods as OpenAPI 3.0 documents.
//
// Each method becomes one operation, "POST {RoutePath}#{method}", whose
// request body is the JSON-RPC request envelope and whose response is either
// the success envelope carrying the method's result or the error envelope.
// Schemas are derived from the Go parameter and result types with the field
// names of the method's naming convention, so one document is built per
// convention:
//
//	docs := openapi.Documents(rpc.Methods(), openapi.Options{Title: "Math", RoutePath: "/rpc"})
//	h, err := openapi.NewHandler(docs)
//	mux.Handle("GET /openapi/{file}", endpoint.Handler(h.Endpoint))
//
// Documents are served as JSON and YAML with strong ETags.
package openapi

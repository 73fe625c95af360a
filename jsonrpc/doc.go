// Package jsonrpc provides a JSON-RPC 2.0 engine and a server endpoint
// integrated with the endpoint package's processor chain.
//
// This package implements the JSON-RPC 2.0 specification (https://www.jsonrpc.org/specification)
// and JSON-RPC over HTTP (https://www.simple-is-better.org/json-rpc/transport_http.html).
//
// # Basic Usage
//
// Create an endpoint, register methods, and serve via HTTP:
//
//	e := jsonrpc.NewEndpoint()
//	e.Register("math", &MathMethods{})
//	http.Handle("/rpc", endpoint.Handler(e.Endpoint))
//	http.ListenAndServe(":8080", nil)
//
// Methods are plain Go methods:
//
//	type MathMethods struct{}
//
//	type AddParams struct {
//	    A int `json:"a"`
//	    B int `json:"b"`
//	}
//
//	func (m *MathMethods) Add(ctx context.Context, params AddParams) (int, error) {
//	    return params.A + params.B, nil
//	}
//
// # Method Signatures
//
//	func([ctx context.Context,] args...) ([result,] [error])
//
// Array params bind positionally to args. Object params bind to a sole struct
// (or map) argument; struct fields without omitempty must be present. A
// method with no result answers null.
//
// # Naming Conventions
//
// Every method is bound to one naming.Convention at registration, which
// names the untagged struct fields of its params, result and error data:
//
//	e.Register("user", &Users{}, jsonrpc.BindConvention(naming.SnakeCase))
//
// # Namespaces
//
// The namespace prefixes method names. Use empty string for no prefix:
//
//	e.Register("math", &MathMethods{})  // -> "math.Add"
//	e.Register("", &MathMethods{})      // -> "Add"
//
// # Method Name Override
//
// Use a `_` field with a `jsonrpc` tag to override the method name:
//
//	type AddParams struct {
//	    _ struct{} `jsonrpc:"add"`  // method name becomes lowercase "add"
//	    A int `json:"a"`
//	    B int `json:"b"`
//	}
//
// # Error Handling
//
// Return JSONRPCError for protocol-level errors:
//
//	return 0, jsonrpc.NewError(-1000, "division by zero")
//
// Other errors and panics become Internal error (-32603); their text is only
// sent when WithVerboseErrors is set. Wrap an error with Fatal to abort the
// whole message instead (HTTP 500).
//
// Standard error codes are defined as constants:
//   - CodeParseError (-32700)
//   - CodeInvalidRequest (-32600)
//   - CodeMethodNotFound (-32601)
//   - CodeInvalidParams (-32602)
//   - CodeInternalError (-32603)
//
// # Batches
//
// Batch elements run concurrently (see WithConcurrency); responses keep
// request order and notifications produce none.
//
// # Processor Integration
//
// Processors can be passed to endpoint.Handler for cross-cutting concerns:
//
//	http.Handle("/rpc", endpoint.Handler(e.Endpoint, middleware.RequestLogger(log)))
//
// Processor errors return HTTP error responses (not JSON-RPC errors).
//
// # Other Transports
//
// Engine is independent of HTTP: Engine.Handle takes one document and returns
// the reply document, or nil when no reply is due. Package wsrpc serves it over
// websockets, and CBORToJSON/JSONToCBOR let a transport carry CBOR documents.
package jsonrpc

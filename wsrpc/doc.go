// Package wsrpc serves a jsonrpc.Engine over websocket connections.
//
// Each inbound data frame is one JSON-RPC message. Text frames carry JSON and
// are answered with text frames; binary frames carry CBOR and are answered
// with binary frames. Messages on a connection are processed concurrently, so
// replies may arrive in a different order than the requests; clients match
// them by id. A message that needs no reply (notifications only) produces no
// frame.
//
//	rpc := jsonrpc.NewEndpoint()
//	rpc.Register("math", &MathService{})
//	mux.Handle("/rpc/ws", wsrpc.New(rpc.Engine(), wsrpc.WithCheckOrigin(cors.Allows)))
//
// The handler must see the raw http.ResponseWriter: register it on the mux
// directly rather than behind endpoint processors that wrap the writer.
package wsrpc

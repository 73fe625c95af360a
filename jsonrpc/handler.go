package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/mnehpets/rpcserve/naming"
)

// Handler serves one JSON-RPC method.
//
// Codec returns the serialization binding of the method. It is fixed for the
// lifetime of the handler and used both to bind params and to encode the
// result and error data.
type Handler interface {
	Codec() *naming.Codec
	ServeRPC(ctx context.Context, params Params) (any, error)
}

// Resolver looks up the handler for a method name. The engine never caches
// or enumerates methods itself.
type Resolver func(method string) (Handler, bool)

// HandlerFunc adapts a function to a Handler bound to naming.Default.
type HandlerFunc func(ctx context.Context, params Params) (any, error)

func (f HandlerFunc) Codec() *naming.Codec {
	return naming.CodecFor(naming.Default)
}

func (f HandlerFunc) ServeRPC(ctx context.Context, params Params) (any, error) {
	return f(ctx, params)
}

// Bind attaches a naming convention to a HandlerFunc.
func Bind(c naming.Convention, f HandlerFunc) Handler {
	return &boundHandler{codec: naming.CodecFor(c), fn: f}
}

type boundHandler struct {
	codec *naming.Codec
	fn    HandlerFunc
}

func (b *boundHandler) Codec() *naming.Codec { return b.codec }

func (b *boundHandler) ServeRPC(ctx context.Context, params Params) (any, error) {
	return b.fn(ctx, params)
}

// Params is the untyped params member of a call, bound to the codec of the
// handler it is delivered to.
type Params struct {
	raw   json.RawMessage
	codec *naming.Codec
}

// NewParams wraps raw params. A nil codec means naming.Default.
func NewParams(raw json.RawMessage, codec *naming.Codec) Params {
	if codec == nil {
		codec = naming.CodecFor(naming.Default)
	}
	return Params{raw: bytes.TrimSpace(raw), codec: codec}
}

// Raw returns the params JSON, or nil when absent.
func (p Params) Raw() json.RawMessage {
	return p.raw
}

// Absent reports whether the call carried no params (or null).
func (p Params) Absent() bool {
	return len(p.raw) == 0 || p.raw[0] == 'n'
}

// IsArray reports whether params are positional.
func (p Params) IsArray() bool {
	return len(p.raw) > 0 && p.raw[0] == '['
}

// IsObject reports whether params are named.
func (p Params) IsObject() bool {
	return len(p.raw) > 0 && p.raw[0] == '{'
}

// Bind decodes the whole params value into dst using the bound codec.
// Absent params leave dst untouched. Failures are *BindError.
func (p Params) Bind(dst any) error {
	if p.Absent() {
		return nil
	}
	if err := p.codec.Unmarshal(p.raw, dst); err != nil {
		return bindError(err, "invalid params")
	}
	return nil
}

// Positional splits array params into their elements.
func (p Params) Positional() ([]json.RawMessage, error) {
	if p.Absent() {
		return nil, nil
	}
	if !p.IsArray() {
		return nil, bindError(nil, "params must be an array")
	}
	var elems []json.RawMessage
	if err := wire.Unmarshal(p.raw, &elems); err != nil {
		return nil, bindError(err, "invalid params")
	}
	return elems, nil
}

// Named splits object params into their members.
func (p Params) Named() (map[string]json.RawMessage, error) {
	if p.Absent() {
		return map[string]json.RawMessage{}, nil
	}
	if !p.IsObject() {
		return nil, bindError(nil, "params must be an object")
	}
	var members map[string]json.RawMessage
	if err := wire.Unmarshal(p.raw, &members); err != nil {
		return nil, bindError(err, "invalid params")
	}
	return members, nil
}

package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog"

	"github.com/mnehpets/rpcserve/naming"
)

// Dispatcher invokes single calls.
//
// It holds no per-message state and is safe for concurrent use.
type Dispatcher struct {
	Resolve Resolver
	// Verbose exposes internal error causes in error data. Off by default:
	// causes are logged, not sent.
	Verbose bool
}

// Dispatch runs one element and returns its response.
//
// The response is nil for notifications, whose handler still runs to
// completion before Dispatch returns. The error is non-nil only for fatal
// infrastructure faults (see ErrFatal); every other failure is contained in a
// *Failure.
func (d *Dispatcher) Dispatch(ctx context.Context, el Element) (Response, error) {
	switch el := el.(type) {
	case *Invalid:
		return &Failure{ID: el.ID, Error: el.Err}, nil
	case *Request:
		result, rpcErr, err := d.call(ctx, el.Method, el.Params)
		if err != nil {
			return nil, err
		}
		if rpcErr != nil {
			return &Failure{ID: el.ID, Error: rpcErr}, nil
		}
		return &Success{ID: el.ID, Result: result}, nil
	case *Notification:
		_, _, err := d.call(ctx, el.Method, el.Params)
		return nil, err
	case nil:
		return &Failure{ID: NullID, Error: NewInvalidRequestError(msgInvalidRequest)}, nil
	}
	return nil, fmt.Errorf("jsonrpc: unknown element type %T", el)
}

func (d *Dispatcher) call(ctx context.Context, method string, raw json.RawMessage) (json.RawMessage, *JSONRPCError, error) {
	log := zerolog.Ctx(ctx).With().Str("method", method).Logger()

	var h Handler
	ok := false
	if d.Resolve != nil {
		h, ok = d.Resolve(method)
	}
	if !ok || h == nil {
		return nil, NewMethodNotFoundError(msgMethodNotFound).WithData(method), nil
	}

	codec := h.Codec()
	if codec == nil {
		codec = naming.CodecFor(naming.Default)
	}

	if err := ctx.Err(); err != nil {
		log.Debug().Err(err).Msg("jsonrpc: call skipped, message cancelled")
		return nil, mapError(err, d.Verbose), nil
	}

	result, err := invoke(ctx, h, NewParams(raw, codec))
	if err != nil {
		if errors.Is(err, ErrFatal) {
			log.Error().Err(err).Msg("jsonrpc: fatal fault")
			return nil, nil, err
		}
		rpcErr := mapError(err, d.Verbose)
		switch {
		case rpcErr.Code != CodeInternalError:
		case isCancellation(err):
			log.Debug().Err(err).Msg("jsonrpc: call cancelled")
		default:
			log.Error().Err(err).Msg("jsonrpc: internal error")
		}
		return nil, encodeErrorData(&log, codec, rpcErr), nil
	}

	b, err := codec.Marshal(result)
	if err != nil {
		log.Error().Err(err).Msg("jsonrpc: encode result")
		return nil, mapError(fmt.Errorf("encode result: %w", err), d.Verbose), nil
	}
	return b, nil, nil
}

// invoke calls the handler, converting panics into errors.
func invoke(ctx context.Context, h Handler, params Params) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			zerolog.Ctx(ctx).Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("jsonrpc: handler panic")
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.ServeRPC(ctx, params)
}

// encodeErrorData pre-encodes error data with the handler's codec. The
// handler's error value is never mutated: it may be shared between calls.
func encodeErrorData(log *zerolog.Logger, codec *naming.Codec, e *JSONRPCError) *JSONRPCError {
	if e.Data == nil {
		return e
	}
	if _, ok := e.Data.(json.RawMessage); ok {
		return e
	}
	b, err := codec.Marshal(e.Data)
	if err != nil {
		log.Warn().Err(err).Int("code", e.Code).Msg("jsonrpc: dropping unencodable error data")
		return e.WithData(nil)
	}
	return e.WithData(json.RawMessage(b))
}

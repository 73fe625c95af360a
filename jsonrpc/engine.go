package jsonrpc

import (
	"context"
)

// Engine is the transport-agnostic entry point: one inbound document in, one
// outbound document (or nothing) out.
//
// An Engine keeps no state between messages; every field is configuration.
type Engine struct {
	Resolve Resolver
	// Concurrency bounds the batch elements running at once (0 = unbounded).
	Concurrency int
	// MaxBatchSize rejects larger batches as a whole (0 = unlimited).
	MaxBatchSize int
	// Verbose exposes internal error causes in error data.
	Verbose bool
}

// Handle processes one inbound document.
//
// A nil body with a nil error means no response must be sent (notifications
// only). A non-nil error is a fatal fault or a failure to encode the reply;
// the transport should surface it as a transport-level error.
func (e *Engine) Handle(ctx context.Context, data []byte) ([]byte, error) {
	reply, err := e.Process(ctx, data)
	if err != nil {
		return nil, err
	}
	return reply.Encode()
}

// Process parses and dispatches one inbound document without encoding the
// reply.
func (e *Engine) Process(ctx context.Context, data []byte) (Reply, error) {
	msg, perr := Parse(data)
	if perr != nil {
		return rejected(perr), nil
	}
	if b, ok := msg.(*Batch); ok && e.MaxBatchSize > 0 && len(b.Elements) > e.MaxBatchSize {
		return rejected(NewInvalidRequestError(msgInvalidRequest).WithData("batch too large")), nil
	}

	c := Coordinator{
		Dispatcher:  &Dispatcher{Resolve: e.Resolve, Verbose: e.Verbose},
		Concurrency: e.Concurrency,
	}
	return c.Run(ctx, msg)
}

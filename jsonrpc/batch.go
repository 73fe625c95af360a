package jsonrpc

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Coordinator runs every element of a message and aggregates the responses.
type Coordinator struct {
	Dispatcher *Dispatcher
	// Concurrency bounds the batch elements in flight. Zero means no bound
	// beyond the Go scheduler.
	Concurrency int
}

// Run dispatches msg.
//
// Batch elements run concurrently and independently: one element's failure
// never affects its siblings. The first fatal fault cancels the remaining
// elements and is returned instead of a reply. Responses keep request order;
// notifications contribute nothing, so an all-notification batch yields an
// empty Reply.
func (c *Coordinator) Run(ctx context.Context, msg Message) (Reply, error) {
	switch m := msg.(type) {
	case *Single:
		resp, err := c.Dispatcher.Dispatch(ctx, m.Element)
		if err != nil {
			return Reply{}, err
		}
		if resp == nil {
			return Reply{}, nil
		}
		return Reply{responses: []Response{resp}}, nil

	case *Batch:
		slots := make([]Response, len(m.Elements))
		g, gctx := errgroup.WithContext(ctx)
		if c.Concurrency > 0 {
			g.SetLimit(c.Concurrency)
		}
		for i, el := range m.Elements {
			g.Go(func() error {
				resp, err := c.Dispatcher.Dispatch(gctx, el)
				if err != nil {
					return err
				}
				slots[i] = resp
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return Reply{}, err
		}

		out := make([]Response, 0, len(slots))
		for _, resp := range slots {
			if resp != nil {
				out = append(out, resp)
			}
		}
		return Reply{responses: out, batch: true}, nil
	}
	return Reply{}, fmt.Errorf("jsonrpc: unknown message type %T", msg)
}

// Reply is the aggregated outcome of one message.
type Reply struct {
	responses []Response
	batch     bool
}

// rejected answers a message that failed as a whole.
func rejected(err *JSONRPCError) Reply {
	return Reply{responses: []Response{&Failure{ID: NullID, Error: err}}}
}

// Empty reports whether the reply has no body: the message held only
// notifications.
func (r Reply) Empty() bool {
	return len(r.responses) == 0
}

// IsBatch reports whether the reply renders as an array.
func (r Reply) IsBatch() bool {
	return r.batch
}

// Responses returns the collected responses in request order.
func (r Reply) Responses() []Response {
	return r.responses
}

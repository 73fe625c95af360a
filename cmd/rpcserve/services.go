package main

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mnehpets/rpcserve/jsonrpc"
	"github.com/mnehpets/rpcserve/naming"
)

// CodeDivisionByZero is returned by math.divide.
const CodeDivisionByZero = 1001

// MathService is bound with snake_case names: math.add, math.divide,
// math.sum.
type MathService struct{}

func (MathService) Add(ctx context.Context, a, b float64) (float64, error) {
	return a + b, nil
}

type DivideParams struct {
	Dividend float64
	Divisor  float64
}

type Quotient struct {
	Value      float64
	IsInteger  bool
	RoundedOff float64 `json:",omitempty"`
}

func (MathService) Divide(ctx context.Context, p DivideParams) (*Quotient, error) {
	if p.Divisor == 0 {
		return nil, jsonrpc.NewError(CodeDivisionByZero, "division by zero").WithData(p)
	}
	v := p.Dividend / p.Divisor
	q := &Quotient{Value: v, IsInteger: v == math.Trunc(v)}
	if !q.IsInteger {
		q.RoundedOff = math.Round(v)
	}
	return q, nil
}

func (MathService) Sum(ctx context.Context, values []float64) (float64, error) {
	var total float64
	for _, v := range values {
		total += v
	}
	return total, nil
}

// EchoService is bound with camelCase names: echo.echo, echo.ping.
type EchoService struct {
	now func() time.Time
}

type EchoParams struct {
	Message     string
	RepeatCount int `json:",omitempty"`
}

type EchoReply struct {
	Message    string
	ReceivedAt time.Time
}

func (s EchoService) Echo(ctx context.Context, p EchoParams) (EchoReply, error) {
	msg := p.Message
	if p.RepeatCount > 1 {
		msg = strings.Repeat(msg, p.RepeatCount)
	}
	return EchoReply{Message: msg, ReceivedAt: s.now().UTC()}, nil
}

func (EchoService) Ping(ctx context.Context) (string, error) {
	return "pong", nil
}

// EventService takes fire-and-forget events, usually sent as notifications.
type EventService struct {
	mu     sync.Mutex
	events []Event
}

// Event keeps its json tags under every convention.
type Event struct {
	Kind   string         `json:"kind"`
	Detail map[string]any `json:"detail,omitempty"`
}

func (s *EventService) Publish(ctx context.Context, e Event) error {
	if e.Kind == "" {
		return jsonrpc.NewInvalidParamsError("kind is required")
	}
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
	zerolog.Ctx(ctx).Info().Str("kind", e.Kind).Msg("event published")
	return nil
}

// Recent returns up to the last n events, newest last.
func (s *EventService) Recent(ctx context.Context, n int) ([]Event, error) {
	if n < 0 {
		return nil, errors.New("n must not be negative")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > len(s.events) {
		n = len(s.events)
	}
	out := make([]Event, n)
	copy(out, s.events[len(s.events)-n:])
	return out, nil
}

// registerServices installs the demo services and system.listMethods.
func registerServices(rpc *jsonrpc.JSONRPCEndpoint) {
	rpc.Register("math", MathService{},
		jsonrpc.BindConvention(naming.SnakeCase),
		jsonrpc.NameMethods(naming.SnakeCase),
		jsonrpc.Describe("Arithmetic on float64 operands."))
	rpc.Register("echo", EchoService{now: time.Now},
		jsonrpc.BindConvention(naming.CamelCase),
		jsonrpc.NameMethods(naming.CamelCase))
	rpc.Register("events", &EventService{},
		jsonrpc.NameMethods(naming.SnakeCase))

	rpc.Handle("system.listMethods", jsonrpc.Func(func(ctx context.Context, _ struct{}) ([]string, error) {
		methods := rpc.Methods()
		names := make([]string, 0, len(methods))
		for _, m := range methods {
			names = append(names, m.Name)
		}
		return names, nil
	}, jsonrpc.Describe("Lists the registered method names.")))
}

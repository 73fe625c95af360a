package main

import (
	"context"
	"net/http"
	"os"

	"github.com/rs/zerolog"

	"github.com/mnehpets/rpcserve/endpoint"
	"github.com/mnehpets/rpcserve/jsonrpc"
	"github.com/mnehpets/rpcserve/middleware"
	"github.com/mnehpets/rpcserve/naming"
	"github.com/mnehpets/rpcserve/wsrpc"
)

type MathMethods struct{}

func (m *MathMethods) Add(ctx context.Context, a, b int) (int, error) {
	return a + b, nil
}

// SubArgs binds {"left_operand": 5, "right_operand": 3} under snake_case.
type SubArgs struct {
	LeftOperand  int
	RightOperand int
}

func (m *MathMethods) Sub(ctx context.Context, args SubArgs) (int, error) {
	return args.LeftOperand - args.RightOperand, nil
}

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	e := jsonrpc.NewEndpoint(jsonrpc.WithLogger(log), jsonrpc.WithMaxBatchSize(50))
	// math.add, math.sub
	e.Register("math", &MathMethods{},
		jsonrpc.BindConvention(naming.SnakeCase),
		jsonrpc.NameMethods(naming.SnakeCase))

	http.Handle("/rpc", endpoint.Handler(e.Endpoint,
		middleware.RequestLogger(log),
		middleware.NewSecurityHeaders(middleware.WithoutHSTS()),
		middleware.BodyLimit(1<<20),
	))
	http.Handle("GET /rpc/ws", wsrpc.New(e.Engine(), wsrpc.WithLogger(log)))

	log.Info().Msg("Starting server on :8080")
	if err := http.ListenAndServe(":8080", nil); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

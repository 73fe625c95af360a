package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/mnehpets/rpcserve/endpoint"
	"github.com/mnehpets/rpcserve/jsonrpc"
	"github.com/mnehpets/rpcserve/middleware"
	"github.com/mnehpets/rpcserve/openapi"
	"github.com/mnehpets/rpcserve/wsrpc"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the JSON-RPC server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			log, err := newLogger(cfg.Log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			handler, err := newHandler(cfg, log)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return listenAndServe(ctx, cfg.Server, handler, log)
		},
	}
	cmd.Flags().String("addr", ":8080", "listen address")
	_ = v.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func newRPCEndpoint(cfg *Config, log zerolog.Logger) *jsonrpc.JSONRPCEndpoint {
	rpc := jsonrpc.NewEndpoint(
		jsonrpc.WithConvention(cfg.convention()),
		jsonrpc.WithConcurrency(cfg.RPC.Concurrency),
		jsonrpc.WithMaxBatchSize(cfg.RPC.MaxBatchSize),
		jsonrpc.WithVerboseErrors(cfg.RPC.VerboseErrors),
		jsonrpc.WithLogger(log),
	)
	registerServices(rpc)
	return rpc
}

// newHandler builds the route table:
//
//	{rpc.path}             JSON-RPC over HTTP POST
//	GET {rpc.ws_path}      JSON-RPC over websocket
//	GET {docs.path}/       index of OpenAPI documents
//	GET {docs.path}/{file} OpenAPI documents, JSON or YAML
func newHandler(cfg *Config, log zerolog.Logger) (http.Handler, error) {
	rpc := newRPCEndpoint(cfg, log)

	var headerOpts []middleware.SecurityHeadersOption
	if !cfg.Server.HSTS {
		headerOpts = append(headerOpts, middleware.WithoutHSTS())
	}
	headers := middleware.NewSecurityHeaders(headerOpts...)
	cors := middleware.NewCORS(cfg.CORS.AllowedOrigins...)
	requests := middleware.RequestLogger(log)

	mux := http.NewServeMux()
	mux.Handle(cfg.RPC.Path, endpoint.Handler(rpc.Endpoint,
		requests,
		headers,
		cors,
		middleware.BodyLimit(cfg.Server.MaxBodyBytes),
	))

	if cfg.RPC.WSPath != "" {
		opts := []wsrpc.Option{
			wsrpc.WithLogger(log),
			wsrpc.WithMaxMessageSize(cfg.Server.MaxBodyBytes),
			wsrpc.WithPingInterval(cfg.RPC.WSPing),
			wsrpc.WithMaxInFlight(cfg.RPC.WSMaxInFlight),
		}
		// Without configured origins the upgrader's same-host check applies.
		if len(cfg.CORS.AllowedOrigins) > 0 {
			opts = append(opts, wsrpc.WithCheckOrigin(cors.Allows))
		}
		mux.Handle("GET "+cfg.RPC.WSPath, wsrpc.New(rpc.Engine(), opts...))
	}

	if cfg.Docs.Enabled {
		docs, err := openapi.NewHandler(openapi.Documents(rpc.Methods(), docsOptions(cfg)))
		if err != nil {
			return nil, err
		}
		base := strings.TrimSuffix(cfg.Docs.Path, "/")
		mux.Handle("GET "+base+"/{$}", endpoint.Handler(docs.Index, requests, headers))
		mux.Handle("GET "+base+"/{file}", endpoint.Handler(docs.Endpoint, requests, headers))
	}
	return mux, nil
}

func docsOptions(cfg *Config) openapi.Options {
	return openapi.Options{
		Title:     cfg.Docs.Title,
		Version:   cfg.Docs.Version,
		RoutePath: cfg.RPC.Path,
	}
}

// listenAndServe runs the server until ctx is done, then shuts it down.
func listenAndServe(ctx context.Context, cfg ServerConfig, handler http.Handler, log zerolog.Logger) error {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return serve(ctx, ln, cfg, handler, log)
}

// serve runs the server on ln until ctx is done. Shutdown lets in-flight
// HTTP requests finish; their contexts are cancelled only once it returns or
// times out. Websocket connections are hijacked, so Shutdown does not wait
// for them; they end when that same base context is cancelled.
func serve(ctx context.Context, ln net.Listener, cfg ServerConfig, handler http.Handler, log zerolog.Logger) error {
	base, cancelBase := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelBase()

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return base },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", ln.Addr().String()).Msg("listening")
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		timeout := cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		sctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		log.Info().Msg("shutting down")
		err := srv.Shutdown(sctx)
		cancelBase()
		return err
	})
	return g.Wait()
}

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mnehpets/rpcserve/naming"
)

// Config is the decoded configuration. Keys are the lower-cased mapstructure
// names joined with dots, e.g. "rpc.max_batch_size"; the matching
// environment variable is RPCSERVE_RPC_MAX_BATCH_SIZE.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	RPC    RPCConfig    `mapstructure:"rpc"`
	Docs   DocsConfig   `mapstructure:"docs"`
	Log    LogConfig    `mapstructure:"log"`
	CORS   CORSConfig   `mapstructure:"cors"`
}

type ServerConfig struct {
	Addr              string        `mapstructure:"addr"`
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	HSTS              bool          `mapstructure:"hsts"`
}

type RPCConfig struct {
	Path   string        `mapstructure:"path"`
	WSPath string        `mapstructure:"ws_path"`
	WSPing time.Duration `mapstructure:"ws_ping"`
	// WSMaxInFlight bounds the messages handled at once on one websocket.
	WSMaxInFlight int `mapstructure:"ws_max_in_flight"`
	// Concurrency bounds the elements of one batch handled at once.
	Concurrency   int  `mapstructure:"concurrency"`
	MaxBatchSize  int  `mapstructure:"max_batch_size"`
	VerboseErrors bool `mapstructure:"verbose_errors"`
	// Convention binds services registered without their own convention.
	Convention string `mapstructure:"convention"`
}

type DocsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Title   string `mapstructure:"title"`
	Version string `mapstructure:"version"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// setDefaults registers every key, which also makes AutomaticEnv see it
// during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.read_header_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.hsts", false)

	v.SetDefault("rpc.path", "/rpc")
	v.SetDefault("rpc.ws_path", "/rpc/ws")
	v.SetDefault("rpc.ws_ping", 30*time.Second)
	v.SetDefault("rpc.ws_max_in_flight", 16)
	v.SetDefault("rpc.concurrency", 8)
	v.SetDefault("rpc.max_batch_size", 100)
	v.SetDefault("rpc.verbose_errors", false)
	v.SetDefault("rpc.convention", naming.Default.Name())

	v.SetDefault("docs.enabled", true)
	v.SetDefault("docs.path", "/openapi")
	v.SetDefault("docs.title", "rpcserve")
	v.SetDefault("docs.version", "1.0.0")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("cors.allowed_origins", []string{})
}

func loadConfig(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if !strings.HasPrefix(c.RPC.Path, "/") {
		errs = append(errs, fmt.Errorf("rpc.path must start with /: %q", c.RPC.Path))
	}
	if c.RPC.WSPath != "" && !strings.HasPrefix(c.RPC.WSPath, "/") {
		errs = append(errs, fmt.Errorf("rpc.ws_path must start with /: %q", c.RPC.WSPath))
	}
	if c.RPC.WSPath != "" && c.RPC.WSPath == c.RPC.Path {
		errs = append(errs, errors.New("rpc.ws_path must differ from rpc.path"))
	}
	if c.Docs.Enabled && (!strings.HasPrefix(c.Docs.Path, "/") || c.Docs.Path == "/") {
		errs = append(errs, fmt.Errorf("docs.path must be a path below /: %q", c.Docs.Path))
	}
	if c.RPC.Concurrency < 0 || c.RPC.WSMaxInFlight < 0 || c.RPC.MaxBatchSize < 0 || c.Server.MaxBodyBytes < 0 {
		errs = append(errs, errors.New("rpc.concurrency, rpc.ws_max_in_flight, rpc.max_batch_size and server.max_body_bytes must not be negative"))
	}
	if _, ok := naming.Lookup(c.RPC.Convention); !ok {
		errs = append(errs, fmt.Errorf("rpc.convention: unknown convention %q (known: %s)", c.RPC.Convention, strings.Join(naming.Names(), ", ")))
	}
	return errors.Join(errs...)
}

func (c *Config) convention() naming.Convention {
	conv, _ := naming.Lookup(c.RPC.Convention)
	return conv
}

package jsonrpc

import (
	"reflect"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mnehpets/rpcserve/naming"
)

// JSONRPCEndpoint is a registry for JSON-RPC methods.
// Use endpoint.Handler(e.Endpoint, processors...) to create an http.Handler.
type JSONRPCEndpoint struct {
	mu      sync.RWMutex
	methods map[string]Handler

	convention  naming.Convention
	concurrency int
	maxBatch    int
	verbose     bool
	logger      zerolog.Logger

	engine *Engine
}

// Option configures a JSONRPCEndpoint.
type Option func(*JSONRPCEndpoint)

// WithConvention sets the naming convention bound to methods that do not
// choose their own. The default is naming.Default.
func WithConvention(c naming.Convention) Option {
	return func(e *JSONRPCEndpoint) { e.convention = c }
}

// WithConcurrency bounds the batch elements dispatched at once.
func WithConcurrency(n int) Option {
	return func(e *JSONRPCEndpoint) { e.concurrency = n }
}

// WithMaxBatchSize rejects batches with more than n elements.
func WithMaxBatchSize(n int) Option {
	return func(e *JSONRPCEndpoint) { e.maxBatch = n }
}

// WithVerboseErrors exposes internal error causes in error data.
func WithVerboseErrors(v bool) Option {
	return func(e *JSONRPCEndpoint) { e.verbose = v }
}

// WithLogger sets the logger used when the request context carries none.
func WithLogger(l zerolog.Logger) Option {
	return func(e *JSONRPCEndpoint) { e.logger = l }
}

// NewEndpoint creates a new JSON-RPC method registry.
func NewEndpoint(opts ...Option) *JSONRPCEndpoint {
	e := &JSONRPCEndpoint{
		methods:    make(map[string]Handler),
		convention: naming.Default,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.engine = &Engine{
		Resolve:      e.Resolve,
		Concurrency:  e.concurrency,
		MaxBatchSize: e.maxBatch,
		Verbose:      e.verbose,
	}
	return e
}

// MethodOption configures methods at registration.
type MethodOption func(*methodConfig)

type methodConfig struct {
	convention  naming.Convention
	methodNames *naming.Convention
	description string
}

// BindConvention binds the methods to convention c instead of the
// endpoint's default.
func BindConvention(c naming.Convention) MethodOption {
	return func(cfg *methodConfig) { cfg.convention = c }
}

// NameMethods converts Go method names with c ("Add" -> "add" under
// naming.CamelCase). An explicit jsonrpc name tag wins.
func NameMethods(c naming.Convention) MethodOption {
	return func(cfg *methodConfig) { cfg.methodNames = &c }
}

// Describe attaches documentation text to the methods.
func Describe(text string) MethodOption {
	return func(cfg *methodConfig) { cfg.description = text }
}

// Register adds methods from a receiver to the endpoint.
// The namespace prefixes all method names (e.g., "math" + "Add" -> "math.Add").
// Use empty string for no namespace (method names used directly).
// Only exported methods with valid signatures are registered:
//
//	func([ctx context.Context,] args...) ([result,] [error])
func (e *JSONRPCEndpoint) Register(namespace string, receiver any, opts ...MethodOption) {
	cfg := methodConfig{convention: e.convention}
	for _, opt := range opts {
		opt(&cfg)
	}
	codec := naming.CodecFor(cfg.convention)

	val := reflect.ValueOf(receiver)
	typ := val.Type()
	for i := 0; i < val.NumMethod(); i++ {
		method := typ.Method(i)
		if !method.IsExported() {
			continue
		}
		m, err := newMethod(val.Method(i), codec)
		if err != nil {
			e.logger.Debug().Err(err).Str("method", method.Name).Msg("jsonrpc: skipping method")
			continue
		}
		m.description = cfg.description

		name := method.Name
		if cfg.methodNames != nil {
			name = cfg.methodNames.Convert(name)
		}
		if m.nameOverride != "" {
			name = m.nameOverride
		}
		if namespace != "" {
			name = namespace + "." + name
		}
		e.Handle(name, m)
	}
}

// Handle registers h under name. It panics if the name is taken.
func (e *JSONRPCEndpoint) Handle(name string, h Handler) {
	if name == "" || h == nil {
		panic("jsonrpc: invalid registration")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.methods[name]; exists {
		panic("jsonrpc: method name collision: " + name)
	}
	e.methods[name] = h
}

// Resolve looks up a registered method. It is the Resolver handed to the
// engine.
func (e *JSONRPCEndpoint) Resolve(name string) (Handler, bool) {
	e.mu.RLock()
	h, ok := e.methods[name]
	e.mu.RUnlock()
	return h, ok
}

// Engine returns the protocol engine serving this registry.
func (e *JSONRPCEndpoint) Engine() *Engine {
	return e.engine
}

// MethodInfo describes a registered method for documentation.
type MethodInfo struct {
	Name       string
	Convention naming.Convention
	// Named is set when params are an object; otherwise Params are
	// positional.
	Named       bool
	Params      []ParamInfo
	Result      reflect.Type // nil when unknown or no result
	Description string
}

// ParamInfo describes one named field or positional argument.
type ParamInfo struct {
	Name     string
	Type     reflect.Type
	Required bool
}

type describer interface {
	info(name string) MethodInfo
}

// Methods lists the registered methods, sorted by name.
func (e *JSONRPCEndpoint) Methods() []MethodInfo {
	e.mu.RLock()
	out := make([]MethodInfo, 0, len(e.methods))
	for name, h := range e.methods {
		if d, ok := h.(describer); ok {
			out = append(out, d.info(name))
			continue
		}
		mi := MethodInfo{Name: name, Convention: naming.Default}
		if codec := h.Codec(); codec != nil {
			mi.Convention = codec.Convention()
		}
		out = append(out, mi)
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

package openapi

import (
	"strings"

	"github.com/mnehpets/rpcserve/jsonrpc"
	"github.com/mnehpets/rpcserve/naming"
)

const contentTypeJSON = "application/json"

// Options describe the API in generated documents.
type Options struct {
	Title       string
	Version     string
	Description string
	// RoutePath is the path the JSON-RPC endpoint is mounted at. Each method
	// is documented as the operation "POST {RoutePath}#{method}".
	RoutePath string
	// ServerURL, when set, is listed as the document's only server.
	ServerURL string
}

func (o Options) withDefaults() Options {
	if o.Title == "" {
		o.Title = "JSON-RPC API"
	}
	if o.Version == "" {
		o.Version = "1.0.0"
	}
	if o.RoutePath == "" {
		o.RoutePath = "/rpc"
	}
	return o
}

// Build documents the methods bound with convention c. Methods bound with
// other conventions are left out: their field names would not match the
// document's schemas.
func Build(methods []jsonrpc.MethodInfo, c naming.Convention, opts Options) *Document {
	opts = opts.withDefaults()
	g := newGenerator(naming.CodecFor(c))
	envelopeSchemas(g.schemas)

	doc := &Document{
		OpenAPI: Version,
		Info: Info{
			Title:       opts.Title,
			Version:     opts.Version,
			Description: opts.Description,
			Convention:  c.Name(),
		},
		Paths:      make(map[string]*PathItem),
		Components: Components{Schemas: g.schemas},
	}
	if opts.ServerURL != "" {
		doc.Servers = []Server{{URL: opts.ServerURL}}
	}
	for _, m := range methods {
		if m.Convention.Name() != c.Name() {
			continue
		}
		doc.Paths[opts.RoutePath+"#"+m.Name] = &PathItem{Post: g.operation(m)}
	}
	return doc
}

// Documents builds one document per naming convention in use, keyed by
// convention name.
func Documents(methods []jsonrpc.MethodInfo, opts Options) map[string]*Document {
	docs := make(map[string]*Document)
	for _, m := range methods {
		name := m.Convention.Name()
		if _, ok := docs[name]; ok {
			continue
		}
		docs[name] = Build(methods, m.Convention, opts)
	}
	return docs
}

func (g *generator) operation(m jsonrpc.MethodInfo) *Operation {
	req := &Schema{
		Type: "object",
		Properties: map[string]*Schema{
			"jsonrpc": {Type: "string", Enum: []any{"2.0"}},
			"method":  {Type: "string", Enum: []any{m.Name}},
			"id":      ref("ID"),
		},
		Required: []string{"jsonrpc", "method"},
	}
	if params, required := g.params(m); params != nil {
		req.Properties["params"] = params
		if required {
			req.Required = append(req.Required, "params")
		}
	}

	result := g.schemaFor(m.Result)
	if m.Result == nil {
		result = &Schema{Nullable: true}
	}
	success := &Schema{
		Type: "object",
		Properties: map[string]*Schema{
			"jsonrpc": {Type: "string", Enum: []any{"2.0"}},
			"result":  result,
			"id":      ref("ID"),
		},
		Required: []string{"jsonrpc", "result", "id"},
	}

	op := &Operation{
		OperationID: m.Name,
		Summary:     m.Description,
		RequestBody: &RequestBody{
			Required: true,
			Content:  map[string]MediaType{contentTypeJSON: {Schema: req}},
		},
		Responses: map[string]*Response{
			"200": {
				Description: "JSON-RPC response",
				Content: map[string]MediaType{contentTypeJSON: {Schema: &Schema{
					OneOf: []*Schema{success, ref("ErrorResponse")},
				}}},
			},
			"204": {Description: "Notification processed; no response body"},
		},
	}
	if ns, _, ok := strings.Cut(m.Name, "."); ok {
		op.Tags = []string{ns}
	}
	return op
}

// params returns the params schema and whether params must be present.
func (g *generator) params(m jsonrpc.MethodInfo) (*Schema, bool) {
	if len(m.Params) == 0 {
		return nil, false
	}

	if m.Named {
		s := &Schema{Type: "object", Properties: make(map[string]*Schema)}
		for _, p := range m.Params {
			s.Properties[p.Name] = g.schemaFor(p.Type)
			if p.Required {
				s.Required = append(s.Required, p.Name)
			}
		}
		return s, len(s.Required) > 0
	}

	n := len(m.Params)
	items := make([]*Schema, 0, n)
	names := make([]string, 0, n)
	for _, p := range m.Params {
		items = append(items, g.schemaFor(p.Type))
		names = append(names, p.Name)
	}
	s := &Schema{
		Type:        "array",
		Description: "Positional: " + strings.Join(names, ", "),
		MinItems:    &n,
		MaxItems:    &n,
	}
	if len(items) == 1 {
		s.Items = items[0]
	} else {
		s.Items = &Schema{OneOf: items}
	}
	return s, true
}

// envelopeSchemas adds the schemas shared by every method.
func envelopeSchemas(schemas map[string]*Schema) {
	schemas["ID"] = &Schema{
		Description: "Request id: a string, a number, or null.",
		Nullable:    true,
		OneOf:       []*Schema{{Type: "string"}, {Type: "number"}},
	}
	schemas["Error"] = &Schema{
		Type: "object",
		Properties: map[string]*Schema{
			"code":    {Type: "integer", Format: "int64"},
			"message": {Type: "string"},
			"data":    {},
		},
		Required: []string{"code", "message"},
	}
	schemas["ErrorResponse"] = &Schema{
		Type: "object",
		Properties: map[string]*Schema{
			"jsonrpc": {Type: "string", Enum: []any{"2.0"}},
			"error":   ref("Error"),
			"id":      ref("ID"),
		},
		Required: []string{"jsonrpc", "error", "id"},
	}
}

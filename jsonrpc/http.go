package jsonrpc

import (
	"mime"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mnehpets/rpcserve/endpoint"
)

const (
	contentTypeJSON = "application/json"
	contentTypeCBOR = "application/cbor"
)

// rpcParams captures the raw JSON-RPC request body.
// We defer parsing until inside the endpoint handler,
// as json-rpc requires different handling of json parsing
// errors than a json body decoder would give. The body size is
// bounded by middleware.BodyLimit, not here.
type rpcParams struct {
	Body        []byte `body:"" maxLength:"0"`
	ContentType string `header:"Content-Type"`
	Accept      string `header:"Accept"`
}

// Endpoint is the endpoint function that processes JSON-RPC requests.
// Pass to endpoint.Handler() to create an http.Handler.
//
// Requests must be POSTed as application/json (or with no Content-Type);
// application/cbor bodies are transcoded. Replies are 200 with a body, or 204
// when the message held only notifications.
func (e *JSONRPCEndpoint) Endpoint(w http.ResponseWriter, r *http.Request, params rpcParams) (endpoint.Renderer, error) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		return nil, endpoint.Error(http.StatusMethodNotAllowed, "JSON-RPC requires POST method", nil)
	}

	mt := mediaType(params.ContentType)
	switch mt {
	case "", contentTypeJSON, contentTypeCBOR:
	default:
		return nil, endpoint.Error(http.StatusUnsupportedMediaType, "Content-Type must be application/json or application/cbor", nil)
	}

	body := params.Body
	if mt == contentTypeCBOR {
		var err error
		if body, err = CBORToJSON(body); err != nil {
			// Undecodable CBOR is a parse error, the same as undecodable JSON.
			body = nil
		}
	}

	log := e.logger
	if l := zerolog.Ctx(r.Context()); l.GetLevel() != zerolog.Disabled {
		log = *l
	}
	log = log.With().Str("rpc_message", uuid.NewString()).Logger()
	ctx := log.WithContext(r.Context())

	out, err := e.engine.Handle(ctx, body)
	if err != nil {
		log.Error().Err(err).Msg("jsonrpc: message aborted")
		return nil, endpoint.Error(http.StatusInternalServerError, "", err)
	}
	if out == nil {
		return &endpoint.NoContentRenderer{}, nil
	}

	if mt == contentTypeCBOR || prefersCBOR(params.Accept) {
		cb, err := JSONToCBOR(out)
		if err != nil {
			return nil, endpoint.Error(http.StatusInternalServerError, "", err)
		}
		return &endpoint.BytesRenderer{Body: cb, ContentType: contentTypeCBOR}, nil
	}
	return &endpoint.BytesRenderer{Body: out, ContentType: contentTypeJSON}, nil
}

func mediaType(ct string) string {
	ct = strings.TrimSpace(ct)
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(ct)
	}
	return strings.ToLower(mt)
}

// prefersCBOR reports whether an Accept header lists CBOR ahead of JSON.
func prefersCBOR(accept string) bool {
	for _, part := range strings.Split(accept, ",") {
		switch mediaType(part) {
		case contentTypeCBOR:
			return true
		case contentTypeJSON, "*/*":
			return false
		}
	}
	return false
}

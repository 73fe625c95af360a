package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/mnehpets/rpcserve/endpoint"
)

// CORS answers cross-origin requests for an RPC route.
//
// Headers are only set when the request carries an Origin header. Preflight
// requests (OPTIONS with Origin and Access-Control-Request-Method) are
// answered with 204 and never reach the endpoint.
type CORS struct {
	// AllowedOrigins lists exact origins, or "*" for any origin. "*" is
	// ignored when AllowCredentials is set.
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	// MaxAge is the preflight cache lifetime in seconds.
	MaxAge int
}

// NewCORS creates a CORS processor for a JSON-RPC route: POST with JSON or
// CBOR bodies.
func NewCORS(origins ...string) *CORS {
	return &CORS{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         3600,
	}
}

func (c *CORS) allowOrigin(origin string) string {
	for _, allowed := range c.AllowedOrigins {
		switch {
		case allowed == "*" && !c.AllowCredentials:
			return "*"
		case allowed == origin:
			return origin
		}
	}
	return ""
}

// Process implements endpoint.Processor.
func (c *CORS) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return next(w, r)
	}

	h := w.Header()
	h.Add("Vary", "Origin")
	if allowed := c.allowOrigin(origin); allowed != "" {
		h.Set("Access-Control-Allow-Origin", allowed)
		if c.AllowCredentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}
		if len(c.ExposedHeaders) > 0 {
			h.Set("Access-Control-Expose-Headers", strings.Join(c.ExposedHeaders, ", "))
		}
	}

	if r.Method != http.MethodOptions || r.Header.Get("Access-Control-Request-Method") == "" {
		return next(w, r)
	}

	if len(c.AllowedMethods) > 0 {
		h.Set("Access-Control-Allow-Methods", strings.Join(c.AllowedMethods, ", "))
	}
	if len(c.AllowedHeaders) > 0 {
		h.Set("Access-Control-Allow-Headers", strings.Join(c.AllowedHeaders, ", "))
	}
	if c.MaxAge > 0 {
		h.Set("Access-Control-Max-Age", strconv.Itoa(c.MaxAge))
	}
	// Processors must not write the response; the empty-bodied status is
	// rendered by the handler's error path.
	return endpoint.Error(http.StatusNoContent, "", nil)
}

// Allows reports whether origin may call the route. It suits
// websocket.Upgrader.CheckOrigin.
func (c *CORS) Allows(origin string) bool {
	return c.allowOrigin(origin) != ""
}

var _ endpoint.Processor = (*CORS)(nil)

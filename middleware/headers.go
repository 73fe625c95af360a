package middleware

import (
	"net/http"
	"strconv"

	"github.com/mnehpets/rpcserve/endpoint"
)

// SecurityHeaders sets response headers for JSON API routes.
//
// Defaults (NewSecurityHeaders):
//   - Strict-Transport-Security: max-age=31536000; includeSubDomains
//   - Referrer-Policy: no-referrer
//   - X-Content-Type-Options: nosniff
//   - X-Frame-Options: DENY
//   - Content-Security-Policy: default-src 'none'; frame-ancestors 'none'
//   - Cross-Origin-Resource-Policy: same-origin
//
// Empty values disable the corresponding header.
type SecurityHeaders struct {
	// HSTSMaxAge is in seconds; 0 disables HSTS.
	HSTSMaxAge            int
	HSTSIncludeSubDomains bool

	ReferrerPolicy            string
	FrameOptions              string
	ContentSecurityPolicy     string
	CrossOriginResourcePolicy string
	NoSniff                   bool
}

// SecurityHeadersOption configures SecurityHeaders.
type SecurityHeadersOption func(*SecurityHeaders)

// NewSecurityHeaders creates a SecurityHeaders processor with API defaults.
func NewSecurityHeaders(opts ...SecurityHeadersOption) *SecurityHeaders {
	p := &SecurityHeaders{
		HSTSMaxAge:                31536000, // 1 year
		HSTSIncludeSubDomains:     true,
		ReferrerPolicy:            "no-referrer",
		FrameOptions:              "DENY",
		ContentSecurityPolicy:     "default-src 'none'; frame-ancestors 'none'",
		CrossOriginResourcePolicy: "same-origin",
		NoSniff:                   true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithHSTS configures Strict-Transport-Security.
func WithHSTS(maxAge int, includeSubDomains bool) SecurityHeadersOption {
	return func(p *SecurityHeaders) {
		p.HSTSMaxAge = maxAge
		p.HSTSIncludeSubDomains = includeSubDomains
	}
}

// WithoutHSTS disables Strict-Transport-Security, e.g. for plain-HTTP
// development servers.
func WithoutHSTS() SecurityHeadersOption {
	return WithHSTS(0, false)
}

// WithCSP sets the Content-Security-Policy header.
func WithCSP(policy string) SecurityHeadersOption {
	return func(p *SecurityHeaders) { p.ContentSecurityPolicy = policy }
}

// WithCrossOriginResourcePolicy sets Cross-Origin-Resource-Policy. Use
// "cross-origin" when browsers on other origins call the API.
func WithCrossOriginResourcePolicy(policy string) SecurityHeadersOption {
	return func(p *SecurityHeaders) { p.CrossOriginResourcePolicy = policy }
}

// Process implements endpoint.Processor.
func (p *SecurityHeaders) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	h := w.Header()
	if p.HSTSMaxAge > 0 {
		v := "max-age=" + strconv.Itoa(p.HSTSMaxAge)
		if p.HSTSIncludeSubDomains {
			v += "; includeSubDomains"
		}
		h.Set("Strict-Transport-Security", v)
	}
	setIf(h, "Referrer-Policy", p.ReferrerPolicy)
	setIf(h, "X-Frame-Options", p.FrameOptions)
	setIf(h, "Content-Security-Policy", p.ContentSecurityPolicy)
	setIf(h, "Cross-Origin-Resource-Policy", p.CrossOriginResourcePolicy)
	if p.NoSniff {
		h.Set("X-Content-Type-Options", "nosniff")
	}
	return next(w, r)
}

func setIf(h http.Header, key, value string) {
	if value != "" {
		h.Set(key, value)
	}
}

var _ endpoint.Processor = (*SecurityHeaders)(nil)

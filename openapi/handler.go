package openapi

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"net/http"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"

	"github.com/mnehpets/rpcserve/endpoint"
)

const contentTypeYAML = "application/yaml"

var docJSON = jsoniter.Config{
	EscapeHTML:  false,
	SortMapKeys: true,
}.Froze()

type rendered struct {
	body        []byte
	contentType string
	etag        string
}

// Handler serves documents as "{name}.json" and "{name}.yaml". Documents
// are encoded once, when the Handler is built.
type Handler struct {
	files map[string]rendered
	names []string
}

// NewHandler encodes docs, keyed by document name.
func NewHandler(docs map[string]*Document) (*Handler, error) {
	h := &Handler{files: make(map[string]rendered, 2*len(docs))}
	for name, doc := range docs {
		j, err := docJSON.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("openapi: encode %s as json: %w", name, err)
		}
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("openapi: encode %s as yaml: %w", name, err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("openapi: encode %s as yaml: %w", name, err)
		}
		h.files[name+".json"] = rendered{body: append(j, '\n'), contentType: contentTypeJSON, etag: etag(j)}
		h.files[name+".yaml"] = rendered{body: buf.Bytes(), contentType: contentTypeYAML, etag: etag(buf.Bytes())}
		h.names = append(h.names, name)
	}
	sort.Strings(h.names)
	return h, nil
}

// etag is a strong validator: the hex BLAKE2b-256 digest of the encoded
// document.
func etag(b []byte) string {
	sum := blake2b.Sum256(b)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

type docParams struct {
	File        string `path:"file"`
	IfNoneMatch string `header:"If-None-Match"`
}

// Endpoint serves one encoded document. Mount it on a pattern with a {file}
// wildcard, e.g. "GET /openapi/{file}".
func (h *Handler) Endpoint(w http.ResponseWriter, r *http.Request, p docParams) (endpoint.Renderer, error) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		return nil, endpoint.Error(http.StatusMethodNotAllowed, "", nil)
	}
	f, ok := h.files[p.File]
	if !ok {
		return nil, endpoint.Error(http.StatusNotFound, "", nil)
	}
	w.Header().Set("Cache-Control", "no-cache")
	if etagMatches(p.IfNoneMatch, f.etag) {
		return &endpoint.NotModifiedRenderer{ETag: f.etag}, nil
	}
	return &endpoint.BytesRenderer{Body: f.body, ContentType: f.contentType, ETag: f.etag}, nil
}

type indexParams struct{}

// Index lists the served files by document name.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request, _ indexParams) (endpoint.Renderer, error) {
	index := make(map[string][]string, len(h.names))
	for _, name := range h.names {
		index[name] = []string{name + ".json", name + ".yaml"}
	}
	return &endpoint.JSONRenderer{Value: index}, nil
}

// etagMatches implements the weak comparison If-None-Match calls for.
func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

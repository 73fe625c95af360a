package endpoint

import (
	"net/http"

	jsoniter "github.com/json-iterator/go"
)

// JSONRenderer serializes a value as JSON and writes it to the response.
//
// Content-Type is always set to "application/json". The value is encoded
// before the header is written, so an encoding failure is returned without
// a partial response.
type JSONRenderer struct {
	Status int
	Value  any

	// API optionally replaces the encoder configuration. When nil, a
	// configuration compatible with encoding/json, without HTML escaping,
	// is used.
	API jsoniter.API
}

var defaultJSONAPI = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

func (jr *JSONRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	api := jr.API
	if api == nil {
		api = defaultJSONAPI
	}
	b, err := api.Marshal(jr.Value)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusOr(jr.Status, http.StatusOK))
	_, err = w.Write(append(b, '\n'))
	return err
}

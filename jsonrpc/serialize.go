package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

type successEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      ID              `json:"id"`
	Result  json.RawMessage `json:"result"`
}

type failureEnvelope struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      ID            `json:"id"`
	Error   *JSONRPCError `json:"error"`
}

var null = json.RawMessage("null")

func (s *Success) MarshalJSON() ([]byte, error) {
	result := s.Result
	if len(bytes.TrimSpace(result)) == 0 {
		result = null
	}
	return wire.Marshal(successEnvelope{JSONRPC: Version, ID: s.ID, Result: result})
}

func (f *Failure) MarshalJSON() ([]byte, error) {
	e := f.Error
	if e == nil {
		e = NewInternalError(msgInternalError)
	}
	return wire.Marshal(failureEnvelope{JSONRPC: Version, ID: f.ID, Error: e})
}

// Encode renders the reply. A nil body with a nil error means nothing is to
// be sent. An error here is a transport-level failure.
func (r Reply) Encode() ([]byte, error) {
	switch {
	case r.Empty():
		return nil, nil
	case r.batch:
		return wire.Marshal(r.responses)
	default:
		return wire.Marshal(r.responses[0])
	}
}

// DecodeResponses parses a response body (one object or an array) back into
// responses. A response carrying both result and error, or neither, is
// rejected.
func DecodeResponses(data []byte) ([]Response, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	var raws []json.RawMessage
	if data[0] == '[' {
		if err := wire.Unmarshal(data, &raws); err != nil {
			return nil, fmt.Errorf("jsonrpc: decode responses: %w", err)
		}
	} else {
		raws = []json.RawMessage{data}
	}

	out := make([]Response, 0, len(raws))
	for i, raw := range raws {
		resp, err := decodeResponse(raw)
		if err != nil {
			return nil, fmt.Errorf("jsonrpc: decode response %d: %w", i, err)
		}
		out = append(out, resp)
	}
	return out, nil
}

func decodeResponse(raw json.RawMessage) (Response, error) {
	var fields map[string]json.RawMessage
	if err := wire.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	var version string
	if err := wire.Unmarshal(fields["jsonrpc"], &version); err != nil || version != Version {
		return nil, errors.New(`jsonrpc must be "2.0"`)
	}
	idRaw, ok := fields["id"]
	if !ok {
		return nil, errors.New("missing id")
	}
	id, ok := parseID(idRaw)
	if !ok {
		return nil, errors.New("invalid id")
	}

	result, hasResult := fields["result"]
	errRaw, hasError := fields["error"]
	switch {
	case hasResult && hasError:
		return nil, errors.New("both result and error present")
	case hasResult:
		return &Success{ID: id, Result: result}, nil
	case hasError:
		var e struct {
			Code    int             `json:"code"`
			Message string          `json:"message"`
			Data    json.RawMessage `json:"data"`
		}
		if err := wire.Unmarshal(errRaw, &e); err != nil {
			return nil, err
		}
		out := &JSONRPCError{Code: e.Code, Message: e.Message}
		if len(e.Data) > 0 {
			out.Data = e.Data
		}
		return &Failure{ID: id, Error: out}, nil
	}
	return nil, errors.New("neither result nor error present")
}

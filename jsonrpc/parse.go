package jsonrpc

import (
	"bytes"
	"encoding/json"

	jsoniter "github.com/json-iterator/go"
)

// wire encodes and decodes protocol envelopes. Payloads (params, result,
// error data) go through the codec of the handler instead.
var wire = jsoniter.ConfigCompatibleWithStandardLibrary

// Parse classifies a raw inbound document.
//
// The returned error is a message-level failure (Parse error for invalid JSON,
// Invalid Request for an empty batch) to be answered with a single Failure
// carrying NullID. Problems with individual entries never fail the message:
// they are classified as *Invalid elements.
func Parse(data []byte) (Message, *JSONRPCError) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || !wire.Valid(data) {
		return nil, NewParseError(msgParseError)
	}

	if data[0] != '[' {
		return &Single{Element: classify(data)}, nil
	}

	var raws []json.RawMessage
	if err := wire.Unmarshal(data, &raws); err != nil {
		return nil, NewParseError(msgParseError)
	}
	if len(raws) == 0 {
		return nil, NewInvalidRequestError(msgInvalidRequest).WithData("empty batch")
	}
	elems := make([]Element, len(raws))
	for i, raw := range raws {
		elems[i] = classify(raw)
	}
	return &Batch{Elements: elems}, nil
}

func invalid(id ID, reason string) *Invalid {
	return &Invalid{ID: id, Err: NewInvalidRequestError(msgInvalidRequest).WithData(reason)}
}

// classify turns one JSON value into a Request, Notification or Invalid.
func classify(raw json.RawMessage) Element {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return invalid(NullID, "request must be an object")
	}

	var fields map[string]json.RawMessage
	if err := wire.Unmarshal(raw, &fields); err != nil {
		return invalid(NullID, "request must be an object")
	}

	// Recover the id first so later envelope errors can echo it.
	id := NullID
	idRaw, hasID := fields["id"]
	if hasID {
		parsed, ok := parseID(idRaw)
		if !ok {
			return invalid(NullID, "id must be a string, number or null")
		}
		id = parsed
	}

	var version string
	if v, ok := fields["jsonrpc"]; !ok || wire.Unmarshal(v, &version) != nil || version != Version {
		return invalid(id, `jsonrpc must be "2.0"`)
	}

	var method string
	if m, ok := fields["method"]; !ok || wire.Unmarshal(m, &method) != nil || method == "" {
		return invalid(id, "method must be a non-empty string")
	}

	params := bytes.TrimSpace(fields["params"])
	if len(params) > 0 {
		switch params[0] {
		case '{', '[':
		case 'n':
			params = nil
		default:
			return invalid(id, "params must be an object or an array")
		}
	}

	if !hasID || id.IsNull() {
		return &Notification{Method: method, Params: params}
	}
	return &Request{ID: id, Method: method, Params: params}
}

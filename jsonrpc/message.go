package jsonrpc

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Version is the only protocol version accepted and emitted.
const Version = "2.0"

// IDKind classifies a request id.
type IDKind int

const (
	IDNull IDKind = iota
	IDString
	IDNumber
)

// ID is a request id: a JSON string, number or null.
//
// The raw JSON text is kept so a response echoes the id exactly as the client
// sent it (same type and the same lexical form for numbers). Absent ids are
// not IDs; a call without one is a Notification.
type ID struct {
	raw json.RawMessage
}

// NullID is the id used when none could be recovered from a request.
var NullID = ID{}

// StringID builds a string id.
func StringID(s string) ID {
	b, _ := json.Marshal(s)
	return ID{raw: b}
}

// NumberID builds an integer id.
func NumberID(n int64) ID {
	return ID{raw: json.RawMessage(strconv.FormatInt(n, 10))}
}

// parseID validates a raw id member. ok is false for objects, arrays and
// booleans.
func parseID(raw json.RawMessage) (ID, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return NullID, true
	}
	switch c := raw[0]; {
	case c == 'n':
		return NullID, bytes.Equal(raw, []byte("null"))
	case c == '"':
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return NullID, false
		}
		return ID{raw: append(json.RawMessage(nil), raw...)}, true
	case c == '-' || (c >= '0' && c <= '9'):
		var n json.Number
		if json.Unmarshal(raw, &n) != nil {
			return NullID, false
		}
		return ID{raw: append(json.RawMessage(nil), raw...)}, true
	}
	return NullID, false
}

// Kind reports the JSON type of the id.
func (id ID) Kind() IDKind {
	if len(id.raw) == 0 || id.raw[0] == 'n' {
		return IDNull
	}
	if id.raw[0] == '"' {
		return IDString
	}
	return IDNumber
}

// IsNull reports whether id is null.
func (id ID) IsNull() bool {
	return id.Kind() == IDNull
}

// Raw returns the JSON text of the id.
func (id ID) Raw() json.RawMessage {
	if len(id.raw) == 0 {
		return json.RawMessage("null")
	}
	return id.raw
}

// String returns the id's JSON text.
func (id ID) String() string {
	return string(id.Raw())
}

// Equal compares ids by type and JSON text.
func (id ID) Equal(other ID) bool {
	return bytes.Equal(id.Raw(), other.Raw())
}

func (id ID) MarshalJSON() ([]byte, error) {
	return id.Raw(), nil
}

func (id *ID) UnmarshalJSON(b []byte) error {
	parsed, ok := parseID(b)
	if !ok {
		return &json.UnsupportedValueError{Str: string(b)}
	}
	*id = parsed
	return nil
}

// Element is one classified entry of an inbound message: *Request,
// *Notification or *Invalid.
type Element interface {
	element()
}

// Call is an Element that names a method: *Request or *Notification.
type Call interface {
	Element
	MethodName() string
	RawParams() json.RawMessage
}

// Request is a call that expects a response.
type Request struct {
	ID     ID
	Method string
	Params json.RawMessage
}

// Notification is a call without an id. It never produces a response.
type Notification struct {
	Method string
	Params json.RawMessage
}

// Invalid is an entry that failed envelope validation. It always produces a
// Failure, carrying the recovered id or NullID.
type Invalid struct {
	ID  ID
	Err *JSONRPCError
}

func (*Request) element()      {}
func (*Notification) element() {}
func (*Invalid) element()      {}

func (r *Request) MethodName() string         { return r.Method }
func (r *Request) RawParams() json.RawMessage { return r.Params }

func (n *Notification) MethodName() string         { return n.Method }
func (n *Notification) RawParams() json.RawMessage { return n.Params }

// Message is a parsed inbound document: *Single or *Batch.
type Message interface {
	message()
}

// Single is a message whose top-level value was not an array.
type Single struct {
	Element Element
}

// Batch is a message whose top-level value was a non-empty array.
type Batch struct {
	Elements []Element
}

func (*Single) message() {}
func (*Batch) message()  {}

// Response is the outcome of one call: *Success or *Failure.
type Response interface {
	ResponseID() ID
	response()
}

// Success carries an encoded result.
type Success struct {
	ID     ID
	Result json.RawMessage
}

// Failure carries an error object.
type Failure struct {
	ID    ID
	Error *JSONRPCError
}

func (s *Success) ResponseID() ID { return s.ID }
func (f *Failure) ResponseID() ID { return f.ID }

func (*Success) response() {}
func (*Failure) response() {}

package jsonrpc

import (
	"context"
	"errors"
	"fmt"
)

// Standard JSON-RPC 2.0 error codes. The range -32768..-32000 is reserved for
// protocol errors; application errors should use codes outside it.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	codeReservedMin = -32768
	codeReservedMax = -32000
)

// JSONRPCError is the error object of a Failure response.
//
// Handlers may return a *JSONRPCError to control the code, message and data
// sent to the client. Data is encoded with the handler's codec.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *JSONRPCError) Error() string {
	if e == nil {
		return "jsonrpc: <nil>"
	}
	return e.Message
}

// WithData returns a copy of e carrying data.
func (e *JSONRPCError) WithData(data any) *JSONRPCError {
	cp := *e
	cp.Data = data
	return &cp
}

// IsReserved reports whether code lies in the range reserved for protocol
// errors.
func IsReserved(code int) bool {
	return code >= codeReservedMin && code <= codeReservedMax
}

func NewError(code int, message string) *JSONRPCError {
	return &JSONRPCError{Code: code, Message: message}
}

func NewParseError(message string) *JSONRPCError {
	return NewError(CodeParseError, message)
}

func NewInvalidRequestError(message string) *JSONRPCError {
	return NewError(CodeInvalidRequest, message)
}

func NewMethodNotFoundError(message string) *JSONRPCError {
	return NewError(CodeMethodNotFound, message)
}

func NewInvalidParamsError(message string) *JSONRPCError {
	return NewError(CodeInvalidParams, message)
}

func NewInternalError(message string) *JSONRPCError {
	return NewError(CodeInternalError, message)
}

// Canonical messages of the standard codes.
const (
	msgParseError     = "Parse error"
	msgInvalidRequest = "Invalid Request"
	msgMethodNotFound = "Method not found"
	msgInvalidParams  = "Invalid params"
	msgInternalError  = "Internal error"
)

// BindError reports that params could not be bound to a handler's declared
// parameter shape. It maps to CodeInvalidParams with the diagnostic as data.
type BindError struct {
	Reason string
	Cause  error
}

func (e *BindError) Error() string {
	if e.Cause != nil {
		return e.Reason + ": " + e.Cause.Error()
	}
	return e.Reason
}

func (e *BindError) Unwrap() error {
	return e.Cause
}

func bindError(cause error, format string, args ...any) *BindError {
	return &BindError{Reason: fmt.Sprintf(format, args...), Cause: cause}
}

// ErrFatal marks infrastructure faults. A handler error wrapping ErrFatal is
// not turned into a Failure response: it aborts the whole message, cancels
// sibling batch elements and is surfaced to the transport.
var ErrFatal = errors.New("jsonrpc: fatal")

type fatalError struct {
	err error
}

func (f *fatalError) Error() string {
	return "jsonrpc: fatal: " + f.err.Error()
}

func (f *fatalError) Unwrap() []error {
	return []error{ErrFatal, f.err}
}

// Fatal wraps err so that errors.Is(result, ErrFatal) holds.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// mapError converts a dispatch failure into a wire error.
//
//   - *JSONRPCError passes through unchanged (application codes included).
//   - *BindError becomes Invalid params with the diagnostic in data.
//   - anything else (panics, cancellation, encoding failures) becomes
//     Internal error; the cause is only exposed in data when verbose is set.
func mapError(err error, verbose bool) *JSONRPCError {
	var rpcErr *JSONRPCError
	if errors.As(err, &rpcErr) && rpcErr != nil {
		return rpcErr
	}
	var be *BindError
	if errors.As(err, &be) {
		return &JSONRPCError{Code: CodeInvalidParams, Message: msgInvalidParams, Data: be.Error()}
	}
	out := &JSONRPCError{Code: CodeInternalError, Message: msgInternalError}
	if verbose {
		out.Data = err.Error()
	}
	return out
}

// isCancellation reports whether err stems from the message context ending.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnehpets/rpcserve/endpoint"
)

func serveRPC(e *JSONRPCEndpoint, processors ...endpoint.Processor) http.Handler {
	return endpoint.Handler(e.Endpoint, processors...)
}

// post sends body to the endpoint and returns the recorder.
func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// call posts a single request and decodes the response object.
func call(t *testing.T, h http.Handler, body string) map[string]any {
	t.Helper()
	rec := post(t, h, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func errorCode(t *testing.T, resp map[string]any) int {
	t.Helper()
	errObj, ok := resp["error"].(map[string]any)
	require.True(t, ok, "expected an error object, got %v", resp)
	return int(errObj["code"].(float64))
}

func TestPOSTOnlyEnforcement(t *testing.T) {
	e := NewEndpoint()
	e.Register("test", &testMethods{})

	tests := []struct {
		method   string
		wantCode int
	}{
		{http.MethodGet, http.StatusMethodNotAllowed},
		{http.MethodPut, http.StatusMethodNotAllowed},
		{http.MethodDelete, http.StatusMethodNotAllowed},
		{http.MethodPost, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/", bytes.NewReader([]byte(`{"jsonrpc":"2.0","method":"test.Echo","params":["hello"],"id":1}`)))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			serveRPC(e).ServeHTTP(rec, req)
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestUnsupportedContentType(t *testing.T) {
	e := NewEndpoint()
	e.Register("test", &testMethods{})

	for ct, want := range map[string]int{
		"text/plain":                      http.StatusUnsupportedMediaType,
		"application/xml":                 http.StatusUnsupportedMediaType,
		"":                                http.StatusOK,
		"application/json; charset=utf-8": http.StatusOK,
	} {
		t.Run(ct, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(`{"jsonrpc":"2.0","method":"test.Echo","params":["x"],"id":1}`)))
			if ct != "" {
				req.Header.Set("Content-Type", ct)
			}
			rec := httptest.NewRecorder()
			serveRPC(e).ServeHTTP(rec, req)
			assert.Equal(t, want, rec.Code)
		})
	}
}

func TestMethodRegistrationNamespaces(t *testing.T) {
	for ns, method := range map[string]string{"math": "math.Add", "": "Add"} {
		t.Run(method, func(t *testing.T) {
			e := NewEndpoint()
			e.Register(ns, &mathMethods{})
			resp := call(t, serveRPC(e), `{"jsonrpc":"2.0","method":"`+method+`","params":[2,3],"id":1}`)
			assert.Equal(t, float64(5), resp["result"])
		})
	}
}

func TestSingleRequestSuccess(t *testing.T) {
	e := NewEndpoint()
	e.Register("test", &testMethods{})

	rec := post(t, serveRPC(e), `{"jsonrpc":"2.0","method":"test.Echo","params":["hello"],"id":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":"hello"}`, rec.Body.String())
}

func TestNotificationHandling(t *testing.T) {
	e := NewEndpoint()
	methods := &notifyMethods{}
	e.Register("notify", methods)

	rec := post(t, serveRPC(e), `{"jsonrpc":"2.0","method":"notify.Ping","params":[]}`)
	assert.True(t, methods.called, "notification method was not called")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
}

func TestBatchRequestHandling(t *testing.T) {
	e := NewEndpoint()
	e.Register("math", &mathMethods{})

	rec := post(t, serveRPC(e), `[
		{"jsonrpc":"2.0","method":"math.Add","params":[1,2],"id":1},
		{"jsonrpc":"2.0","method":"math.Add","params":[3,4],"id":2}
	]`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[
		{"jsonrpc":"2.0","id":1,"result":3},
		{"jsonrpc":"2.0","id":2,"result":7}
	]`, rec.Body.String())
}

func TestBatchWithMixedResults(t *testing.T) {
	e := NewEndpoint()
	e.Register("test", &testMethods{})
	e.Register("math", &mathMethods{})

	rec := post(t, serveRPC(e), `[
		{"jsonrpc":"2.0","method":"test.Echo","params":["hello"],"id":1},
		{"jsonrpc":"2.0","method":"test.Nonexistent","params":[],"id":2},
		{"jsonrpc":"2.0","method":"math.Add","params":[1,2],"id":3}
	]`)

	var resp []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 3)
	assert.Equal(t, "hello", resp[0]["result"])
	assert.Equal(t, CodeMethodNotFound, errorCode(t, resp[1]))
	assert.Equal(t, float64(3), resp[2]["result"])
}

func TestBatchWithNotifications(t *testing.T) {
	e := NewEndpoint()
	notify := &notifyMethods{}
	e.Register("notify", notify)
	e.Register("math", &mathMethods{})

	rec := post(t, serveRPC(e), `[
		{"jsonrpc":"2.0","method":"notify.Ping","params":[]},
		{"jsonrpc":"2.0","method":"math.Add","params":[1,2],"id":1}
	]`)
	assert.True(t, notify.called, "notification should have been called")

	var resp []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp, 1, "notification should not produce a response")
}

func TestEmptyBatchRequest(t *testing.T) {
	e := NewEndpoint()
	resp := call(t, serveRPC(e), `[]`)
	assert.Equal(t, CodeInvalidRequest, errorCode(t, resp))
	assert.Nil(t, resp["id"])
}

func TestAllStandardErrorCodes(t *testing.T) {
	e := NewEndpoint()
	e.Register("test", &testMethods{})

	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{"ParseError", `{invalid`, CodeParseError},
		{"TruncatedParams", `{"jsonrpc":"2.0","method":"test.Echo","params":[invalid json`, CodeParseError},
		{"InvalidRequest", `{"jsonrpc":"1.0","method":"test.Echo","id":1}`, CodeInvalidRequest},
		{"MethodNotFound", `{"jsonrpc":"2.0","method":"unknown","id":1}`, CodeMethodNotFound},
		{"InvalidParams", `{"jsonrpc":"2.0","method":"test.Echo","params":[1,2,3],"id":1}`, CodeInvalidParams},
		{"CustomCode", `{"jsonrpc":"2.0","method":"test.Fail","params":[],"id":1}`, -1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := call(t, serveRPC(e), tt.body)
			assert.Equal(t, tt.wantCode, errorCode(t, resp))
		})
	}
}

func TestProcessorChainExecution(t *testing.T) {
	executed := false
	processor := endpoint.ProcessorFunc(func(w http.ResponseWriter, r *http.Request, next func(w http.ResponseWriter, r *http.Request) error) error {
		executed = true
		return next(w, r)
	})

	e := NewEndpoint()
	e.Register("test", &testMethods{})

	rec := post(t, serveRPC(e, processor), `{"jsonrpc":"2.0","method":"test.Echo","params":["hello"],"id":1}`)
	assert.True(t, executed, "processor was not executed")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProcessorErrorReturnsHTTPError(t *testing.T) {
	processor := endpoint.ProcessorFunc(func(w http.ResponseWriter, r *http.Request, next func(w http.ResponseWriter, r *http.Request) error) error {
		return endpoint.Error(http.StatusForbidden, "access denied", nil)
	})

	e := NewEndpoint()
	e.Register("test", &testMethods{})

	rec := post(t, serveRPC(e, processor), `{"jsonrpc":"2.0","method":"test.Echo","params":["hello"],"id":1}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestContextPropagationThroughProcessors(t *testing.T) {
	type ctxKey struct{}
	var gotValue string

	processor := endpoint.ProcessorFunc(func(w http.ResponseWriter, r *http.Request, next func(w http.ResponseWriter, r *http.Request) error) error {
		ctx := context.WithValue(r.Context(), ctxKey{}, "test-value")
		return next(w, r.WithContext(ctx))
	})

	e := NewEndpoint()
	e.Register("ctx", &contextMethods{ctxKey: ctxKey{}, getValue: func(v string) { gotValue = v }})

	post(t, serveRPC(e, processor), `{"jsonrpc":"2.0","method":"ctx.GetValue","params":[],"id":1}`)
	assert.Equal(t, "test-value", gotValue)
}

func TestFatalFaultIsHTTPError(t *testing.T) {
	e := NewEndpoint()
	e.Handle("broken", HandlerFunc(func(ctx context.Context, params Params) (any, error) {
		return nil, Fatal(context.DeadlineExceeded)
	}))

	rec := post(t, serveRPC(e), `{"jsonrpc":"2.0","method":"broken","id":1}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCBORRequestAndReply(t *testing.T) {
	e := NewEndpoint()
	e.Register("math", &mathMethods{})

	reqBody, err := cbor.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"method":  "math.Add",
		"params":  []int{2, 40},
		"id":      7,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/cbor")
	rec := httptest.NewRecorder()
	serveRPC(e).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/cbor", rec.Header().Get("Content-Type"))

	var resp map[string]any
	require.NoError(t, cbor.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "2.0", resp["jsonrpc"])
	assert.EqualValues(t, 7, resp["id"])
	assert.EqualValues(t, 42, resp["result"])
}

func TestCBORAcceptWithJSONRequest(t *testing.T) {
	e := NewEndpoint()
	e.Register("test", &testMethods{})

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(`{"jsonrpc":"2.0","method":"test.Echo","params":["hi"],"id":"a"}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/cbor, application/json;q=0.5")
	rec := httptest.NewRecorder()
	serveRPC(e).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/cbor", rec.Header().Get("Content-Type"))

	var resp map[string]any
	require.NoError(t, cbor.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "a", resp["id"])
	assert.Equal(t, "hi", resp["result"])
}

func TestMalformedCBORIsParseError(t *testing.T) {
	e := NewEndpoint()

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte{0xff, 0x00}))
	req.Header.Set("Content-Type", "application/cbor")
	rec := httptest.NewRecorder()
	serveRPC(e).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		ID    any `json:"id"`
		Error struct {
			Code int `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, cbor.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Nil(t, resp.ID)
	assert.Equal(t, CodeParseError, resp.Error.Code)
}

type mathMethods struct{}

func (m *mathMethods) Add(ctx context.Context, a, b int) (int, error) {
	return a + b, nil
}

type testMethods struct{}

func (m *testMethods) Echo(ctx context.Context, s string) (string, error) {
	return s, nil
}

func (m *testMethods) Fail(ctx context.Context) error {
	return &JSONRPCError{Code: -1000, Message: "custom error"}
}

type notifyMethods struct {
	called bool
}

func (m *notifyMethods) Ping(ctx context.Context) {
	m.called = true
}

type contextMethods struct {
	ctxKey   any
	getValue func(string)
}

func (m *contextMethods) GetValue(ctx context.Context) (string, error) {
	v, _ := ctx.Value(m.ctxKey).(string)
	if m.getValue != nil {
		m.getValue(v)
	}
	return v, nil
}

package jsonrpc

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnehpets/rpcserve/naming"
)

type signatureMethods struct{}

func (m *signatureMethods) NoReturn() {}

func (m *signatureMethods) ReturnOnly() string { return "result" }

func (m *signatureMethods) ErrorOnly() error { return nil }

func (m *signatureMethods) ResultAndError() (string, error) { return "result", nil }

func (m *signatureMethods) ResultAndErrorFail() (string, error) {
	return "", &JSONRPCError{Code: -100, Message: "failed"}
}

func (m *signatureMethods) NoContext(a, b int) int { return a + b }

func (m *signatureMethods) WithContext(ctx context.Context, s string) string { return s }

func (m *signatureMethods) TooManyResults() (int, int, error) { return 0, 0, nil }

func (m *signatureMethods) ContextNotFirst(s string, ctx context.Context) string { return s }

func TestMethodSignatures(t *testing.T) {
	e := NewEndpoint()
	e.Register("sig", &signatureMethods{})
	h := serveRPC(e)

	tests := []struct {
		name       string
		body       string
		wantResult any
		wantCode   int
	}{
		{"NoReturn", `{"jsonrpc":"2.0","method":"sig.NoReturn","params":[],"id":1}`, nil, 0},
		{"ReturnOnly", `{"jsonrpc":"2.0","method":"sig.ReturnOnly","params":[],"id":1}`, "result", 0},
		{"ErrorOnly", `{"jsonrpc":"2.0","method":"sig.ErrorOnly","params":[],"id":1}`, nil, 0},
		{"ResultAndError", `{"jsonrpc":"2.0","method":"sig.ResultAndError","params":[],"id":1}`, "result", 0},
		{"ResultAndErrorFail", `{"jsonrpc":"2.0","method":"sig.ResultAndErrorFail","params":[],"id":1}`, nil, -100},
		{"NoContext", `{"jsonrpc":"2.0","method":"sig.NoContext","params":[5,3],"id":1}`, float64(8), 0},
		{"WithContext", `{"jsonrpc":"2.0","method":"sig.WithContext","params":["hello"],"id":1}`, "hello", 0},
		{"TooManyResultsSkipped", `{"jsonrpc":"2.0","method":"sig.TooManyResults","id":1}`, nil, CodeMethodNotFound},
		{"ContextNotFirstSkipped", `{"jsonrpc":"2.0","method":"sig.ContextNotFirst","params":["x"],"id":1}`, nil, CodeMethodNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := call(t, h, tt.body)
			if tt.wantCode != 0 {
				assert.Equal(t, tt.wantCode, errorCode(t, resp))
				return
			}
			assert.Nil(t, resp["error"])
			assert.Contains(t, resp, "result")
			assert.Equal(t, tt.wantResult, resp["result"])
		})
	}
}

type Person struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

type paramTypesMethods struct{}

func (m *paramTypesMethods) TakesStruct(p Person) string { return p.Name }

func (m *paramTypesMethods) TakesSlice(items []int) int {
	total := 0
	for _, v := range items {
		total += v
	}
	return total
}

func (m *paramTypesMethods) TakesMap(data map[string]int) int {
	total := 0
	for _, v := range data {
		total += v
	}
	return total
}

func (m *paramTypesMethods) TakesMultiple(a int, b string, c bool) string { return b }

func (m *paramTypesMethods) NoParams() string { return "ok" }

func (m *paramTypesMethods) ReturnsPointer() *Person { return &Person{Name: "test", Age: 30} }

func (m *paramTypesMethods) ReturnsSlice() []int { return []int{1, 2, 3} }

func TestParamTypes(t *testing.T) {
	e := NewEndpoint()
	e.Register("params", &paramTypesMethods{})
	h := serveRPC(e)

	tests := []struct {
		name       string
		body       string
		wantResult any
		wantCode   int
	}{
		{"StructPositional", `{"jsonrpc":"2.0","method":"params.TakesStruct","params":[{"name":"Alice","age":30}],"id":1}`, "Alice", 0},
		{"StructNamed", `{"jsonrpc":"2.0","method":"params.TakesStruct","params":{"name":"Bob","age":4},"id":1}`, "Bob", 0},
		{"StructNamedMissingField", `{"jsonrpc":"2.0","method":"params.TakesStruct","params":{"name":"Bob"},"id":1}`, nil, CodeInvalidParams},
		{"Slice", `{"jsonrpc":"2.0","method":"params.TakesSlice","params":[[1,2,3,4,5]],"id":1}`, float64(15), 0},
		{"MapPositional", `{"jsonrpc":"2.0","method":"params.TakesMap","params":[{"a":1,"b":2,"c":3}],"id":1}`, float64(6), 0},
		{"MapNamed", `{"jsonrpc":"2.0","method":"params.TakesMap","params":{"a":1,"b":2},"id":1}`, float64(3), 0},
		{"Multiple", `{"jsonrpc":"2.0","method":"params.TakesMultiple","params":[42,"test",true],"id":1}`, "test", 0},
		{"MultipleNamedRejected", `{"jsonrpc":"2.0","method":"params.TakesMultiple","params":{"a":1},"id":1}`, nil, CodeInvalidParams},
		{"NoParams", `{"jsonrpc":"2.0","method":"params.NoParams","params":[],"id":1}`, "ok", 0},
		{"NoParamsField", `{"jsonrpc":"2.0","method":"params.NoParams","id":1}`, "ok", 0},
		{"NullParams", `{"jsonrpc":"2.0","method":"params.NoParams","params":null,"id":1}`, "ok", 0},
		{"WrongParamCount", `{"jsonrpc":"2.0","method":"params.TakesMultiple","params":[1],"id":1}`, nil, CodeInvalidParams},
		{"WrongParamType", `{"jsonrpc":"2.0","method":"params.TakesSlice","params":["nope"],"id":1}`, nil, CodeInvalidParams},
		{"MissingParams", `{"jsonrpc":"2.0","method":"params.TakesMultiple","id":1}`, nil, CodeInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := call(t, h, tt.body)
			if tt.wantCode != 0 {
				assert.Equal(t, tt.wantCode, errorCode(t, resp))
				return
			}
			assert.Nil(t, resp["error"])
			assert.Equal(t, tt.wantResult, resp["result"])
		})
	}

	t.Run("ReturnsPointer", func(t *testing.T) {
		resp := call(t, h, `{"jsonrpc":"2.0","method":"params.ReturnsPointer","params":[],"id":1}`)
		assert.Equal(t, map[string]any{"name": "test", "age": float64(30)}, resp["result"])
	})
	t.Run("ReturnsSlice", func(t *testing.T) {
		resp := call(t, h, `{"jsonrpc":"2.0","method":"params.ReturnsSlice","params":[],"id":1}`)
		assert.Len(t, resp["result"], 3)
	})
}

func TestInvalidParamsCarryDiagnostic(t *testing.T) {
	e := NewEndpoint()
	e.Register("params", &paramTypesMethods{})

	resp := call(t, serveRPC(e), `{"jsonrpc":"2.0","method":"params.TakesMultiple","params":[1],"id":9}`)
	errObj := resp["error"].(map[string]any)
	assert.Equal(t, "Invalid params", errObj["message"])
	assert.Contains(t, errObj["data"], "invalid number of params")
	assert.Equal(t, float64(9), resp["id"])
}

type panicMethods struct{}

func (m *panicMethods) PanicMethod() string { panic("something went wrong") }

func (m *panicMethods) PanicWithContext(ctx context.Context) string { panic("panic with context") }

func TestPanicRecovery(t *testing.T) {
	for _, verbose := range []bool{false, true} {
		e := NewEndpoint(WithVerboseErrors(verbose))
		e.Register("panic", &panicMethods{})

		for _, method := range []string{"panic.PanicMethod", "panic.PanicWithContext"} {
			resp := call(t, serveRPC(e), `{"jsonrpc":"2.0","method":"`+method+`","params":[],"id":1}`)
			assert.Equal(t, CodeInternalError, errorCode(t, resp))

			errObj := resp["error"].(map[string]any)
			if verbose {
				assert.Contains(t, errObj["data"], "panic")
			} else {
				assert.NotContains(t, errObj, "data", "causes must not leak without verbose errors")
			}
		}
	}
}

type unexportedMethods struct{}

func (m *unexportedMethods) hidden() string { return "should not be callable" }

func (m *unexportedMethods) Visible() string { return "visible" }

func TestUnexportedMethodsNotRegistered(t *testing.T) {
	e := NewEndpoint()
	e.Register("test", &unexportedMethods{})
	_ = (&unexportedMethods{}).hidden

	resp := call(t, serveRPC(e), `{"jsonrpc":"2.0","method":"test.hidden","params":[],"id":1}`)
	assert.Equal(t, CodeMethodNotFound, errorCode(t, resp))

	_, ok := e.Resolve("test.Visible")
	assert.True(t, ok)
}

func TestMethodNameCollisionPanics(t *testing.T) {
	e := NewEndpoint()
	e.Register("math", &mathMethods{})
	assert.PanicsWithValue(t, "jsonrpc: method name collision: math.Add", func() {
		e.Register("math", &mathMethods{})
	})
}

type renamedParams struct {
	_ struct{} `jsonrpc:"add"`
	A int      `json:"a"`
	B int      `json:"b"`
}

type renamedMethods struct{}

func (m *renamedMethods) Add(ctx context.Context, p renamedParams) (int, error) {
	return p.A + p.B, nil
}

func (m *renamedMethods) Subtract(ctx context.Context, a, b int) (int, error) {
	return a - b, nil
}

func TestMethodNames(t *testing.T) {
	e := NewEndpoint()
	e.Register("calc", &renamedMethods{}, NameMethods(naming.SnakeCase))
	h := serveRPC(e)

	resp := call(t, h, `{"jsonrpc":"2.0","method":"calc.add","params":{"a":1,"b":2},"id":1}`)
	assert.Equal(t, float64(3), resp["result"])

	resp = call(t, h, `{"jsonrpc":"2.0","method":"calc.subtract","params":[5,2],"id":2}`)
	assert.Equal(t, float64(3), resp["result"])

	resp = call(t, h, `{"jsonrpc":"2.0","method":"calc.Subtract","params":[5,2],"id":3}`)
	assert.Equal(t, CodeMethodNotFound, errorCode(t, resp))
}

type Account struct {
	UserID      string
	DisplayName string
	Tags        []string `json:"labels,omitempty"`
}

type accountQuery struct {
	UserID string
}

type accountMethods struct{}

func (m *accountMethods) Get(ctx context.Context, q accountQuery) (Account, error) {
	return Account{UserID: q.UserID, DisplayName: "Ada"}, nil
}

func (m *accountMethods) Reject(ctx context.Context) error {
	return NewError(-1, "rejected").WithData(Account{UserID: "u1"})
}

func TestConventionsArePerMethod(t *testing.T) {
	e := NewEndpoint(WithConvention(naming.CamelCase))
	e.Register("snake", &accountMethods{}, BindConvention(naming.SnakeCase))
	e.Register("camel", &accountMethods{})
	h := serveRPC(e)

	rec := post(t, h, `{"jsonrpc":"2.0","method":"snake.Get","params":{"user_id":"u1"},"id":1}`)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":{"user_id":"u1","display_name":"Ada"}}`, rec.Body.String())

	rec = post(t, h, `{"jsonrpc":"2.0","method":"camel.Get","params":{"userId":"u2"},"id":2}`)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":2,"result":{"userId":"u2","displayName":"Ada"}}`, rec.Body.String())

	// The snake_case method does not accept camelCase member names.
	resp := call(t, h, `{"jsonrpc":"2.0","method":"snake.Get","params":{"userId":"u1"},"id":3}`)
	assert.Equal(t, CodeInvalidParams, errorCode(t, resp))

	// Error data goes through the same codec as results.
	rec = post(t, h, `{"jsonrpc":"2.0","method":"snake.Reject","id":4}`)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":4,"error":{"code":-1,"message":"rejected","data":{"user_id":"u1","display_name":""}}}`, rec.Body.String())
}

type greetParams struct {
	Name     string
	Greeting *string
}

func TestFuncHandler(t *testing.T) {
	e := NewEndpoint()
	e.Handle("greet", Func(func(ctx context.Context, p greetParams) (string, error) {
		g := "hello"
		if p.Greeting != nil {
			g = *p.Greeting
		}
		return g + " " + p.Name, nil
	}, BindConvention(naming.SnakeCase), Describe("Greets someone.")))
	e.Handle("sum", Func(func(ctx context.Context, xs []int) (int, error) {
		n := 0
		for _, x := range xs {
			n += x
		}
		return n, nil
	}))
	h := serveRPC(e)

	resp := call(t, h, `{"jsonrpc":"2.0","method":"greet","params":{"name":"Ann"},"id":1}`)
	assert.Equal(t, "hello Ann", resp["result"])

	resp = call(t, h, `{"jsonrpc":"2.0","method":"greet","params":["Bo","hi"],"id":2}`)
	assert.Equal(t, "hi Bo", resp["result"])

	resp = call(t, h, `{"jsonrpc":"2.0","method":"greet","params":["Bo"],"id":3}`)
	assert.Equal(t, CodeInvalidParams, errorCode(t, resp))

	resp = call(t, h, `{"jsonrpc":"2.0","method":"greet","params":{},"id":4}`)
	assert.Equal(t, CodeInvalidParams, errorCode(t, resp))

	resp = call(t, h, `{"jsonrpc":"2.0","method":"sum","params":[1,2,3],"id":5}`)
	assert.Equal(t, float64(6), resp["result"])
}

type pageRequest struct {
	PageSize int    `json:",omitempty"`
	Cursor   string
}

type listUsersParams struct {
	pageRequest
	Team string
	Role string `json:"role"`
}

type listUsersMethods struct{}

func (m *listUsersMethods) List(ctx context.Context, p listUsersParams) (string, error) {
	return fmt.Sprintf("%s/%s@%s:%d", p.Team, p.Role, p.Cursor, p.PageSize), nil
}

func TestEmbeddedParamsArePromoted(t *testing.T) {
	e := NewEndpoint()
	e.Register("users", &listUsersMethods{}, BindConvention(naming.SnakeCase))
	e.Handle("page", Func(func(ctx context.Context, p listUsersParams) (string, error) {
		return p.Team + ":" + p.Cursor, nil
	}, BindConvention(naming.SnakeCase)))
	h := serveRPC(e)

	tests := []struct {
		name       string
		body       string
		wantResult any
		wantData   string
	}{
		{"Named", `{"jsonrpc":"2.0","method":"users.List","params":{"team":"ops","role":"admin","cursor":"c1","page_size":5},"id":1}`, "ops/admin@c1:5", ""},
		{"OptionalPromotedOmitted", `{"jsonrpc":"2.0","method":"users.List","params":{"team":"ops","role":"admin","cursor":"c1"},"id":2}`, "ops/admin@c1:0", ""},
		{"MemberCaseIgnored", `{"jsonrpc":"2.0","method":"users.List","params":{"Team":"ops","ROLE":"admin","Cursor":"c1"},"id":3}`, "ops/admin@c1:0", ""},
		{"MissingPromoted", `{"jsonrpc":"2.0","method":"users.List","params":{"team":"ops","role":"admin"},"id":4}`, nil, "missing param: cursor"},
		{"Spread", `{"jsonrpc":"2.0","method":"page","params":[10,"c2","ops","dev"],"id":5}`, "ops:c2", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := call(t, h, tt.body)
			if tt.wantData != "" {
				assert.Equal(t, CodeInvalidParams, errorCode(t, resp))
				assert.Equal(t, tt.wantData, resp["error"].(map[string]any)["data"])
				return
			}
			assert.Nil(t, resp["error"])
			assert.Equal(t, tt.wantResult, resp["result"])
		})
	}

	var list MethodInfo
	for _, m := range e.Methods() {
		if m.Name == "users.List" {
			list = m
		}
	}
	require.True(t, list.Named)
	assert.Equal(t, []ParamInfo{
		{Name: "page_size", Type: reflect.TypeFor[int](), Required: false},
		{Name: "cursor", Type: reflect.TypeFor[string](), Required: true},
		{Name: "team", Type: reflect.TypeFor[string](), Required: true},
		{Name: "role", Type: reflect.TypeFor[string](), Required: true},
	}, list.Params)
}

func TestHandleFuncUsesRawParams(t *testing.T) {
	e := NewEndpoint()
	e.Handle("raw", Bind(naming.KebabCase, func(ctx context.Context, params Params) (any, error) {
		if params.Absent() {
			return "absent", nil
		}
		members, err := params.Named()
		if err != nil {
			return nil, err
		}
		return len(members), nil
	}))
	h := serveRPC(e)

	assert.Equal(t, "absent", call(t, h, `{"jsonrpc":"2.0","method":"raw","id":1}`)["result"])
	assert.Equal(t, float64(2), call(t, h, `{"jsonrpc":"2.0","method":"raw","params":{"a":1,"b":2},"id":2}`)["result"])
	assert.Equal(t, CodeInvalidParams, errorCode(t, call(t, h, `{"jsonrpc":"2.0","method":"raw","params":[1],"id":3}`)))
}

func TestMethodsDescribeRegistry(t *testing.T) {
	e := NewEndpoint(WithConvention(naming.CamelCase))
	e.Register("account", &accountMethods{}, Describe("Account lookups."))
	e.Register("math", &mathMethods{})
	e.Handle("raw", HandlerFunc(func(ctx context.Context, params Params) (any, error) { return nil, nil }))

	methods := e.Methods()
	names := make([]string, len(methods))
	for i, m := range methods {
		names[i] = m.Name
	}
	require.Equal(t, []string{"account.Get", "account.Reject", "math.Add", "raw"}, names)

	get := methods[0]
	assert.True(t, get.Named)
	assert.Equal(t, "camelCase", get.Convention.Name())
	assert.Equal(t, "Account lookups.", get.Description)
	assert.Equal(t, reflect.TypeFor[Account](), get.Result)
	require.Len(t, get.Params, 1)
	assert.Equal(t, ParamInfo{Name: "userId", Type: reflect.TypeFor[string](), Required: true}, get.Params[0])

	add := methods[2]
	assert.False(t, add.Named)
	require.Len(t, add.Params, 2)
	assert.Equal(t, "arg0", add.Params[0].Name)
	assert.Equal(t, reflect.TypeFor[int](), add.Result)

	raw := methods[3]
	assert.Equal(t, "default", raw.Convention.Name())
	assert.Nil(t, raw.Result)
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *JSONRPCError
		wantCode int
	}{
		{"ParseError", NewParseError("parse failed"), CodeParseError},
		{"InvalidRequest", NewInvalidRequestError("invalid"), CodeInvalidRequest},
		{"MethodNotFound", NewMethodNotFoundError("not found"), CodeMethodNotFound},
		{"InvalidParams", NewInvalidParamsError("bad params"), CodeInvalidParams},
		{"InternalError", NewInternalError("internal"), CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, tt.err.Code)
			assert.NotEmpty(t, tt.err.Error())
			assert.True(t, IsReserved(tt.err.Code))
		})
	}
	assert.False(t, IsReserved(-1000))
}

func TestMapError(t *testing.T) {
	custom := NewError(42, "answer")
	assert.Same(t, custom, mapError(custom, false))
	assert.Same(t, custom, mapError(Fatal(custom), false), "wrapped protocol errors keep their code")

	be := mapError(bindError(errors.New("boom"), "param %d", 0), false)
	assert.Equal(t, CodeInvalidParams, be.Code)
	assert.Equal(t, "param 0: boom", be.Data)

	internal := mapError(errors.New("db down"), false)
	assert.Equal(t, CodeInternalError, internal.Code)
	assert.Nil(t, internal.Data)
	assert.Equal(t, "db down", mapError(errors.New("db down"), true).Data)

	assert.True(t, errors.Is(Fatal(errors.New("x")), ErrFatal))
	assert.Nil(t, Fatal(nil))
}

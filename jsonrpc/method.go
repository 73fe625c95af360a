package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/mnehpets/rpcserve/naming"
)

var (
	typeOfContext = reflect.TypeFor[context.Context]()
	typeOfError   = reflect.TypeFor[error]()
)

// rpcMethod is a Handler backed by a Go func, via reflection.
//
// Accepted signatures:
//
//	func([ctx context.Context,] args...) ([result,] [error])
type rpcMethod struct {
	fn     reflect.Value
	codec  *naming.Codec
	hasCtx bool
	args   []reflect.Type
	result reflect.Type // nil when the func returns no value
	hasErr bool

	// Set when the func takes a single struct (or *struct) argument.
	fields []paramField
	// spread binds array params over fields instead of over args.
	spread bool
	// nameOverride comes from the jsonrpc tag of a "_" field.
	nameOverride string

	description string
}

type paramField struct {
	index    []int // path through embedded structs, as for reflect.Value.FieldByIndex
	name     string
	typ      reflect.Type
	required bool
}

func newMethod(fn reflect.Value, codec *naming.Codec) (*rpcMethod, error) {
	ft := fn.Type()
	if ft.Kind() != reflect.Func {
		return nil, fmt.Errorf("jsonrpc: %s is not a func", ft)
	}
	if ft.IsVariadic() {
		return nil, errors.New("jsonrpc: variadic funcs are not supported")
	}

	m := &rpcMethod{fn: fn, codec: codec}
	for i := 0; i < ft.NumIn(); i++ {
		in := ft.In(i)
		if in == typeOfContext {
			if i != 0 {
				return nil, errors.New("jsonrpc: context.Context must be the first argument")
			}
			m.hasCtx = true
			continue
		}
		m.args = append(m.args, in)
	}

	switch ft.NumOut() {
	case 0:
	case 1:
		if ft.Out(0) == typeOfError {
			m.hasErr = true
		} else {
			m.result = ft.Out(0)
		}
	case 2:
		if ft.Out(1) != typeOfError {
			return nil, errors.New("jsonrpc: second result must be error")
		}
		m.result = ft.Out(0)
		m.hasErr = true
	default:
		return nil, errors.New("jsonrpc: too many results")
	}

	if len(m.args) == 1 {
		if st := structOf(m.args[0]); st != nil {
			m.fields, m.nameOverride = describeFields(st, codec)
		}
	}
	return m, nil
}

func structOf(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	return t
}

// describeFields lists the wire fields of a params struct in declaration
// order. Fields of embedded structs without a json name are promoted, as
// encoding/json does: a shallower field hides deeper ones of the same name,
// and same-depth duplicates hide each other.
func describeFields(st reflect.Type, codec *naming.Codec) ([]paramField, string) {
	override := ""
	for i := 0; i < st.NumField(); i++ {
		sf := st.Field(i)
		if sf.Name == "_" {
			if tag := sf.Tag.Get("jsonrpc"); tag != "" {
				override = tag
			}
		}
	}

	var all []paramField
	collectFields(&all, st, nil, true, codec, map[reflect.Type]bool{st: true})

	depth := make(map[string]int, len(all))
	count := make(map[string]int, len(all))
	for _, f := range all {
		d, ok := depth[f.name]
		switch {
		case !ok || len(f.index) < d:
			depth[f.name], count[f.name] = len(f.index), 1
		case len(f.index) == d:
			count[f.name]++
		}
	}
	fields := make([]paramField, 0, len(all))
	for _, f := range all {
		if len(f.index) == depth[f.name] && count[f.name] == 1 {
			fields = append(fields, f)
		}
	}
	return fields, override
}

func collectFields(fields *[]paramField, st reflect.Type, prefix []int, required bool, codec *naming.Codec, seen map[reflect.Type]bool) {
	for i := 0; i < st.NumField(); i++ {
		sf := st.Field(i)
		if sf.Name == "_" {
			continue
		}
		name, ok := codec.FieldName(sf)
		if !ok {
			continue
		}
		index := append(append([]int(nil), prefix...), i)
		if sf.Anonymous && !hasJSONName(sf) {
			if et := structOf(sf.Type); et != nil {
				// Decoding cannot allocate an unexported embedded pointer.
				if !seen[et] && (sf.IsExported() || sf.Type.Kind() != reflect.Pointer) {
					seen[et] = true
					collectFields(fields, et, index, required && sf.Type.Kind() != reflect.Pointer, codec, seen)
					delete(seen, et)
				}
				continue
			}
		}
		if !sf.IsExported() {
			continue
		}
		*fields = append(*fields, paramField{
			index:    index,
			name:     name,
			typ:      sf.Type,
			required: required && !naming.OmitEmpty(sf) && sf.Type.Kind() != reflect.Pointer,
		})
	}
}

func hasJSONName(sf reflect.StructField) bool {
	tag, ok := sf.Tag.Lookup("json")
	if !ok {
		return false
	}
	name, _, _ := strings.Cut(tag, ",")
	return name != ""
}

func (m *rpcMethod) Codec() *naming.Codec {
	return m.codec
}

func (m *rpcMethod) ServeRPC(ctx context.Context, params Params) (any, error) {
	argv, err := m.bind(params)
	if err != nil {
		return nil, err
	}

	in := make([]reflect.Value, 0, len(argv)+1)
	if m.hasCtx {
		in = append(in, reflect.ValueOf(&ctx).Elem())
	}
	in = append(in, argv...)
	out := m.fn.Call(in)

	var result any
	var retErr error
	switch {
	case m.result != nil && m.hasErr:
		result = out[0].Interface()
		if !out[1].IsNil() {
			retErr = out[1].Interface().(error)
		}
	case m.result != nil:
		result = out[0].Interface()
	case m.hasErr:
		if !out[0].IsNil() {
			retErr = out[0].Interface().(error)
		}
	}
	if retErr != nil {
		return nil, retErr
	}
	return result, nil
}

// bind converts params into call arguments.
//
// Array params bind positionally to the arguments (or, for spread methods, to
// the fields of the single struct argument). Object params bind to a single
// struct or map argument. Absent params are accepted when every argument can
// stay at its zero value.
func (m *rpcMethod) bind(params Params) ([]reflect.Value, error) {
	switch {
	case params.IsArray():
		if m.spread && len(m.args) == 1 {
			if k := m.args[0].Kind(); k == reflect.Slice || k == reflect.Array {
				v := reflect.New(m.args[0])
				if err := params.codec.Unmarshal(params.Raw(), v.Interface()); err != nil {
					return nil, bindError(err, "invalid params")
				}
				return []reflect.Value{v.Elem()}, nil
			}
		}
		elems, err := params.Positional()
		if err != nil {
			return nil, err
		}
		if m.spread && m.fields != nil {
			return m.bindSpread(elems, params.codec)
		}
		if len(elems) != len(m.args) {
			return nil, bindError(nil, "invalid number of params: got %d, want %d", len(elems), len(m.args))
		}
		argv := make([]reflect.Value, len(m.args))
		for i, raw := range elems {
			v := reflect.New(m.args[i])
			if err := params.codec.Unmarshal(raw, v.Interface()); err != nil {
				return nil, bindError(err, "param %d", i)
			}
			argv[i] = v.Elem()
		}
		return argv, nil

	case params.IsObject():
		if len(m.args) != 1 || (m.fields == nil && m.args[0].Kind() != reflect.Map) {
			return nil, bindError(nil, "named params are not accepted, pass an array of %d value(s)", len(m.args))
		}
		v := reflect.New(m.args[0])
		if err := params.codec.Unmarshal(params.Raw(), v.Interface()); err != nil {
			return nil, bindError(err, "invalid params")
		}
		if m.fields != nil {
			members, err := params.Named()
			if err != nil {
				return nil, err
			}
			if err := m.checkRequired(members); err != nil {
				return nil, err
			}
		}
		return []reflect.Value{v.Elem()}, nil

	default:
		if len(m.args) == 0 {
			return nil, nil
		}
		if len(m.args) == 1 && m.fields != nil {
			if err := m.checkRequired(nil); err != nil {
				return nil, err
			}
			return []reflect.Value{zeroArg(m.args[0])}, nil
		}
		return nil, bindError(nil, "missing params: want %d value(s)", len(m.args))
	}
}

func (m *rpcMethod) checkRequired(members map[string]json.RawMessage) error {
	// Decoding matches member names case-insensitively, so presence does too.
	present := make(map[string]bool, len(members))
	for k := range members {
		present[strings.ToLower(k)] = true
	}
	var missing []string
	for _, f := range m.fields {
		if f.required && !present[strings.ToLower(f.name)] {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return bindError(nil, "missing param: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (m *rpcMethod) bindSpread(elems []json.RawMessage, codec *naming.Codec) ([]reflect.Value, error) {
	if len(elems) != len(m.fields) {
		return nil, bindError(nil, "invalid number of params: got %d, want %d", len(elems), len(m.fields))
	}
	arg := zeroArg(m.args[0])
	st := arg
	if st.Kind() == reflect.Pointer {
		st = st.Elem()
	}
	for i, raw := range elems {
		f := m.fields[i]
		field := fieldByIndex(st, f.index)
		if !field.CanSet() {
			return nil, bindError(nil, "param %d (%s) is not settable", i, f.name)
		}
		if err := codec.Unmarshal(raw, field.Addr().Interface()); err != nil {
			return nil, bindError(err, "param %d (%s)", i, f.name)
		}
	}
	return []reflect.Value{arg}, nil
}

// fieldByIndex is reflect.Value.FieldByIndex, allocating nil embedded
// pointers on the way.
func fieldByIndex(v reflect.Value, index []int) reflect.Value {
	for i, x := range index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v
}

// zeroArg returns an addressable zero value of t; pointers are allocated.
func zeroArg(t reflect.Type) reflect.Value {
	if t.Kind() == reflect.Pointer {
		return reflect.New(t.Elem())
	}
	return reflect.New(t).Elem()
}

// info describes the method for documentation.
func (m *rpcMethod) info(name string) MethodInfo {
	mi := MethodInfo{
		Name:        name,
		Convention:  m.codec.Convention(),
		Result:      m.result,
		Description: m.description,
	}
	if m.fields != nil {
		mi.Named = true
		for _, f := range m.fields {
			mi.Params = append(mi.Params, ParamInfo{Name: f.name, Type: f.typ, Required: f.required})
		}
		return mi
	}
	for i, t := range m.args {
		mi.Params = append(mi.Params, ParamInfo{Name: fmt.Sprintf("arg%d", i), Type: t, Required: true})
	}
	return mi
}

// Func builds a typed Handler from fn. Params bind into P: object params by
// field name, array params positionally over P's fields when P is a struct,
// or directly when P is a slice or array.
func Func[P, R any](fn func(context.Context, P) (R, error), opts ...MethodOption) Handler {
	cfg := methodConfig{convention: naming.Default}
	for _, opt := range opts {
		opt(&cfg)
	}
	m, err := newMethod(reflect.ValueOf(fn), naming.CodecFor(cfg.convention))
	if err != nil {
		panic(err)
	}
	m.spread = true
	m.description = cfg.description
	return m
}

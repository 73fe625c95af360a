package endpoint

import (
	"bytes"
	"encoding"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// defaultFieldLimit is the maximum byte length of a decoded value when the
// field has no maxLength tag.
var defaultFieldLimit = 16 * 1024 // 16KB

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Unmarshal populates dst (must be a non-nil pointer) from the request.
//
// Supported struct tags:
//   - `path:"name[,flag]"`: r.PathValue(name)
//   - `query:"name[,flag]"`: URL query values
//   - `header:"name[,flag]"`: request header values
//   - `body:"[,flag]"`: the request body (at most one field)
//   - `<source>:"-"` to ignore the field entirely
//   - `maxLength:"n"` to set the maximum byte length for a field value
//
// Flags:
//   - json: decode the value as JSON (default for body fields that are not
//     string or []byte; requires a JSON Content-Type)
//   - base64 | base64url: decode []byte values
//
// Untagged scalar fields default to path, then query, with the field name
// lowercased. Untagged struct fields are decoded recursively. If multiple
// source tags are present on a field, precedence is path, query, header, body.
// Fields with no data present are left unchanged.
//
// Without a maxLength tag a value may be at most 16KB. Use `maxLength:"0"` or
// `maxLength:""` for no limit. Values over the limit fail with 400 (413 for
// the body).
func Unmarshal(r *http.Request, dst any) error {
	if r == nil {
		return newEndpointError(http.StatusInternalServerError, "", errors.New("endpoint: decode: nil request"))
	}
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return newEndpointError(http.StatusInternalServerError, "", errors.New("endpoint: decode: dst must be a non-nil pointer"))
	}

	// Support *P where P may be a struct or pointer-to-struct.
	root := v.Elem()
	if root.Kind() == reflect.Pointer {
		if root.IsNil() {
			root.Set(reflect.New(root.Type().Elem()))
		}
		root = root.Elem()
	}
	if root.Kind() != reflect.Struct {
		return newEndpointError(http.StatusInternalServerError, "", errors.New("endpoint: decode: dst must point to a struct (or pointer to struct)"))
	}

	d := &decoder{r: r}
	return d.decodeStruct(root)
}

type decoder struct {
	r         *http.Request
	bodyField string
}

type sourceTag struct {
	Source    string
	Name      string
	Encoding  string
	MaxLength int
}

// sourceOrder is the precedence of sources on a multi-tagged field.
var sourceOrder = []string{"path", "query", "header", "body"}

func (d *decoder) decodeStruct(sv reflect.Value) error {
	t := sv.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		fv := sv.Field(i)

		tags, skip, err := fieldTags(sf)
		if err != nil {
			return newEndpointError(http.StatusInternalServerError, "", fmt.Errorf("endpoint: decode: field %s: %w", sf.Name, err))
		}
		if skip {
			continue
		}

		if len(tags) == 0 {
			if isStructLike(sf.Type) && !isTextUnmarshaler(sf.Type) {
				if fv.Kind() == reflect.Pointer {
					if fv.IsNil() {
						fv.Set(reflect.New(fv.Type().Elem()))
					}
					fv = fv.Elem()
				}
				if err := d.decodeStruct(fv); err != nil {
					return err
				}
				continue
			}
			name := strings.ToLower(sf.Name)
			tags = []sourceTag{{Source: "path", Name: name}, {Source: "query", Name: name}}
		}

		limit, err := fieldLengthLimit(sf)
		if err != nil {
			return newEndpointError(http.StatusInternalServerError, "", fmt.Errorf("endpoint: decode: field %s: %w", sf.Name, err))
		}

		for _, tag := range tags {
			tag.MaxLength = limit
			if tag.Source == "body" {
				if d.bodyField != "" {
					return newEndpointError(http.StatusInternalServerError, "", fmt.Errorf("endpoint: decode: multiple body fields: %s and %s", d.bodyField, sf.Name))
				}
				d.bodyField = sf.Name
				if tag.Encoding == "" && !isStringOrBytes(sf.Type) {
					tag.Encoding = "json"
				}
			}
			ok, err := d.setField(fv, tag, sf.Name)
			if err != nil {
				return err
			}
			if ok {
				break
			}
		}
	}
	return nil
}

// fieldTags returns the source tags of a field in precedence order. skip is
// set when any source tag is "-".
func fieldTags(sf reflect.StructField) (tags []sourceTag, skip bool, err error) {
	for _, src := range sourceOrder {
		val, has := sf.Tag.Lookup(src)
		if !has {
			continue
		}
		parts := strings.Split(val, ",")
		name := strings.TrimSpace(parts[0])
		if name == "-" {
			return nil, true, nil
		}
		if name == "" {
			name = strings.ToLower(sf.Name)
		}
		tag := sourceTag{Source: src, Name: name}
		for _, p := range parts[1:] {
			flag := strings.ToLower(strings.TrimSpace(p))
			switch flag {
			case "":
			case "json", "base64", "base64url":
				if tag.Encoding != "" {
					return nil, false, errors.New("multiple encoding flags")
				}
				tag.Encoding = flag
			default:
				return nil, false, fmt.Errorf("unknown %s tag flag %q", src, flag)
			}
		}
		tags = append(tags, tag)
	}
	return tags, false, nil
}

func fieldLengthLimit(sf reflect.StructField) (int, error) {
	val, has := sf.Tag.Lookup("maxLength")
	if !has {
		return defaultFieldLimit, nil
	}
	val = strings.TrimSpace(val)
	if val == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("maxLength: invalid integer %q", val)
	}
	if n < 0 {
		return 0, errors.New("maxLength: must be >= 0")
	}
	return n, nil
}

func (d *decoder) fetch(tag sourceTag) ([][]byte, bool, error) {
	r := d.r
	switch tag.Source {
	case "path":
		v := r.PathValue(tag.Name)
		if v == "" {
			return nil, false, nil
		}
		return [][]byte{[]byte(v)}, true, nil
	case "query":
		if r.URL == nil {
			return nil, false, nil
		}
		return byteValues(r.URL.Query()[tag.Name])
	case "header":
		// Index the map directly to tell present-but-empty from missing.
		return byteValues(r.Header[http.CanonicalHeaderKey(tag.Name)])
	case "body":
		return d.fetchBody(tag)
	}
	return nil, false, fmt.Errorf("endpoint: decode: unknown source %q", tag.Source)
}

func byteValues(vs []string) ([][]byte, bool, error) {
	if len(vs) == 0 {
		return nil, false, nil
	}
	out := make([][]byte, len(vs))
	for i, s := range vs {
		out[i] = []byte(s)
	}
	return out, true, nil
}

func (d *decoder) fetchBody(tag sourceTag) ([][]byte, bool, error) {
	r := d.r
	if r.Body == nil || r.Body == http.NoBody {
		return nil, false, nil
	}
	if tag.Encoding == "json" && !requestBodyIsJSON(r) {
		mt := requestBodyMediaType(r)
		if mt == "" {
			mt = "(missing)"
		}
		return nil, false, newEndpointError(http.StatusUnsupportedMediaType, "", fmt.Errorf("endpoint: decode: body: unsupported media type %s", mt))
	}

	var src io.Reader = r.Body
	if tag.MaxLength > 0 {
		src = io.LimitReader(r.Body, int64(tag.MaxLength)+1)
	}
	b, err := io.ReadAll(src)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, false, newEndpointError(http.StatusRequestEntityTooLarge, "", fmt.Errorf("endpoint: decode: body: %w", err))
		}
		return nil, false, newEndpointError(http.StatusBadRequest, "", fmt.Errorf("endpoint: decode: body: %w", err))
	}
	if tag.MaxLength > 0 && len(b) > tag.MaxLength {
		return nil, false, newEndpointError(http.StatusRequestEntityTooLarge, "", fmt.Errorf("endpoint: decode: body exceeds max length %d", tag.MaxLength))
	}
	return [][]byte{b}, true, nil
}

func requestBodyIsJSON(r *http.Request) bool {
	mt := requestBodyMediaType(r)
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

func requestBodyMediaType(r *http.Request) string {
	ct := strings.TrimSpace(r.Header.Get("Content-Type"))
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		// If malformed, return the raw (lowercased) content-type.
		return strings.ToLower(ct)
	}
	return strings.ToLower(mt)
}

func (d *decoder) setField(fv reflect.Value, tag sourceTag, fieldName string) (bool, error) {
	raw, ok, err := d.fetch(tag)
	if err != nil || !ok {
		return false, err
	}
	if tag.Source != "body" && tag.MaxLength > 0 {
		for _, val := range raw {
			if len(val) > tag.MaxLength {
				return false, newEndpointError(http.StatusBadRequest, "", fmt.Errorf("endpoint: decode: %s %q -> %s: value exceeds max length %d", tag.Source, tag.Name, fieldName, tag.MaxLength))
			}
		}
	}
	if err := setValues(fv, raw, tag.Encoding); err != nil {
		return false, newEndpointError(http.StatusBadRequest, "", fmt.Errorf("endpoint: decode: %s %q -> %s: %w", tag.Source, tag.Name, fieldName, err))
	}
	return true, nil
}

// setValues stores values into v. Slice fields (other than []byte and JSON
// targets) take every value; all other fields take the first.
func setValues(v reflect.Value, values [][]byte, enc string) error {
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		v = v.Elem()
	}

	if v.Kind() == reflect.Slice && !isBytes(v.Type()) && enc != "json" {
		slice := reflect.MakeSlice(v.Type(), 0, len(values))
		for _, val := range values {
			elem := reflect.New(v.Type().Elem()).Elem()
			if err := setValue(elem, val, enc); err != nil {
				return err
			}
			slice = reflect.Append(slice, elem)
		}
		v.Set(slice)
		return nil
	}
	return setValue(v, values[0], enc)
}

func setValue(v reflect.Value, b []byte, enc string) error {
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		return setValue(v.Elem(), b, enc)
	}

	switch enc {
	case "json":
		return jsonAPI.Unmarshal(b, v.Addr().Interface())
	case "base64", "base64url":
		if !isBytes(v.Type()) {
			return fmt.Errorf("encoding %q not supported for type %s", enc, v.Type())
		}
		e := base64.StdEncoding
		if enc == "base64url" {
			e = base64.RawURLEncoding
		}
		out, err := e.DecodeString(string(bytes.TrimSpace(b)))
		if err != nil {
			return err
		}
		v.SetBytes(out)
		return nil
	}

	if u, ok := v.Addr().Interface().(encoding.TextUnmarshaler); ok {
		return u.UnmarshalText(b)
	}
	if isBytes(v.Type()) {
		v.SetBytes(b)
		return nil
	}

	s := string(b)
	switch v.Kind() {
	case reflect.String:
		v.SetString(s)
	case reflect.Bool:
		bb, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		v.SetBool(bb)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetFloat(f)
	default:
		return fmt.Errorf("unsupported kind %s", v.Kind())
	}
	return nil
}

var textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()

func isTextUnmarshaler(t reflect.Type) bool {
	if t.Kind() != reflect.Pointer {
		t = reflect.PointerTo(t)
	}
	return t.Implements(textUnmarshalerType)
}

func isStructLike(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct
}

func isBytes(t reflect.Type) bool {
	return t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8
}

func isStringOrBytes(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.String || isBytes(t)
}

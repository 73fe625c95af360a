package openapi

import (
	"encoding"
	"encoding/json"
	"path"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mnehpets/rpcserve/naming"
)

var (
	typeOfTime          = reflect.TypeOf(time.Time{})
	typeOfDuration      = reflect.TypeOf(time.Duration(0))
	typeOfRawMessage    = reflect.TypeOf(json.RawMessage(nil))
	typeOfBytes         = reflect.TypeOf([]byte(nil))
	typeOfTextMarshaler = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	typeOfJSONMarshaler = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
)

var zero = 0.0

// generator derives schemas from Go types. Named struct types become
// components; field names follow the codec's convention.
type generator struct {
	codec   *naming.Codec
	schemas map[string]*Schema
	names   map[reflect.Type]string
}

func newGenerator(codec *naming.Codec) *generator {
	return &generator{
		codec:   codec,
		schemas: make(map[string]*Schema),
		names:   make(map[reflect.Type]string),
	}
}

func (g *generator) schemaFor(t reflect.Type) *Schema {
	if t == nil {
		return &Schema{}
	}
	switch t {
	case typeOfTime:
		return &Schema{Type: "string", Format: "date-time"}
	case typeOfRawMessage:
		return &Schema{}
	case typeOfBytes:
		return &Schema{Type: "string", Format: "byte"}
	case typeOfDuration:
		return &Schema{Type: "integer", Format: "int64", Description: "nanoseconds"}
	}
	if t.Implements(typeOfJSONMarshaler) || reflect.PointerTo(t).Implements(typeOfJSONMarshaler) {
		return &Schema{}
	}
	if t.Implements(typeOfTextMarshaler) || reflect.PointerTo(t).Implements(typeOfTextMarshaler) {
		return &Schema{Type: "string"}
	}

	switch t.Kind() {
	case reflect.Pointer:
		s := g.schemaFor(t.Elem())
		if s.Ref != "" {
			// $ref siblings are ignored in 3.0.
			return &Schema{OneOf: []*Schema{s}, Nullable: true}
		}
		s.Nullable = true
		return s
	case reflect.Bool:
		return &Schema{Type: "boolean"}
	case reflect.Int8, reflect.Int16, reflect.Int32:
		return &Schema{Type: "integer", Format: "int32"}
	case reflect.Int, reflect.Int64:
		return &Schema{Type: "integer", Format: "int64"}
	case reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return &Schema{Type: "integer", Format: "int32", Minimum: &zero}
	case reflect.Uint, reflect.Uint64, reflect.Uintptr:
		return &Schema{Type: "integer", Format: "int64", Minimum: &zero}
	case reflect.Float32:
		return &Schema{Type: "number", Format: "float"}
	case reflect.Float64:
		return &Schema{Type: "number", Format: "double"}
	case reflect.String:
		return &Schema{Type: "string"}
	case reflect.Slice:
		return &Schema{Type: "array", Items: g.schemaFor(t.Elem()), Nullable: true}
	case reflect.Array:
		n := t.Len()
		return &Schema{Type: "array", Items: g.schemaFor(t.Elem()), MinItems: &n, MaxItems: &n}
	case reflect.Map:
		if t.Key().Kind() != reflect.String && !t.Key().Implements(typeOfTextMarshaler) {
			return &Schema{Type: "object"}
		}
		return &Schema{Type: "object", AdditionalProperties: g.schemaFor(t.Elem()), Nullable: true}
	case reflect.Struct:
		if t.Name() == "" {
			return g.structSchema(t)
		}
		return ref(g.component(t))
	}
	// Interfaces, and kinds JSON cannot carry.
	return &Schema{}
}

// component registers t under a unique component name.
func (g *generator) component(t reflect.Type) string {
	if name, ok := g.names[t]; ok {
		return name
	}
	name := componentName(t.Name())
	if _, taken := g.schemas[name]; taken {
		name = componentName(path.Base(t.PkgPath()) + "." + t.Name())
	}
	base := name
	for i := 2; ; i++ {
		if _, taken := g.schemas[name]; !taken {
			break
		}
		name = base + "_" + strconv.Itoa(i)
	}
	g.names[t] = name
	// Reserve the name before recursing so self-referencing types terminate.
	g.schemas[name] = &Schema{}
	*g.schemas[name] = *g.structSchema(t)
	return name
}

func (g *generator) structSchema(t reflect.Type) *Schema {
	s := &Schema{Type: "object", Properties: make(map[string]*Schema)}
	g.addFields(s, t)
	return s
}

func (g *generator) addFields(s *Schema, t reflect.Type) {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		name, ok := g.codec.FieldName(sf)
		if !ok {
			continue
		}
		if sf.Anonymous && !hasJSONName(sf) {
			ft := sf.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				g.addFields(s, ft)
				continue
			}
			if !sf.IsExported() {
				continue
			}
		}
		s.Properties[name] = g.schemaFor(sf.Type)
		if !naming.OmitEmpty(sf) && sf.Type.Kind() != reflect.Pointer {
			s.Required = append(s.Required, name)
		}
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

// componentName maps a Go type name onto the characters OpenAPI allows in
// component keys.
func componentName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}

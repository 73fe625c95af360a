package naming

import (
	"reflect"
	"strings"
	"sync"
	"unicode"

	jsoniter "github.com/json-iterator/go"
)

// Codec encodes and decodes JSON with struct field names derived from a
// Convention.
//
// Field naming rules:
//   - a field with an explicit json tag name keeps that name;
//   - a field tagged `json:"-"` is skipped;
//   - every other exported field is named Convention.Convert(GoFieldName).
//
// Map keys are never renamed. Codecs are immutable and safe for concurrent use.
type Codec struct {
	convention Convention
	api        jsoniter.API
}

var codecs sync.Map // convention name -> *Codec

// CodecFor returns the shared Codec for c.
func CodecFor(c Convention) *Codec {
	key := c.Name()
	if v, ok := codecs.Load(key); ok {
		return v.(*Codec)
	}
	v, _ := codecs.LoadOrStore(key, NewCodec(c))
	return v.(*Codec)
}

// NewCodec builds a Codec for c. Prefer CodecFor, which shares the
// encoder caches of codecs built for the same convention.
func NewCodec(c Convention) *Codec {
	api := jsoniter.Config{
		EscapeHTML:             false,
		SortMapKeys:            true,
		ValidateJsonRawMessage: true,
	}.Froze()
	if !c.IsIdentity() {
		api.RegisterExtension(&fieldNamer{convert: c.Convert})
	}
	return &Codec{convention: c, api: api}
}

// Convention returns the convention this codec applies.
func (c *Codec) Convention() Convention {
	return c.convention
}

// Marshal encodes v.
func (c *Codec) Marshal(v any) ([]byte, error) {
	return c.api.Marshal(v)
}

// Unmarshal decodes data into v.
func (c *Codec) Unmarshal(data []byte, v any) error {
	return c.api.Unmarshal(data, v)
}

// FieldName returns the wire name of a struct field under this codec and
// whether the field is serialized at all.
func (c *Codec) FieldName(sf reflect.StructField) (string, bool) {
	if !sf.IsExported() && !sf.Anonymous {
		return "", false
	}
	if tag, ok := sf.Tag.Lookup("json"); ok {
		name, _, _ := strings.Cut(tag, ",")
		if name == "-" {
			return "", false
		}
		if name != "" {
			return name, true
		}
	}
	return c.convention.Convert(sf.Name), true
}

// OmitEmpty reports whether sf carries the omitempty json option.
func OmitEmpty(sf reflect.StructField) bool {
	tag, ok := sf.Tag.Lookup("json")
	if !ok {
		return false
	}
	_, opts, _ := strings.Cut(tag, ",")
	for _, o := range strings.Split(opts, ",") {
		if strings.TrimSpace(o) == "omitempty" {
			return true
		}
	}
	return false
}

// fieldNamer renames untagged struct fields for one frozen json-iterator config.
type fieldNamer struct {
	jsoniter.DummyExtension
	convert func(string) string
}

func (f *fieldNamer) UpdateStructDescriptor(sd *jsoniter.StructDescriptor) {
	for _, binding := range sd.Fields {
		name := binding.Field.Name()
		if name == "" || name[0] == '_' || unicode.IsLower(rune(name[0])) {
			continue
		}
		if tag, ok := binding.Field.Tag().Lookup("json"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName != "" {
				continue
			}
		}
		wire := f.convert(name)
		binding.ToNames = []string{wire}
		binding.FromNames = []string{wire}
	}
}

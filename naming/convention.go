// Package naming provides identifier naming conventions and JSON codecs bound
// to them.
//
// A Convention is a name plus a deterministic transform applied to Go struct
// field names (and, optionally, method names). Each JSON-RPC method is bound
// to exactly one Convention at registration time; the Codec for that
// Convention is then used for both parameter binding and result encoding.
package naming

import (
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// Convention is a named identifier transform.
//
// The zero value behaves like Default.
type Convention struct {
	name    string
	convert func(string) string
}

// New creates a Convention. A nil convert func is the identity.
func New(name string, convert func(string) string) Convention {
	return Convention{name: name, convert: convert}
}

// Name returns the convention identifier, e.g. "snake_case".
func (c Convention) Name() string {
	if c.name == "" {
		return Default.name
	}
	return c.name
}

// Convert transforms an identifier.
func (c Convention) Convert(s string) string {
	if c.convert == nil {
		return s
	}
	return c.convert(s)
}

// IsIdentity reports whether Convert leaves identifiers unchanged.
func (c Convention) IsIdentity() bool {
	return c.convert == nil
}

var (
	// Default keeps Go field names and json tag names as they are,
	// matching encoding/json.
	Default = Convention{name: "default"}

	SnakeCase          = New("snake_case", func(s string) string { return joinLower(Words(s), "_") })
	KebabCase          = New("kebab-case", func(s string) string { return joinLower(Words(s), "-") })
	ScreamingSnakeCase = New("SCREAMING_SNAKE_CASE", func(s string) string { return strings.ToUpper(joinLower(Words(s), "_")) })
	CamelCase          = New("camelCase", func(s string) string { return camel(Words(s), false) })
	PascalCase         = New("PascalCase", func(s string) string { return camel(Words(s), true) })
)

var (
	registryMu sync.RWMutex
	registry   = map[string]Convention{}
)

func init() {
	for _, c := range []Convention{Default, SnakeCase, KebabCase, ScreamingSnakeCase, CamelCase, PascalCase} {
		registry[strings.ToLower(c.Name())] = c
	}
}

// Register makes a custom convention available to Lookup.
// It replaces any convention registered under the same name.
func Register(c Convention) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(c.Name())] = c
}

// Lookup finds a convention by name, case-insensitively.
func Lookup(name string) (Convention, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	c, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	return c, ok
}

// Names lists the registered convention names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for _, c := range registry {
		out = append(out, c.Name())
	}
	sort.Strings(out)
	return out
}

// Words splits an identifier into lower-case words.
//
// Boundaries are separators (_ - space .), lower-to-upper transitions, the end
// of an upper-case run followed by a lower-case letter ("HTTPServer" ->
// "http", "server"), and letter/digit transitions.
func Words(s string) []string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}

	runes := []rune(s)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == ' ' || r == '.':
			flush()
			continue
		case unicode.IsUpper(r):
			if len(cur) > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					flush()
				}
			}
		case unicode.IsDigit(r):
			if len(cur) > 0 && !unicode.IsDigit(runes[i-1]) {
				flush()
			}
		default:
			if len(cur) > 0 && unicode.IsDigit(runes[i-1]) {
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()
	return words
}

func joinLower(words []string, sep string) string {
	return strings.Join(words, sep)
}

func camel(words []string, upperFirst bool) string {
	var b strings.Builder
	for i, w := range words {
		if i == 0 && !upperFirst {
			b.WriteString(w)
			continue
		}
		r, size := utf8.DecodeRuneInString(w)
		b.WriteRune(unicode.ToUpper(r))
		b.WriteString(w[size:])
	}
	return b.String()
}

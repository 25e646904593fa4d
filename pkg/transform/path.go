package transform

import (
	"reflect"
	"strconv"
	"strings"
)

// Lookup returns the value at path within record.
// A key equal to the whole path takes precedence over a nested lookup,
// so a record holding a literal "a.b" key is addressed by "a.b".
// Indexes step into any slice type, such as []string or []map[string]any.
func Lookup(record map[string]any, path string) (any, bool) {
	s, ok := resolveSlot(record, path, false)
	if !ok {
		return nil, false
	}
	return s.get()
}

// ConvertAt replaces the value at path with conv applied to it.
// It reports whether a replacement happened. Paths that do not resolve and
// values that are neither dates nor strings are left alone.
// Typed slices on the path, such as []string, are replaced in record by an
// equivalent []any so the converted value can be stored.
func ConvertAt(record map[string]any, path string, conv Conversion) bool {
	s, ok := resolveSlot(record, path, true)
	if !ok {
		return false
	}
	raw, _ := s.get()
	if !ValueOf(raw, true).Eligible() {
		return false
	}
	return s.set(conv.Apply(raw))
}

// slot addresses one key of a map or one index of a sequence.
type slot struct {
	container any
	key       string
}

func (s slot) get() (any, bool) {
	return child(s.container, s.key)
}

func (s slot) set(value any) bool {
	switch c := s.container.(type) {
	case map[string]any:
		c[s.key] = value
		return true
	case []any:
		i, ok := sliceIndex(s.key, len(c))
		if !ok {
			return false
		}
		c[i] = value
		return true
	case []map[string]any:
		i, ok := sliceIndex(s.key, len(c))
		m, isRecord := value.(map[string]any)
		if !ok || !isRecord {
			return false
		}
		c[i] = m
		return true
	default:
		return false
	}
}

// resolveSlot walks record down to the container holding the last path key.
// With writable set, typed slices met on the way are swapped for []any.
func resolveSlot(record map[string]any, path string, writable bool) (slot, bool) {
	if record == nil || path == "" {
		return slot{}, false
	}
	if _, ok := record[path]; ok {
		return slot{container: record, key: path}, true
	}

	keys := parseFieldPath(path)
	if len(keys) == 0 {
		return slot{}, false
	}

	var current any = record
	for _, key := range keys[:len(keys)-1] {
		next, ok := child(current, key)
		if !ok {
			return slot{}, false
		}
		if writable {
			next = generalize(current, key, next)
		}
		current = next
	}

	last := keys[len(keys)-1]
	if _, ok := child(current, last); !ok {
		return slot{}, false
	}
	return slot{container: current, key: last}, true
}

// child steps one level into a map or a sequence.
func child(container any, key string) (any, bool) {
	switch c := container.(type) {
	case map[string]any:
		v, ok := c[key]
		return v, ok
	case []any:
		i, ok := sliceIndex(key, len(c))
		if !ok {
			return nil, false
		}
		return c[i], true
	case []map[string]any:
		i, ok := sliceIndex(key, len(c))
		if !ok {
			return nil, false
		}
		return c[i], true
	default:
		rv := reflect.ValueOf(container)
		if rv.Kind() != reflect.Slice {
			return nil, false
		}
		i, ok := sliceIndex(key, rv.Len())
		if !ok {
			return nil, false
		}
		return rv.Index(i).Interface(), true
	}
}

// generalize stores a []any copy of value under key when value is a typed
// slice, and returns whatever is stored there afterwards.
func generalize(container any, key string, value any) any {
	switch value.(type) {
	case []any, []byte:
		return value
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice {
		return value
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	if !(slot{container: container, key: key}).set(out) {
		return value
	}
	return out
}

func sliceIndex(key string, n int) (int, bool) {
	i, err := strconv.Atoi(key)
	if err != nil || i < 0 || i >= n {
		return 0, false
	}
	return i, true
}

// parseFieldPath splits a field path into keys.
// Examples:
//   - "name" -> ["name"]
//   - "status.closedAt" -> ["status", "closedAt"]
//   - "items[0].id" -> ["items", "0", "id"]
//   - "meta['x.y']" -> ["meta", "x.y"]
func parseFieldPath(path string) []string {
	parser := &pathParser{path: path}
	return parser.parse()
}

// pathParser parses field paths.
type pathParser struct {
	path      string
	parts     []string
	current   strings.Builder
	inBracket bool
	quote     byte
}

// parse parses the path into keys.
func (p *pathParser) parse() []string {
	for i := 0; i < len(p.path); i++ {
		p.processChar(p.path[i])
	}
	p.flush()
	return p.parts
}

// processChar processes a single character.
func (p *pathParser) processChar(ch byte) {
	if p.inBracket {
		p.processBracketChar(ch)
		return
	}
	switch ch {
	case '.':
		p.flush()
	case '[':
		p.flush()
		p.inBracket = true
	default:
		p.current.WriteByte(ch)
	}
}

// processBracketChar handles characters between '[' and ']'.
func (p *pathParser) processBracketChar(ch byte) {
	switch {
	case p.quote != 0 && ch == p.quote:
		p.quote = 0
	case p.quote != 0:
		p.current.WriteByte(ch)
	case (ch == '"' || ch == '\'') && p.current.Len() == 0:
		p.quote = ch
	case ch == ']':
		p.inBracket = false
		p.flush()
	default:
		p.current.WriteByte(ch)
	}
}

func (p *pathParser) flush() {
	if p.current.Len() > 0 {
		p.parts = append(p.parts, p.current.String())
		p.current.Reset()
	}
}

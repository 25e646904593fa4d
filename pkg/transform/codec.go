package transform

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// jsonDateLayout matches how browsers serialize dates: UTC with milliseconds.
const jsonDateLayout = "2006-01-02T15:04:05.000Z07:00"

// internalKeyPrefix marks keys owned by the client framework; they are not sent.
const internalKeyPrefix = "$$"

// Encode serializes v as a JSON string. Keys starting with "$$" are dropped,
// dates are written in UTC with millisecond precision and zero dates as null.
func Encode(v any) (string, error) {
	return encode(v, true)
}

// Marshal serializes v like Encode but keeps keys starting with "$$".
// Use it for bodies handed to a client that owns those keys.
func Marshal(v any) (string, error) {
	return encode(v, false)
}

func encode(v any, dropInternal bool) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(prepareForJSON(v, dropInternal)); err != nil {
		return "", fmt.Errorf("%w: %w", ErrEncodeFailed, err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// Decode parses JSON text. Numbers are kept as json.Number so integer ids
// survive a round trip unchanged.
func Decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}
	return v, nil
}

// decodeOrCopy turns encoded input into a value and copies anything else.
func decodeOrCopy(data any) (any, error) {
	switch v := data.(type) {
	case string:
		return Decode([]byte(v))
	case []byte:
		return Decode(v)
	default:
		return clone(data)
	}
}

func prepareForJSON(v any, dropInternal bool) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if dropInternal && strings.HasPrefix(k, internalKeyPrefix) {
				continue
			}
			out[k] = prepareForJSON(item, dropInternal)
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = prepareForJSON(item, dropInternal)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = prepareForJSON(item, dropInternal)
		}
		return out
	case time.Time:
		return formatJSONDate(val)
	case *time.Time:
		if val == nil {
			return nil
		}
		return formatJSONDate(*val)
	default:
		return v
	}
}

func formatJSONDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(jsonDateLayout)
}

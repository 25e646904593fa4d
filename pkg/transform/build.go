package transform

import (
	"fmt"

	"github.com/mitchellh/copystructure"
)

// PathSpec selects what a conversion is applied to in a record.
// It is implemented by Paths and Mutator.
type PathSpec interface {
	apply(record map[string]any, conv Conversion)
}

// Paths is a list of field paths, each applied independently.
type Paths []string

// Path builds a Paths spec from one or more paths.
func Path(paths ...string) Paths {
	return Paths(paths)
}

func (p Paths) apply(record map[string]any, conv Conversion) {
	for _, path := range p {
		ConvertAt(record, path, conv)
	}
}

// Mutator receives the copied record and the conversion and updates fields itself.
type Mutator func(record map[string]any, conv Conversion)

func (m Mutator) apply(record map[string]any, conv Conversion) {
	if m != nil {
		m(record, conv)
	}
}

// Build returns a Func that copies each record in its input and applies conv
// at the locations selected by spec.
//
// Lists are transformed element by element, keeping length and order.
// Elements that are not records are copied through. Inputs that are neither
// records nor lists are returned unchanged.
func Build(spec PathSpec, conv Conversion) Func {
	return func(data any) (any, error) {
		switch v := data.(type) {
		case map[string]any:
			return transformRecord(v, spec, conv)
		case []map[string]any:
			result := make([]map[string]any, len(v))
			for i, record := range v {
				out, err := transformRecord(record, spec, conv)
				if err != nil {
					return nil, fmt.Errorf("element %d: %w", i, err)
				}
				result[i] = out
			}
			return result, nil
		case []any:
			result := make([]any, len(v))
			for i, elem := range v {
				out, err := transformElement(elem, spec, conv)
				if err != nil {
					return nil, fmt.Errorf("element %d: %w", i, err)
				}
				result[i] = out
			}
			return result, nil
		default:
			return data, nil
		}
	}
}

func transformElement(elem any, spec PathSpec, conv Conversion) (any, error) {
	record, ok := elem.(map[string]any)
	if !ok {
		return clone(elem)
	}
	return transformRecord(record, spec, conv)
}

func transformRecord(record map[string]any, spec PathSpec, conv Conversion) (map[string]any, error) {
	copied, err := clone(record)
	if err != nil {
		return nil, err
	}
	result, _ := copied.(map[string]any)
	if result == nil {
		result = make(map[string]any)
	}
	if spec != nil {
		spec.apply(result, conv)
	}
	return result, nil
}

// clone deep-copies v.
func clone(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	out, err := copystructure.Copy(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCopyFailed, err)
	}
	return out, nil
}

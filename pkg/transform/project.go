package transform

// Only returns a Func that keeps the named top-level fields of a record and
// encodes the result as a JSON string. Input may be a record, a list of
// records, or their JSON encoding. Unknown fields are ignored.
func Only(fields ...string) Func {
	return encoded(Project(fields...))
}

// Project is Only without the final encoding: it returns the projected
// record or list.
func Project(fields ...string) Func {
	return func(data any) (any, error) {
		value, err := decodeOrCopy(data)
		if err != nil {
			return nil, err
		}
		return project(value, fields), nil
	}
}

// encoded wraps fn so its result is returned as JSON text.
func encoded(fn Func) Func {
	return func(data any) (any, error) {
		value, err := fn(data)
		if err != nil {
			return nil, err
		}
		return Encode(value)
	}
}

func project(value any, fields []string) any {
	switch v := value.(type) {
	case map[string]any:
		return pick(v, fields)
	case []map[string]any:
		out := make([]any, len(v))
		for i, record := range v {
			out[i] = pick(record, fields)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			out[i] = project(elem, fields)
		}
		return out
	default:
		return map[string]any{}
	}
}

func pick(record map[string]any, fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, field := range fields {
		if v, ok := record[field]; ok {
			out[field] = v
		}
	}
	return out
}

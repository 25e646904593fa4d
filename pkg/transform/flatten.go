package transform

// DefaultIDAttr is the attribute FlattenIDs extracts.
const DefaultIDAttr = "id"

// FlattenIDs replaces each named object field by its "id" and encodes the
// result as a JSON string.
func FlattenIDs(fields ...string) Func {
	return Flatten(DefaultIDAttr, fields...)
}

// Flatten replaces each named object field by its attr value and encodes the
// result as a JSON string. A field whose object lacks attr is removed.
// Fields holding anything other than an object are left unchanged.
func Flatten(attr string, fields ...string) Func {
	return encoded(FlattenValue(attr, fields...))
}

// FlattenValue is Flatten without the final encoding.
func FlattenValue(attr string, fields ...string) Func {
	return func(data any) (any, error) {
		value, err := decodeOrCopy(data)
		if err != nil {
			return nil, err
		}
		flatten(value, attr, fields)
		return value, nil
	}
}

func flatten(value any, attr string, fields []string) {
	switch v := value.(type) {
	case map[string]any:
		flattenRecord(v, attr, fields)
	case []map[string]any:
		for _, record := range v {
			flattenRecord(record, attr, fields)
		}
	case []any:
		for _, elem := range v {
			if record, ok := elem.(map[string]any); ok {
				flattenRecord(record, attr, fields)
			}
		}
	}
}

func flattenRecord(record map[string]any, attr string, fields []string) {
	for _, field := range fields {
		nested, ok := record[field].(map[string]any)
		if !ok {
			continue
		}
		if id, ok := nested[attr]; ok {
			record[field] = id
		} else {
			delete(record, field)
		}
	}
}

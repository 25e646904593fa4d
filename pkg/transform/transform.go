// Package transform provides the data shaping primitives used by resource hooks:
// path-based date conversion, field projection and nested id flattening.
package transform

import (
	"errors"
	"time"
)

// Common transformation errors.
var (
	// ErrCopyFailed indicates that a record could not be deep-copied.
	ErrCopyFailed = errors.New("failed to copy record")

	// ErrDecodeFailed indicates that an encoded input could not be decoded.
	ErrDecodeFailed = errors.New("failed to decode input")

	// ErrEncodeFailed indicates that a result could not be encoded as JSON.
	ErrEncodeFailed = errors.New("failed to encode result")

	// ErrInvalidFieldPath indicates that a field path is invalid.
	ErrInvalidFieldPath = errors.New("invalid field path")
)

// Func transforms one payload into another. The input is never mutated.
type Func func(data any) (any, error)

// Kind classifies a value found at a path.
type Kind int

const (
	// KindAbsent means the path did not resolve.
	KindAbsent Kind = iota
	// KindDate is a time.Time or a non-nil *time.Time.
	KindDate
	// KindString is a string, parseable or not.
	KindString
	// KindOther is anything else, including nil.
	KindOther
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindDate:
		return "date"
	case KindString:
		return "string"
	default:
		return "other"
	}
}

// Value is a classified value found at a path.
type Value struct {
	kind Kind
	raw  any
}

// ValueOf classifies raw. present reports whether the path resolved at all.
func ValueOf(raw any, present bool) Value {
	if !present {
		return Value{kind: KindAbsent}
	}
	switch v := raw.(type) {
	case time.Time:
		return Value{kind: KindDate, raw: v}
	case *time.Time:
		if v == nil {
			return Value{kind: KindOther, raw: raw}
		}
		return Value{kind: KindDate, raw: *v}
	case string:
		return Value{kind: KindString, raw: v}
	default:
		return Value{kind: KindOther, raw: raw}
	}
}

// Kind returns the value kind.
func (v Value) Kind() Kind { return v.kind }

// Raw returns the underlying value. Dates given by pointer are dereferenced.
func (v Value) Raw() any { return v.raw }

// Time returns the date held by v.
func (v Value) Time() (time.Time, bool) {
	t, ok := v.raw.(time.Time)
	return t, ok && v.kind == KindDate
}

// Text returns the string held by v.
func (v Value) Text() (string, bool) {
	s, ok := v.raw.(string)
	return s, ok && v.kind == KindString
}

// Eligible reports whether the value is a date or a string.
func (v Value) Eligible() bool {
	return v.kind == KindDate || v.kind == KindString
}

// Conversion maps a single date or string value to its converted form.
type Conversion func(Value) any

// Apply converts raw when it is a date or a string and returns it unchanged otherwise.
// A nil Conversion is the identity.
func (c Conversion) Apply(raw any) any {
	if c == nil {
		return raw
	}
	v := ValueOf(raw, true)
	if !v.Eligible() {
		return raw
	}
	return c(v)
}

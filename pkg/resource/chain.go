// Package resource provides hook chains for HTTP resources: ordered lists of
// transforms run on outgoing request bodies and incoming response bodies,
// plus a client that applies them around each call.
package resource

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vyrodovalexey/restransform/pkg/transform"
)

// Chain is an ordered list of transforms. Each step receives the output of the previous one.
type Chain []transform.Func

// Apply runs every step in order.
func (c Chain) Apply(data any) (any, error) {
	var err error
	for i, step := range c {
		if step == nil {
			continue
		}
		data, err = step(data)
		if err != nil {
			return nil, fmt.Errorf("transform step %d: %w", i, err)
		}
	}
	return data, nil
}

// Func collapses the chain into a single transform.
func (c Chain) Func() transform.Func {
	return c.Apply
}

// Defaults holds the steps every resource applies when an action declares none.
type Defaults struct {
	TransformRequest  Chain
	TransformResponse Chain
}

// StandardDefaults serializes request bodies to JSON and parses JSON response bodies.
func StandardDefaults() Defaults {
	return Defaults{
		TransformRequest:  Chain{SerializeJSON},
		TransformResponse: Chain{ParseJSON},
	}
}

// ResponseWith returns the default response steps followed by fns.
// Response transforms therefore see decoded data.
func (d Defaults) ResponseWith(fns ...transform.Func) Chain {
	out := make(Chain, 0, len(d.TransformResponse)+len(fns))
	out = append(out, d.TransformResponse...)
	return append(out, fns...)
}

// RequestWith returns fns followed by the default request steps.
// Request transforms therefore see data before it is serialized.
func (d Defaults) RequestWith(fns ...transform.Func) Chain {
	out := make(Chain, 0, len(d.TransformRequest)+len(fns))
	out = append(out, fns...)
	return append(out, d.TransformRequest...)
}

// SerializeJSON encodes records and lists as JSON text for sending. Keys
// starting with "$$" are dropped. Strings, bytes and nil pass through.
func SerializeJSON(data any) (any, error) {
	switch data.(type) {
	case nil, string, []byte:
		return data, nil
	default:
		return transform.Encode(data)
	}
}

// SerializeResponseJSON is SerializeJSON for bodies going back to a client.
// Keys starting with "$$" are kept.
func SerializeResponseJSON(data any) (any, error) {
	switch data.(type) {
	case nil, string, []byte:
		return data, nil
	default:
		return transform.Marshal(data)
	}
}

// jsonProtectionPrefix is the anti-hijacking line some servers prepend to JSON.
var jsonProtectionPrefix = regexp.MustCompile(`^\)\]\}',?\n`)

// ParseJSON decodes text that looks like a JSON object or array. Anything else
// is returned unchanged.
func ParseJSON(data any) (any, error) {
	var text string
	switch v := data.(type) {
	case string:
		text = v
	case []byte:
		text = string(v)
	default:
		return data, nil
	}

	text = strings.TrimSpace(jsonProtectionPrefix.ReplaceAllString(text, ""))
	if !looksLikeJSON(text) {
		return data, nil
	}
	return transform.Decode([]byte(text))
}

func looksLikeJSON(s string) bool {
	if len(s) < 2 {
		return false
	}
	first, last := s[0], s[len(s)-1]
	if first == '{' && s[1] == '{' {
		// Interpolation templates such as "{{name}}" are not JSON.
		return false
	}
	return (first == '{' && last == '}') || (first == '[' && last == ']')
}

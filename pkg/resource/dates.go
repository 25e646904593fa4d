package resource

import "github.com/vyrodovalexey/restransform/pkg/transform"

// DirectionHooks builds date conversion chains for one direction.
type DirectionHooks struct {
	converter *transform.DateConverter
	wrap      func(fns ...transform.Func) Chain
}

// ToDate returns a chain converting the selected fields to time.Time.
func (h DirectionHooks) ToDate(spec transform.PathSpec) Chain {
	return h.wrap(h.converter.ToDateFunc(spec))
}

// ToLocalISOString returns a chain formatting the selected fields without a zone.
func (h DirectionHooks) ToLocalISOString(spec transform.PathSpec) Chain {
	return h.wrap(h.converter.ToLocalISOStringFunc(spec))
}

// ToZonedISOString returns a chain formatting the selected fields with a UTC offset.
func (h DirectionHooks) ToZonedISOString(spec transform.PathSpec) Chain {
	return h.wrap(h.converter.ToZonedISOStringFunc(spec))
}

// Convert returns the chain for a target named date, localIso or zonedIso.
func (h DirectionHooks) Convert(target string, spec transform.PathSpec) (Chain, bool) {
	conversion, ok := h.converter.Conversion(target)
	if !ok {
		return nil, false
	}
	return h.wrap(transform.Build(spec, conversion)), true
}

// DateHooks exposes date transforms already combined with the default chains.
//
//	hooks := resource.NewDateHooks(resource.StandardDefaults(), transform.NewDateConverter())
//	query := resource.Action{
//	    Method:            http.MethodGet,
//	    Path:              "/api/sessions",
//	    TransformResponse: hooks.Response.ToDate(transform.Path("start", "end")),
//	}
//	update := resource.Action{
//	    Method:           http.MethodPut,
//	    Path:             "/api/sessions/1",
//	    TransformRequest: hooks.Request.ToLocalISOString(transform.Path("start", "end")),
//	}
type DateHooks struct {
	// Request chains run the date transform before the default request steps.
	Request DirectionHooks
	// Response chains run the date transform after the default response steps.
	Response DirectionHooks
}

// NewDateHooks creates hooks over defaults. A nil converter uses time.Local.
func NewDateHooks(defaults Defaults, converter *transform.DateConverter) DateHooks {
	if converter == nil {
		converter = transform.NewDateConverter()
	}
	return DateHooks{
		Request:  DirectionHooks{converter: converter, wrap: defaults.RequestWith},
		Response: DirectionHooks{converter: converter, wrap: defaults.ResponseWith},
	}
}

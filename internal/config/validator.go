package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return "no validation errors"
	case 1:
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, e[i].Error())
	}
	return sb.String()
}

var validMethods = map[string]bool{
	"GET": true, "HEAD": true, "POST": true, "PUT": true,
	"PATCH": true, "DELETE": true, "OPTIONS": true,
}

var validDateTargets = map[string]bool{
	DateTargetDate:     true,
	DateTargetLocalISO: true,
	DateTargetZonedISO: true,
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateConfig validates a configuration.
func ValidateConfig(cfg *Config) error {
	return NewValidator().Validate(cfg)
}

// Validate validates the configuration and returns ValidationErrors when anything is wrong.
func (v *Validator) Validate(cfg *Config) error {
	v.errors = nil

	if cfg == nil {
		v.addError("", "configuration is nil")
		return v.errors
	}

	v.validateServer(&cfg.Server)
	v.validateUpstream(&cfg.Upstream)
	v.validateObservability(&cfg.Observability)
	if _, err := cfg.Dates.LoadLocation(); err != nil {
		v.addError("dates.location", fmt.Sprintf("unknown location %q", cfg.Dates.Location))
	}
	v.validateRoutes(cfg.Routes)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}

func (v *Validator) validateServer(s *Server) {
	if _, _, err := net.SplitHostPort(s.Listen); err != nil {
		v.addError("server.listen", fmt.Sprintf("invalid listen address %q", s.Listen))
	}
	if s.MaxBodyBytes < 0 {
		v.addError("server.maxBodyBytes", "must not be negative")
	}
}

func (v *Validator) validateUpstream(u *Upstream) {
	if u.URL == "" {
		v.addError("upstream.url", "is required")
	} else if parsed, err := url.Parse(u.URL); err != nil || parsed.Host == "" ||
		(parsed.Scheme != "http" && parsed.Scheme != "https") {
		v.addError("upstream.url", fmt.Sprintf("must be an absolute http(s) URL, got %q", u.URL))
	}

	cb := &u.CircuitBreaker
	if !cb.Enabled {
		return
	}
	if cb.Threshold < 1 {
		v.addError("upstream.circuitBreaker.threshold", "must be at least 1")
	}
	if cb.FailureRatio <= 0 || cb.FailureRatio > 1 {
		v.addError("upstream.circuitBreaker.failureRatio", "must be in (0, 1]")
	}
	if cb.HalfOpenMax < 1 {
		v.addError("upstream.circuitBreaker.halfOpenMax", "must be at least 1")
	}
}

func (v *Validator) validateObservability(o *Observability) {
	switch strings.ToLower(o.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		v.addError("observability.logging.level", fmt.Sprintf("unknown level %q", o.Logging.Level))
	}
	switch o.Logging.Format {
	case "json", "console":
	default:
		v.addError("observability.logging.format", fmt.Sprintf("unknown format %q", o.Logging.Format))
	}
	if o.Metrics.Enabled && !strings.HasPrefix(o.Metrics.Path, "/") {
		v.addError("observability.metrics.path", "must start with /")
	}
	if o.Tracing.SamplingRate < 0 || o.Tracing.SamplingRate > 1 {
		v.addError("observability.tracing.samplingRate", "must be between 0 and 1")
	}
}

func (v *Validator) validateRoutes(routes []Route) {
	seen := make(map[string]bool, len(routes))
	for i := range routes {
		r := &routes[i]
		path := fmt.Sprintf("routes[%d]", i)

		if r.Name == "" {
			v.addError(path+".name", "is required")
		} else if seen[r.Name] {
			v.addError(path+".name", fmt.Sprintf("duplicate route name %q", r.Name))
		}
		seen[r.Name] = true

		if !strings.HasPrefix(r.Match.PathPrefix, "/") {
			v.addError(path+".match.pathPrefix", "must start with /")
		}
		for _, m := range r.Match.Methods {
			if !validMethods[strings.ToUpper(m)] {
				v.addError(path+".match.methods", fmt.Sprintf("unknown method %q", m))
			}
		}

		if r.Request.IsEmpty() && r.Response.IsEmpty() {
			v.addError(path, "must define a request or response shape")
		}
		v.validateShape(path+".request", r.Request)
		v.validateShape(path+".response", r.Response)
	}
}

func (v *Validator) validateShape(path string, s *Shape) {
	if s == nil {
		return
	}
	for i, d := range s.Dates {
		dpath := fmt.Sprintf("%s.dates[%d]", path, i)
		if !validDateTargets[d.To] {
			v.addError(dpath+".to", fmt.Sprintf("unknown target %q, want date, localIso or zonedIso", d.To))
		}
		if len(d.Paths) == 0 {
			v.addError(dpath+".paths", "at least one path is required")
		}
		for _, p := range d.Paths {
			if strings.TrimSpace(p) == "" {
				v.addError(dpath+".paths", "path must not be empty")
			}
		}
		if d.Location != "" {
			if _, err := loadLocation(d.Location); err != nil {
				v.addError(dpath+".location", fmt.Sprintf("unknown location %q", d.Location))
			}
		}
	}
	v.validateFields(path+".ids", s.IDs)
	v.validateFields(path+".only", s.Only)
}

func (v *Validator) validateFields(path string, fields []string) {
	for _, f := range fields {
		if strings.TrimSpace(f) == "" {
			v.addError(path, "field name must not be empty")
		}
	}
}

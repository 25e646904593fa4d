package config

import "time"

// Date conversion targets accepted in route shapes.
const (
	DateTargetDate     = "date"
	DateTargetLocalISO = "localIso"
	DateTargetZonedISO = "zonedIso"
)

// Config is the root configuration of the shaping proxy.
type Config struct {
	Server        Server        `yaml:"server" json:"server"`
	Upstream      Upstream      `yaml:"upstream" json:"upstream"`
	Observability Observability `yaml:"observability" json:"observability"`
	Dates         Dates         `yaml:"dates" json:"dates"`
	Routes        []Route       `yaml:"routes" json:"routes"`
}

// Server configures the listening HTTP server.
type Server struct {
	Listen          string   `yaml:"listen" json:"listen"`
	ReadTimeout     Duration `yaml:"readTimeout,omitempty" json:"readTimeout,omitempty"`
	WriteTimeout    Duration `yaml:"writeTimeout,omitempty" json:"writeTimeout,omitempty"`
	IdleTimeout     Duration `yaml:"idleTimeout,omitempty" json:"idleTimeout,omitempty"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout,omitempty" json:"shutdownTimeout,omitempty"`

	// MaxBodyBytes bounds the request and response bodies that are transformed.
	// Larger bodies pass through untouched.
	MaxBodyBytes int64 `yaml:"maxBodyBytes,omitempty" json:"maxBodyBytes,omitempty"`
}

// Upstream is the single backend requests are proxied to.
type Upstream struct {
	URL            string         `yaml:"url" json:"url"`
	Timeout        Duration       `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	CircuitBreaker CircuitBreaker `yaml:"circuitBreaker,omitempty" json:"circuitBreaker,omitempty"`
}

// CircuitBreaker configures upstream failure protection.
type CircuitBreaker struct {
	Enabled      bool     `yaml:"enabled" json:"enabled"`
	Threshold    int      `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	FailureRatio float64  `yaml:"failureRatio,omitempty" json:"failureRatio,omitempty"`
	Interval     Duration `yaml:"interval,omitempty" json:"interval,omitempty"`
	Timeout      Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	HalfOpenMax  int      `yaml:"halfOpenMax,omitempty" json:"halfOpenMax,omitempty"`
}

// Observability groups logging, metrics and tracing settings.
type Observability struct {
	Logging Logging `yaml:"logging" json:"logging"`
	Metrics Metrics `yaml:"metrics" json:"metrics"`
	Tracing Tracing `yaml:"tracing" json:"tracing"`
}

// Logging configures the service logger.
type Logging struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output,omitempty" json:"output,omitempty"`
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path,omitempty" json:"path,omitempty"`
}

// Tracing configures OpenTelemetry export.
type Tracing struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Endpoint     string  `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	SamplingRate float64 `yaml:"samplingRate" json:"samplingRate"`
	ServiceName  string  `yaml:"serviceName,omitempty" json:"serviceName,omitempty"`
}

// Dates holds defaults for date conversions.
type Dates struct {
	// Location is an IANA zone name, "Local" or "UTC". Zone-less strings are
	// read in it and formatted output is rendered in it.
	Location string `yaml:"location" json:"location"`
}

// LoadLocation resolves Location, defaulting to time.Local.
func (d Dates) LoadLocation() (*time.Location, error) {
	return loadLocation(d.Location)
}

// Route binds a request matcher to request and response shapes.
type Route struct {
	Name     string `yaml:"name" json:"name"`
	Match    Match  `yaml:"match" json:"match"`
	When     string `yaml:"when,omitempty" json:"when,omitempty"`
	Request  *Shape `yaml:"request,omitempty" json:"request,omitempty"`
	Response *Shape `yaml:"response,omitempty" json:"response,omitempty"`
}

// Match selects requests by path prefix and method.
// An empty method list matches every method.
type Match struct {
	PathPrefix string   `yaml:"pathPrefix" json:"pathPrefix"`
	Methods    []string `yaml:"methods,omitempty" json:"methods,omitempty"`
}

// Shape is the ordered set of transforms applied to one direction of a route:
// date conversions first, then id flattening, then projection.
type Shape struct {
	Dates  []DateShape `yaml:"dates,omitempty" json:"dates,omitempty"`
	IDs    []string    `yaml:"ids,omitempty" json:"ids,omitempty"`
	IDAttr string      `yaml:"idAttr,omitempty" json:"idAttr,omitempty"`
	Only   []string    `yaml:"only,omitempty" json:"only,omitempty"`
}

// IsEmpty reports whether the shape applies no transform.
func (s *Shape) IsEmpty() bool {
	return s == nil || (len(s.Dates) == 0 && len(s.IDs) == 0 && len(s.Only) == 0)
}

// DateShape converts the listed paths to one target representation.
type DateShape struct {
	To    string   `yaml:"to" json:"to"`
	Paths []string `yaml:"paths" json:"paths"`

	// Location overrides Dates.Location for this conversion.
	Location string `yaml:"location,omitempty" json:"location,omitempty"`
}

// Default values.
const (
	DefaultListen          = ":8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultUpstreamTimeout = 30 * time.Second
	DefaultMaxBodyBytes    = 10 << 20
	DefaultMetricsPath     = "/metrics"
	DefaultServiceName     = "restransform"
	DefaultIDAttr          = "id"

	DefaultBreakerThreshold    = 10
	DefaultBreakerFailureRatio = 0.5
	DefaultBreakerInterval     = 60 * time.Second
	DefaultBreakerTimeout      = 30 * time.Second
	DefaultBreakerHalfOpenMax  = 1
)

// DefaultConfig returns a configuration with every default applied and no routes.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills unset fields with default values.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	s := &cfg.Server
	if s.Listen == "" {
		s.Listen = DefaultListen
	}
	setDuration(&s.ReadTimeout, DefaultReadTimeout)
	setDuration(&s.WriteTimeout, DefaultWriteTimeout)
	setDuration(&s.IdleTimeout, DefaultIdleTimeout)
	setDuration(&s.ShutdownTimeout, DefaultShutdownTimeout)
	if s.MaxBodyBytes == 0 {
		s.MaxBodyBytes = DefaultMaxBodyBytes
	}

	setDuration(&cfg.Upstream.Timeout, DefaultUpstreamTimeout)
	cb := &cfg.Upstream.CircuitBreaker
	if cb.Threshold == 0 {
		cb.Threshold = DefaultBreakerThreshold
	}
	if cb.FailureRatio == 0 {
		cb.FailureRatio = DefaultBreakerFailureRatio
	}
	setDuration(&cb.Interval, DefaultBreakerInterval)
	setDuration(&cb.Timeout, DefaultBreakerTimeout)
	if cb.HalfOpenMax == 0 {
		cb.HalfOpenMax = DefaultBreakerHalfOpenMax
	}

	o := &cfg.Observability
	if o.Logging.Level == "" {
		o.Logging.Level = "info"
	}
	if o.Logging.Format == "" {
		o.Logging.Format = "json"
	}
	if o.Logging.Output == "" {
		o.Logging.Output = "stdout"
	}
	if o.Metrics.Path == "" {
		o.Metrics.Path = DefaultMetricsPath
	}
	if o.Tracing.ServiceName == "" {
		o.Tracing.ServiceName = DefaultServiceName
	}

	if cfg.Dates.Location == "" {
		cfg.Dates.Location = "Local"
	}

	for i := range cfg.Routes {
		for _, shape := range []*Shape{cfg.Routes[i].Request, cfg.Routes[i].Response} {
			if shape != nil && len(shape.IDs) > 0 && shape.IDAttr == "" {
				shape.IDAttr = DefaultIDAttr
			}
		}
	}
}

func setDuration(d *Duration, def time.Duration) {
	if *d == 0 {
		*d = Duration(def)
	}
}

func loadLocation(name string) (*time.Location, error) {
	switch name {
	case "", "Local":
		return time.Local, nil
	default:
		return time.LoadLocation(name)
	}
}

// ResolveLocation returns the location for a date shape, falling back to the global default.
func (c *Config) ResolveLocation(shape DateShape) (*time.Location, error) {
	if shape.Location != "" {
		return loadLocation(shape.Location)
	}
	return c.Dates.LoadLocation()
}

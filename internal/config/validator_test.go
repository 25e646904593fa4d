package config

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{
		Upstream: Upstream{URL: "http://localhost:8081"},
		Routes: []Route{
			{
				Name:  "sessions",
				Match: Match{PathPrefix: "/api/sessions", Methods: []string{"get"}},
				Response: &Shape{
					Dates: []DateShape{{To: DateTargetZonedISO, Paths: []string{"start"}}},
				},
			},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

func TestValidateConfig_Valid(t *testing.T) {
	t.Parallel()
	assert.NoError(t, ValidateConfig(validConfig()))
}

func TestValidateConfig_Nil(t *testing.T) {
	t.Parallel()

	err := ValidateConfig(nil)
	require.Error(t, err)
	assert.Equal(t, "configuration is nil", err.Error())
}

func TestValidateConfig_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		path   string
	}{
		{name: "bad listen", mutate: func(c *Config) { c.Server.Listen = "8080" }, path: "server.listen"},
		{name: "negative body limit", mutate: func(c *Config) { c.Server.MaxBodyBytes = -1 }, path: "server.maxBodyBytes"},
		{name: "missing upstream", mutate: func(c *Config) { c.Upstream.URL = "" }, path: "upstream.url"},
		{name: "relative upstream", mutate: func(c *Config) { c.Upstream.URL = "/api" }, path: "upstream.url"},
		{name: "ftp upstream", mutate: func(c *Config) { c.Upstream.URL = "ftp://host" }, path: "upstream.url"},
		{
			name: "breaker ratio",
			mutate: func(c *Config) {
				c.Upstream.CircuitBreaker.Enabled = true
				c.Upstream.CircuitBreaker.FailureRatio = 2
			},
			path: "upstream.circuitBreaker.failureRatio",
		},
		{
			name: "breaker threshold",
			mutate: func(c *Config) {
				c.Upstream.CircuitBreaker.Enabled = true
				c.Upstream.CircuitBreaker.Threshold = -1
			},
			path: "upstream.circuitBreaker.threshold",
		},
		{name: "log level", mutate: func(c *Config) { c.Observability.Logging.Level = "loud" }, path: "observability.logging.level"},
		{name: "log format", mutate: func(c *Config) { c.Observability.Logging.Format = "xml" }, path: "observability.logging.format"},
		{
			name: "metrics path",
			mutate: func(c *Config) {
				c.Observability.Metrics.Enabled = true
				c.Observability.Metrics.Path = "metrics"
			},
			path: "observability.metrics.path",
		},
		{name: "sampling rate", mutate: func(c *Config) { c.Observability.Tracing.SamplingRate = 1.5 }, path: "observability.tracing.samplingRate"},
		{name: "location", mutate: func(c *Config) { c.Dates.Location = "Nowhere/City" }, path: "dates.location"},
		{name: "route name", mutate: func(c *Config) { c.Routes[0].Name = "" }, path: "routes[0].name"},
		{
			name: "duplicate route",
			mutate: func(c *Config) {
				c.Routes = append(c.Routes, c.Routes[0])
			},
			path: "routes[1].name",
		},
		{name: "path prefix", mutate: func(c *Config) { c.Routes[0].Match.PathPrefix = "api" }, path: "routes[0].match.pathPrefix"},
		{name: "method", mutate: func(c *Config) { c.Routes[0].Match.Methods = []string{"FETCH"} }, path: "routes[0].match.methods"},
		{name: "empty shapes", mutate: func(c *Config) { c.Routes[0].Response = nil }, path: "routes[0]"},
		{name: "date target", mutate: func(c *Config) { c.Routes[0].Response.Dates[0].To = "epoch" }, path: "routes[0].response.dates[0].to"},
		{name: "date paths", mutate: func(c *Config) { c.Routes[0].Response.Dates[0].Paths = nil }, path: "routes[0].response.dates[0].paths"},
		{name: "blank date path", mutate: func(c *Config) { c.Routes[0].Response.Dates[0].Paths = []string{" "} }, path: "routes[0].response.dates[0].paths"},
		{name: "date location", mutate: func(c *Config) { c.Routes[0].Response.Dates[0].Location = "Bad/Zone" }, path: "routes[0].response.dates[0].location"},
		{name: "blank id field", mutate: func(c *Config) { c.Routes[0].Response.IDs = []string{""} }, path: "routes[0].response.ids"},
		{name: "blank only field", mutate: func(c *Config) { c.Routes[0].Request = &Shape{Only: []string{""}} }, path: "routes[0].request.only"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)

			err := ValidateConfig(cfg)
			require.Error(t, err)

			var verrs ValidationErrors
			require.True(t, errors.As(err, &verrs))

			var paths []string
			for _, e := range verrs {
				paths = append(paths, e.Path)
			}
			assert.Contains(t, paths, tt.path)
		})
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "no validation errors", ValidationErrors{}.Error())
	assert.Equal(t, "a: bad", ValidationErrors{{Path: "a", Message: "bad"}}.Error())

	multi := ValidationErrors{{Path: "a", Message: "bad"}, {Message: "worse"}}.Error()
	assert.True(t, strings.HasPrefix(multi, "2 validation errors:"))
	assert.Contains(t, multi, "1. a: bad")
	assert.Contains(t, multi, "2. worse")
}

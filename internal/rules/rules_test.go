package rules

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/restransform/internal/config"
)

func testRoutes() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Dates.Location = "UTC"
	cfg.Routes = []config.Route{
		{
			Name:  "sessions",
			Match: config.Match{PathPrefix: "/api/sessions"},
			Response: &config.Shape{
				Dates: []config.DateShape{
					{To: config.DateTargetLocalISO, Paths: []string{"start", "end"}},
				},
			},
		},
		{
			Name:  "sessions-write",
			Match: config.Match{PathPrefix: "/api/sessions", Methods: []string{"put", "POST"}},
			When:  `request.headers["x-shape"] == "lean"`,
			Request: &config.Shape{
				IDs:  []string{"owner"},
				Only: []string{"name", "owner"},
			},
		},
		{
			Name:  "api",
			Match: config.Match{PathPrefix: "/api/"},
			Response: &config.Shape{
				Dates: []config.DateShape{
					{To: config.DateTargetZonedISO, Paths: []string{"created"}, Location: "Europe/Berlin"},
				},
			},
		},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestCompile(t *testing.T) {
	t.Parallel()

	set, err := Compile(testRoutes())
	require.NoError(t, err)
	require.Equal(t, 3, set.Len())

	names := make([]string, 0, set.Len())
	for _, r := range set.Rules() {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"sessions", "sessions-write", "api"}, names)

	r, ok := set.Get("sessions-write")
	require.True(t, ok)
	assert.Nil(t, r.Response)
	assert.NotNil(t, r.Request)
	assert.Equal(t, `request.headers["x-shape"] == "lean"`, r.Condition())

	_, ok = set.Get("missing")
	assert.False(t, ok)
}

func TestCompile_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		route   config.Route
		wantErr error
	}{
		{
			name:    "syntax error",
			route:   config.Route{Name: "r", Match: config.Match{PathPrefix: "/"}, When: "request.method ==", Response: &config.Shape{Only: []string{"a"}}},
			wantErr: ErrInvalidCondition,
		},
		{
			name:    "non bool condition",
			route:   config.Route{Name: "r", Match: config.Match{PathPrefix: "/"}, When: `"text"`, Response: &config.Shape{Only: []string{"a"}}},
			wantErr: ErrInvalidCondition,
		},
		{
			name:    "unknown variable",
			route:   config.Route{Name: "r", Match: config.Match{PathPrefix: "/"}, When: `response.code == 200`, Response: &config.Shape{Only: []string{"a"}}},
			wantErr: ErrInvalidCondition,
		},
		{
			name: "unknown target",
			route: config.Route{Name: "r", Match: config.Match{PathPrefix: "/"}, Response: &config.Shape{
				Dates: []config.DateShape{{To: "epoch", Paths: []string{"a"}}},
			}},
			wantErr: ErrUnknownDateTarget,
		},
		{
			name: "bad location",
			route: config.Route{Name: "r", Match: config.Match{PathPrefix: "/"}, Request: &config.Shape{
				Dates: []config.DateShape{{To: config.DateTargetDate, Paths: []string{"a"}, Location: "Mars/Olympus"}},
			}},
			wantErr: ErrInvalidLocation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			cfg.Routes = []config.Route{tt.route}
			_, err := Compile(cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Contains(t, err.Error(), `route "r"`)
		})
	}
}

func TestSet_Match(t *testing.T) {
	t.Parallel()

	set, err := Compile(testRoutes())
	require.NoError(t, err)

	tests := []struct {
		name     string
		method   string
		target   string
		headers  map[string]string
		expected string
	}{
		{name: "exact prefix", method: http.MethodGet, target: "/api/sessions", expected: "sessions"},
		{name: "nested path", method: http.MethodGet, target: "/api/sessions/1", expected: "sessions"},
		{name: "segment boundary", method: http.MethodGet, target: "/api/sessionsx", expected: "api"},
		{name: "trailing slash prefix", method: http.MethodGet, target: "/api/things", expected: "api"},
		{name: "no match", method: http.MethodGet, target: "/other", expected: ""},
		{
			name: "first rule wins on equal prefix", method: http.MethodPut, target: "/api/sessions/1",
			headers: map[string]string{"X-Shape": "lean"}, expected: "sessions",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(tt.method, tt.target, nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			r := set.Match(req)
			if tt.expected == "" {
				assert.Nil(t, r)
				return
			}
			require.NotNil(t, r)
			assert.Equal(t, tt.expected, r.Name)
		})
	}
}

func TestSet_MatchCondition(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Routes = []config.Route{
		{
			Name:     "lean",
			Match:    config.Match{PathPrefix: "/api", Methods: []string{"POST"}},
			When:     `request.headers["x-shape"] == "lean" && request.query["v"] == "2"`,
			Request:  &config.Shape{Only: []string{"name"}},
			Response: nil,
		},
		{
			Name:     "fallback",
			Match:    config.Match{PathPrefix: "/api"},
			Response: &config.Shape{Only: []string{"id"}},
		},
	}
	set, err := Compile(cfg)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/items?v=2", nil)
	req.Header.Set("X-Shape", "lean")
	assert.Equal(t, "lean", set.Match(req).Name)

	req = httptest.NewRequest(http.MethodPost, "/api/items?v=1", nil)
	req.Header.Set("X-Shape", "lean")
	assert.Equal(t, "fallback", set.Match(req).Name)

	// A missing header makes the condition fail to evaluate, which counts as no match.
	req = httptest.NewRequest(http.MethodPost, "/api/items?v=2", nil)
	assert.Equal(t, "fallback", set.Match(req).Name)

	req = httptest.NewRequest(http.MethodGet, "/api/items?v=2", nil)
	req.Header.Set("X-Shape", "lean")
	assert.Equal(t, "fallback", set.Match(req).Name)
}

func TestRule_Chains(t *testing.T) {
	t.Parallel()

	set, err := Compile(testRoutes())
	require.NoError(t, err)

	t.Run("response dates", func(t *testing.T) {
		t.Parallel()

		r, _ := set.Get("sessions")
		out, err := r.Chain(DirectionResponse).Apply(`[{"start":"2016-01-12T13:48:05Z","end":"bad","n":1}]`)
		require.NoError(t, err)
		assert.JSONEq(t, `[{"start":"2016-01-12T13:48:05.000","end":"Invalid date","n":1}]`, out.(string))
		assert.Nil(t, r.Chain(DirectionRequest))
	})

	t.Run("request ids and projection", func(t *testing.T) {
		t.Parallel()

		r, _ := set.Get("sessions-write")
		out, err := r.Chain(DirectionRequest).Apply(`{"name":"n","owner":{"id":5,"name":"o"},"extra":true}`)
		require.NoError(t, err)
		assert.JSONEq(t, `{"name":"n","owner":5}`, out.(string))
	})

	t.Run("zoned with route location", func(t *testing.T) {
		t.Parallel()

		berlin, err := time.LoadLocation("Europe/Berlin")
		if err != nil {
			t.Skip("tzdata not available")
		}
		r, _ := set.Get("api")
		out, err := r.Chain(DirectionResponse).Apply(`{"created":"2016-01-12T12:00:00Z"}`)
		require.NoError(t, err)
		want := time.Date(2016, 1, 12, 12, 0, 0, 0, time.UTC).In(berlin).Format("2006-01-02T15:04:05-07:00")
		assert.JSONEq(t, `{"created":"`+want+`"}`, out.(string))
	})
}

func TestRule_ChainsFrameworkKeys(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	shape := &config.Shape{IDs: []string{"owner"}}
	cfg.Routes = []config.Route{{
		Name:     "items",
		Match:    config.Match{PathPrefix: "/items"},
		Request:  shape,
		Response: shape,
	}}
	config.ApplyDefaults(cfg)
	set, err := Compile(cfg)
	require.NoError(t, err)
	r, _ := set.Get("items")

	tests := []struct {
		name      string
		direction string
		expected  string
	}{
		{name: "response keeps keys", direction: DirectionResponse, expected: `{"$$hashKey":"object:1","owner":2}`},
		{name: "request drops keys", direction: DirectionRequest, expected: `{"owner":2}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out, err := r.Chain(tt.direction).Apply(`{"$$hashKey":"object:1","owner":{"id":2}}`)
			require.NoError(t, err)
			assert.JSONEq(t, tt.expected, out.(string))
		})
	}
}

func TestRequestAttributes(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "http://example.com/a/b?x=1&x=2", nil)
	req.Header.Add("X-Multi", "first")
	req.Header.Add("X-Multi", "second")

	attrs := RequestAttributes(req)
	assert.Equal(t, http.MethodGet, attrs["method"])
	assert.Equal(t, "/a/b", attrs["path"])
	assert.Equal(t, "example.com", attrs["host"])
	assert.Equal(t, "first", attrs["headers"].(map[string]any)["x-multi"])
	assert.Equal(t, "1", attrs["query"].(map[string]any)["x"])
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	empty := NewRegistry(nil)
	assert.Equal(t, 0, empty.Len())
	assert.Nil(t, empty.Match(httptest.NewRequest(http.MethodGet, "/api/sessions", nil)))

	set, err := Compile(testRoutes())
	require.NoError(t, err)

	prev := empty.Swap(set)
	assert.Nil(t, prev)
	assert.Equal(t, 3, empty.Len())
	assert.Same(t, set, empty.Load())
	assert.Equal(t, "sessions", empty.Match(httptest.NewRequest(http.MethodGet, "/api/sessions", nil)).Name)
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	m := NewMetrics("test")
	reg := prometheus.NewRegistry()
	m.MustRegister(reg)
	m.Init()

	m.RecordOperation("sessions", DirectionResponse, ResultSuccess, time.Millisecond)
	m.RecordOperation("sessions", DirectionResponse, ResultSuccess, time.Millisecond)
	m.RecordOperation("sessions", DirectionRequest, ResultPassthrough, 0)
	m.RecordError(DirectionRequest, ErrorTypeDecode)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("sessions", DirectionResponse, ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("sessions", DirectionRequest, ResultPassthrough)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errorsTotal.WithLabelValues(DirectionRequest, ErrorTypeDecode)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.errorsTotal.WithLabelValues(DirectionResponse, ErrorTypeBody)))
}

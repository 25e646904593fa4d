// Package health provides liveness and readiness endpoints.
package health

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/restransform/internal/observability"
)

// DefaultCheckTimeout bounds a readiness run.
const DefaultCheckTimeout = 5 * time.Second

// Check is a named readiness check. A nil error means healthy.
type Check interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to Check.
type CheckFunc struct {
	name string
	fn   func(ctx context.Context) error
}

// NewCheckFunc creates a named check from fn.
func NewCheckFunc(name string, fn func(ctx context.Context) error) *CheckFunc {
	return &CheckFunc{name: name, fn: fn}
}

// Name returns the check name.
func (f *CheckFunc) Name() string { return f.name }

// Check runs the check.
func (f *CheckFunc) Check(ctx context.Context) error { return f.fn(ctx) }

// Status is the body of a readiness or health response.
type Status struct {
	Status    string                  `json:"status"`
	Version   string                  `json:"version,omitempty"`
	Uptime    string                  `json:"uptime,omitempty"`
	Timestamp time.Time               `json:"timestamp"`
	Checks    map[string]*CheckResult `json:"checks,omitempty"`
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

// Handler serves the probe endpoints.
type Handler struct {
	version   string
	logger    observability.Logger
	timeout   time.Duration
	startTime time.Time
	draining  atomic.Bool

	mu     sync.RWMutex
	checks []Check
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithTimeout sets the readiness timeout.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// NewHandler creates a handler reporting version.
func NewHandler(version string, opts ...Option) *Handler {
	h := &Handler{
		version:   version,
		logger:    observability.NopLogger(),
		timeout:   DefaultCheckTimeout,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// AddCheck registers a readiness check.
func (h *Handler) AddCheck(check Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

// SetDraining marks the service as shutting down; readiness then fails.
func (h *Handler) SetDraining(draining bool) {
	h.draining.Store(draining)
}

// IsDraining reports whether the service is shutting down.
func (h *Handler) IsDraining() bool {
	return h.draining.Load()
}

// LivenessHandler reports that the process is running.
func (h *Handler) LivenessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC(),
		})
	}
}

// ReadinessHandler runs every check and answers 503 when one fails or the
// service is draining.
func (h *Handler) ReadinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
		defer cancel()

		status := h.runChecks(ctx)
		status.Version = h.version
		status.Uptime = time.Since(h.startTime).Round(time.Second).String()

		code := http.StatusOK
		if status.Status != "ok" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	}
}

func (h *Handler) runChecks(ctx context.Context) *Status {
	h.mu.RLock()
	checks := make([]Check, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	status := &Status{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Checks:    make(map[string]*CheckResult, len(checks)),
	}
	if h.IsDraining() {
		status.Status = "draining"
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, check := range checks {
		wg.Add(1)
		go func(c Check) {
			defer wg.Done()

			start := time.Now()
			err := c.Check(ctx)
			result := &CheckResult{Status: "ok", Duration: time.Since(start).String()}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Status = "error"
				result.Error = err.Error()
				if status.Status == "ok" {
					status.Status = "error"
				}
				h.logger.Warn("health check failed",
					observability.String("check", c.Name()),
					observability.Error(err),
				)
			}
			status.Checks[c.Name()] = result
		}(check)
	}
	wg.Wait()

	return status
}

// RegisterRoutes registers the probe routes on engine.
func (h *Handler) RegisterRoutes(engine gin.IRoutes) {
	engine.GET("/healthz", h.LivenessHandler())
	engine.GET("/livez", h.LivenessHandler())
	engine.GET("/readyz", h.ReadinessHandler())
}

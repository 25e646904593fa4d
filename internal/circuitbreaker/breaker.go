// Package circuitbreaker protects the upstream with a gobreaker circuit breaker
// exposed as an http.RoundTripper.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/restransform/internal/config"
	"github.com/vyrodovalexey/restransform/internal/observability"
)

// ErrCircuitOpen is returned when the breaker rejects a request.
var ErrCircuitOpen = errors.New("circuit breaker is open")

var cbTracer = otel.Tracer("restransform/circuitbreaker")

// Breaker wraps gobreaker.CircuitBreaker.
type Breaker struct {
	cb      *gobreaker.CircuitBreaker
	logger  observability.Logger
	metrics *Metrics
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithLogger sets the logger for state changes.
func WithLogger(logger observability.Logger) Option {
	return func(b *Breaker) {
		b.logger = logger
	}
}

// WithMetrics records state and transitions.
func WithMetrics(m *Metrics) Option {
	return func(b *Breaker) {
		b.metrics = m
	}
}

// New creates a breaker. It trips once at least cfg.Threshold requests were
// seen in the current interval and the failure ratio reaches cfg.FailureRatio.
func New(name string, cfg config.CircuitBreaker, opts ...Option) *Breaker {
	b := &Breaker{logger: observability.NopLogger()}
	for _, opt := range opts {
		opt(b)
	}

	threshold := safeIntToUint32(cfg.Threshold)
	ratio := cfg.FailureRatio
	if ratio <= 0 {
		ratio = config.DefaultBreakerFailureRatio
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: safeIntToUint32(cfg.HalfOpenMax),
		Interval:    cfg.Interval.Duration(),
		Timeout:     cfg.Timeout.Duration(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < threshold {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= ratio
		},
		OnStateChange: b.onStateChange,
	}

	b.cb = gobreaker.NewCircuitBreaker(settings)
	if b.metrics != nil {
		b.metrics.setState(name, gobreaker.StateClosed)
	}
	return b
}

func (b *Breaker) onStateChange(name string, from, to gobreaker.State) {
	b.logger.Warn("circuit breaker state change",
		observability.String("name", name),
		observability.String("from", from.String()),
		observability.String("to", to.String()),
	)

	if b.metrics != nil {
		b.metrics.setState(name, to)
		b.metrics.transitions.WithLabelValues(name, from.String(), to.String()).Inc()
	}

	_, span := cbTracer.Start(context.Background(), "circuitbreaker.state_change",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.AddEvent("state_change", trace.WithAttributes(
		attribute.String("circuitbreaker.name", name),
		attribute.String("circuitbreaker.from", from.String()),
		attribute.String("circuitbreaker.to", to.String()),
	))
	span.End()
}

func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	if n > int(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n) //nolint:gosec // bounds checked above
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.cb.Name()
}

// State returns the current state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// Execute runs fn if the breaker allows it and records the outcome.
func (b *Breaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	res, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		if b.metrics != nil {
			b.metrics.rejected.WithLabelValues(b.cb.Name()).Inc()
		}
		return nil, fmt.Errorf("%w: %w", ErrCircuitOpen, err)
	}
	return res, err
}

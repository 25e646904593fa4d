package rules

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Results of a transform operation.
const (
	ResultSuccess     = "success"
	ResultError       = "error"
	ResultPassthrough = "passthrough"
)

// Error types recorded by Metrics.RecordError.
const (
	ErrorTypeDecode  = "decode"
	ErrorTypeBody    = "body"
	ErrorTypeGeneral = "general"
)

// Metrics contains Prometheus metrics for body transforms.
type Metrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec
}

// NewMetrics creates unregistered transform metrics.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "transform",
				Name:      "operations_total",
				Help:      "Total number of transform operations",
			},
			[]string{"rule", "direction", "result"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "transform",
				Name:      "operation_duration_seconds",
				Help:      "Duration of transform operations in seconds",
				Buckets: []float64{
					.0001, .0005, .001, .005,
					.01, .025, .05, .1,
				},
			},
			[]string{"direction"},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "transform",
				Name:      "errors_total",
				Help:      "Total number of transform errors",
			},
			[]string{"direction", "error_type"},
		),
	}
}

// MustRegister registers the collectors with registry.
func (m *Metrics) MustRegister(registry prometheus.Registerer) {
	registry.MustRegister(
		m.operationsTotal,
		m.operationDuration,
		m.errorsTotal,
	)
}

// Init pre-initializes the label combinations that do not depend on a rule
// name so they appear in /metrics output before the first request.
func (m *Metrics) Init() {
	for _, dir := range []string{DirectionRequest, DirectionResponse} {
		m.operationDuration.WithLabelValues(dir)
		for _, errType := range []string{ErrorTypeDecode, ErrorTypeBody, ErrorTypeGeneral} {
			m.errorsTotal.WithLabelValues(dir, errType)
		}
	}
}

// RecordOperation records one transform of a body.
func (m *Metrics) RecordOperation(rule, direction, result string, duration time.Duration) {
	m.operationsTotal.WithLabelValues(rule, direction, result).Inc()
	if result != ResultPassthrough {
		m.operationDuration.WithLabelValues(direction).Observe(duration.Seconds())
	}
}

// RecordError records a transform error.
func (m *Metrics) RecordError(direction, errorType string) {
	m.errorsTotal.WithLabelValues(direction, errorType).Inc()
}

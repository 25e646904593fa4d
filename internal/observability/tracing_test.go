package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func setupTracingTest() (*Tracer, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return NewTracerFromProvider(tp, "test"), recorder
}

func TestNewTracer_Disabled(t *testing.T) {
	t.Parallel()

	tracer, err := NewTracer(context.Background(), TracerConfig{ServiceName: "svc"})
	require.NoError(t, err)
	require.NotNil(t, tracer)
	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestNewTracer_EnabledWithoutExporter(t *testing.T) {
	tracer, err := NewTracer(context.Background(), TracerConfig{
		ServiceName:  "svc",
		SamplingRate: 1,
		Enabled:      true,
	})
	require.NoError(t, err)

	_, span := tracer.StartSpan(context.Background(), "op")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestNewResource(t *testing.T) {
	t.Parallel()

	res, err := newResource(context.Background(), TracerConfig{ServiceName: "svc", ServiceVersion: "1.2.3"})
	require.NoError(t, err)

	name, ok := res.Set().Value(attribute.Key("service.name"))
	require.True(t, ok)
	assert.Equal(t, "svc", name.AsString())
	version, ok := res.Set().Value(attribute.Key("service.version"))
	require.True(t, ok)
	assert.Equal(t, "1.2.3", version.AsString())
	_, ok = res.Set().Value(attribute.Key("telemetry.sdk.language"))
	assert.True(t, ok)

	_, err = resource.Merge(resource.Default(), res)
	assert.NoError(t, err)
}

func TestCreateSampler(t *testing.T) {
	t.Parallel()

	assert.Equal(t, sdktrace.AlwaysSample().Description(), createSampler(1).Description())
	assert.Equal(t, sdktrace.NeverSample().Description(), createSampler(0).Description())
	assert.Equal(t, sdktrace.TraceIDRatioBased(0.5).Description(), createSampler(0.5).Description())
}

func TestTracingMiddleware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		status     int
		wantStatus codes.Code
	}{
		{name: "success", status: http.StatusOK, wantStatus: codes.Unset},
		{name: "client error is not a span error", status: http.StatusNotFound, wantStatus: codes.Unset},
		{name: "server error", status: http.StatusBadGateway, wantStatus: codes.Error},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tracer, recorder := setupTracingTest()

			var traceID string
			handler := TracingMiddleware(tracer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				traceID = TraceIDFromContext(r.Context())
				w.WriteHeader(tt.status)
			}))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))

			assert.Equal(t, tt.status, rec.Code)
			assert.NotEmpty(t, traceID)

			spans := recorder.Ended()
			require.Len(t, spans, 1)
			assert.Equal(t, "GET /api/sessions", spans[0].Name())
			assert.Equal(t, trace.SpanKindServer, spans[0].SpanKind())
			assert.Equal(t, tt.wantStatus, spans[0].Status().Code)
		})
	}
}

func TestRecordError(t *testing.T) {
	t.Parallel()

	tracer, recorder := setupTracingTest()

	_, span := tracer.StartSpan(context.Background(), "op")
	RecordError(span, nil)
	RecordError(span, errors.New("boom"))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "boom", spans[0].Status().Description)
	assert.Len(t, spans[0].Events(), 1)
}

func TestInjectTraceContext(t *testing.T) {
	tracer, err := NewTracer(context.Background(), TracerConfig{ServiceName: "svc", Enabled: true, SamplingRate: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tracer.Shutdown(context.Background()) })

	ctx, span := tracer.StartSpan(context.Background(), "client")
	defer span.End()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	InjectTraceContext(ctx, req)

	assert.NotEmpty(t, req.Header.Get("traceparent"))
}

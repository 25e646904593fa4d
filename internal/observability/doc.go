// Package observability provides logging, metrics, and tracing for the
// shaping proxy and its command line tool.
//
// # Logging
//
// The Logger interface wraps zap:
//
//	logger, err := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.WithContext(ctx).Info("response transformed",
//	    observability.String("rule", "sessions"),
//	)
//
// Request, trace, span and rule identifiers stored with the ContextWith*
// helpers are attached to every entry logged through WithContext.
//
// # Metrics
//
//	metrics := observability.NewMetrics("")
//	metrics.MustRegisterCollector(ruleMetrics)
//	handler := metrics.Handler()
//
// # Tracing
//
// OpenTelemetry tracing with OTLP gRPC export and W3C trace context propagation:
//
//	tracer, err := observability.NewTracer(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tracer.Shutdown(ctx)
package observability

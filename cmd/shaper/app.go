package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/vyrodovalexey/restransform/internal/circuitbreaker"
	"github.com/vyrodovalexey/restransform/internal/config"
	"github.com/vyrodovalexey/restransform/internal/health"
	"github.com/vyrodovalexey/restransform/internal/middleware"
	"github.com/vyrodovalexey/restransform/internal/observability"
	"github.com/vyrodovalexey/restransform/internal/proxy"
	"github.com/vyrodovalexey/restransform/internal/rules"
	"github.com/vyrodovalexey/restransform/internal/server"
)

// application holds all application components.
type application struct {
	config           *config.Config
	logger           observability.Logger
	metrics          *observability.Metrics
	transformMetrics *rules.Metrics
	tracer           *observability.Tracer
	registry         *rules.Registry
	breaker          *circuitbreaker.Breaker
	health           *health.Handler
	server           *server.Server
}

// newApplication wires every component from cfg.
func newApplication(cfg *config.Config, logger observability.Logger) (*application, error) {
	app := &application{
		config:  cfg,
		logger:  logger,
		metrics: observability.NewMetrics(observability.DefaultNamespace),
	}
	app.metrics.SetBuildInfo(version, gitCommit, buildTime)

	app.transformMetrics = rules.NewMetrics(observability.DefaultNamespace)
	app.transformMetrics.MustRegister(app.metrics.Registry())
	app.transformMetrics.Init()

	tracer, err := initTracer(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	app.tracer = tracer

	set, err := rules.Compile(cfg, rules.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to compile routes: %w", err)
	}
	app.registry = rules.NewRegistry(set)
	app.metrics.SetRulesLoaded(set.Len())

	transport := http.DefaultTransport
	if cfg.Upstream.CircuitBreaker.Enabled {
		breakerMetrics := circuitbreaker.NewMetrics(observability.DefaultNamespace)
		breakerMetrics.MustRegister(app.metrics.Registry())
		app.breaker = circuitbreaker.New("upstream", cfg.Upstream.CircuitBreaker,
			circuitbreaker.WithLogger(logger),
			circuitbreaker.WithMetrics(breakerMetrics),
		)
		transport = circuitbreaker.NewTransport(app.breaker, transport)
	}

	upstream, err := proxy.NewReverseProxy(cfg.Upstream.URL,
		proxy.WithProxyLogger(logger),
		proxy.WithTransport(transport),
		proxy.WithTimeout(cfg.Upstream.Timeout.Duration()),
		proxy.WithMetrics(app.metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream proxy: %w", err)
	}

	app.health = health.NewHandler(version, health.WithLogger(logger))
	if len(cfg.Routes) > 0 {
		app.health.AddCheck(health.RulesCheck(app.registry.Len))
	}
	if app.breaker != nil {
		app.health.AddCheck(health.BreakerCheck(app.breaker.Name(), app.breaker.State))
	}

	metricsPath := ""
	if cfg.Observability.Metrics.Enabled {
		metricsPath = cfg.Observability.Metrics.Path
	}

	app.server = server.New(cfg.Server, app.buildHandler(upstream),
		server.WithLogger(logger),
		server.WithHealth(app.health),
		server.WithMetrics(app.metrics, metricsPath),
	)

	return app, nil
}

// buildHandler builds the chain in front of the upstream proxy.
func (a *application) buildHandler(upstream http.Handler) http.Handler {
	transform := middleware.NewTransform(a.registry,
		middleware.WithTransformLogger(a.logger),
		middleware.WithTransformMetrics(a.transformMetrics),
		middleware.WithMaxBodyBytes(a.config.Server.MaxBodyBytes),
	)

	h := transform.Handler(upstream)
	h = observability.TracingMiddleware(a.tracer)(h)
	return h
}

// initTracer initializes the tracer.
func initTracer(cfg *config.Config) (*observability.Tracer, error) {
	tracing := cfg.Observability.Tracing
	return observability.NewTracer(context.Background(), observability.TracerConfig{
		ServiceName:    tracing.ServiceName,
		ServiceVersion: version,
		OTLPEndpoint:   tracing.Endpoint,
		SamplingRate:   tracing.SamplingRate,
		Enabled:        tracing.Enabled,
	})
}

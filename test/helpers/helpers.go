// Package helpers provides common test utilities for the shaping proxy tests.
package helpers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/vyrodovalexey/restransform/internal/config"
	"github.com/vyrodovalexey/restransform/internal/health"
	"github.com/vyrodovalexey/restransform/internal/middleware"
	"github.com/vyrodovalexey/restransform/internal/observability"
	"github.com/vyrodovalexey/restransform/internal/proxy"
	"github.com/vyrodovalexey/restransform/internal/rules"
	"github.com/vyrodovalexey/restransform/internal/server"
)

// ShaperInstance represents a running shaping proxy for testing.
type ShaperInstance struct {
	Server   *server.Server
	Config   *config.Config
	Registry *rules.Registry
	Metrics  *observability.Metrics
	BaseURL  string
}

// StartShaper loads the configuration at configPath and starts a proxy.
func StartShaper(ctx context.Context, configPath string) (*ShaperInstance, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return StartShaperWithConfig(ctx, cfg)
}

// StartShaperWithConfig starts a proxy on a random local port.
func StartShaperWithConfig(ctx context.Context, cfg *config.Config) (*ShaperInstance, error) {
	logger := observability.NopLogger()
	cfg.Server.Listen = "127.0.0.1:0"

	if err := config.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	set, err := rules.Compile(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to compile routes: %w", err)
	}
	registry := rules.NewRegistry(set)

	metrics := observability.NewMetrics("functional")
	transformMetrics := rules.NewMetrics("functional")
	transformMetrics.MustRegister(metrics.Registry())

	upstream, err := proxy.NewReverseProxy(cfg.Upstream.URL,
		proxy.WithProxyLogger(logger),
		proxy.WithTimeout(cfg.Upstream.Timeout.Duration()),
		proxy.WithMetrics(metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy: %w", err)
	}

	handler := middleware.NewTransform(registry,
		middleware.WithTransformMetrics(transformMetrics),
		middleware.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
	).Handler(upstream)

	srv := server.New(cfg.Server, handler,
		server.WithHealth(health.NewHandler("functional")),
		server.WithMetrics(metrics, cfg.Observability.Metrics.Path),
	)
	if err := srv.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start server: %w", err)
	}

	return &ShaperInstance{
		Server:   srv,
		Config:   cfg,
		Registry: registry,
		Metrics:  metrics,
		BaseURL:  "http://" + srv.Addr().String(),
	}, nil
}

// Stop stops the proxy.
func (si *ShaperInstance) Stop(ctx context.Context) error {
	if si.Server != nil {
		return si.Server.Stop(ctx)
	}
	return nil
}

// RecordedRequest is a request seen by a Backend.
type RecordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   string
}

// Backend is an upstream that answers every request with a fixed JSON body
// and records what it received.
type Backend struct {
	*httptest.Server

	mu       sync.Mutex
	requests []RecordedRequest
	body     string
}

// NewBackend starts a backend answering with body.
func NewBackend(body string) *Backend {
	b := &Backend{body: body}
	b.Server = httptest.NewServer(http.HandlerFunc(b.serve))
	return b
}

func (b *Backend) serve(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)

	b.mu.Lock()
	b.requests = append(b.requests, RecordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Header: r.Header.Clone(),
		Body:   string(data),
	})
	body := b.body
	b.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, body)
}

// SetBody changes the response body.
func (b *Backend) SetBody(body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.body = body
}

// LastRequest returns the most recent request, if any.
func (b *Backend) LastRequest() (RecordedRequest, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.requests) == 0 {
		return RecordedRequest{}, false
	}
	return b.requests[len(b.requests)-1], true
}

// WaitForReady waits for a URL to become ready.
func WaitForReady(url string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	client := &http.Client{Timeout: 2 * time.Second}

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for %s to become ready", url)
		case <-ticker.C:
			resp, err := client.Get(url)
			if err == nil {
				resp.Body.Close()
				if resp.StatusCode < 500 {
					return nil
				}
			}
		}
	}
}

// HTTPClient returns an HTTP client for testing.
func HTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

// MakeRequest makes an HTTP request with a raw JSON body and returns the response.
func MakeRequest(method, url, body string) (*http.Response, error) {
	return MakeRequestWithHeaders(method, url, body, nil)
}

// MakeRequestWithHeaders makes an HTTP request with custom headers.
func MakeRequestWithHeaders(method, url, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = bytes.NewReader([]byte(body))
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return HTTPClient().Do(req)
}

// ReadResponseBody reads and returns the response body as a string.
func ReadResponseBody(resp *http.Response) (string, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// ReadJSONResponse reads and unmarshals the response body.
func ReadJSONResponse(resp *http.Response, v any) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(v)
}

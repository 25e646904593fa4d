// Package proxy forwards requests to the upstream API.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/vyrodovalexey/restransform/internal/circuitbreaker"
	"github.com/vyrodovalexey/restransform/internal/observability"
)

// ErrInvalidTargetURL indicates that the upstream URL is invalid.
var ErrInvalidTargetURL = errors.New("invalid target URL")

// Error bodies written by the proxy.
const (
	errBadGateway         = `{"error":"bad gateway","message":"failed to proxy request"}`
	errGatewayTimeout     = `{"error":"gateway timeout"}`
	errServiceUnavailable = `{"error":"service unavailable","message":"circuit breaker open"}`
)

// hopHeaders are headers that should not be forwarded.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// UpstreamErrorRecorder counts failed upstream calls.
type UpstreamErrorRecorder interface {
	RecordUpstreamError()
}

// ReverseProxy forwards every request to a single upstream.
type ReverseProxy struct {
	target    *url.URL
	logger    observability.Logger
	transport http.RoundTripper
	timeout   time.Duration
	metrics   UpstreamErrorRecorder
	proxy     *httputil.ReverseProxy
}

// ProxyOption is a functional option for configuring the proxy.
type ProxyOption func(*ReverseProxy)

// WithProxyLogger sets the logger for the proxy.
func WithProxyLogger(logger observability.Logger) ProxyOption {
	return func(p *ReverseProxy) {
		p.logger = logger
	}
}

// WithTransport sets the transport for the proxy.
func WithTransport(transport http.RoundTripper) ProxyOption {
	return func(p *ReverseProxy) {
		p.transport = transport
	}
}

// WithTimeout bounds each upstream call.
func WithTimeout(d time.Duration) ProxyOption {
	return func(p *ReverseProxy) {
		p.timeout = d
	}
}

// WithMetrics sets the recorder notified of upstream failures.
func WithMetrics(m UpstreamErrorRecorder) ProxyOption {
	return func(p *ReverseProxy) {
		p.metrics = m
	}
}

// NewReverseProxy creates a proxy to target.
func NewReverseProxy(target string, opts ...ProxyOption) (*ReverseProxy, error) {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTargetURL, target)
	}

	p := &ReverseProxy{
		target: u,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.proxy = &httputil.ReverseProxy{
		Director:      p.director,
		Transport:     p.transport,
		FlushInterval: -1,
		ErrorHandler:  p.errorHandler,
	}
	return p, nil
}

// ServeHTTP implements http.Handler.
func (p *ReverseProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if p.timeout > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), p.timeout)
		defer cancel()
		r = r.WithContext(ctx)
	}
	p.proxy.ServeHTTP(w, r)
}

// director rewrites the outgoing request for the upstream. It runs on the
// clone made by httputil.ReverseProxy, so req still carries the client's
// RemoteAddr, Host and TLS state.
func (p *ReverseProxy) director(req *http.Request) {
	clientHost := req.Host

	req.URL.Scheme = p.target.Scheme
	req.URL.Host = p.target.Host
	req.URL.Path, req.URL.RawPath = joinURLPath(p.target, req.URL)
	if p.target.RawQuery != "" {
		if req.URL.RawQuery == "" {
			req.URL.RawQuery = p.target.RawQuery
		} else {
			req.URL.RawQuery = p.target.RawQuery + "&" + req.URL.RawQuery
		}
	}

	for _, h := range hopHeaders {
		req.Header.Del(h)
	}

	// X-Forwarded-For is appended by httputil.ReverseProxy after the director returns.
	if req.TLS != nil {
		req.Header.Set("X-Forwarded-Proto", "https")
	} else {
		req.Header.Set("X-Forwarded-Proto", "http")
	}
	req.Header.Set("X-Forwarded-Host", clientHost)

	observability.InjectTraceContext(req.Context(), req)
	req.Host = p.target.Host
}

func joinURLPath(a, b *url.URL) (path, rawpath string) {
	if a.RawPath == "" && b.RawPath == "" {
		return singleJoiningSlash(a.Path, b.Path), ""
	}
	apath := a.EscapedPath()
	bpath := b.EscapedPath()
	joined := singleJoiningSlash(apath, bpath)
	unescaped, err := url.PathUnescape(joined)
	if err != nil {
		return singleJoiningSlash(a.Path, b.Path), ""
	}
	return unescaped, joined
}

func singleJoiningSlash(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}

func (p *ReverseProxy) errorHandler(w http.ResponseWriter, r *http.Request, err error) {
	if p.metrics != nil {
		p.metrics.RecordUpstreamError()
	}

	status, body := http.StatusBadGateway, errBadGateway
	switch {
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		status, body = http.StatusServiceUnavailable, errServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status, body = http.StatusGatewayTimeout, errGatewayTimeout
	case errors.Is(err, context.Canceled):
		// The client went away. Nothing useful can be written.
		p.logger.WithContext(r.Context()).Debug("client canceled request",
			observability.String("path", r.URL.Path),
		)
		return
	}

	p.logger.WithContext(r.Context()).Error("proxy error",
		observability.String("path", r.URL.Path),
		observability.String("method", r.Method),
		observability.Int("status", status),
		observability.Error(err),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

// Target returns the upstream URL.
func (p *ReverseProxy) Target() *url.URL {
	u := *p.target
	return &u
}

package resource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/restransform/internal/observability"
	"github.com/vyrodovalexey/restransform/pkg/retry"
	"github.com/vyrodovalexey/restransform/pkg/transform"
)

// Errors returned by Client.
var (
	ErrInvalidBaseURL = errors.New("invalid base URL")
	ErrRequestFailed  = errors.New("request failed")
)

// DefaultTimeout bounds calls made with the default HTTP client.
const DefaultTimeout = 30 * time.Second

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 10 << 20

var clientTracer = otel.Tracer("restransform/resource")

// StatusError is returned for responses outside the 2xx range.
type StatusError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Action describes one call on a resource.
// Nil chains fall back to the client defaults.
type Action struct {
	Name              string
	Method            string
	Path              string
	Query             url.Values
	TransformRequest  Chain
	TransformResponse Chain
}

// Logger receives client diagnostics. *zap.Logger satisfies it.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
}

// Client calls a JSON HTTP API and shapes bodies with hook chains.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	defaults   Defaults
	headers    http.Header
	logger     Logger
	retry      *retry.Config
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client. Wrap its transport with a circuit
// breaker to protect the upstream.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithDefaults replaces the default chains.
func WithDefaults(d Defaults) ClientOption {
	return func(c *Client) {
		c.defaults = d
	}
}

// WithHeader adds a header sent on every call.
func WithHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.headers.Add(key, value)
	}
}

// WithLogger sets the logger.
func WithLogger(logger Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRetry retries idempotent calls that fail in transport or get a 502,
// 503 or 504 response.
func WithRetry(cfg *retry.Config) ClientOption {
	return func(c *Client) {
		c.retry = cfg
	}
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}

	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		defaults:   StandardDefaults(),
		headers:    make(http.Header),
		logger:     observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Defaults returns the client default chains.
func (c *Client) Defaults() Defaults {
	return c.defaults
}

// Do runs the request chain on body, sends it, and returns the response body
// passed through the response chain. Non-2xx responses yield *StatusError.
func (c *Client) Do(ctx context.Context, action Action, body any) (any, error) {
	requestChain := action.TransformRequest
	if requestChain == nil {
		requestChain = c.defaults.TransformRequest
	}
	responseChain := action.TransformResponse
	if responseChain == nil {
		responseChain = c.defaults.TransformResponse
	}

	method := action.Method
	if method == "" {
		method = http.MethodGet
	}

	ctx, span := clientTracer.Start(ctx, "resource."+actionName(action, method),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", action.Path),
		),
	)
	defer span.End()

	payload, err := requestChain.Apply(body)
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("transform request: %w", err)
	}

	start := time.Now()
	status, raw, err := c.call(ctx, method, action, payload)
	logger := c.loggerFor(ctx)
	if err != nil {
		observability.RecordError(span, err)
		var statusErr *StatusError
		if !errors.As(err, &statusErr) {
			logger.Warn("resource call failed",
				observability.String("method", method),
				observability.String("path", action.Path),
				observability.Error(err),
			)
		}
		if status != 0 {
			span.SetAttributes(attribute.Int("http.response.status_code", status))
		}
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.response.status_code", status))
	logger.Debug("resource call completed",
		observability.String("method", method),
		observability.String("path", action.Path),
		observability.Int("status", status),
		observability.Duration("duration", time.Since(start)),
	)

	result, err := responseChain.Apply(string(raw))
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("transform response: %w", err)
	}
	return result, nil
}

// call sends the request, retrying when a retry policy is set and the
// method is idempotent. Non-2xx responses are returned as *StatusError.
func (c *Client) call(ctx context.Context, method string, action Action, payload any) (int, []byte, error) {
	var (
		status int
		raw    []byte
	)
	attempt := func() error {
		req, err := c.newRequest(ctx, method, action, payload)
		if err != nil {
			return err
		}
		observability.InjectTraceContext(ctx, req)

		status, raw, err = c.send(req)
		if err != nil {
			return err
		}
		if status < 200 || status > 299 {
			return &StatusError{StatusCode: status, Body: string(raw)}
		}
		return nil
	}

	if c.retry == nil || !idempotent(method) {
		err := attempt()
		return status, raw, err
	}

	err := retry.Do(ctx, c.retry, attempt, &retry.Options{
		ShouldRetry: retryable,
		OnRetry: func(n int, err error, backoff time.Duration) {
			c.loggerFor(ctx).Debug("retrying resource call",
				observability.String("method", method),
				observability.String("path", action.Path),
				observability.Int("attempt", n),
				observability.Duration("backoff", backoff),
				observability.Error(err),
			)
		},
	})
	return status, raw, err
}

// loggerFor adds request and trace ids when the logger knows how.
func (c *Client) loggerFor(ctx context.Context) Logger {
	if l, ok := c.logger.(observability.Logger); ok {
		return l.WithContext(ctx)
	}
	return c.logger
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	default:
		return false
	}
}

func retryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	return errors.Is(err, ErrRequestFailed)
}

func actionName(action Action, method string) string {
	if action.Name != "" {
		return action.Name
	}
	return strings.ToLower(method)
}

func (c *Client) newRequest(ctx context.Context, method string, action Action, payload any) (*http.Request, error) {
	ref, err := url.Parse(strings.TrimPrefix(action.Path, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", action.Path, err)
	}
	target := c.baseURL.ResolveReference(ref)
	if len(action.Query) > 0 {
		q := target.Query()
		for k, vs := range action.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		target.RawQuery = q.Encode()
	}

	reader, err := bodyReader(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json, text/plain, */*")
	}
	if reader != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json;charset=utf-8")
	}
	return req, nil
}

func bodyReader(payload any) (io.Reader, error) {
	switch v := payload.(type) {
	case nil:
		return nil, nil
	case string:
		return strings.NewReader(v), nil
	case []byte:
		return bytes.NewReader(v), nil
	default:
		text, err := transform.Encode(v)
		if err != nil {
			return nil, err
		}
		return strings.NewReader(text), nil
	}
}

func (c *Client) send(req *http.Request) (int, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: read body: %w", ErrRequestFailed, err)
	}
	return resp.StatusCode, raw, nil
}

package middleware

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/restransform/internal/observability"
	"github.com/vyrodovalexey/restransform/internal/rules"
	"github.com/vyrodovalexey/restransform/pkg/transform"
)

// DefaultMaxBodyBytes is the largest body buffered for transformation.
// Larger request or response bodies are passed through unchanged.
const DefaultMaxBodyBytes = 10 << 20

var (
	errNotText   = errors.New("transform chain did not produce text")
	errReadBody  = errors.New("read body")
	middlewareTr = otel.Tracer("restransform/middleware")
)

// Matcher selects the rule for a request.
type Matcher interface {
	Match(r *http.Request) *rules.Rule
}

// Transform rewrites JSON request and response bodies with the chains of the
// matching rule. Bodies that are not JSON, exceed the size limit, or fail to
// transform are passed through unchanged.
type Transform struct {
	matcher  Matcher
	logger   observability.Logger
	metrics  *rules.Metrics
	maxBytes int64
}

// TransformOption configures Transform.
type TransformOption func(*Transform)

// WithTransformLogger sets the logger.
func WithTransformLogger(logger observability.Logger) TransformOption {
	return func(t *Transform) {
		t.logger = logger
	}
}

// WithTransformMetrics sets the metrics.
func WithTransformMetrics(m *rules.Metrics) TransformOption {
	return func(t *Transform) {
		t.metrics = m
	}
}

// WithMaxBodyBytes sets the buffering limit. Values <= 0 keep the default.
func WithMaxBodyBytes(n int64) TransformOption {
	return func(t *Transform) {
		if n > 0 {
			t.maxBytes = n
		}
	}
}

// NewTransform creates the middleware.
func NewTransform(matcher Matcher, opts ...TransformOption) *Transform {
	t := &Transform{
		matcher:  matcher,
		logger:   observability.NopLogger(),
		maxBytes: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Handler returns the middleware as a standard http.Handler wrapper.
func (t *Transform) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rule := t.matcher.Match(r)
		if rule == nil {
			next.ServeHTTP(w, r)
			return
		}

		if info := matchInfoFromContext(r.Context()); info != nil {
			info.Rule = rule.Name
		}
		r = r.WithContext(observability.ContextWithRule(r.Context(), rule.Name))
		logger := t.logger.WithContext(r.Context())

		if rule.Request != nil {
			if err := t.transformRequest(r, rule, logger); err != nil {
				writeBodyError(w, err)
				return
			}
		}

		if rule.Response == nil {
			next.ServeHTTP(w, r)
			return
		}

		// Compressed bodies cannot be rewritten.
		r.Header.Del("Accept-Encoding")

		recorder := &transformResponseRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
			body:           &bytes.Buffer{},
			header:         make(http.Header),
			limit:          t.maxBytes,
		}
		next.ServeHTTP(recorder, r)

		if recorder.bufferExceeded {
			logger.Debug("response body exceeded max transform body size, skipping transform",
				observability.String("path", r.URL.Path),
			)
			t.record(rule.Name, rules.DirectionResponse, rules.ResultPassthrough, 0)
			return
		}
		t.transformResponse(w, r, recorder, rule, logger)
	})
}

// transformRequest rewrites the request body in place. Only a failure to read
// the body is returned; the body is consumed then and cannot be forwarded.
func (t *Transform) transformRequest(r *http.Request, rule *rules.Rule, logger observability.Logger) error {
	if r.Body == nil || r.Body == http.NoBody || !isJSONContent(r.Header.Get(HeaderContentType), true) {
		t.record(rule.Name, rules.DirectionRequest, rules.ResultPassthrough, 0)
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, t.maxBytes+1))
	if err != nil {
		err = fmt.Errorf("%w: %w", errReadBody, err)
		t.fail(rule.Name, rules.DirectionRequest, rules.ErrorTypeBody, err, logger)
		return err
	}
	if int64(len(body)) > t.maxBytes {
		r.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(body), r.Body), Closer: r.Body}
		logger.Debug("request body exceeded max transform body size, skipping transform",
			observability.String("path", r.URL.Path),
		)
		t.record(rule.Name, rules.DirectionRequest, rules.ResultPassthrough, 0)
		return nil
	}
	_ = r.Body.Close()

	out, err := t.apply(r, rule, rules.DirectionRequest, body)
	if err != nil {
		r.Body = io.NopCloser(bytes.NewReader(body))
		t.fail(rule.Name, rules.DirectionRequest, errorType(err), err, logger)
		return nil
	}

	r.Body = io.NopCloser(strings.NewReader(out))
	r.ContentLength = int64(len(out))
	r.Header.Set("Content-Length", strconv.Itoa(len(out)))
	logger.Debug("request body transformed",
		observability.Int("original_bytes", len(body)),
		observability.Int("transformed_bytes", len(out)),
	)
	return nil
}

func writeBodyError(w http.ResponseWriter, err error) {
	status, body := http.StatusBadRequest, errBadRequestBody
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		status, body = http.StatusRequestEntityTooLarge, errRequestEntityTooLarge
	}
	w.Header().Set(HeaderContentType, ContentTypeJSON)
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func (t *Transform) transformResponse(
	w http.ResponseWriter,
	r *http.Request,
	recorder *transformResponseRecorder,
	rule *rules.Rule,
	logger observability.Logger,
) {
	body := recorder.body.Bytes()
	if len(body) == 0 ||
		recorder.header.Get("Content-Encoding") != "" ||
		!isJSONContent(recorder.header.Get(HeaderContentType), false) {
		t.record(rule.Name, rules.DirectionResponse, rules.ResultPassthrough, 0)
		writeRecordedResponse(w, recorder, body)
		return
	}

	out, err := t.apply(r, rule, rules.DirectionResponse, body)
	if err != nil {
		t.fail(rule.Name, rules.DirectionResponse, errorType(err), err, logger)
		writeRecordedResponse(w, recorder, body)
		return
	}

	copyHeader(w.Header(), recorder.header)
	w.Header().Set("Content-Length", strconv.Itoa(len(out)))
	w.WriteHeader(recorder.statusCode)
	_, _ = io.WriteString(w, out)
}

// apply runs the rule chain for direction and records the outcome.
func (t *Transform) apply(r *http.Request, rule *rules.Rule, direction string, body []byte) (string, error) {
	_, span := middlewareTr.Start(r.Context(), "transform."+direction,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("transform.rule", rule.Name),
			attribute.String("transform.direction", direction),
			attribute.Int("transform.body_bytes", len(body)),
		),
	)
	defer span.End()

	start := time.Now()
	out, err := rule.Chain(direction).Apply(string(body))
	if err != nil {
		observability.RecordError(span, err)
		return "", err
	}
	text, ok := out.(string)
	if !ok {
		observability.RecordError(span, errNotText)
		return "", fmt.Errorf("%w: got %T", errNotText, out)
	}
	t.record(rule.Name, direction, rules.ResultSuccess, time.Since(start))
	return text, nil
}

func (t *Transform) record(rule, direction, result string, d time.Duration) {
	if t.metrics != nil {
		t.metrics.RecordOperation(rule, direction, result, d)
	}
}

func (t *Transform) fail(rule, direction, errType string, err error, logger observability.Logger) {
	logger.Warn(direction+" transform failed, passing through",
		observability.String("direction", direction),
		observability.Error(err),
	)
	t.record(rule, direction, rules.ResultError, 0)
	if t.metrics != nil {
		t.metrics.RecordError(direction, errType)
	}
}

func errorType(err error) string {
	switch {
	case errors.Is(err, transform.ErrDecodeFailed):
		return rules.ErrorTypeDecode
	case errors.Is(err, errReadBody):
		return rules.ErrorTypeBody
	default:
		return rules.ErrorTypeGeneral
	}
}

// isJSONContent reports whether contentType names JSON. An empty content type
// counts as JSON only when allowEmpty is set.
func isJSONContent(contentType string, allowEmpty bool) bool {
	if contentType == "" {
		return allowEmpty
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == ContentTypeJSON || strings.HasSuffix(mediaType, "+json")
}

type readCloser struct {
	io.Reader
	io.Closer
}

func copyHeader(dst, src http.Header) {
	for k, vals := range src {
		for _, v := range vals {
			dst.Add(k, v)
		}
	}
}

// writeRecordedResponse writes the captured response back to the client unchanged.
func writeRecordedResponse(w http.ResponseWriter, recorder *transformResponseRecorder, body []byte) {
	copyHeader(w.Header(), recorder.header)
	w.WriteHeader(recorder.statusCode)
	_, _ = w.Write(body)
}

// transformResponseRecorder buffers the response for transformation.
type transformResponseRecorder struct {
	http.ResponseWriter
	statusCode     int
	body           *bytes.Buffer
	header         http.Header
	limit          int64
	headerWritten  bool
	bufferExceeded bool
}

// Header returns the captured header map.
func (r *transformResponseRecorder) Header() http.Header {
	return r.header
}

// WriteHeader captures the status code.
func (r *transformResponseRecorder) WriteHeader(code int) {
	if !r.headerWritten {
		r.statusCode = code
		r.headerWritten = true
	}
}

// Write buffers b. Once the buffered body would exceed the limit, the buffer
// and every later write go straight to the client.
func (r *transformResponseRecorder) Write(b []byte) (int, error) {
	if !r.headerWritten {
		r.statusCode = http.StatusOK
		r.headerWritten = true
	}

	if r.bufferExceeded {
		return r.ResponseWriter.Write(b)
	}

	if int64(r.body.Len())+int64(len(b)) > r.limit {
		r.bufferExceeded = true

		copyHeader(r.ResponseWriter.Header(), r.header)
		r.ResponseWriter.WriteHeader(r.statusCode)

		if r.body.Len() > 0 {
			_, _ = r.ResponseWriter.Write(r.body.Bytes())
			r.body.Reset()
		}
		return r.ResponseWriter.Write(b)
	}

	return r.body.Write(b)
}

// Flush is a no-op while buffering and forwards once the limit was exceeded.
func (r *transformResponseRecorder) Flush() {
	if !r.bufferExceeded {
		return
	}
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack implements http.Hijacker.
func (r *transformResponseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := r.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

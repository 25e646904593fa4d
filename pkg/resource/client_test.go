package resource

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vyrodovalexey/restransform/internal/observability"
	"github.com/vyrodovalexey/restransform/pkg/retry"
	"github.com/vyrodovalexey/restransform/pkg/transform"
)

type recordedRequest struct {
	method      string
	path        string
	query       url.Values
	contentType string
	accept      string
	token       string
	body        string
}

func newUpstream(t *testing.T, status int, response string) (*httptest.Server, chan recordedRequest) {
	t.Helper()

	seen := make(chan recordedRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		seen <- recordedRequest{
			method:      r.Method,
			path:        r.URL.Path,
			query:       r.URL.Query(),
			contentType: r.Header.Get("Content-Type"),
			accept:      r.Header.Get("Accept"),
			token:       r.Header.Get("X-Token"),
			body:        string(body),
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	return srv, seen
}

func TestNewClient_InvalidBaseURL(t *testing.T) {
	t.Parallel()

	tests := []string{"", "not a url", "/relative", "://missing"}
	for _, raw := range tests {
		_, err := NewClient(raw)
		assert.ErrorIs(t, err, ErrInvalidBaseURL, raw)
	}
}

func TestClient_GetWithDateResponse(t *testing.T) {
	t.Parallel()

	srv, seen := newUpstream(t, http.StatusOK, `[{"id":1,"start":"2016-01-12T13:48:05"}]`)

	loc := time.FixedZone("UTC+2", 2*60*60)
	client, err := NewClient(srv.URL+"/api", WithHeader("X-Token", "secret"), WithLogger(observability.NopLogger()))
	require.NoError(t, err)
	hooks := NewDateHooks(client.Defaults(), transform.NewDateConverter(transform.WithLocation(loc)))

	out, err := client.Do(context.Background(), Action{
		Name:              "sessions.query",
		Path:              "/sessions",
		Query:             url.Values{"page": {"2"}},
		TransformResponse: hooks.Response.ToDate(transform.Path("start")),
	}, nil)
	require.NoError(t, err)

	req := <-seen
	assert.Equal(t, http.MethodGet, req.method)
	assert.Equal(t, "/api/sessions", req.path)
	assert.Equal(t, "2", req.query.Get("page"))
	assert.Equal(t, "secret", req.token)
	assert.Equal(t, "application/json, text/plain, */*", req.accept)
	assert.Empty(t, req.body)

	list, ok := out.([]any)
	require.True(t, ok)
	require.Len(t, list, 1)
	start, ok := list[0].(map[string]any)["start"].(time.Time)
	require.True(t, ok)
	assert.True(t, time.Date(2016, 1, 12, 13, 48, 5, 0, loc).Equal(start))
}

func TestClient_PutWithDateRequest(t *testing.T) {
	t.Parallel()

	srv, seen := newUpstream(t, http.StatusOK, `{"ok":true}`)

	client, err := NewClient(srv.URL)
	require.NoError(t, err)
	loc := time.FixedZone("UTC+2", 2*60*60)
	hooks := NewDateHooks(client.Defaults(), transform.NewDateConverter(transform.WithLocation(loc)))

	body := map[string]any{
		"id":    7,
		"start": time.Date(2016, 1, 12, 11, 48, 5, 476e6, time.UTC),
	}
	out, err := client.Do(context.Background(), Action{
		Method:           http.MethodPut,
		Path:             "sessions/7",
		TransformRequest: hooks.Request.ToLocalISOString(transform.Path("start")),
	}, body)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": true}, out)

	req := <-seen
	assert.Equal(t, http.MethodPut, req.method)
	assert.Equal(t, "/sessions/7", req.path)
	assert.Equal(t, "application/json;charset=utf-8", req.contentType)
	assert.JSONEq(t, `{"id":7,"start":"2016-01-12T13:48:05.476"}`, req.body)

	// The caller's body is left untouched.
	assert.IsType(t, time.Time{}, body["start"])
}

func TestClient_ProjectionAndFlatten(t *testing.T) {
	t.Parallel()

	srv, seen := newUpstream(t, http.StatusCreated, `{}`)

	client, err := NewClient(srv.URL)
	require.NoError(t, err)

	body := map[string]any{
		"name":   "demo",
		"owner":  map[string]any{"id": 42, "name": "alice"},
		"secret": "x",
	}
	_, err = client.Do(context.Background(), Action{
		Method: http.MethodPost,
		Path:   "/projects",
		TransformRequest: client.Defaults().RequestWith(
			transform.FlattenIDs("owner"),
			transform.Only("name", "owner"),
		),
	}, body)
	require.NoError(t, err)

	req := <-seen
	assert.JSONEq(t, `{"name":"demo","owner":42}`, req.body)
}

func TestClient_StatusError(t *testing.T) {
	t.Parallel()

	srv, _ := newUpstream(t, http.StatusNotFound, `{"error":"missing"}`)

	client, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = client.Do(context.Background(), Action{Path: "/things/1"}, nil)
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.JSONEq(t, `{"error":"missing"}`, statusErr.Body)
	assert.Contains(t, statusErr.Error(), "404")
}

func TestClient_RequestFailed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	client, err := NewClient(base, WithHTTPClient(&http.Client{Timeout: time.Second}))
	require.NoError(t, err)

	_, err = client.Do(context.Background(), Action{Path: "/x"}, nil)
	assert.ErrorIs(t, err, ErrRequestFailed)
}

func TestClient_TransformErrors(t *testing.T) {
	t.Parallel()

	srv, _ := newUpstream(t, http.StatusOK, `{"a":}`)

	client, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = client.Do(context.Background(), Action{Path: "/x"}, nil)
	assert.ErrorIs(t, err, transform.ErrDecodeFailed)

	_, err = client.Do(context.Background(), Action{
		Method:           http.MethodPost,
		Path:             "/x",
		TransformRequest: Chain{transform.Only("a")},
	}, `{"broken"`)
	assert.ErrorIs(t, err, transform.ErrDecodeFailed)
}

func TestClient_WithDefaults(t *testing.T) {
	t.Parallel()

	srv, _ := newUpstream(t, http.StatusOK, `{"a":"b"}`)

	client, err := NewClient(srv.URL, WithDefaults(Defaults{}))
	require.NoError(t, err)

	out, err := client.Do(context.Background(), Action{Path: "/x"}, nil)
	require.NoError(t, err)
	assert.Equal(t, `{"a":"b"}`, out)
}

func TestClient_Retry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		method       string
		failures     int32
		failStatus   int
		wantErr      bool
		wantAttempts int32
	}{
		{name: "get recovers after 503", method: http.MethodGet, failures: 2, failStatus: http.StatusServiceUnavailable, wantAttempts: 3},
		{name: "get gives up", method: http.MethodGet, failures: 10, failStatus: http.StatusBadGateway, wantErr: true, wantAttempts: 3},
		{name: "post is not retried", method: http.MethodPost, failures: 1, failStatus: http.StatusServiceUnavailable, wantErr: true, wantAttempts: 1},
		{name: "client errors are not retried", method: http.MethodGet, failures: 1, failStatus: http.StatusConflict, wantErr: true, wantAttempts: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var attempts atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				if attempts.Add(1) <= tt.failures {
					w.WriteHeader(tt.failStatus)
					return
				}
				_, _ = io.WriteString(w, `{"ok":true}`)
			}))
			t.Cleanup(srv.Close)

			client, err := NewClient(srv.URL, WithRetry(&retry.Config{
				MaxRetries:     2,
				InitialBackoff: time.Millisecond,
				MaxBackoff:     2 * time.Millisecond,
			}))
			require.NoError(t, err)

			out, err := client.Do(context.Background(), Action{Method: tt.method, Path: "/x"}, `{"a":1}`)
			if tt.wantErr {
				var statusErr *StatusError
				require.ErrorAs(t, err, &statusErr)
				assert.Equal(t, tt.failStatus, statusErr.StatusCode)
			} else {
				require.NoError(t, err)
				assert.Equal(t, map[string]any{"ok": true}, out)
			}
			assert.Equal(t, tt.wantAttempts, attempts.Load())
		})
	}
}

func TestClient_ZapLogger(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	t.Cleanup(srv.Close)

	core, logs := observer.New(zap.DebugLevel)
	client, err := NewClient(srv.URL,
		WithLogger(zap.New(core)),
		WithRetry(&retry.Config{MaxRetries: 1, InitialBackoff: time.Millisecond}),
	)
	require.NoError(t, err)

	_, err = client.Do(context.Background(), Action{Path: "/x"}, nil)
	require.NoError(t, err)

	retried := logs.FilterMessage("retrying resource call").All()
	require.Len(t, retried, 1)
	assert.Equal(t, int64(1), retried[0].ContextMap()["attempt"])
}

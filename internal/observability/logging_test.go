package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestDefaultLogConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultLogConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "stdout", cfg.Output)
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  LogConfig
		wantErr error
	}{
		{name: "default config", config: DefaultLogConfig()},
		{name: "console format", config: LogConfig{Level: "debug", Format: "console", Output: "stdout"}},
		{name: "stderr output", config: LogConfig{Level: "warn", Format: "json", Output: "stderr"}},
		{name: "invalid format", config: LogConfig{Level: "info", Format: "xml"}, wantErr: ErrInvalidLogFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			logger, err := NewLogger(tt.config)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	t.Parallel()

	_, err := NewLogger(LogConfig{Level: "loud", Format: "json"})
	assert.Error(t, err)
}

func TestNewLogger_FileOutput(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "shaper.log")

	logger, err := NewLogger(LogConfig{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	logger.Info("written to file")
	_ = logger.Sync()

	assert.FileExists(t, path)
}

func TestNewLogger_FileOutputMissingDir(t *testing.T) {
	t.Parallel()

	_, err := NewLogger(LogConfig{Level: "info", Output: filepath.Join(t.TempDir(), "no", "such", "dir.log")})
	assert.Error(t, err)
}

func TestLogger_WithContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := newLoggerWithSink(LogConfig{Level: "debug", Format: "json"}, zapcore.AddSync(&buf))
	require.NoError(t, err)

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithTraceID(ctx, "trace-1")
	ctx = ContextWithSpanID(ctx, "span-1")
	ctx = ContextWithRule(ctx, "sessions")

	logger.WithContext(ctx).Info("transformed", String("direction", "response"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "transformed", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "trace-1", entry["trace_id"])
	assert.Equal(t, "span-1", entry["span_id"])
	assert.Equal(t, "sessions", entry["rule"])
	assert.Equal(t, "response", entry["direction"])
}

func TestLogger_WithContextEmpty(t *testing.T) {
	t.Parallel()

	logger := NopLogger()
	assert.Same(t, logger, logger.WithContext(context.Background()))
}

func TestLogger_LevelFiltering(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := newLoggerWithSink(LogConfig{Level: "warn"}, zapcore.AddSync(&buf))
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("hidden")
	assert.Zero(t, buf.Len())

	logger.With(Int("n", 1)).Warn("shown")
	assert.Contains(t, buf.String(), `"n":1`)
}

func TestContextHelpers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	assert.Empty(t, RequestIDFromContext(ctx))
	assert.Empty(t, TraceIDFromContext(ctx))
	assert.Empty(t, SpanIDFromContext(ctx))
	assert.Empty(t, RuleFromContext(ctx))

	ctx = ContextWithRequestID(ctx, "r")
	ctx = ContextWithTraceID(ctx, "t")
	ctx = ContextWithSpanID(ctx, "s")
	ctx = ContextWithRule(ctx, "x")
	assert.Equal(t, "r", RequestIDFromContext(ctx))
	assert.Equal(t, "t", TraceIDFromContext(ctx))
	assert.Equal(t, "s", SpanIDFromContext(ctx))
	assert.Equal(t, "x", RuleFromContext(ctx))
}

func TestGlobalLogger(t *testing.T) {
	assert.NotNil(t, L())

	logger := NopLogger()
	SetGlobalLogger(logger)
	t.Cleanup(func() { SetGlobalLogger(nil) })

	assert.Same(t, logger, L())
}

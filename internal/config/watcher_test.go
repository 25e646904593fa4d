package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/restransform/internal/observability"
)

const invalidConfigYAML = `
upstream:
  url: ""
`

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestNewWatcher(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "shaper.yaml")
	writeConfig(t, path, validConfigYAML)

	w, err := NewWatcher(path, nil,
		WithDebounceDelay(10*time.Millisecond),
		WithLogger(observability.NopLogger()),
		WithErrorCallback(func(error) {}),
	)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Millisecond, w.debounceDelay)
	assert.Nil(t, w.GetLastConfig())
	assert.NoError(t, w.Stop())
}

func TestWatcher_StartInvalid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "shaper.yaml")
	writeConfig(t, path, invalidConfigYAML)

	w, err := NewWatcher(path, nil)
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	assert.Error(t, w.Start(context.Background()))
}

func TestWatcher_ReloadOnChange(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "shaper.yaml")
	writeConfig(t, path, validConfigYAML)

	var reloads atomic.Int32
	var lastListen atomic.Value
	w, err := NewWatcher(path, func(cfg *Config) {
		lastListen.Store(cfg.Server.Listen)
		reloads.Add(1)
	}, WithDebounceDelay(20*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop() }()

	assert.Equal(t, ":9090", w.GetLastConfig().Server.Listen)

	writeConfig(t, path, strings.Replace(validConfigYAML, ":9090", ":9191", 1))

	require.Eventually(t, func() bool { return reloads.Load() >= 1 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, ":9191", lastListen.Load())
	assert.Equal(t, ":9191", w.GetLastConfig().Server.Listen)
}

func TestWatcher_KeepsPreviousOnInvalidReload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "shaper.yaml")
	writeConfig(t, path, validConfigYAML)

	var failures atomic.Int32
	w, err := NewWatcher(path, func(*Config) {
		t.Error("callback must not run for an invalid configuration")
	},
		WithDebounceDelay(20*time.Millisecond),
		WithErrorCallback(func(error) { failures.Add(1) }),
	)
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop() }()

	writeConfig(t, path, invalidConfigYAML)

	require.Eventually(t, func() bool { return failures.Load() >= 1 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, ":9090", w.GetLastConfig().Server.Listen)
}

func TestWatcher_Check(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "shaper.yaml")
	writeConfig(t, path, validConfigYAML)

	errRejected := errors.New("rejected")
	w, err := NewWatcher(path, nil, WithCheck(func(*Config) error { return errRejected }))
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	assert.ErrorIs(t, w.Start(context.Background()), errRejected)
	assert.ErrorIs(t, w.ForceReload(), errRejected)
}

func TestWatcher_ForceReload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "shaper.yaml")
	writeConfig(t, path, validConfigYAML)

	var called atomic.Bool
	w, err := NewWatcher(path, func(*Config) { called.Store(true) },
		WithLoader(NewLoader(WithStrictFields(false))))
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	require.NoError(t, w.ForceReload())
	assert.True(t, called.Load())
	assert.NotNil(t, w.GetLastConfig())
}

func TestWatcher_StopOnContextCancel(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "shaper.yaml")
	writeConfig(t, path, validConfigYAML)

	w, err := NewWatcher(path, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	require.NoError(t, w.Start(ctx))

	cancel()
	select {
	case <-w.stoppedCh:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
	assert.NoError(t, w.Stop())
}

package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mxf.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auth:\n  jwt_secret: first\n"), 0o600))

	var mu sync.Mutex
	var reloaded *Config
	w := NewWatcher(path, nil, func(cfg *Config) {
		mu.Lock()
		defer mu.Unlock()
		reloaded = cfg
	})
	w.debounce = 20 * time.Millisecond
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("auth:\n  jwt_secret: second\n"), 0o600))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return reloaded != nil && reloaded.Auth.JWTSecret == "second"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcherIgnoresInvalidReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mxf.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auth:\n  jwt_secret: first\n"), 0o600))

	calls := 0
	w := NewWatcher(path, nil, func(cfg *Config) { calls++ })
	w.debounce = 10 * time.Millisecond
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("server:\n  extra_unknown_field: true\n"), 0o600))
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 0, calls)
}

func TestWatcherStartIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mxf.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auth:\n  jwt_secret: first\n"), 0o600))

	w := NewWatcher(path, nil, func(cfg *Config) {})
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
}

package config

import (
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestLogger mirrors testhelpers.NewTestLogger; importing testhelpers here
// would create an import cycle (testhelpers imports config).
func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func TestWatcher_StartStop(t *testing.T) {
	provider, err := NewProvider(writeConfigFile(t, validYAML))
	require.NoError(t, err)

	watcher, err := NewWatcher(provider, newTestLogger())
	require.NoError(t, err)

	require.NoError(t, watcher.Start())
	assert.Error(t, watcher.Start(), "double start must fail")

	require.NoError(t, watcher.Stop())
	// Stopping twice is a no-op.
	require.NoError(t, watcher.Stop())
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := writeConfigFile(t, validYAML)
	provider, err := NewProvider(path)
	require.NoError(t, err)

	watcher, err := NewWatcher(provider, newTestLogger())
	require.NoError(t, err)
	require.NoError(t, watcher.Start())
	defer func() { _ = watcher.Stop() }()

	require.NoError(t, os.WriteFile(path, []byte(`
openai:
  base_url: "http://localhost:9000"
models:
  default: "gpt-5"
`), 0o644))

	require.Eventually(t, func() bool {
		return provider.Snapshot().Models.Default == "gpt-5"
	}, 5*time.Second, 50*time.Millisecond)
}

func TestWatcher_IsConfigEvent(t *testing.T) {
	path := writeConfigFile(t, validYAML)
	provider, err := NewProvider(path)
	require.NoError(t, err)

	watcher, err := NewWatcher(provider, newTestLogger())
	require.NoError(t, err)
	defer func() { _ = watcher.Stop() }()

	assert.True(t, watcher.isConfigEvent(fsnotify.Event{Name: path, Op: fsnotify.Write}))
	assert.True(t, watcher.isConfigEvent(fsnotify.Event{Name: path, Op: fsnotify.Create}))
	assert.True(t, watcher.isConfigEvent(fsnotify.Event{Name: path, Op: fsnotify.Rename}))
	assert.False(t, watcher.isConfigEvent(fsnotify.Event{Name: path, Op: fsnotify.Chmod}))
	assert.False(t, watcher.isConfigEvent(fsnotify.Event{Name: path + ".bak", Op: fsnotify.Write}))
}

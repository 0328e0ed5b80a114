package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForPath(t *testing.T, paths <-chan string, timeout time.Duration) string {
	t.Helper()
	select {
	case p := <-paths:
		return p
	case <-time.After(timeout):
		t.Fatal("timed out waiting for watcher event")
		return ""
	}
}

func TestStartWatcher_EmitsArrivedImages(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	paths, _, err := StartWatcher(ctx, WatchConfig{Root: root, Debounce: 50 * time.Millisecond}, nil)
	require.NoError(t, err)

	target := filepath.Join(root, "receipt.png")
	require.NoError(t, os.WriteFile(target, []byte("png"), 0o644))

	assert.Equal(t, target, waitForPath(t, paths, 5*time.Second))
}

func TestStartWatcher_IgnoresNonImages(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	paths, _, err := StartWatcher(ctx, WatchConfig{Root: root, Debounce: 20 * time.Millisecond}, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "photo.jpg"), []byte("jpg"), 0o644))

	got := waitForPath(t, paths, 5*time.Second)
	assert.Equal(t, filepath.Join(root, "photo.jpg"), got)
}

func TestStartWatcher_InitialScan(t *testing.T) {
	root := t.TempDir()
	existing := filepath.Join(root, "old.png")
	require.NoError(t, os.WriteFile(existing, []byte("png"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	paths, _, err := StartWatcher(ctx, WatchConfig{Root: root, InitialScan: true}, nil)
	require.NoError(t, err)

	assert.Equal(t, existing, waitForPath(t, paths, 5*time.Second))
}

func TestStartWatcher_RequiresRoot(t *testing.T) {
	_, _, err := StartWatcher(context.Background(), WatchConfig{}, nil)
	assert.Error(t, err)
}

func TestStartWatcher_ClosesOnCancel(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())

	paths, _, err := StartWatcher(ctx, WatchConfig{Root: root}, nil)
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-paths:
		assert.False(t, ok, "event channel closes after cancel")
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop on cancel")
	}
}

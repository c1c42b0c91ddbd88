package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startPolling(t *testing.T, dir string) *PollingWatcher {
	t.Helper()
	p := NewPollingWatcher(30 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = p.Start(ctx, dir) }()
	// Let the baseline listing complete.
	time.Sleep(80 * time.Millisecond)
	return p
}

func nextEvent(t *testing.T, p *PollingWatcher) FileEvent {
	t.Helper()
	select {
	case e := <-p.Events():
		return e
	case err := <-p.Errors():
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for polling event")
	}
	return FileEvent{}
}

func TestPollingWatcher_ReportsNewFile(t *testing.T) {
	// Given: an empty inbox being polled
	dir := t.TempDir()
	p := startPolling(t, dir)
	defer func() { _ = p.Stop() }()

	// When: a file is dropped in
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	// Then: a CREATE with the absolute path is reported
	e := nextEvent(t, p)
	assert.Equal(t, OpCreate, e.Operation)
	assert.Equal(t, path, e.Path)
}

func TestPollingWatcher_ReportsModifyAndDelete(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))
	p := startPolling(t, dir)
	defer func() { _ = p.Stop() }()

	require.NoError(t, os.WriteFile(path, []byte("version two"), 0o644))
	assert.Equal(t, OpModify, nextEvent(t, p).Operation)

	require.NoError(t, os.Remove(path))
	assert.Equal(t, OpDelete, nextEvent(t, p).Operation)
}

func TestPollingWatcher_IgnoresSubdirectories(t *testing.T) {
	dir := t.TempDir()
	p := startPolling(t, dir)
	defer func() { _ = p.Stop() }()

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "deep.txt"), []byte("x"), 0o644))

	select {
	case e := <-p.Events():
		t.Fatalf("unexpected event: %+v", e)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestPollingWatcher_StartOnMissingDir(t *testing.T) {
	p := NewPollingWatcher(time.Second)

	err := p.Start(context.Background(), filepath.Join(t.TempDir(), "missing"))

	assert.Error(t, err)
}

func TestPollingWatcher_StopIsIdempotent(t *testing.T) {
	p := NewPollingWatcher(time.Second)

	require.NoError(t, p.Stop())
	require.NoError(t, p.Stop())

	_, ok := <-p.Events()
	assert.False(t, ok)
}

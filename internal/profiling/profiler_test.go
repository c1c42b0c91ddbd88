package profiling

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nonEmpty(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestStart_WritesAllProfiles(t *testing.T) {
	// Given: every profile requested
	dir := t.TempDir()
	opts := Options{
		CPU:   filepath.Join(dir, "cpu.prof"),
		Trace: filepath.Join(dir, "trace.out"),
		Heap:  filepath.Join(dir, "heap.prof"),
	}
	require.True(t, opts.Enabled())

	// When: a session runs some work and stops twice
	s, err := Start(opts)
	require.NoError(t, err)
	buf := make([][]byte, 0, 64)
	for i := 0; i < 64; i++ {
		buf = append(buf, make([]byte, 1024))
	}
	_ = buf
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())

	// Then: each file holds a profile
	nonEmpty(t, opts.CPU)
	nonEmpty(t, opts.Trace)
	nonEmpty(t, opts.Heap)
}

func TestStart_NothingRequested(t *testing.T) {
	assert.False(t, Options{}.Enabled())

	s, err := Start(Options{})
	require.NoError(t, err)
	assert.NoError(t, s.Stop())
}

func TestStart_BadPath(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing", "cpu.prof")

	_, err := Start(Options{CPU: missing})
	assert.Error(t, err)
}

func TestStart_BadTracePathStopsCPU(t *testing.T) {
	dir := t.TempDir()

	_, err := Start(Options{CPU: filepath.Join(dir, "cpu.prof"), Trace: filepath.Join(dir, "missing", "trace.out")})
	require.Error(t, err)

	// CPU profiling was stopped, so a new session can start it again
	s, err := Start(Options{CPU: filepath.Join(dir, "cpu2.prof")})
	require.NoError(t, err)
	require.NoError(t, s.Stop())
}

func TestStop_NilSession(t *testing.T) {
	var s *Session
	assert.NoError(t, s.Stop())
}

package logging

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLog = `{"time":"2026-03-01T10:00:00.000Z","level":"DEBUG","msg":"app_opened","data_dir":"/tmp/data"}
{"time":"2026-03-01T10:00:01.250Z","level":"INFO","msg":"document_ingested","document_id":"7f3a","fragments":12}
not json at all
{"time":"2026-03-01T10:00:02.000Z","level":"ERROR","msg":"embedding_failed","error":"connection refused"}
`

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notebooklm.log")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseLine(t *testing.T) {
	entry := ParseLine(`{"time":"2026-03-01T10:00:01.250Z","level":"INFO","msg":"document_ingested","fragments":12}`)

	require.True(t, entry.Valid)
	assert.Equal(t, "INFO", entry.Level)
	assert.Equal(t, "document_ingested", entry.Msg)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 1, 250_000_000, time.UTC), entry.Time)
	assert.Equal(t, map[string]any{"fragments": float64(12)}, entry.Attrs)

	raw := ParseLine("panic: boom")
	assert.False(t, raw.Valid)
	assert.Equal(t, "panic: boom", raw.Raw)
}

func TestViewer_TailLastLines(t *testing.T) {
	path := writeLog(t, sampleLog)
	v := NewViewer(ViewerConfig{NoColor: true}, &bytes.Buffer{})

	entries, err := v.Tail(path, 2)

	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "not json at all", entries[0].Raw)
	assert.Equal(t, "embedding_failed", entries[1].Msg)

	all, err := v.Tail(path, 100)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestViewer_Filters(t *testing.T) {
	path := writeLog(t, sampleLog)

	byLevel := NewViewer(ViewerConfig{Level: "info", NoColor: true}, &bytes.Buffer{})
	entries, err := byLevel.Tail(path, 10)
	require.NoError(t, err)
	// unparsed lines are never hidden by the level filter
	require.Len(t, entries, 3)
	assert.Equal(t, "document_ingested", entries[0].Msg)

	byPattern := NewViewer(ViewerConfig{Pattern: regexp.MustCompile(`7f3a`), NoColor: true}, &bytes.Buffer{})
	entries, err = byPattern.Tail(path, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "document_ingested", entries[0].Msg)
}

func TestViewer_PrintPlain(t *testing.T) {
	path := writeLog(t, sampleLog)
	out := &bytes.Buffer{}
	v := NewViewer(ViewerConfig{Level: "info", NoColor: true}, out)

	entries, err := v.Tail(path, 10)
	require.NoError(t, err)
	v.Print(entries)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "10:00:01.250 INFO  document_ingested document_id=7f3a fragments=12", lines[0])
	assert.Equal(t, "not json at all", lines[1])
	assert.Equal(t, "10:00:02.000 ERROR embedding_failed error=connection refused", lines[2])
}

func TestViewer_TailMissingFile(t *testing.T) {
	v := NewViewer(ViewerConfig{}, &bytes.Buffer{})

	_, err := v.Tail(filepath.Join(t.TempDir(), "missing.log"), 10)

	assert.ErrorContains(t, err, "failed to open log file")
}

func TestViewer_FollowNewLines(t *testing.T) {
	// Given: a follower on an existing log
	path := writeLog(t, sampleLog)
	v := NewViewer(ViewerConfig{PollInterval: 10 * time.Millisecond}, &bytes.Buffer{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	entries := make(chan LogEntry, 4)
	done := make(chan error, 1)
	go func() { done <- v.Follow(ctx, path, entries) }()

	// When: a line is appended in two writes
	time.Sleep(50 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"time":"2026-03-01T10:00:03Z","level":"INFO",`)
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)
	_, err = f.WriteString(`"msg":"question_answered"}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// Then: only the new, complete line is delivered
	select {
	case entry := <-entries:
		assert.Equal(t, "question_answered", entry.Msg)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for followed entry")
	}

	cancel()
	require.NoError(t, <-done)
}

package async

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIngestProgress(t *testing.T) {
	// Given/When: creating a new progress tracker
	p := NewIngestProgress("doc-1", "bio.pdf")

	// Then: it starts queued
	require.NotNil(t, p)
	snap := p.Snapshot()
	assert.Equal(t, "doc-1", snap.DocumentID)
	assert.Equal(t, "bio.pdf", snap.Filename)
	assert.Equal(t, string(StatusQueued), snap.Status)
	assert.Zero(t, snap.Fragments)
	assert.NotEmpty(t, snap.QueuedAt)
	assert.False(t, p.Done())
}

func TestIngestProgress_Transitions(t *testing.T) {
	tests := []struct {
		name       string
		apply      func(*IngestProgress)
		wantStatus IngestStatus
		wantFrags  int
		wantErr    string
		wantDone   bool
	}{
		{
			name:       "processing",
			apply:      func(p *IngestProgress) { p.SetProcessing() },
			wantStatus: StatusProcessing,
		},
		{
			name: "ready",
			apply: func(p *IngestProgress) {
				p.SetProcessing()
				p.SetReady(12)
			},
			wantStatus: StatusReady,
			wantFrags:  12,
			wantDone:   true,
		},
		{
			name: "error keeps partial count",
			apply: func(p *IngestProgress) {
				p.SetProcessing()
				p.SetError(3, "embedding backend down")
			},
			wantStatus: StatusError,
			wantFrags:  3,
			wantErr:    "embedding backend down",
			wantDone:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewIngestProgress("d", "f.txt")

			tt.apply(p)

			snap := p.Snapshot()
			assert.Equal(t, string(tt.wantStatus), snap.Status)
			assert.Equal(t, tt.wantFrags, snap.Fragments)
			assert.Equal(t, tt.wantErr, snap.ErrorMessage)
			assert.Equal(t, tt.wantDone, p.Done())
		})
	}
}

func TestIngestProgress_ConcurrentAccess(t *testing.T) {
	p := NewIngestProgress("d", "f.txt")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			p.SetReady(n)
		}(i)
		go func() {
			defer wg.Done()
			_ = p.Snapshot()
		}()
	}
	wg.Wait()

	assert.Equal(t, StatusReady, p.Status())
}

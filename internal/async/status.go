// Package async runs document ingestion in the background and tracks the
// progress of each document.
package async

import (
	"sync"
	"time"
)

// IngestStatus is the state of one document's ingestion.
type IngestStatus string

const (
	// StatusQueued indicates the document is waiting for a worker.
	StatusQueued IngestStatus = "queued"
	// StatusProcessing indicates a worker is extracting and indexing it.
	StatusProcessing IngestStatus = "processing"
	// StatusReady indicates ingestion finished and the document is searchable.
	StatusReady IngestStatus = "ready"
	// StatusError indicates ingestion failed.
	StatusError IngestStatus = "error"
)

// IngestProgressSnapshot is an immutable view of one document's progress.
type IngestProgressSnapshot struct {
	DocumentID     string  `json:"document_id"`
	Filename       string  `json:"filename"`
	Status         string  `json:"status"`
	Fragments      int     `json:"fragments"`
	QueuedAt       string  `json:"queued_at"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

// IngestProgress tracks one document. It is safe for concurrent use.
type IngestProgress struct {
	mu sync.RWMutex

	documentID string
	filename   string
	status     IngestStatus
	fragments  int
	queuedAt   time.Time
	startedAt  time.Time
	finishedAt time.Time
	errMessage string
}

// NewIngestProgress creates a tracker in the queued state.
func NewIngestProgress(documentID, filename string) *IngestProgress {
	return &IngestProgress{
		documentID: documentID,
		filename:   filename,
		status:     StatusQueued,
		queuedAt:   time.Now(),
	}
}

// SetProcessing marks the document as picked up by a worker.
func (p *IngestProgress) SetProcessing() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusProcessing
	p.startedAt = time.Now()
}

// SetReady marks ingestion as complete with the stored fragment count.
func (p *IngestProgress) SetReady(fragments int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusReady
	p.fragments = fragments
	p.finishedAt = time.Now()
}

// SetError marks ingestion as failed. Fragments stored before the failure
// are still counted.
func (p *IngestProgress) SetError(fragments int, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusError
	p.fragments = fragments
	p.errMessage = message
	p.finishedAt = time.Now()
}

// Status returns the current state.
func (p *IngestProgress) Status() IngestStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// Done reports whether ingestion has finished, successfully or not.
func (p *IngestProgress) Done() bool {
	s := p.Status()
	return s == StatusReady || s == StatusError
}

// Snapshot returns an immutable copy of the current state.
func (p *IngestProgress) Snapshot() IngestProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var elapsed time.Duration
	switch {
	case !p.finishedAt.IsZero():
		elapsed = p.finishedAt.Sub(p.queuedAt)
	default:
		elapsed = time.Since(p.queuedAt)
	}

	return IngestProgressSnapshot{
		DocumentID:     p.documentID,
		Filename:       p.filename,
		Status:         string(p.status),
		Fragments:      p.fragments,
		QueuedAt:       p.queuedAt.UTC().Format(time.RFC3339),
		ElapsedSeconds: elapsed.Seconds(),
		ErrorMessage:   p.errMessage,
	}
}

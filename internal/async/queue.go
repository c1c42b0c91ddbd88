package async

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Default queue sizing.
const (
	DefaultWorkers    = 2
	DefaultBufferSize = 64
)

var (
	// ErrQueueFull is returned by Submit when the buffer is full.
	ErrQueueFull = errors.New("ingest queue is full")
	// ErrQueueClosed is returned by Submit after Stop or before Start.
	ErrQueueClosed = errors.New("ingest queue is not running")
)

// Job is one document waiting to be ingested.
type Job struct {
	DocumentID string
	Path       string
	Filename   string
}

// IngestFunc does the work for one job and returns how many fragments it
// stored, including on failure.
type IngestFunc func(ctx context.Context, job Job) (int, error)

// QueueConfig configures an IngestQueue.
type QueueConfig struct {
	Workers    int
	BufferSize int
}

// IngestQueue ingests submitted documents on a fixed pool of workers.
// Submitters are not told when a job finishes; they poll Status.
type IngestQueue struct {
	cfg    QueueConfig
	ingest IngestFunc

	mu       sync.RWMutex
	jobs     chan Job
	progress map[string]*IngestProgress
	running  bool
	cancel   context.CancelFunc
	group    *errgroup.Group
}

// NewIngestQueue creates a stopped queue.
func NewIngestQueue(cfg QueueConfig, ingest IngestFunc) *IngestQueue {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	return &IngestQueue{
		cfg:      cfg,
		ingest:   ingest,
		progress: make(map[string]*IngestProgress),
	}
}

// Start launches the workers. They stop when ctx is cancelled or Stop is
// called. Starting a running queue does nothing.
func (q *IngestQueue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	jobs := make(chan Job, q.cfg.BufferSize)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < q.cfg.Workers; i++ {
		g.Go(func() error {
			q.work(gctx, jobs)
			return nil
		})
	}

	q.jobs = jobs
	q.cancel = cancel
	q.group = g
	q.running = true
	slog.Debug("ingest_queue_started", slog.Int("workers", q.cfg.Workers))
}

func (q *IngestQueue) work(ctx context.Context, jobs <-chan Job) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			q.run(ctx, job)
		}
	}
}

func (q *IngestQueue) run(ctx context.Context, job Job) {
	p := q.tracker(job)
	p.SetProcessing()

	n, err := q.ingest(ctx, job)
	if err != nil {
		p.SetError(n, err.Error())
		slog.Error("background_ingest_failed",
			slog.String("document_id", job.DocumentID),
			slog.String("filename", job.Filename),
			slog.String("error", err.Error()))
		return
	}
	p.SetReady(n)
}

func (q *IngestQueue) tracker(job Job) *IngestProgress {
	q.mu.Lock()
	defer q.mu.Unlock()
	p, ok := q.progress[job.DocumentID]
	if !ok {
		p = NewIngestProgress(job.DocumentID, job.Filename)
		q.progress[job.DocumentID] = p
	}
	return p
}

// Submit enqueues job without blocking.
func (q *IngestQueue) Submit(job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.running {
		return ErrQueueClosed
	}

	p := NewIngestProgress(job.DocumentID, job.Filename)
	select {
	case q.jobs <- job:
		q.progress[job.DocumentID] = p
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop stops accepting jobs, lets workers drain what is buffered and
// waits for them. Cancelling the Start context instead abandons the
// buffered jobs.
func (q *IngestQueue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	close(q.jobs)
	g, cancel := q.group, q.cancel
	q.mu.Unlock()

	_ = g.Wait()
	cancel()
}

// Wait blocks until every submitted job has finished.
func (q *IngestQueue) Wait(ctx context.Context) error {
	for {
		if q.idle() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-waitTick():
		}
	}
}

func (q *IngestQueue) idle() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	for _, p := range q.progress {
		if !p.Done() {
			return false
		}
	}
	return true
}

// Status returns the progress of one document.
func (q *IngestQueue) Status(documentID string) (IngestProgressSnapshot, bool) {
	q.mu.RLock()
	p, ok := q.progress[documentID]
	q.mu.RUnlock()
	if !ok {
		return IngestProgressSnapshot{}, false
	}
	return p.Snapshot(), true
}

// Snapshot returns the progress of every known document, oldest first.
func (q *IngestQueue) Snapshot() []IngestProgressSnapshot {
	q.mu.RLock()
	trackers := make([]*IngestProgress, 0, len(q.progress))
	for _, p := range q.progress {
		trackers = append(trackers, p)
	}
	q.mu.RUnlock()

	sort.SliceStable(trackers, func(i, j int) bool {
		a, b := trackers[i], trackers[j]
		if !a.queuedAt.Equal(b.queuedAt) {
			return a.queuedAt.Before(b.queuedAt)
		}
		return a.documentID < b.documentID
	})

	out := make([]IngestProgressSnapshot, len(trackers))
	for i, p := range trackers {
		out[i] = p.Snapshot()
	}
	return out
}

// Forget drops the progress of a deleted document.
func (q *IngestQueue) Forget(documentID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.progress, documentID)
}

// Reset drops the progress of every finished document.
func (q *IngestQueue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for id, p := range q.progress {
		if p.Done() {
			delete(q.progress, id)
		}
	}
}

func waitTick() <-chan time.Time {
	return time.After(10 * time.Millisecond)
}

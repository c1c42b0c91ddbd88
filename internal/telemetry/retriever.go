package telemetry

import (
	"context"
	"time"

	"github.com/lphhien112-gif/NOTEBOOKLM/internal/search"
)

// Searcher is the hybrid retrieval surface being measured.
type Searcher interface {
	Retrieve(ctx context.Context, query string, k int, documentID string) ([]search.Result, error)
	TopK() int
}

// Retriever records every retrieval into Metrics before returning it.
type Retriever struct {
	next    Searcher
	metrics *Metrics
	now     func() time.Time
}

// Wrap decorates next. A nil metrics disables recording.
func Wrap(next Searcher, metrics *Metrics) *Retriever {
	return &Retriever{next: next, metrics: metrics, now: time.Now}
}

// TopK returns the default result count of the wrapped retriever.
func (r *Retriever) TopK() int {
	return r.next.TopK()
}

// Retrieve runs the wrapped retrieval and records it.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, documentID string) ([]search.Result, error) {
	start := r.now()
	results, err := r.next.Retrieve(ctx, query, k, documentID)
	if r.metrics != nil {
		r.metrics.Record(Event{
			Query:      query,
			DocumentID: documentID,
			Results:    results,
			Latency:    r.now().Sub(start),
			Err:        err,
			At:         start,
		})
	}
	return results, err
}

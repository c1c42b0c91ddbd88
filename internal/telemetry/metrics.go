// Package telemetry records retrieval queries: how many ran, which ranked
// list answered them, how long they took, which terms recur and which
// queries found nothing. Counters live in memory and are flushed to a
// small SQLite database when the process exits.
package telemetry

import (
	"cmp"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/lphhien112-gif/NOTEBOOKLM/internal/search"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/store"
)

const (
	// DefaultTermCapacity bounds the number of distinct terms tracked in memory.
	DefaultTermCapacity = 1000

	// DefaultZeroResultCapacity bounds the recent zero-result queries kept.
	DefaultZeroResultCapacity = 100

	minTermLength = 3
)

// QueryType classifies a query by the ranked lists its best hit came from.
type QueryType string

const (
	QueryTypeHybrid   QueryType = "hybrid"
	QueryTypeSemantic QueryType = "semantic"
	QueryTypeLexical  QueryType = "lexical"
	QueryTypeEmpty    QueryType = "empty"
)

// QueryTypes lists every type in report order.
var QueryTypes = []QueryType{QueryTypeHybrid, QueryTypeSemantic, QueryTypeLexical, QueryTypeEmpty}

// Classify returns the type of a fused result list.
func Classify(results []search.Result) QueryType {
	if len(results) == 0 {
		return QueryTypeEmpty
	}
	top := results[0]
	switch {
	case top.SemanticRank >= 0 && top.LexicalRank >= 0:
		return QueryTypeHybrid
	case top.SemanticRank >= 0:
		return QueryTypeSemantic
	default:
		return QueryTypeLexical
	}
}

// LatencyBucket is a coarse latency range.
type LatencyBucket string

const (
	LatencyUnder50ms LatencyBucket = "<50ms"
	Latency50To200ms LatencyBucket = "50-200ms"
	Latency200msTo1s LatencyBucket = "200ms-1s"
	LatencyOver1s    LatencyBucket = ">1s"
)

// LatencyBuckets lists every bucket in ascending order.
var LatencyBuckets = []LatencyBucket{LatencyUnder50ms, Latency50To200ms, Latency200msTo1s, LatencyOver1s}

// BucketFor returns the bucket of d.
func BucketFor(d time.Duration) LatencyBucket {
	switch {
	case d < 50*time.Millisecond:
		return LatencyUnder50ms
	case d < 200*time.Millisecond:
		return Latency50To200ms
	case d < time.Second:
		return Latency200msTo1s
	default:
		return LatencyOver1s
	}
}

// Event is one finished retrieval.
type Event struct {
	Query      string
	DocumentID string
	Results    []search.Result
	Latency    time.Duration
	Err        error
	At         time.Time
}

// ZeroResultQuery is a query that returned no fragments.
type ZeroResultQuery struct {
	Query      string    `json:"query"`
	DocumentID string    `json:"document_id,omitempty"`
	At         time.Time `json:"at"`
}

// TermCount is a query term with its frequency.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Total       int64                   `json:"total"`
	Failed      int64                   `json:"failed"`
	Scoped      int64                   `json:"scoped"`
	Types       map[QueryType]int64     `json:"types"`
	Latency     map[LatencyBucket]int64 `json:"latency"`
	TopTerms    []TermCount             `json:"top_terms"`
	ZeroResults []ZeroResultQuery       `json:"zero_results"`
}

// Empty reports whether nothing was recorded.
func (s Snapshot) Empty() bool {
	return s.Total == 0
}

// Metrics accumulates query events. It is safe for concurrent use.
type Metrics struct {
	mu sync.Mutex

	total   int64
	failed  int64
	scoped  int64
	types   map[QueryType]int64
	latency map[LatencyBucket]int64

	// terms evicts the least recently seen term once full
	terms *lru.Cache[string, int64]

	zero    []ZeroResultQuery
	zeroCap int
}

// NewMetrics creates an empty Metrics.
func NewMetrics() *Metrics {
	return NewMetricsWithCapacity(DefaultTermCapacity, DefaultZeroResultCapacity)
}

// NewMetricsWithCapacity creates Metrics with explicit bounds. Non-positive
// values take the defaults.
func NewMetricsWithCapacity(termCap, zeroCap int) *Metrics {
	if termCap <= 0 {
		termCap = DefaultTermCapacity
	}
	if zeroCap <= 0 {
		zeroCap = DefaultZeroResultCapacity
	}
	terms, _ := lru.New[string, int64](termCap)
	return &Metrics{
		types:   make(map[QueryType]int64),
		latency: make(map[LatencyBucket]int64),
		terms:   terms,
		zeroCap: zeroCap,
	}
}

// Record adds one event.
func (m *Metrics) Record(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	terms := QueryTerms(ev.Query)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	m.latency[BucketFor(ev.Latency)]++
	if ev.DocumentID != "" {
		m.scoped++
	}
	for _, term := range terms {
		count, _ := m.terms.Get(term)
		m.terms.Add(term, count+1)
	}

	if ev.Err != nil {
		m.failed++
		return
	}

	qt := Classify(ev.Results)
	m.types[qt]++
	if qt == QueryTypeEmpty {
		if len(m.zero) == m.zeroCap {
			m.zero = m.zero[1:]
		}
		m.zero = append(m.zero, ZeroResultQuery{Query: ev.Query, DocumentID: ev.DocumentID, At: ev.At})
	}
}

// Snapshot copies the counters. topN limits TopTerms; 0 keeps all.
func (m *Metrics) Snapshot(topN int) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked(topN)
}

// Drain returns every counter and resets them, so repeated flushes never
// count an event twice.
func (m *Metrics) Drain() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshotLocked(0)
	m.total, m.failed, m.scoped = 0, 0, 0
	m.types = make(map[QueryType]int64)
	m.latency = make(map[LatencyBucket]int64)
	m.terms.Purge()
	m.zero = nil
	return snap
}

func (m *Metrics) snapshotLocked(topN int) Snapshot {
	snap := Snapshot{
		Total:       m.total,
		Failed:      m.failed,
		Scoped:      m.scoped,
		Types:       make(map[QueryType]int64, len(m.types)),
		Latency:     make(map[LatencyBucket]int64, len(m.latency)),
		ZeroResults: append([]ZeroResultQuery(nil), m.zero...),
	}
	for k, v := range m.types {
		snap.Types[k] = v
	}
	for k, v := range m.latency {
		snap.Latency[k] = v
	}

	for _, term := range m.terms.Keys() {
		count, _ := m.terms.Peek(term)
		snap.TopTerms = append(snap.TopTerms, TermCount{Term: term, Count: count})
	}
	sortTerms(snap.TopTerms)
	if topN > 0 && len(snap.TopTerms) > topN {
		snap.TopTerms = snap.TopTerms[:topN]
	}
	return snap
}

// QueryTerms returns the distinct terms of a query worth counting: the
// keyword tokens with surrounding punctuation removed, at least three
// runes long.
func QueryTerms(query string) []string {
	seen := make(map[string]struct{})
	var terms []string
	for _, tok := range store.Tokenize(query) {
		tok = strings.TrimFunc(tok, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if len([]rune(tok)) < minTermLength {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		terms = append(terms, tok)
	}
	return terms
}

// sortTerms orders by count descending, then term ascending.
func sortTerms(terms []TermCount) {
	slices.SortFunc(terms, func(a, b TermCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Term, b.Term)
	})
}

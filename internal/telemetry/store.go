package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	apperrors "github.com/lphhien112-gif/NOTEBOOKLM/internal/errors"
)

// FileName is the telemetry database inside the data directory.
const FileName = "telemetry.db"

const schema = `
CREATE TABLE IF NOT EXISTS query_counters (
    name  TEXT PRIMARY KEY,
    value INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS query_terms (
    term      TEXT PRIMARY KEY,
    count     INTEGER NOT NULL DEFAULT 0,
    last_seen INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS zero_result_queries (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    query       TEXT NOT NULL,
    document_id TEXT NOT NULL DEFAULT '',
    at          INTEGER NOT NULL
);
`

// Counter names in query_counters.
const (
	counterTotal  = "total"
	counterFailed = "failed"
	counterScoped = "scoped"
	typePrefix    = "type:"
	latencyPrefix = "latency:"
)

// Store persists drained Metrics.
type Store struct {
	db      *sql.DB
	zeroCap int
}

// Open opens or creates the telemetry database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, apperrors.IOError("failed to open telemetry database", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, apperrors.IOError("failed to create telemetry schema", err)
	}
	return &Store{db: db, zeroCap: DefaultZeroResultCapacity}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add merges snap into the persisted totals. Only the newest zero-result
// queries are kept.
func (s *Store) Add(ctx context.Context, snap Snapshot) error {
	if snap.Empty() {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.IOError("failed to begin telemetry transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	counters := map[string]int64{
		counterTotal:  snap.Total,
		counterFailed: snap.Failed,
		counterScoped: snap.Scoped,
	}
	for qt, n := range snap.Types {
		counters[typePrefix+string(qt)] = n
	}
	for b, n := range snap.Latency {
		counters[latencyPrefix+string(b)] = n
	}
	for name, n := range counters {
		if n == 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO query_counters (name, value) VALUES (?, ?)
			ON CONFLICT(name) DO UPDATE SET value = value + excluded.value`, name, n); err != nil {
			return apperrors.IOError("failed to update query counter", err)
		}
	}

	now := time.Now().Unix()
	for _, tc := range snap.TopTerms {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO query_terms (term, count, last_seen) VALUES (?, ?, ?)
			ON CONFLICT(term) DO UPDATE SET count = count + excluded.count, last_seen = excluded.last_seen`,
			tc.Term, tc.Count, now); err != nil {
			return apperrors.IOError("failed to update query term", err)
		}
	}

	for _, z := range snap.ZeroResults {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO zero_result_queries (query, document_id, at) VALUES (?, ?, ?)`,
			z.Query, z.DocumentID, z.At.UnixNano()); err != nil {
			return apperrors.IOError("failed to record zero-result query", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM zero_result_queries WHERE id NOT IN (
			SELECT id FROM zero_result_queries ORDER BY id DESC LIMIT ?)`, s.zeroCap); err != nil {
		return apperrors.IOError("failed to trim zero-result queries", err)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.IOError("failed to commit telemetry", err)
	}
	return nil
}

// Load returns the persisted totals with at most topN terms (0 keeps all).
func (s *Store) Load(ctx context.Context, topN int) (Snapshot, error) {
	snap := Snapshot{
		Types:   make(map[QueryType]int64),
		Latency: make(map[LatencyBucket]int64),
	}

	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM query_counters`)
	if err != nil {
		return snap, apperrors.IOError("failed to read query counters", err)
	}
	for rows.Next() {
		var name string
		var value int64
		if err := rows.Scan(&name, &value); err != nil {
			_ = rows.Close()
			return snap, apperrors.IOError("failed to scan query counter", err)
		}
		switch {
		case name == counterTotal:
			snap.Total = value
		case name == counterFailed:
			snap.Failed = value
		case name == counterScoped:
			snap.Scoped = value
		case strings.HasPrefix(name, typePrefix):
			snap.Types[QueryType(strings.TrimPrefix(name, typePrefix))] = value
		case strings.HasPrefix(name, latencyPrefix):
			snap.Latency[LatencyBucket(strings.TrimPrefix(name, latencyPrefix))] = value
		}
	}
	if err := closeRows(rows); err != nil {
		return snap, err
	}

	limit := topN
	if limit <= 0 {
		limit = -1
	}
	rows, err = s.db.QueryContext(ctx,
		`SELECT term, count FROM query_terms ORDER BY count DESC, term ASC LIMIT ?`, limit)
	if err != nil {
		return snap, apperrors.IOError("failed to read query terms", err)
	}
	for rows.Next() {
		var tc TermCount
		if err := rows.Scan(&tc.Term, &tc.Count); err != nil {
			_ = rows.Close()
			return snap, apperrors.IOError("failed to scan query term", err)
		}
		snap.TopTerms = append(snap.TopTerms, tc)
	}
	if err := closeRows(rows); err != nil {
		return snap, err
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT query, document_id, at FROM zero_result_queries ORDER BY id ASC`)
	if err != nil {
		return snap, apperrors.IOError("failed to read zero-result queries", err)
	}
	for rows.Next() {
		var z ZeroResultQuery
		var at int64
		if err := rows.Scan(&z.Query, &z.DocumentID, &at); err != nil {
			_ = rows.Close()
			return snap, apperrors.IOError("failed to scan zero-result query", err)
		}
		z.At = time.Unix(0, at)
		snap.ZeroResults = append(snap.ZeroResults, z)
	}
	return snap, closeRows(rows)
}

// Reset deletes every persisted record.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM query_counters;
		DELETE FROM query_terms;
		DELETE FROM zero_result_queries;`)
	if err != nil {
		return apperrors.IOError("failed to reset telemetry", err)
	}
	return nil
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return apperrors.IOError("failed to iterate telemetry rows", err)
	}
	return rows.Close()
}

package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/lphhien112-gif/NOTEBOOKLM/internal/embed"
	apperrors "github.com/lphhien112-gif/NOTEBOOKLM/internal/errors"
)

// ErrClosed is returned by every FragmentStore method after Close.
var ErrClosed = errors.New("fragment store is closed")

// FragmentStoreFile is the SQLite file name inside the vector store directory.
const FragmentStoreFile = "fragments.db"

// DefaultExactSearchLimit is the collection size up to which unfiltered
// queries scan every vector instead of walking the HNSW graph.
const DefaultExactSearchLimit = 2000

// FragmentStoreConfig configures the Fragment Store.
type FragmentStoreConfig struct {
	// Dir holds the SQLite database. Empty means an in-memory database.
	Dir string

	// Collection names the fragment collection.
	Collection string

	// BatchSize is the number of fragments embedded and committed together.
	BatchSize int

	// ExactSearchLimit; negative disables exact scans for unfiltered queries.
	ExactSearchLimit int
}

// FragmentStore persists fragments with their embeddings in SQLite and
// answers nearest-neighbour queries, optionally filtered to one document.
type FragmentStore struct {
	mu       sync.RWMutex
	db       *sql.DB
	path     string
	cfg      FragmentStoreConfig
	embedder embed.Embedder
	graph    *VectorGraph
	closed   bool
}

const fragmentSchema = `
CREATE TABLE IF NOT EXISTS collections (
	name       TEXT PRIMARY KEY,
	model      TEXT NOT NULL,
	dimensions INTEGER NOT NULL,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS fragments (
	id          TEXT PRIMARY KEY,
	collection  TEXT NOT NULL,
	document_id TEXT NOT NULL,
	seq         INTEGER NOT NULL,
	source      TEXT NOT NULL DEFAULT '',
	page        INTEGER,
	content     TEXT NOT NULL,
	embedding   BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fragments_document ON fragments(collection, document_id, seq);
`

// validateSQLiteIntegrity checks an existing database before opening it.
func validateSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// OpenFragmentStore opens (or creates) the fragment collection and rebuilds
// the vector graph from it. A collection built with a different embedding
// dimension is rejected.
func OpenFragmentStore(ctx context.Context, cfg FragmentStoreConfig, embedder embed.Embedder) (*FragmentStore, error) {
	if cfg.Collection == "" {
		cfg.Collection = "rag_document_collection"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = embed.DefaultBatchSize
	}
	if cfg.ExactSearchLimit == 0 {
		cfg.ExactSearchLimit = DefaultExactSearchLimit
	}

	dsn := ":memory:"
	path := ""
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, apperrors.IOError("failed to create vector store directory", err).
				WithDetail("path", cfg.Dir)
		}
		path = filepath.Join(cfg.Dir, FragmentStoreFile)

		if validErr := validateSQLiteIntegrity(path); validErr != nil {
			slog.Warn("fragment_store_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if removeErr := os.Remove(path); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
				return nil, apperrors.New(apperrors.ErrCodeCorruptIndex, "fragment store corrupted and cannot be removed", removeErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, apperrors.IOError("failed to open fragment store", err)
	}
	// Single writer to prevent lock contention
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, fragmentSchema); err != nil {
		_ = db.Close()
		return nil, apperrors.New(apperrors.ErrCodeIndexFailed, "failed to create fragment schema", err)
	}

	s := &FragmentStore{
		db:       db,
		path:     path,
		cfg:      cfg,
		embedder: embedder,
		graph:    NewVectorGraph(VectorGraphConfig{Dimensions: embedder.Dimensions()}),
	}

	if err := s.ensureCollection(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.rebuildGraph(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// ensureCollection records the embedding model of the collection, or checks
// that the current embedder matches it when fragments already exist.
func (s *FragmentStore) ensureCollection(ctx context.Context) error {
	var model string
	var dims int
	err := s.db.QueryRowContext(ctx,
		`SELECT model, dimensions FROM collections WHERE name = ?`, s.cfg.Collection).Scan(&model, &dims)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return s.createCollection(ctx, s.db)
	case err != nil:
		return fmt.Errorf("failed to read collection: %w", err)
	}

	if dims == s.embedder.Dimensions() {
		if model != s.embedder.ModelName() {
			slog.Warn("fragment_store_model_changed",
				slog.String("stored", model),
				slog.String("current", s.embedder.ModelName()))
		}
		return nil
	}

	n, err := s.Count(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		_, err := s.db.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, s.cfg.Collection)
		if err != nil {
			return fmt.Errorf("failed to reset collection: %w", err)
		}
		return s.createCollection(ctx, s.db)
	}

	return apperrors.New(apperrors.ErrCodeDimensionMismatch,
		fmt.Sprintf("collection %q was built with %d-dimensional embeddings (%s), current embedder produces %d (%s)",
			s.cfg.Collection, dims, model, s.embedder.Dimensions(), s.embedder.ModelName()), nil).
		WithSuggestion("Run 'notebooklm clear' and re-ingest your documents, or switch back to the original embedding model")
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *FragmentStore) createCollection(ctx context.Context, db execer) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO collections (name, model, dimensions, created_at) VALUES (?, ?, ?, ?)`,
		s.cfg.Collection, s.embedder.ModelName(), s.embedder.Dimensions(), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

func (s *FragmentStore) rebuildGraph(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, embedding FROM fragments WHERE collection = ? ORDER BY document_id, seq`, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("failed to load embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	var vecs [][]float32
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return fmt.Errorf("failed to scan embedding: %w", err)
		}
		ids = append(ids, id)
		vecs = append(vecs, decodeVector(blob))
	}
	if err := rows.Err(); err != nil {
		return err
	}

	s.graph.Reset()
	if err := s.graph.Add(ids, vecs); err != nil {
		return apperrors.New(apperrors.ErrCodeCorruptIndex, "stored embeddings do not match the collection", err)
	}
	slog.Debug("fragment_graph_rebuilt", slog.Int("vectors", len(ids)))
	return nil
}

// Insert embeds and stores fragments in batches. Each batch commits on its
// own; on failure the fragments of earlier batches stay stored and the
// returned count says how many made it.
func (s *FragmentStore) Insert(ctx context.Context, fragments []Fragment) (int, error) {
	inserted := 0
	for start := 0; start < len(fragments); start += s.cfg.BatchSize {
		batch := fragments[start:min(start+s.cfg.BatchSize, len(fragments))]

		texts := make([]string, len(batch))
		for i, f := range batch {
			texts[i] = f.Content
		}
		vecs, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return inserted, apperrors.New(apperrors.ErrCodeEmbeddingFailed, "failed to embed fragments", err)
		}
		if len(vecs) != len(batch) {
			return inserted, apperrors.New(apperrors.ErrCodeEmbeddingFailed,
				fmt.Sprintf("embedder returned %d vectors for %d fragments", len(vecs), len(batch)), nil)
		}

		if err := s.commitBatch(ctx, batch, vecs); err != nil {
			return inserted, err
		}
		inserted += len(batch)
	}
	return inserted, nil
}

// commitBatch writes one embedded batch to SQLite and then to the graph.
func (s *FragmentStore) commitBatch(ctx context.Context, batch []Fragment, vecs [][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if err := s.writeBatch(ctx, batch, vecs); err != nil {
		return err
	}

	ids := make([]string, len(batch))
	for i, f := range batch {
		ids[i] = f.ID
	}
	return s.graph.Add(ids, vecs)
}

func (s *FragmentStore) writeBatch(ctx context.Context, batch []Fragment, vecs [][]float32) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO fragments
		(id, collection, document_id, seq, source, page, content, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, f := range batch {
		if len(vecs[i]) != s.graph.config.Dimensions {
			return ErrDimensionMismatch{Expected: s.graph.config.Dimensions, Got: len(vecs[i])}
		}
		var page any
		if f.Metadata.Page != nil {
			page = *f.Metadata.Page
		}
		if _, err := stmt.ExecContext(ctx, f.ID, s.cfg.Collection, f.Metadata.DocumentID, f.Seq,
			f.Metadata.Source, page, f.Content, encodeVector(vecs[i])); err != nil {
			return fmt.Errorf("failed to insert fragment %s: %w", f.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit fragments: %w", err)
	}
	return nil
}

// RemoveByDocument deletes every fragment whose document_id equals
// documentID and returns how many were removed.
func (s *FragmentStore) RemoveByDocument(ctx context.Context, documentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	ids, err := s.idsLocked(ctx, documentID)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM fragments WHERE collection = ? AND document_id = ?`, s.cfg.Collection, documentID); err != nil {
		return 0, fmt.Errorf("failed to delete fragments: %w", err)
	}
	s.graph.Delete(ids)
	s.maybeCompactLocked(ctx)
	return len(ids), nil
}

// maybeCompactLocked rebuilds the graph once orphaned nodes outnumber
// live ones.
func (s *FragmentStore) maybeCompactLocked(ctx context.Context) {
	stats := s.graph.Stats()
	if stats.Orphans <= stats.ValidIDs {
		return
	}
	if err := s.rebuildGraph(ctx); err != nil {
		slog.Warn("fragment_graph_compaction_failed", slog.String("error", err.Error()))
		return
	}
	slog.Debug("fragment_graph_compacted", slog.Int("orphans_dropped", stats.Orphans))
}

// Reset drops every fragment and recreates the collection empty. It reports
// whether anything was dropped, so repeated resets are no-ops.
func (s *FragmentStore) Reset(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM fragments WHERE collection = ?`, s.cfg.Collection)
	if err != nil {
		return false, fmt.Errorf("failed to drop fragments: %w", err)
	}
	dropped, _ := res.RowsAffected()

	if _, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, s.cfg.Collection); err != nil {
		return false, fmt.Errorf("failed to drop collection: %w", err)
	}
	if err := s.createCollection(ctx, tx); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit reset: %w", err)
	}

	s.graph.Reset()
	return dropped > 0, nil
}

// Query returns up to n fragments nearest to queryText, closest first.
// A non-empty documentID restricts results to that document.
func (s *FragmentStore) Query(ctx context.Context, queryText string, n int, documentID string) ([]SemanticHit, error) {
	if n <= 0 {
		return []SemanticHit{}, nil
	}

	vec, err := s.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeEmbeddingFailed, "failed to embed query", err)
	}
	if len(vec) != s.graph.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.graph.config.Dimensions, Got: len(vec)}
	}
	normalizeVectorInPlace(vec)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	total := s.graph.Count()
	if documentID != "" || (s.cfg.ExactSearchLimit > 0 && total <= s.cfg.ExactSearchLimit) {
		return s.exactSearch(ctx, vec, n, documentID)
	}
	return s.graphSearch(ctx, vec, n)
}

// exactSearch scores every candidate fragment by cosine distance.
func (s *FragmentStore) exactSearch(ctx context.Context, query []float32, n int, documentID string) ([]SemanticHit, error) {
	q := `SELECT id, document_id, seq, source, page, content, embedding FROM fragments WHERE collection = ?`
	args := []any{s.cfg.Collection}
	if documentID != "" {
		q += ` AND document_id = ?`
		args = append(args, documentID)
	}
	q += ` ORDER BY document_id, seq`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeSearchFailed, "failed to scan fragments", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []SemanticHit
	for rows.Next() {
		f, blob, err := scanFragment(rows, true)
		if err != nil {
			return nil, err
		}
		v := decodeVector(blob)
		if len(v) != len(query) {
			continue
		}
		normalizeVectorInPlace(v)
		hits = append(hits, SemanticHit{Fragment: f, Distance: cosineDistance(query, v)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > n {
		hits = hits[:n]
	}
	if hits == nil {
		hits = []SemanticHit{}
	}
	return hits, nil
}

func (s *FragmentStore) graphSearch(ctx context.Context, query []float32, n int) ([]SemanticHit, error) {
	matches, err := s.graph.Search(query, n)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeSearchFailed, "vector search failed", err)
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	byID, err := s.getLocked(ctx, ids)
	if err != nil {
		return nil, err
	}

	hits := make([]SemanticHit, 0, len(matches))
	for _, m := range matches {
		if f, ok := byID[m.ID]; ok {
			hits = append(hits, SemanticHit{Fragment: f, Distance: m.Distance})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	return hits, nil
}

// Get returns the stored fragments among ids, keyed by id.
func (s *FragmentStore) Get(ctx context.Context, ids []string) (map[string]Fragment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.getLocked(ctx, ids)
}

func (s *FragmentStore) getLocked(ctx context.Context, ids []string) (map[string]Fragment, error) {
	out := make(map[string]Fragment, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, s.cfg.Collection)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, seq, source, page, content FROM fragments
		 WHERE collection = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get fragments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		f, _, err := scanFragment(rows, false)
		if err != nil {
			return nil, err
		}
		out[f.ID] = f
	}
	return out, rows.Err()
}

// GetAll returns every fragment of a document in sequence order.
func (s *FragmentStore) GetAll(ctx context.Context, documentID string) ([]Fragment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, seq, source, page, content FROM fragments
		 WHERE collection = ? AND document_id = ? ORDER BY seq`, s.cfg.Collection, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list fragments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	fragments := []Fragment{}
	for rows.Next() {
		f, _, err := scanFragment(rows, false)
		if err != nil {
			return nil, err
		}
		fragments = append(fragments, f)
	}
	return fragments, rows.Err()
}

// IDsByDocument groups every stored fragment id by document id.
func (s *FragmentStore) IDsByDocument(ctx context.Context) (map[string][]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT document_id, id FROM fragments WHERE collection = ? ORDER BY document_id, seq`, s.cfg.Collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list fragment ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string][]string)
	for rows.Next() {
		var doc, id string
		if err := rows.Scan(&doc, &id); err != nil {
			return nil, err
		}
		out[doc] = append(out[doc], id)
	}
	return out, rows.Err()
}

// Documents summarizes the stored documents ordered by document id.
func (s *FragmentStore) Documents(ctx context.Context) ([]DocumentSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT document_id, MIN(source), COUNT(*) FROM fragments
		 WHERE collection = ? GROUP BY document_id ORDER BY document_id`, s.cfg.Collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	docs := []DocumentSummary{}
	for rows.Next() {
		var d DocumentSummary
		if err := rows.Scan(&d.DocumentID, &d.Source, &d.Fragments); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Count returns the number of stored fragments.
func (s *FragmentStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM fragments WHERE collection = ?`, s.cfg.Collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count fragments: %w", err)
	}
	return n, nil
}

// Path returns the database file, or "" for an in-memory store.
func (s *FragmentStore) Path() string {
	return s.path
}

// Close closes the database.
func (s *FragmentStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *FragmentStore) idsLocked(ctx context.Context, documentID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM fragments WHERE collection = ? AND document_id = ?`, s.cfg.Collection, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list fragment ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFragment(rows rowScanner, withEmbedding bool) (Fragment, []byte, error) {
	var f Fragment
	var page sql.NullInt64
	var blob []byte

	dest := []any{&f.ID, &f.Metadata.DocumentID, &f.Seq, &f.Metadata.Source, &page, &f.Content}
	if withEmbedding {
		dest = append(dest, &blob)
	}
	if err := rows.Scan(dest...); err != nil {
		return Fragment{}, nil, fmt.Errorf("failed to scan fragment: %w", err)
	}
	if page.Valid {
		p := int(page.Int64)
		f.Metadata.Page = &p
	}
	return f, blob, nil
}

// encodeVector packs a vector as little-endian float32.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}

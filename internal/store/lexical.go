package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	apperrors "github.com/lphhien112-gif/NOTEBOOKLM/internal/errors"
)

// LexicalRecord is one entry of the lexical index file.
type LexicalRecord struct {
	DocumentID string   `json:"document_id"`
	Tokens     []string `json:"tokens"`
	Content    string   `json:"content"`
	Metadata   Metadata `json:"metadata"`
}

// lexicalSnapshot is an immutable view of the index. Mutations build a new
// snapshot and swap it in only after it has been persisted.
type lexicalSnapshot struct {
	records map[string]*LexicalRecord
	order   []string
}

func emptySnapshot() lexicalSnapshot {
	return lexicalSnapshot{records: make(map[string]*LexicalRecord)}
}

func (s lexicalSnapshot) clone() lexicalSnapshot {
	records := make(map[string]*LexicalRecord, len(s.records))
	for id, r := range s.records {
		records[id] = r
	}
	order := make([]string, len(s.order))
	copy(order, s.order)
	return lexicalSnapshot{records: records, order: order}
}

// LexicalIndex maps fragment ids to their tokens and answers BM25 queries
// over any subset of fragments. Every mutation rewrites the whole file
// under a cross-process lock; a failed write leaves memory untouched.
type LexicalIndex struct {
	mu     sync.RWMutex
	path   string
	lock   *flock.Flock
	params BM25Params
	snap   lexicalSnapshot
}

// OpenLexicalIndex loads the index at path. A missing or corrupt file
// yields an empty index.
func OpenLexicalIndex(path string, params BM25Params) *LexicalIndex {
	x := &LexicalIndex{
		path:   path,
		lock:   flock.New(path + ".lock"),
		params: params,
		snap:   emptySnapshot(),
	}

	snap, err := x.load()
	switch {
	case err == nil:
		x.snap = snap
		slog.Debug("lexical_index_loaded",
			slog.String("path", path),
			slog.Int("fragments", len(snap.order)))
	case errors.Is(err, os.ErrNotExist):
	default:
		slog.Warn("lexical_index_unreadable",
			slog.String("path", path),
			slog.String("error", err.Error()),
			slog.String("action", "starting empty"))
	}
	return x
}

// Path returns the durable file location.
func (x *LexicalIndex) Path() string {
	return x.path
}

// Len returns the number of indexed fragments.
func (x *LexicalIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.snap.order)
}

// Insert adds or overwrites fragments and persists once.
func (x *LexicalIndex) Insert(fragments ...Fragment) error {
	if len(fragments) == 0 {
		return nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	next := x.snap.clone()
	for _, f := range fragments {
		if _, exists := next.records[f.ID]; !exists {
			next.order = append(next.order, f.ID)
		}
		next.records[f.ID] = &LexicalRecord{
			DocumentID: f.Metadata.DocumentID,
			Tokens:     Tokenize(f.Content),
			Content:    f.Content,
			Metadata:   f.Metadata,
		}
	}

	if err := x.persist(next); err != nil {
		return err
	}
	x.snap = next
	return nil
}

// RemoveByDocument drops every fragment whose document_id equals
// documentID and returns how many were removed.
func (x *LexicalIndex) RemoveByDocument(documentID string) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	next := lexicalSnapshot{records: make(map[string]*LexicalRecord, len(x.snap.records))}
	removed := 0
	for _, id := range x.snap.order {
		r := x.snap.records[id]
		if r.DocumentID == documentID {
			removed++
			continue
		}
		next.order = append(next.order, id)
		next.records[id] = r
	}
	if removed == 0 {
		return 0, nil
	}

	if err := x.persist(next); err != nil {
		return 0, err
	}
	x.snap = next
	return removed, nil
}

// Clear empties the index and deletes its file.
func (x *LexicalIndex) Clear() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if err := x.lock.Lock(); err != nil {
		return apperrors.New(apperrors.ErrCodePersistFailed, "failed to lock lexical index", err)
	}
	defer func() { _ = x.lock.Unlock() }()

	if err := os.Remove(x.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return apperrors.New(apperrors.ErrCodePersistFailed, "failed to delete lexical index", err)
	}
	x.snap = emptySnapshot()
	return nil
}

// Get returns the fragment stored under id.
func (x *LexicalIndex) Get(id string) (Fragment, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	r, ok := x.snap.records[id]
	if !ok {
		return Fragment{}, false
	}
	return r.fragment(id), true
}

// IDs returns fragment ids in insertion order, optionally restricted to
// one document. An empty documentID returns every id.
func (x *LexicalIndex) IDs(documentID string) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()

	ids := make([]string, 0, len(x.snap.order))
	for _, id := range x.snap.order {
		if documentID == "" || x.snap.records[id].DocumentID == documentID {
			ids = append(ids, id)
		}
	}
	return ids
}

// IDsByDocument groups every fragment id by its document id.
func (x *LexicalIndex) IDsByDocument() map[string][]string {
	x.mu.RLock()
	defer x.mu.RUnlock()

	out := make(map[string][]string)
	for _, id := range x.snap.order {
		doc := x.snap.records[id].DocumentID
		out[doc] = append(out[doc], id)
	}
	return out
}

// Query ranks candidates against the query tokens with a BM25 model built
// over exactly the candidate corpus, and returns the best n. A nil
// candidate list means every fragment; unknown ids are ignored.
func (x *LexicalIndex) Query(queryTokens []string, candidates []string, n int) []LexicalHit {
	x.mu.RLock()
	snap := x.snap
	x.mu.RUnlock()

	if candidates == nil {
		candidates = snap.order
	}

	ids := make([]string, 0, len(candidates))
	corpus := make([][]string, 0, len(candidates))
	for _, id := range candidates {
		r, ok := snap.records[id]
		if !ok {
			continue
		}
		ids = append(ids, id)
		corpus = append(corpus, r.Tokens)
	}
	if len(corpus) == 0 || n <= 0 {
		return []LexicalHit{}
	}

	scores := newBM25Okapi(corpus, x.params).scores(queryTokens)
	top := topN(scores, n)

	hits := make([]LexicalHit, 0, len(top))
	for _, i := range top {
		hits = append(hits, LexicalHit{
			Fragment: snap.records[ids[i]].fragment(ids[i]),
			Score:    scores[i],
		})
	}
	return hits
}

// Search tokenizes query and ranks the fragments of documentID, or of the
// whole corpus when documentID is empty.
func (x *LexicalIndex) Search(query, documentID string, n int) []LexicalHit {
	var candidates []string
	if documentID != "" {
		candidates = x.IDs(documentID)
	}
	return x.Query(Tokenize(query), candidates, n)
}

func (r *LexicalRecord) fragment(id string) Fragment {
	meta := r.Metadata
	meta.DocumentID = r.DocumentID
	_, seq, _ := ParseFragmentID(id)
	return Fragment{ID: id, Seq: seq, Content: r.Content, Metadata: meta}
}

// persist writes snap to a temp file, syncs it and renames it over the
// index file while holding the lock file.
func (x *LexicalIndex) persist(snap lexicalSnapshot) error {
	data, err := encodeLexical(snap)
	if err != nil {
		return apperrors.New(apperrors.ErrCodePersistFailed, "failed to encode lexical index", err)
	}

	if err := os.MkdirAll(filepath.Dir(x.path), 0o755); err != nil {
		return apperrors.New(apperrors.ErrCodePersistFailed, "failed to create lexical index directory", err)
	}

	if err := x.lock.Lock(); err != nil {
		return apperrors.New(apperrors.ErrCodePersistFailed, "failed to lock lexical index", err)
	}
	defer func() { _ = x.lock.Unlock() }()

	if err := writeFileAtomic(x.path, data); err != nil {
		return persistError("failed to write lexical index", err).WithDetail("path", x.path)
	}
	return nil
}

func (x *LexicalIndex) load() (lexicalSnapshot, error) {
	if err := x.lock.RLock(); err == nil {
		defer func() { _ = x.lock.Unlock() }()
	}

	data, err := os.ReadFile(x.path)
	if err != nil {
		return lexicalSnapshot{}, err
	}
	return decodeLexical(data)
}

// encodeLexical writes the records as one JSON object in insertion order,
// indented by four spaces, with non-ASCII text left unescaped.
func encodeLexical(snap lexicalSnapshot) ([]byte, error) {
	if len(snap.order) == 0 {
		return []byte("{}"), nil
	}

	var buf bytes.Buffer
	buf.WriteString("{\n")
	for i, id := range snap.order {
		key, err := marshalJSON(id, "", "")
		if err != nil {
			return nil, err
		}
		val, err := marshalJSON(snap.records[id], "    ", "    ")
		if err != nil {
			return nil, err
		}
		buf.WriteString("    ")
		buf.Write(key)
		buf.WriteString(": ")
		buf.Write(val)
		if i < len(snap.order)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("}")
	return buf.Bytes(), nil
}

func marshalJSON(v any, prefix, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent(prefix, indent)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// decodeLexical streams the top-level object so key order survives.
// Records written without a top-level document_id fall back to the one in
// their metadata.
func decodeLexical(data []byte) (lexicalSnapshot, error) {
	snap := emptySnapshot()
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return snap, fmt.Errorf("read index start: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return snap, fmt.Errorf("index is not a JSON object")
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return snap, fmt.Errorf("read fragment id: %w", err)
		}
		id, ok := tok.(string)
		if !ok {
			return snap, fmt.Errorf("unexpected token %v", tok)
		}

		var rec LexicalRecord
		if err := dec.Decode(&rec); err != nil {
			return snap, fmt.Errorf("decode fragment %q: %w", id, err)
		}
		if rec.DocumentID == "" {
			rec.DocumentID = rec.Metadata.DocumentID
		}
		if rec.Tokens == nil {
			rec.Tokens = Tokenize(rec.Content)
		}

		if _, exists := snap.records[id]; !exists {
			snap.order = append(snap.order, id)
		}
		snap.records[id] = &rec
	}

	if _, err := dec.Token(); err != nil {
		return snap, fmt.Errorf("read index end: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return snap, fmt.Errorf("trailing data after index object")
	}
	return snap, nil
}

// Package lifecycle ingests and removes documents, keeping the Fragment
// Store, the Lexical Index, the active document and the raw uploads in
// step with each other.
package lifecycle

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lphhien112-gif/NOTEBOOKLM/internal/chunk"
	apperrors "github.com/lphhien112-gif/NOTEBOOKLM/internal/errors"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/extract"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/session"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/store"
)

// ManagerConfig wires the Manager to its stores.
type ManagerConfig struct {
	Fragments *store.FragmentStore
	Lexical   *store.LexicalIndex
	State     *session.State
	Uploads   *UploadStore

	// Splitter chunks extracted text (default: chunk.NewSplitter()).
	Splitter *chunk.Splitter
}

// Manager owns document ingestion and removal. Ingestions of different
// documents may run concurrently; deletes and clears run alone.
type Manager struct {
	mu        sync.RWMutex
	fragments *store.FragmentStore
	lexical   *store.LexicalIndex
	state     *session.State
	uploads   *UploadStore
	splitter  *chunk.Splitter
}

// NewManager creates a Manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Splitter == nil {
		cfg.Splitter = chunk.NewSplitter()
	}
	return &Manager{
		fragments: cfg.Fragments,
		lexical:   cfg.Lexical,
		state:     cfg.State,
		uploads:   cfg.Uploads,
		splitter:  cfg.Splitter,
	}
}

// IngestResult reports what one ingestion stored.
type IngestResult struct {
	DocumentID string        `json:"document_id"`
	Fragments  int           `json:"fragments"`
	Duration   time.Duration `json:"duration"`
}

// DeleteResult reports what one deletion removed.
type DeleteResult struct {
	DocumentID      string `json:"document_id"`
	SemanticRemoved int    `json:"semantic_removed"`
	LexicalRemoved  int    `json:"lexical_removed"`
	FileRemoved     bool   `json:"file_removed"`
}

// ClearResult reports what ClearAll removed.
type ClearResult struct {
	DeletedCollections int `json:"deleted_collections"`
	DeletedFiles       int `json:"deleted_files"`
}

// DocumentInfo merges a stored upload with its indexed fragment count.
type DocumentInfo struct {
	DocumentID string    `json:"document_id"`
	Filename   string    `json:"filename"`
	Size       int64     `json:"size,omitempty"`
	Modified   time.Time `json:"modified,omitempty"`
	Fragments  int       `json:"fragments"`
	Active     bool      `json:"active"`
}

// Ingest stores chunks as the fragments {documentID}_0..n-1, first in the
// Fragment Store and then in the Lexical Index, and makes documentID the
// active document. No chunks is a no-op.
//
// There is no transaction across the two stores. If the Fragment Store
// fails part way, the fragments it did store are still added to the
// Lexical Index, nothing is rolled back and the error is returned; Audit
// finds whatever divergence remains.
func (m *Manager) Ingest(ctx context.Context, documentID string, chunks []chunk.Chunk) (IngestResult, error) {
	start := time.Now()
	result := IngestResult{DocumentID: documentID}

	if documentID == "" {
		return result, apperrors.ValidationError("document id is required", nil)
	}
	if len(chunks) == 0 {
		slog.Info("ingest_skipped_empty", slog.String("document_id", documentID))
		return result, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	fragments := make([]store.Fragment, len(chunks))
	for i, c := range chunks {
		fragments[i] = store.Fragment{
			ID:      store.FragmentID(documentID, i),
			Seq:     i,
			Content: c.Content,
			Metadata: store.Metadata{
				DocumentID: documentID,
				Source:     c.Source,
				Page:       c.Page,
			},
		}
	}

	inserted, insertErr := m.fragments.Insert(ctx, fragments)
	if inserted > 0 {
		if err := m.lexical.Insert(fragments[:inserted]...); err != nil {
			slog.Error("ingest_lexical_failed",
				slog.String("document_id", documentID),
				slog.Int("semantic_fragments", inserted),
				slog.String("error", err.Error()))
			result.Fragments = inserted
			return result, err
		}
	}
	result.Fragments = inserted
	result.Duration = time.Since(start)

	if insertErr != nil {
		slog.Error("ingest_partial",
			slog.String("document_id", documentID),
			slog.Int("stored", inserted),
			slog.Int("total", len(fragments)),
			slog.String("error", insertErr.Error()))
		return result, insertErr
	}

	if err := m.state.Set(documentID); err != nil {
		return result, err
	}

	slog.Info("document_ingested",
		slog.String("document_id", documentID),
		slog.Int("fragments", inserted),
		slog.Duration("duration", result.Duration))
	return result, nil
}

// IngestFile extracts, splits and ingests the file at path. A stored
// upload named {documentID}_{filename} is recorded under its filename.
func (m *Manager) IngestFile(ctx context.Context, path, documentID string) (IngestResult, error) {
	pages, err := extract.Load(path)
	if err != nil {
		return IngestResult{DocumentID: documentID}, err
	}
	for i := range pages {
		if name, ok := strings.CutPrefix(pages[i].Source, documentID+"_"); ok && name != "" {
			pages[i].Source = name
		}
	}
	return m.Ingest(ctx, documentID, m.splitter.SplitPages(pages))
}

// AddUpload validates name, assigns a new document id and stores the raw
// file. It does not ingest.
func (m *Manager) AddUpload(_ context.Context, name string, r io.Reader) (Upload, error) {
	if err := ValidateFilename(CleanFilename(name)); err != nil {
		return Upload{}, err
	}
	return m.uploads.Save(uuid.NewString(), name, r)
}

// Delete removes documentID from the Fragment Store, then the Lexical
// Index, then its raw upload. Deleting an unknown document removes
// nothing and succeeds.
func (m *Manager) Delete(ctx context.Context, documentID string) (DeleteResult, error) {
	result := DeleteResult{DocumentID: documentID}
	if documentID == "" {
		return result, apperrors.ValidationError("document id is required", nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	n, err := m.fragments.RemoveByDocument(ctx, documentID)
	if err != nil {
		return result, err
	}
	result.SemanticRemoved = n

	n, err = m.lexical.RemoveByDocument(documentID)
	if err != nil {
		return result, err
	}
	result.LexicalRemoved = n

	removed, err := m.uploads.Remove(documentID)
	if err != nil {
		return result, err
	}
	result.FileRemoved = removed

	slog.Info("document_deleted",
		slog.String("document_id", documentID),
		slog.Int("semantic_removed", result.SemanticRemoved),
		slog.Int("lexical_removed", result.LexicalRemoved),
		slog.Bool("file_removed", removed))
	return result, nil
}

// ClearAll drops and recreates the fragment collection, empties the
// Lexical Index, clears the active document and deletes every upload.
// A second call finds nothing to remove.
func (m *Manager) ClearAll(ctx context.Context) (ClearResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result ClearResult

	dropped, err := m.fragments.Reset(ctx)
	if err != nil {
		return result, err
	}
	if dropped {
		result.DeletedCollections = 1
	}

	if err := m.lexical.Clear(); err != nil {
		return result, err
	}
	if err := m.state.Clear(); err != nil {
		return result, err
	}

	files, err := m.uploads.Clear()
	if err != nil {
		return result, err
	}
	result.DeletedFiles = files

	slog.Info("corpus_cleared",
		slog.Int("deleted_collections", result.DeletedCollections),
		slog.Int("deleted_files", result.DeletedFiles))
	return result, nil
}

// Documents lists uploaded and indexed documents, uploads first (newest
// first), followed by indexed documents without a stored upload.
func (m *Manager) Documents(ctx context.Context) ([]DocumentInfo, error) {
	summaries, err := m.fragments.Documents(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]store.DocumentSummary, len(summaries))
	for _, s := range summaries {
		counts[s.DocumentID] = s
	}

	uploads, err := m.uploads.List()
	if err != nil {
		return nil, err
	}
	active, _ := m.state.Get()

	docs := make([]DocumentInfo, 0, len(uploads)+len(summaries))
	seen := make(map[string]bool, len(uploads))
	for _, up := range uploads {
		seen[up.DocumentID] = true
		docs = append(docs, DocumentInfo{
			DocumentID: up.DocumentID,
			Filename:   up.Filename,
			Size:       up.Size,
			Modified:   up.Modified,
			Fragments:  counts[up.DocumentID].Fragments,
			Active:     up.DocumentID == active,
		})
	}

	var rest []DocumentInfo
	for _, s := range summaries {
		if seen[s.DocumentID] {
			continue
		}
		rest = append(rest, DocumentInfo{
			DocumentID: s.DocumentID,
			Filename:   s.Source,
			Fragments:  s.Fragments,
			Active:     s.DocumentID == active,
		})
	}
	sort.SliceStable(rest, func(i, j int) bool { return rest[i].DocumentID < rest[j].DocumentID })
	return append(docs, rest...), nil
}

// ActiveDocument returns the current default document id.
func (m *Manager) ActiveDocument() (string, bool) {
	return m.state.Get()
}

// Uploads exposes the raw upload store.
func (m *Manager) Uploads() *UploadStore {
	return m.uploads
}

// Package session tracks the active document: the most recently ingested
// document id, used when a request does not name one. The value survives
// restarts through a small JSON record.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	apperrors "github.com/lphhien112-gif/NOTEBOOKLM/internal/errors"
)

// record is the on-disk shape of the state file.
type record struct {
	LastUploadedDocumentID *string `json:"last_uploaded_document_id"`
}

// State is a durable single-value store for the active document id.
type State struct {
	mu    sync.RWMutex
	path  string
	lock  *flock.Flock
	docID string
}

// Open loads the state at path. A missing, unreadable or corrupt record
// leaves the value unset.
func Open(path string) *State {
	s := &State{
		path: path,
		lock: flock.New(path + ".lock"),
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s
	case err != nil:
		slog.Warn("session_state_unreadable", slog.String("path", path), slog.String("error", err.Error()))
		return s
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		slog.Warn("session_state_corrupt", slog.String("path", path), slog.String("error", err.Error()))
		return s
	}
	if rec.LastUploadedDocumentID != nil {
		s.docID = *rec.LastUploadedDocumentID
		slog.Debug("session_state_loaded", slog.String("document_id", s.docID))
	}
	return s
}

// Get returns the active document id and whether one is set.
func (s *State) Get() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docID, s.docID != ""
}

// Resolve returns documentID when non-empty, otherwise the active document.
func (s *State) Resolve(documentID string) string {
	if documentID != "" {
		return documentID
	}
	id, _ := s.Get()
	return id
}

// Set makes documentID the active document and persists it before
// returning. On a write failure the previous value is kept.
func (s *State) Set(documentID string) error {
	if documentID == "" {
		return apperrors.ValidationError("document id is required", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(record{LastUploadedDocumentID: &documentID})
	if err != nil {
		return fmt.Errorf("failed to marshal session state: %w", err)
	}
	if err := s.write(data); err != nil {
		return err
	}

	s.docID = documentID
	slog.Info("active_document_set", slog.String("document_id", documentID))
	return nil
}

// Clear unsets the active document and deletes the record.
func (s *State) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.Lock(); err != nil {
		return apperrors.New(apperrors.ErrCodePersistFailed, "failed to lock session state", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return apperrors.New(apperrors.ErrCodePersistFailed, "failed to delete session state", err)
	}
	s.docID = ""
	return nil
}

// Path returns the record location.
func (s *State) Path() string {
	return s.path
}

// write replaces the record atomically (temp file + rename) under the lock file.
func (s *State) write(data []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return apperrors.New(apperrors.ErrCodePersistFailed, "failed to create state directory", err)
	}

	if err := s.lock.Lock(); err != nil {
		return apperrors.New(apperrors.ErrCodePersistFailed, "failed to lock session state", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return apperrors.New(apperrors.ErrCodePersistFailed, "failed to write session state", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return apperrors.New(apperrors.ErrCodePersistFailed, "failed to save session state", err)
	}
	return nil
}

package lifecycle

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	apperrors "github.com/lphhien112-gif/NOTEBOOKLM/internal/errors"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/extract"
)

// Upload describes one stored raw file.
type Upload struct {
	DocumentID string    `json:"document_id"`
	Filename   string    `json:"filename"`
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	Modified   time.Time `json:"modified"`
}

// UploadStore keeps raw uploaded files as {document_id}_{filename} in one
// flat directory.
type UploadStore struct {
	dir string
}

// NewUploadStore creates the store, making dir if needed.
func NewUploadStore(dir string) (*UploadStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.IOError("failed to create upload directory", err).WithDetail("path", dir)
	}
	return &UploadStore{dir: dir}, nil
}

// Dir returns the upload directory.
func (u *UploadStore) Dir() string {
	return u.dir
}

// CleanFilename strips directories and collapses a doubled .doc.doc or
// .docx.docx suffix.
func CleanFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	lower := strings.ToLower(base)
	switch {
	case strings.HasSuffix(lower, ".doc.doc"):
		return base[:len(base)-len(".doc")]
	case strings.HasSuffix(lower, ".docx.docx"):
		return base[:len(base)-len(".docx")]
	}
	return base
}

// ValidateFilename rejects names Load cannot extract.
func ValidateFilename(name string) error {
	if name == "" || name == "." || name == "/" {
		return apperrors.ValidationError("filename is required", nil)
	}
	if !extract.IsSupported(name) {
		return apperrors.New(apperrors.ErrCodeUnsupportedFile,
			fmt.Sprintf("unsupported file type %q", filepath.Ext(name)), nil).
			WithSuggestion("Upload a .pdf, .txt or .docx file")
	}
	return nil
}

// Save copies r into the store under documentID. The file only appears
// under its final name once fully written.
func (u *UploadStore) Save(documentID, name string, r io.Reader) (Upload, error) {
	filename := CleanFilename(name)
	if err := ValidateFilename(filename); err != nil {
		return Upload{}, err
	}

	final := filepath.Join(u.dir, documentID+"_"+filename)
	tmp, err := os.CreateTemp(u.dir, ".upload-*")
	if err != nil {
		return Upload{}, apperrors.IOError("failed to create upload file", err)
	}
	tmpPath := tmp.Name()

	size, err := io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return Upload{}, apperrors.IOError("failed to save upload "+filename, err)
	}
	if err := os.Rename(tmpPath, final); err != nil {
		_ = os.Remove(tmpPath)
		return Upload{}, apperrors.IOError("failed to save upload "+filename, err)
	}

	slog.Debug("upload_saved",
		slog.String("document_id", documentID),
		slog.String("filename", filename),
		slog.Int64("size", size))

	return Upload{
		DocumentID: documentID,
		Filename:   filename,
		Path:       final,
		Size:       size,
		Modified:   time.Now(),
	}, nil
}

// Find returns the stored upload for documentID.
func (u *UploadStore) Find(documentID string) (Upload, bool) {
	uploads, err := u.List()
	if err != nil {
		return Upload{}, false
	}
	for _, up := range uploads {
		if up.DocumentID == documentID {
			return up, true
		}
	}
	return Upload{}, false
}

// Remove deletes the file stored for documentID, reporting whether one
// existed.
func (u *UploadStore) Remove(documentID string) (bool, error) {
	up, ok := u.Find(documentID)
	if !ok {
		return false, nil
	}
	if err := os.Remove(up.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, apperrors.IOError("failed to delete upload", err).WithDetail("path", up.Path)
	}
	return true, nil
}

// Clear deletes every regular file in the store and returns the count.
func (u *UploadStore) Clear() (int, error) {
	entries, err := os.ReadDir(u.dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, apperrors.IOError("failed to read upload directory", err)
	}

	deleted := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		path := filepath.Join(u.dir, e.Name())
		if err := os.Remove(path); err != nil {
			slog.Warn("upload_delete_failed", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		deleted++
	}
	return deleted, nil
}

// List returns stored uploads, newest first.
func (u *UploadStore) List() ([]Upload, error) {
	entries, err := os.ReadDir(u.dir)
	if errors.Is(err, os.ErrNotExist) {
		return []Upload{}, nil
	}
	if err != nil {
		return nil, apperrors.IOError("failed to read upload directory", err)
	}

	uploads := make([]Upload, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		docID, filename, ok := strings.Cut(e.Name(), "_")
		if !ok || docID == "" || filename == "" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		uploads = append(uploads, Upload{
			DocumentID: docID,
			Filename:   filename,
			Path:       filepath.Join(u.dir, e.Name()),
			Size:       info.Size(),
			Modified:   info.ModTime(),
		})
	}
	sort.SliceStable(uploads, func(i, j int) bool {
		return uploads[i].Modified.After(uploads[j].Modified)
	})
	return uploads, nil
}

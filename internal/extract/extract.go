// Package extract turns uploaded files into page-sized blocks of plain text.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	apperrors "github.com/lphhien112-gif/NOTEBOOKLM/internal/errors"
)

// Page is the text of one page (or of a whole file, for formats without
// pages) together with where it came from.
type Page struct {
	Text   string
	Source string
	// Page is the 0-based page index, nil for unpaged formats.
	Page *int
}

// Supported extensions, lowercase.
const (
	ExtPDF  = ".pdf"
	ExtTXT  = ".txt"
	ExtDOCX = ".docx"
)

// SupportedExtensions lists the extensions Load accepts.
func SupportedExtensions() []string {
	return []string{ExtPDF, ExtTXT, ExtDOCX}
}

// IsSupported reports whether name has an extension Load can read.
func IsSupported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ExtPDF, ExtTXT, ExtDOCX:
		return true
	}
	return false
}

// Load extracts the text of the file at path. A file with no extractable
// text yields an empty slice, not an error.
func Load(path string) ([]Page, error) {
	source := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(path))

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.New(apperrors.ErrCodeFileNotFound, "file not found: "+source, err)
		}
		return nil, apperrors.IOError("failed to stat "+source, err)
	}

	switch ext {
	case ExtTXT:
		return loadText(path, source)
	case ExtPDF:
		return loadPDF(path, source)
	case ExtDOCX:
		return loadDOCX(path, source)
	default:
		return nil, apperrors.New(apperrors.ErrCodeUnsupportedFile,
			fmt.Sprintf("unsupported file type %q", ext), nil).
			WithSuggestion("Upload a .pdf, .txt or .docx file")
	}
}

func loadText(path, source string) ([]Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.IOError("failed to read "+source, err)
	}
	if !utf8.Valid(data) {
		return nil, apperrors.New(apperrors.ErrCodeFileCorrupt, source+" is not valid UTF-8 text", nil)
	}
	text := string(data)
	if strings.TrimSpace(text) == "" {
		return []Page{}, nil
	}
	return []Page{{Text: text, Source: source}}, nil
}

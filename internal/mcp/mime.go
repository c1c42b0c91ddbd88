package mcp

import (
	"path/filepath"
	"strings"

	"github.com/lphhien112-gif/NOTEBOOKLM/internal/extract"
)

// mimeTypes maps the ingestible extensions to MIME types.
var mimeTypes = map[string]string{
	extract.ExtPDF:  "application/pdf",
	extract.ExtTXT:  "text/plain",
	extract.ExtDOCX: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// MimeTypeForPath returns the MIME type of an uploaded document by its
// extension, or "application/octet-stream" for anything else.
func MimeTypeForPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if mime, ok := mimeTypes[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}

package extract

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/lphhien112-gif/NOTEBOOKLM/internal/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeDocx(t *testing.T, name, documentXML string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

const sampleDocument = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Quang hợp</w:t></w:r><w:r><w:t xml:space="preserve"> là quá trình</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second</w:t><w:tab/><w:t>paragraph</w:t></w:r></w:p>
  </w:body>
</w:document>`

func TestLoad_Text(t *testing.T) {
	path := writeFile(t, "notes.txt", "Xin chào thế giới\nline two")

	pages, err := Load(path)

	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "Xin chào thế giới\nline two", pages[0].Text)
	assert.Equal(t, "notes.txt", pages[0].Source)
	assert.Nil(t, pages[0].Page)
}

func TestLoad_BlankTextYieldsNoPages(t *testing.T) {
	pages, err := Load(writeFile(t, "empty.txt", "  \n\t "))

	require.NoError(t, err)
	assert.Empty(t, pages)
}

func TestLoad_InvalidUTF8(t *testing.T) {
	_, err := Load(writeFile(t, "bad.txt", "\xff\xfe\xfd"))

	assert.Equal(t, apperrors.ErrCodeFileCorrupt, apperrors.GetCode(err))
}

func TestLoad_ExtensionIsCaseInsensitive(t *testing.T) {
	pages, err := Load(writeFile(t, "UPPER.TXT", "content"))

	require.NoError(t, err)
	assert.Len(t, pages, 1)
}

func TestLoad_Docx(t *testing.T) {
	pages, err := Load(writeDocx(t, "report.docx", sampleDocument))

	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "Quang hợp là quá trình\n\nSecond\tparagraph", pages[0].Text)
	assert.Equal(t, "report.docx", pages[0].Source)
}

func TestLoad_DocxWithoutBody(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	_, err = zw.Create("docProps/core.xml")
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	_, err = Load(path)

	assert.Equal(t, apperrors.ErrCodeFileCorrupt, apperrors.GetCode(err))
}

func TestLoad_NotAZip(t *testing.T) {
	_, err := Load(writeFile(t, "fake.docx", "plain text"))

	assert.Equal(t, apperrors.ErrCodeFileCorrupt, apperrors.GetCode(err))
}

func TestLoad_CorruptPDF(t *testing.T) {
	_, err := Load(writeFile(t, "fake.pdf", "not a pdf"))

	assert.Error(t, err)
}

func TestLoad_Unsupported(t *testing.T) {
	_, err := Load(writeFile(t, "image.png", "png"))

	assert.Equal(t, apperrors.ErrCodeUnsupportedFile, apperrors.GetCode(err))
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.txt"))

	assert.Equal(t, apperrors.ErrCodeFileNotFound, apperrors.GetCode(err))
}

func TestIsSupported(t *testing.T) {
	assert.True(t, IsSupported("a.pdf"))
	assert.True(t, IsSupported("a.DOCX"))
	assert.True(t, IsSupported("dir/a.txt"))
	assert.False(t, IsSupported("a.doc"))
	assert.False(t, IsSupported("README"))
}

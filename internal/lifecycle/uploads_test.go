package lifecycle

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"report.pdf", "report.pdf"},
		{"dir/sub/report.pdf", "report.pdf"},
		{`C:\Users\me\notes.txt`, "notes.txt"},
		{"thesis.docx.docx", "thesis.docx"},
		{"Thesis.DOCX.DOCX", "Thesis.DOCX"},
		{"old.doc.doc", "old.doc"},
		{"plain.docx", "plain.docx"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanFilename(tt.in))
		})
	}
}

func TestUploadStore_SaveListRemove(t *testing.T) {
	// Given: a store with two uploads
	u, err := NewUploadStore(filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)
	a, err := u.Save("doc-a", "a.txt", strings.NewReader("alpha"))
	require.NoError(t, err)
	_, err = u.Save("doc-b", "b_with_underscore.pdf", strings.NewReader("beta!"))
	require.NoError(t, err)

	// When: listing
	list, err := u.List()

	// Then: ids and names are recovered from the file names
	require.NoError(t, err)
	require.Len(t, list, 2)
	byID := map[string]Upload{}
	for _, up := range list {
		byID[up.DocumentID] = up
	}
	assert.Equal(t, "a.txt", byID["doc-a"].Filename)
	assert.Equal(t, int64(5), byID["doc-a"].Size)
	assert.Equal(t, "b_with_underscore.pdf", byID["doc-b"].Filename)

	removed, err := u.Remove("doc-a")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.NoFileExists(t, a.Path)

	removed, err = u.Remove("doc-a")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestUploadStore_RemoveMatchesWholeID(t *testing.T) {
	u, err := NewUploadStore(t.TempDir())
	require.NoError(t, err)
	_, err = u.Save("doc-10", "x.txt", strings.NewReader("x"))
	require.NoError(t, err)

	removed, err := u.Remove("doc-1")

	require.NoError(t, err)
	assert.False(t, removed)
	_, ok := u.Find("doc-10")
	assert.True(t, ok)
}

func TestUploadStore_Clear(t *testing.T) {
	dir := t.TempDir()
	u, err := NewUploadStore(dir)
	require.NoError(t, err)
	_, err = u.Save("d1", "a.txt", strings.NewReader("a"))
	require.NoError(t, err)
	_, err = u.Save("d2", "b.txt", strings.NewReader("b"))
	require.NoError(t, err)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o755))

	n, err := u.Clear()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = u.Clear()
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.DirExists(t, filepath.Join(dir, "subdir"))
}

func TestUploadStore_SaveRejectsUnsupported(t *testing.T) {
	u, err := NewUploadStore(t.TempDir())
	require.NoError(t, err)

	_, err = u.Save("d", "archive.zip", strings.NewReader("z"))

	assert.Error(t, err)
	list, _ := u.List()
	assert.Empty(t, list)
}

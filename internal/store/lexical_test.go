package store

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/lphhien112-gif/NOTEBOOKLM/internal/errors"
)

func frag(doc string, seq int, content string) Fragment {
	return Fragment{
		ID:      FragmentID(doc, seq),
		Seq:     seq,
		Content: content,
		Metadata: Metadata{
			DocumentID: doc,
			Source:     doc + ".txt",
		},
	}
}

func newTestLexical(t *testing.T) (*LexicalIndex, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "keyword_index.json")
	return OpenLexicalIndex(path, DefaultBM25Params()), path
}

func hitIDs(hits []LexicalHit) []string {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.Fragment.ID
	}
	return ids
}

func TestLexicalIndex_EmptyQuery(t *testing.T) {
	// Given: an index with no entries
	x, _ := newTestLexical(t)

	// When: querying
	hits := x.Query([]string{"anything"}, nil, 5)

	// Then: the result is empty, not nil
	assert.NotNil(t, hits)
	assert.Empty(t, hits)
}

func TestLexicalIndex_RanksByBM25(t *testing.T) {
	// Given: three fragments
	x, _ := newTestLexical(t)
	require.NoError(t, x.Insert(
		frag("d1", 0, "the cat sat on the mat"),
		frag("d1", 1, "dogs chase cats in the park"),
		frag("d2", 0, "quantum entanglement of photons"),
	))

	// When: searching for a term unique to one fragment
	hits := x.Search("Quantum photons", "", 2)

	// Then: that fragment comes first with a positive score
	require.Len(t, hits, 2)
	assert.Equal(t, "d2_0", hits[0].Fragment.ID)
	assert.Greater(t, hits[0].Score, 0.0)
	assert.Equal(t, "d2", hits[0].Fragment.DocumentID())
	assert.Equal(t, "d1_0", hits[1].Fragment.ID)
	assert.Zero(t, hits[1].Score)
}

func TestLexicalIndex_TiesKeepInsertionOrder(t *testing.T) {
	// Given: fragments inserted in a known order
	x, _ := newTestLexical(t)
	require.NoError(t, x.Insert(frag("b", 0, "alpha"), frag("a", 0, "beta"), frag("c", 0, "gamma")))

	// When: no fragment matches
	hits := x.Query([]string{"zeta"}, nil, 3)

	// Then: equal scores come back in insertion order
	assert.Equal(t, []string{"b_0", "a_0", "c_0"}, hitIDs(hits))
}

func TestLexicalIndex_CandidateRestriction(t *testing.T) {
	// Given: two documents sharing a term
	x, _ := newTestLexical(t)
	require.NoError(t, x.Insert(
		frag("d1", 0, "solar panels convert light"),
		frag("d2", 0, "solar wind and light"),
		frag("d2", 1, "wind turbines"),
	))

	// When: searching restricted to d2
	hits := x.Search("solar light", "d2", 10)

	// Then: only d2 fragments are ranked
	assert.Equal(t, []string{"d2_0", "d2_1"}, hitIDs(hits))

	// And: unknown candidate ids are ignored
	assert.Equal(t, []string{"d1_0"}, hitIDs(x.Query(Tokenize("solar"), []string{"missing_0", "d1_0"}, 5)))
}

func TestLexicalIndex_PersistsInOrder(t *testing.T) {
	// Given: fragments with non-ASCII and HTML-like content
	x, path := newTestLexical(t)
	page := 2
	f := frag("doc", 1, "Xin chào <b>thế giới</b>")
	f.Metadata.Page = &page
	require.NoError(t, x.Insert(frag("doc", 0, "first"), f))

	// When: reading the file back
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)

	// Then: it is a four-space indented object in insertion order with raw text
	assert.True(t, strings.HasPrefix(text, "{\n    \"doc_0\": {\n        \"document_id\": \"doc\","), text)
	assert.Contains(t, text, "Xin chào <b>thế giới</b>")
	assert.Less(t, strings.Index(text, `"doc_0"`), strings.Index(text, `"doc_1"`))

	// And: a fresh index loads the same entries
	reloaded := OpenLexicalIndex(path, DefaultBM25Params())
	assert.Equal(t, []string{"doc_0", "doc_1"}, reloaded.IDs(""))
	got, ok := reloaded.Get("doc_1")
	require.True(t, ok)
	assert.Equal(t, f.Content, got.Content)
	require.NotNil(t, got.Metadata.Page)
	assert.Equal(t, 2, *got.Metadata.Page)
	assert.Equal(t, 1, got.Seq)
}

func TestLexicalIndex_CorruptFileLoadsEmpty(t *testing.T) {
	// Given: a file with invalid content
	path := filepath.Join(t.TempDir(), "keyword_index.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"a_0": {"tokens": [`), 0o644))

	// When: loading
	x := OpenLexicalIndex(path, DefaultBM25Params())

	// Then: the index is empty and usable
	assert.Zero(t, x.Len())
	require.NoError(t, x.Insert(frag("a", 0, "recovered")))
	assert.Equal(t, 1, x.Len())
}

func TestLexicalIndex_NonObjectFileLoadsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keyword_index.json")
	require.NoError(t, os.WriteFile(path, []byte(`["a_0"]`), 0o644))

	assert.Zero(t, OpenLexicalIndex(path, DefaultBM25Params()).Len())
}

func TestLexicalIndex_LegacyRecordsUseMetadataDocumentID(t *testing.T) {
	// Given: records without a top-level document_id
	path := filepath.Join(t.TempDir(), "keyword_index.json")
	legacy := `{
    "abc_0": {
        "tokens": ["hello", "world"],
        "content": "Hello world",
        "metadata": {"document_id": "abc", "source": "a.pdf", "page": 0}
    }
}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	// When: loading and removing by document
	x := OpenLexicalIndex(path, DefaultBM25Params())
	require.Equal(t, []string{"abc_0"}, x.IDs("abc"))
	removed, err := x.RemoveByDocument("abc")

	// Then: the record is matched through its metadata
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Zero(t, x.Len())
}

func TestLexicalIndex_RemoveByDocumentUsesDocumentID(t *testing.T) {
	// Given: a document id that is a prefix of another document's ids
	x, path := newTestLexical(t)
	require.NoError(t, x.Insert(
		frag("a", 0, "one"),
		frag("a", 1, "two"),
		frag("a_b", 0, "three"),
	))

	// When: removing document "a"
	removed, err := x.RemoveByDocument("a")
	require.NoError(t, err)

	// Then: only its own fragments go
	assert.Equal(t, 2, removed)
	assert.Equal(t, []string{"a_b_0"}, x.IDs(""))
	assert.Empty(t, x.Search("one two", "a", 5))

	// And: the removal is durable and idempotent
	assert.Equal(t, []string{"a_b_0"}, OpenLexicalIndex(path, DefaultBM25Params()).IDs(""))
	removed, err = x.RemoveByDocument("a")
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestLexicalIndex_FailedPersistLeavesMemoryUnchanged(t *testing.T) {
	// Given: an index with one fragment and a blocked temp file path
	x, path := newTestLexical(t)
	require.NoError(t, x.Insert(frag("d", 0, "kept")))
	require.NoError(t, os.Mkdir(path+".tmp", 0o755))

	// When: inserting another fragment
	err := x.Insert(frag("d", 1, "lost"))

	// Then: the error is a persist failure and nothing changed
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodePersistFailed, apperrors.GetCode(err))
	assert.Equal(t, []string{"d_0"}, x.IDs(""))

	_, err = x.RemoveByDocument("d")
	require.Error(t, err)
	assert.Equal(t, 1, x.Len())
}

func TestLexicalIndex_OverwriteKeepsPosition(t *testing.T) {
	x, _ := newTestLexical(t)
	require.NoError(t, x.Insert(frag("d", 0, "old"), frag("d", 1, "next")))

	require.NoError(t, x.Insert(frag("d", 0, "new")))

	assert.Equal(t, []string{"d_0", "d_1"}, x.IDs(""))
	got, _ := x.Get("d_0")
	assert.Equal(t, "new", got.Content)
}

func TestLexicalIndex_Clear(t *testing.T) {
	// Given: a persisted index
	x, path := newTestLexical(t)
	require.NoError(t, x.Insert(frag("d", 0, "text")))
	require.FileExists(t, path)

	// When: clearing twice
	require.NoError(t, x.Clear())
	require.NoError(t, x.Clear())

	// Then: memory and disk are empty
	assert.Zero(t, x.Len())
	assert.NoFileExists(t, path)
	assert.Empty(t, OpenLexicalIndex(path, DefaultBM25Params()).IDs(""))
}

func TestLexicalIndex_IDsByDocument(t *testing.T) {
	x, _ := newTestLexical(t)
	require.NoError(t, x.Insert(frag("a", 0, "x"), frag("b", 0, "y"), frag("a", 1, "z")))

	assert.Equal(t, map[string][]string{
		"a": {"a_0", "a_1"},
		"b": {"b_0"},
	}, x.IDsByDocument())
}

func TestPersistError_DiskFull(t *testing.T) {
	full := persistError("failed to write lexical index",
		fmt.Errorf("failed to write: %w", &fs.PathError{Op: "write", Path: "idx.tmp", Err: syscall.ENOSPC}))
	assert.Equal(t, apperrors.ErrCodeDiskFull, apperrors.GetCode(full))
	assert.True(t, apperrors.IsFatal(full))

	other := persistError("failed to write lexical index", fs.ErrPermission)
	assert.Equal(t, apperrors.ErrCodePersistFailed, apperrors.GetCode(other))
}

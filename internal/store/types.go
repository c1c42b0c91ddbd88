// Package store persists document fragments in two independently ranked
// collections: a SQLite fragment collection searched through an HNSW vector
// graph, and a JSON-persisted lexical index ranked with BM25.
// Both are keyed by fragment id and carry an explicit document id.
package store

import (
	"fmt"
	"strconv"
	"strings"
)

// Metadata describes where a fragment came from.
type Metadata struct {
	DocumentID string `json:"document_id"`
	Source     string `json:"source"`
	Page       *int   `json:"page,omitempty"`
}

// Fragment is a contiguous span of text from one source document.
// Fragments are never mutated after ingestion.
type Fragment struct {
	ID       string   `json:"id"`
	Seq      int      `json:"seq"`
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// DocumentID returns the owning document id.
func (f Fragment) DocumentID() string {
	return f.Metadata.DocumentID
}

// FragmentID builds the corpus-unique id of the seq-th fragment of a document.
func FragmentID(documentID string, seq int) string {
	return documentID + "_" + strconv.Itoa(seq)
}

// ParseFragmentID splits a fragment id into document id and sequence index.
func ParseFragmentID(id string) (documentID string, seq int, err error) {
	i := strings.LastIndexByte(id, '_')
	if i <= 0 || i == len(id)-1 {
		return "", 0, fmt.Errorf("malformed fragment id %q", id)
	}
	seq, err = strconv.Atoi(id[i+1:])
	if err != nil || seq < 0 {
		return "", 0, fmt.Errorf("malformed fragment id %q", id)
	}
	return id[:i], seq, nil
}

// SemanticHit is a Fragment Store result. Distance is cosine distance,
// lower is closer.
type SemanticHit struct {
	Fragment Fragment
	Distance float32
}

// Score converts cosine distance (0..2) into a 0..1 similarity.
func (h SemanticHit) Score() float32 {
	return distanceToScore(h.Distance)
}

// LexicalHit is a Lexical Index result.
type LexicalHit struct {
	Fragment Fragment
	Score    float64
}

// DocumentSummary aggregates the fragments stored for one document.
type DocumentSummary struct {
	DocumentID string `json:"document_id"`
	Source     string `json:"source"`
	Fragments  int    `json:"fragments"`
}

// ErrDimensionMismatch indicates vectors of a different size than the collection.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (run 'notebooklm clear')", e.Expected, e.Got)
}

// Package search provides hybrid retrieval over the fragment stores.
// Semantic and lexical rankings are fused with Reciprocal Rank Fusion (RRF).
package search

import "sort"

// DefaultRRFConstant is the standard RRF smoothing parameter.
const DefaultRRFConstant = 60

// DefaultOverFetch multiplies k for each underlying ranked list.
const DefaultOverFetch = 2

// Fused is one candidate after fusion.
type Fused struct {
	ID           string
	Score        float64
	SemanticRank int // 0-based position in the semantic list, -1 if absent
	LexicalRank  int // 0-based position in the lexical list, -1 if absent
}

// InBothLists reports whether the candidate was ranked by both sources.
func (f Fused) InBothLists() bool {
	return f.SemanticRank >= 0 && f.LexicalRank >= 0
}

// RRFFusion combines ranked id lists using Reciprocal Rank Fusion.
//
// Algorithm: score(d) = Σ 1 / (rank_i(d) + C)
//
// Where rank_i is the 0-based position of d in list i and C is the
// smoothing constant. Lists that do not contain d contribute nothing.
type RRFFusion struct {
	C int
}

// NewRRFFusion creates a fusion with constant c. If c <= 0, defaults to 60.
func NewRRFFusion(c int) *RRFFusion {
	if c <= 0 {
		c = DefaultRRFConstant
	}
	return &RRFFusion{C: c}
}

// Fuse scores every distinct id and returns them best first. Equal scores
// keep encounter order, enumerating the semantic list before the lexical
// one, so the output is a pure function of the two inputs.
func (f *RRFFusion) Fuse(semantic, lexical []string) []Fused {
	if len(semantic) == 0 && len(lexical) == 0 {
		return []Fused{}
	}

	index := make(map[string]int, len(semantic)+len(lexical))
	results := make([]Fused, 0, len(semantic)+len(lexical))

	get := func(id string) *Fused {
		if i, ok := index[id]; ok {
			return &results[i]
		}
		index[id] = len(results)
		results = append(results, Fused{ID: id, SemanticRank: -1, LexicalRank: -1})
		return &results[len(results)-1]
	}

	for rank, id := range semantic {
		r := get(id)
		if r.SemanticRank < 0 {
			r.SemanticRank = rank
		}
		r.Score += 1 / float64(rank+f.C)
	}
	for rank, id := range lexical {
		r := get(id)
		if r.LexicalRank < 0 {
			r.LexicalRank = rank
		}
		r.Score += 1 / float64(rank+f.C)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}

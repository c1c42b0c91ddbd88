package store

import (
	"math"
	"sort"
)

// BM25Params configures Okapi BM25 scoring.
type BM25Params struct {
	// K1 is the term frequency saturation parameter (default: 1.5)
	K1 float64

	// B is the length normalization parameter (default: 0.75)
	B float64

	// Epsilon scales the floor applied to negative IDF values (default: 0.25)
	Epsilon float64
}

// DefaultBM25Params returns the standard Okapi parameters.
func DefaultBM25Params() BM25Params {
	return BM25Params{K1: 1.5, B: 0.75, Epsilon: 0.25}
}

// bm25Okapi is a ranking model built over one fixed token corpus.
// It is cheap to build and is discarded after a single query.
type bm25Okapi struct {
	params   BM25Params
	docFreqs []map[string]int
	docLen   []int
	avgdl    float64
	idf      map[string]float64
}

func newBM25Okapi(corpus [][]string, params BM25Params) *bm25Okapi {
	m := &bm25Okapi{
		params:   params,
		docFreqs: make([]map[string]int, len(corpus)),
		docLen:   make([]int, len(corpus)),
		idf:      make(map[string]float64),
	}

	nd := make(map[string]int)
	total := 0
	for i, doc := range corpus {
		m.docLen[i] = len(doc)
		total += len(doc)

		freqs := make(map[string]int, len(doc))
		for _, w := range doc {
			freqs[w]++
		}
		m.docFreqs[i] = freqs
		for w := range freqs {
			nd[w]++
		}
	}

	if len(corpus) > 0 {
		m.avgdl = float64(total) / float64(len(corpus))
	}
	if m.avgdl == 0 {
		m.avgdl = 1
	}

	// Terms present in more than half the corpus get a negative raw IDF;
	// those are floored to epsilon times the average IDF.
	n := float64(len(corpus))
	idfSum := 0.0
	var negative []string
	for w, freq := range nd {
		idf := math.Log(n-float64(freq)+0.5) - math.Log(float64(freq)+0.5)
		m.idf[w] = idf
		idfSum += idf
		if idf < 0 {
			negative = append(negative, w)
		}
	}
	if len(m.idf) > 0 {
		eps := params.Epsilon * idfSum / float64(len(m.idf))
		for _, w := range negative {
			m.idf[w] = eps
		}
	}

	return m
}

// scores returns one BM25 score per corpus document. Query terms absent
// from the corpus contribute nothing.
func (m *bm25Okapi) scores(query []string) []float64 {
	k1, b := m.params.K1, m.params.B
	out := make([]float64, len(m.docFreqs))
	for _, q := range query {
		idf, ok := m.idf[q]
		if !ok {
			continue
		}
		for i, freqs := range m.docFreqs {
			tf := float64(freqs[q])
			norm := k1 * (1 - b + b*float64(m.docLen[i])/m.avgdl)
			out[i] += idf * (tf * (k1 + 1) / (tf + norm))
		}
	}
	return out
}

// topN returns the indices of the n best scores, highest first. Equal
// scores keep corpus order.
func topN(scores []float64, n int) []int {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return scores[idx[a]] > scores[idx[b]]
	})
	if n >= 0 && n < len(idx) {
		idx = idx[:n]
	}
	return idx
}

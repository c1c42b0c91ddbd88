package store

import (
	"fmt"
	"math"
	"sync"

	"github.com/coder/hnsw"
)

// VectorGraphConfig configures the HNSW graph.
type VectorGraphConfig struct {
	// Dimensions is the vector dimension
	Dimensions int

	// M is HNSW max connections per layer (default: 16)
	M int

	// EfSearch is HNSW query-time search width (default: 20)
	EfSearch int
}

// VectorGraph is an in-memory cosine HNSW graph keyed by fragment id.
// It holds no durable state and is rebuilt from the fragment table on open.
type VectorGraph struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorGraphConfig

	// ID mapping (string <-> uint64)
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64
}

// vectorMatch is a raw graph result.
type vectorMatch struct {
	ID       string
	Distance float32
}

// NewVectorGraph creates an empty graph.
func NewVectorGraph(cfg VectorGraphConfig) *VectorGraph {
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}
	g := &VectorGraph{config: cfg}
	g.resetLocked()
	return g
}

func (g *VectorGraph) resetLocked() {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = g.config.M
	graph.EfSearch = g.config.EfSearch
	graph.Ml = 0.25

	g.graph = graph
	g.idMap = make(map[string]uint64)
	g.keyMap = make(map[uint64]string)
	g.nextKey = 0
}

// Add inserts vectors. An existing id is re-pointed at a new node and the
// old node is orphaned; coder/hnsw misbehaves when its last node is deleted,
// so nodes are never removed from the graph itself.
func (g *VectorGraph) Add(ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, v := range vectors {
		if len(v) != g.config.Dimensions {
			return ErrDimensionMismatch{Expected: g.config.Dimensions, Got: len(v)}
		}
	}

	for i, id := range ids {
		if old, exists := g.idMap[id]; exists {
			delete(g.keyMap, old)
		}

		key := g.nextKey
		g.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeVectorInPlace(vec)

		g.graph.Add(hnsw.MakeNode(key, vec))
		g.idMap[id] = key
		g.keyMap[key] = id
	}
	return nil
}

// Search returns up to k live ids nearest to query, closest first.
func (g *VectorGraph) Search(query []float32, k int) ([]vectorMatch, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if len(query) != g.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: g.config.Dimensions, Got: len(query)}
	}
	if len(g.idMap) == 0 || k <= 0 {
		return []vectorMatch{}, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	normalizeVectorInPlace(q)

	// Orphaned nodes still occupy result slots, so widen the search by
	// their count and drop them afterwards.
	orphans := g.graph.Len() - len(g.idMap)
	nodes := g.graph.Search(q, min(k+orphans, g.graph.Len()))

	out := make([]vectorMatch, 0, k)
	for _, node := range nodes {
		id, live := g.keyMap[node.Key]
		if !live {
			continue
		}
		out = append(out, vectorMatch{ID: id, Distance: g.graph.Distance(q, node.Value)})
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// Delete unmaps ids; their nodes stay in the graph as orphans.
func (g *VectorGraph) Delete(ids []string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, id := range ids {
		if key, exists := g.idMap[id]; exists {
			delete(g.keyMap, key)
			delete(g.idMap, id)
		}
	}
}

// Reset discards every node.
func (g *VectorGraph) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetLocked()
}

// Count returns the number of live vectors.
func (g *VectorGraph) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.idMap)
}

// VectorGraphStats reports live and orphaned node counts.
type VectorGraphStats struct {
	ValidIDs   int
	GraphNodes int
	Orphans    int
}

// Stats returns graph statistics for compaction decisions.
func (g *VectorGraph) Stats() VectorGraphStats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nodes := g.graph.Len()
	return VectorGraphStats{
		ValidIDs:   len(g.idMap),
		GraphNodes: nodes,
		Orphans:    nodes - len(g.idMap),
	}
}

// normalizeVectorInPlace normalizes a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

// cosineDistance is 1 - cos(a, b) over already normalized vectors,
// matching hnsw.CosineDistance.
func cosineDistance(a, b []float32) float32 {
	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}
	return 1 - dot
}

// distanceToScore converts cosine distance (0 identical, 2 opposite) into
// a similarity score in 0..1.
func distanceToScore(distance float32) float32 {
	return 1.0 - distance/2.0
}

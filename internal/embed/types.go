// Package embed turns fragment text and queries into unit-length vectors
// for the Fragment Store.
package embed

import (
	"context"
	"math"
	"time"
)

const (
	DefaultBatchSize = 32
	MaxBatchSize     = 256

	DefaultTimeout    = 60 * time.Second
	DefaultMaxRetries = 3

	// StaticDimensions is the vector size of the offline hash embedder.
	StaticDimensions = 256
)

// Embedder maps text to vectors. Every vector it returns has the same
// length, Dimensions, and is normalized so that the Fragment Store can
// compare them by dot product.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int

	// ModelName is recorded with the collection so a model change is
	// detected on open.
	ModelName() string

	Available(ctx context.Context) bool
	Close() error
}

// normalizeVector returns a unit-length copy of v, or v itself when it is
// all zeros.
func normalizeVector(v []float32) []float32 {
	var sq float64
	for _, x := range v {
		sq += float64(x) * float64(x)
	}
	if sq == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sq)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}

package embed

import "math"

func dot(a, b []float32) float64 {
	var sum float64
	for i := range min(len(a), len(b)) {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// norm returns the Euclidean length of v.
func norm(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}

// cosine is 0 for vectors of different length or zero length.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	na, nb := norm(a), norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return dot(a, b) / (na * nb)
}

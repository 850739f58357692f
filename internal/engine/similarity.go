// Package engine implements the memory retrieval and context assembly
// pipeline: hybrid search, importance scoring, token-budgeted context
// building, cluster summarization, and chain reasoning.
package engine

import (
	"fmt"
	"math"
)

// CosineSimilarity computes the cosine similarity between two embedding
// vectors, in [-1, 1]. A zero-magnitude vector yields 0. Mismatched
// lengths are a precondition violation and return an error rather than
// a silently coerced value.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("engine: vector length mismatch: %d vs %d", len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// Centroid computes the element-wise mean of the given vectors. An empty
// input set is a precondition violation: a meaningless centroid must not
// silently enter later similarity comparisons.
func Centroid(vectors [][]float32) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("engine: centroid of empty vector set")
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("engine: vector %d has length %d, expected %d", i, len(v), dim)
		}
	}

	sums := make([]float64, dim)
	for _, v := range vectors {
		for i, x := range v {
			sums[i] += float64(x)
		}
	}

	mean := make([]float32, dim)
	n := float64(len(vectors))
	for i, s := range sums {
		mean[i] = float32(s / n)
	}
	return mean, nil
}

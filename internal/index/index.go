// Package index provides in-process similarity indexes over memory
// embeddings. Three interchangeable backends are available: an exact
// brute-force scan, an approximate HNSW graph, and an embedded chromem
// vector collection.
package index

import (
	"fmt"
	"math"
)

// Match is a single index hit: a memory ID and its cosine similarity
// to the query vector, in [-1, 1].
type Match struct {
	ID         string
	Similarity float64
}

// SimilarityIndex is an in-memory vector index over memory embeddings.
// Implementations must be safe for concurrent use.
type SimilarityIndex interface {
	// Add inserts or replaces the vector for the given ID.
	Add(id string, vector []float32) error

	// Remove deletes the vector for the given ID. Removing an absent ID
	// is not an error.
	Remove(id string)

	// Search returns up to k matches ordered by descending similarity.
	Search(query []float32, k int) ([]Match, error)

	// Len reports the number of indexed vectors.
	Len() int
}

// New creates a SimilarityIndex for the given backend name.
// Supported backends: brute, hnsw, chromem.
func New(backend string) (SimilarityIndex, error) {
	switch backend {
	case "brute", "":
		return NewBruteForce(), nil
	case "hnsw":
		return NewHNSW(), nil
	case "chromem":
		return NewChromem()
	default:
		return nil, fmt.Errorf("index: unknown backend %q", backend)
	}
}

// cosine computes the cosine similarity between two float32 vectors.
// Mismatched lengths or a zero-magnitude vector yield 0.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

package index

import (
	"fmt"
	"sort"
	"sync"
)

// BruteForce is an exact similarity index that scans every stored vector
// on each search. It is the default backend: predictable, allocation-light,
// and fast enough for collections in the tens of thousands.
type BruteForce struct {
	mu      sync.RWMutex
	vectors map[string][]float32
}

// NewBruteForce creates an empty brute-force index.
func NewBruteForce() *BruteForce {
	return &BruteForce{
		vectors: make(map[string][]float32),
	}
}

// Add inserts or replaces the vector for the given ID.
func (b *BruteForce) Add(id string, vector []float32) error {
	if id == "" {
		return fmt.Errorf("index: id is required")
	}
	if len(vector) == 0 {
		return fmt.Errorf("index: vector is required")
	}
	stored := make([]float32, len(vector))
	copy(stored, vector)

	b.mu.Lock()
	b.vectors[id] = stored
	b.mu.Unlock()
	return nil
}

// Remove deletes the vector for the given ID.
func (b *BruteForce) Remove(id string) {
	b.mu.Lock()
	delete(b.vectors, id)
	b.mu.Unlock()
}

// Search scans all stored vectors and returns the top k by cosine similarity.
func (b *BruteForce) Search(query []float32, k int) ([]Match, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("index: query vector is required")
	}
	if k <= 0 {
		return nil, nil
	}

	b.mu.RLock()
	matches := make([]Match, 0, len(b.vectors))
	for id, vec := range b.vectors {
		matches = append(matches, Match{ID: id, Similarity: cosine(query, vec)})
	}
	b.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].ID < matches[j].ID
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Len reports the number of indexed vectors.
func (b *BruteForce) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.vectors)
}

var _ SimilarityIndex = (*BruteForce)(nil)

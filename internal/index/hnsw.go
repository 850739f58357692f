package index

import (
	"fmt"
	"sync"

	"github.com/coder/hnsw"
)

// HNSW is an approximate similarity index backed by a hierarchical
// navigable small world graph. Search cost grows logarithmically with
// collection size at the price of occasionally missing a true neighbor.
type HNSW struct {
	mu    sync.Mutex
	graph *hnsw.Graph[string]
	dim   int
}

// NewHNSW creates an empty HNSW index. The embedding dimension is fixed
// by the first vector added.
func NewHNSW() *HNSW {
	return &HNSW{
		graph: hnsw.NewGraph[string](),
	}
}

// Add inserts or replaces the vector for the given ID.
func (h *HNSW) Add(id string, vector []float32) error {
	if id == "" {
		return fmt.Errorf("index: id is required")
	}
	if len(vector) == 0 {
		return fmt.Errorf("index: vector is required")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.dim == 0 {
		h.dim = len(vector)
	} else if len(vector) != h.dim {
		return fmt.Errorf("index: vector dimension %d does not match index dimension %d", len(vector), h.dim)
	}

	h.graph.Delete(id)
	h.graph.Add(hnsw.MakeNode(id, vector))
	return nil
}

// Remove deletes the vector for the given ID.
func (h *HNSW) Remove(id string) {
	h.mu.Lock()
	h.graph.Delete(id)
	h.mu.Unlock()
}

// Search walks the graph and returns up to k matches by cosine similarity.
func (h *HNSW) Search(query []float32, k int) ([]Match, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("index: query vector is required")
	}
	if k <= 0 {
		return nil, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.dim != 0 && len(query) != h.dim {
		return nil, fmt.Errorf("index: query dimension %d does not match index dimension %d", len(query), h.dim)
	}

	neighbors := h.graph.Search(query, k)
	matches := make([]Match, 0, len(neighbors))
	for _, node := range neighbors {
		matches = append(matches, Match{ID: node.Key, Similarity: cosine(query, node.Value)})
	}
	return matches, nil
}

// Len reports the number of indexed vectors.
func (h *HNSW) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.graph.Len()
}

var _ SimilarityIndex = (*HNSW)(nil)

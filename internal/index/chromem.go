package index

import (
	"context"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// Chromem is a similarity index backed by an embedded chromem-go
// collection. Useful when the process already hosts chromem for other
// vector workloads and a single engine should serve both.
type Chromem struct {
	mu  sync.Mutex
	col *chromem.Collection
}

// NewChromem creates an empty chromem-backed index.
func NewChromem() (*Chromem, error) {
	db := chromem.NewDB()
	// Embeddings are always provided by the caller, so no embedding
	// function is configured. The default cosine distance applies.
	col, err := db.CreateCollection("engram", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("index: failed to create chromem collection: %w", err)
	}
	return &Chromem{col: col}, nil
}

// Add inserts or replaces the vector for the given ID.
func (c *Chromem) Add(id string, vector []float32) error {
	if id == "" {
		return fmt.Errorf("index: id is required")
	}
	if len(vector) == 0 {
		return fmt.Errorf("index: vector is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// chromem rejects duplicate IDs on add, so drop any prior version first.
	_ = c.col.Delete(context.Background(), nil, nil, id)

	doc := chromem.Document{
		ID:        id,
		Content:   id,
		Embedding: vector,
	}
	if err := c.col.AddDocument(context.Background(), doc); err != nil {
		return fmt.Errorf("index: failed to add document: %w", err)
	}
	return nil
}

// Remove deletes the vector for the given ID.
func (c *Chromem) Remove(id string) {
	c.mu.Lock()
	_ = c.col.Delete(context.Background(), nil, nil, id)
	c.mu.Unlock()
}

// Search queries the collection and returns up to k matches by cosine similarity.
func (c *Chromem) Search(query []float32, k int) ([]Match, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("index: query vector is required")
	}
	if k <= 0 {
		return nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// chromem requires nResults to be at most the collection size.
	count := c.col.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	results, err := c.col.QueryEmbedding(context.Background(), query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("index: chromem query failed: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, result := range results {
		matches = append(matches, Match{ID: result.ID, Similarity: float64(result.Similarity)})
	}
	return matches, nil
}

// Len reports the number of indexed vectors.
func (c *Chromem) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.col.Count()
}

var _ SimilarityIndex = (*Chromem)(nil)

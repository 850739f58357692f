package engine

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/recallstack/engram/internal/config"
	"github.com/recallstack/engram/internal/index"
	"github.com/recallstack/engram/internal/llm"
	"github.com/recallstack/engram/internal/storage"
	"github.com/recallstack/engram/pkg/types"
)

// relatedMemoryScore is the fixed score assigned to explicitly linked
// memories in FindRelated, placing them above most semantic matches.
const relatedMemoryScore = 0.9

// scoreWorkers bounds the concurrency of in-process vector scoring.
const scoreWorkers = 4

// candidatePageSize is how many tenant memories one search pass considers.
const candidatePageSize = 1000

// SearchResult is one ranked hit with its score breakdown.
type SearchResult struct {
	Memory *types.Memory

	// VectorScore is the cosine similarity to the query embedding, 0 when
	// the memory was only keyword-matched.
	VectorScore float64

	// KeywordScore is the fraction of query terms found in the content.
	KeywordScore float64

	// TemporalScore is the recency multiplier, 1.0 when temporal
	// weighting is disabled.
	TemporalScore float64

	// Score is the final combined score used for ranking.
	Score float64
}

// SearchOptions narrows and tunes a single search call. Zero values fall
// back to the configured defaults.
type SearchOptions struct {
	UserID            string
	MemoryType        string
	TemporalWeighting bool
	MaxResults        int
	MinScore          float64
}

// HybridSearcher ranks tenant memories by combining embedding similarity,
// keyword overlap, and optional temporal decay. When the embedding provider
// is unavailable the search degrades to keyword-only rather than failing.
type HybridSearcher struct {
	store    storage.Store
	embedder llm.EmbeddingGenerator
	idx      index.SimilarityIndex
	cache    *lru.Cache[string, []float32]
	cfg      config.SearchConfig
	now      func() time.Time
}

// NewHybridSearcher creates a HybridSearcher. The similarity index is
// optional; when nil, vector scoring falls back to the store's native
// vector search or an in-process scan over candidate embeddings.
func NewHybridSearcher(store storage.Store, embedder llm.EmbeddingGenerator, idx index.SimilarityIndex, cfg config.SearchConfig) (*HybridSearcher, error) {
	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = 256
	}
	cache, err := lru.New[string, []float32](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("engine: failed to create embedding cache: %w", err)
	}
	return &HybridSearcher{
		store:    store,
		embedder: embedder,
		idx:      idx,
		cache:    cache,
		cfg:      cfg,
		now:      time.Now,
	}, nil
}

// Search runs the hybrid ranking pipeline for a query within a tenant.
func (h *HybridSearcher) Search(ctx context.Context, tenantID, query string, opts SearchOptions) ([]SearchResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("engine: tenant id is required")
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("engine: query is required")
	}

	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = h.cfg.MaxResults
	}
	minScore := opts.MinScore
	if minScore <= 0 {
		minScore = h.cfg.MinScore
	}

	candidates, err := h.listCandidates(ctx, tenantID, opts)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	byID := make(map[string]*types.Memory, len(candidates))
	for _, mem := range candidates {
		byID[mem.ID] = mem
	}

	// Embedding failure degrades to keyword-only ranking. The baseline
	// query path must never fail because an enrichment provider is down.
	queryVec := h.embedQuery(ctx, query)

	vectorScores := map[string]float64{}
	if len(queryVec) > 0 {
		vectorScores = h.vectorScores(ctx, tenantID, queryVec, candidates, byID, opts, maxResults)
	}
	keywordScores := keywordScores(query, candidates)

	// Merge by memory id. A memory present in only one dimension scores 0
	// for the other.
	resultIDs := make(map[string]struct{}, len(vectorScores)+len(keywordScores))
	for id := range vectorScores {
		resultIDs[id] = struct{}{}
	}
	for id := range keywordScores {
		resultIDs[id] = struct{}{}
	}

	results := make([]SearchResult, 0, len(resultIDs))
	for id := range resultIDs {
		mem, ok := byID[id]
		if !ok {
			continue
		}
		r := SearchResult{
			Memory:        mem,
			VectorScore:   vectorScores[id],
			KeywordScore:  keywordScores[id],
			TemporalScore: 1.0,
		}
		r.Score = r.VectorScore*h.cfg.VectorWeight + r.KeywordScore*h.cfg.KeywordWeight
		if opts.TemporalWeighting {
			r.TemporalScore = math.Exp(-h.cfg.TemporalDecayRate * mem.AgeDays(h.now()))
			r.Score *= r.TemporalScore
		}
		if r.Score < minScore {
			continue
		}
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Memory.ID < results[j].Memory.ID
	})

	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

// FindRelated returns memories connected to the given memory, combining
// explicitly linked memories (at a high fixed score) with semantic matches
// for the memory's own content.
func (h *HybridSearcher) FindRelated(ctx context.Context, tenantID, memoryID string, opts SearchOptions) ([]SearchResult, error) {
	source, err := h.store.Get(ctx, tenantID, memoryID)
	if err != nil {
		return nil, fmt.Errorf("engine: failed to load memory %s: %w", memoryID, err)
	}

	rels, err := h.store.GetRelationships(ctx, tenantID, memoryID)
	if err != nil {
		return nil, fmt.Errorf("engine: failed to load relationships for %s: %w", memoryID, err)
	}

	linkedIDs := make([]string, 0, len(rels))
	for _, rel := range rels {
		linkedIDs = append(linkedIDs, rel.OtherEnd(memoryID))
	}

	merged := make(map[string]SearchResult)
	if len(linkedIDs) > 0 {
		linked, err := h.store.GetBatch(ctx, tenantID, linkedIDs)
		if err != nil {
			return nil, fmt.Errorf("engine: failed to load linked memories: %w", err)
		}
		for _, mem := range linked {
			merged[mem.ID] = SearchResult{Memory: mem, TemporalScore: 1.0, Score: relatedMemoryScore}
		}
	}

	semantic, err := h.Search(ctx, tenantID, source.Content, opts)
	if err != nil {
		return nil, err
	}
	for _, r := range semantic {
		if r.Memory.ID == memoryID {
			continue
		}
		if existing, ok := merged[r.Memory.ID]; !ok || r.Score > existing.Score {
			merged[r.Memory.ID] = r
		}
	}
	delete(merged, memoryID)

	results := make([]SearchResult, 0, len(merged))
	for _, r := range merged {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Memory.ID < results[j].Memory.ID
	})

	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = h.cfg.MaxResults
	}
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

// embedQuery returns the query embedding, consulting the LRU cache first.
// On provider failure it logs and returns nil so the caller can degrade
// to keyword-only ranking.
func (h *HybridSearcher) embedQuery(ctx context.Context, query string) []float32 {
	if h.embedder == nil {
		return nil
	}
	if vec, ok := h.cache.Get(query); ok {
		return vec
	}
	vec, err := h.embedder.Embed(ctx, query)
	if err != nil {
		log.Printf("search: query embedding failed, degrading to keyword-only: %v", err)
		return nil
	}
	h.cache.Add(query, vec)
	return vec
}

// vectorScores computes cosine similarity per candidate. It prefers the
// store's native vector search, then the in-process similarity index,
// then a parallel scan over candidate embeddings.
func (h *HybridSearcher) vectorScores(ctx context.Context, tenantID string, queryVec []float32, candidates []*types.Memory, byID map[string]*types.Memory, opts SearchOptions, maxResults int) map[string]float64 {
	if vs, ok := h.store.(storage.VectorSearcher); ok {
		matches, err := vs.VectorSearch(ctx, tenantID, queryVec, maxResults*2)
		if err == nil {
			scores := make(map[string]float64, len(matches))
			for _, m := range matches {
				// Native search is tenant-wide, so the caller's filters
				// must be re-applied to each match.
				if !matchesFilters(m.Memory, opts) {
					continue
				}
				scores[m.Memory.ID] = m.Similarity
				if _, known := byID[m.Memory.ID]; !known {
					byID[m.Memory.ID] = m.Memory
				}
			}
			return scores
		}
		log.Printf("search: native vector search failed, falling back to scan: %v", err)
	}

	if h.idx != nil && h.idx.Len() > 0 {
		matches, err := h.idx.Search(queryVec, maxResults*2)
		if err == nil {
			scores := make(map[string]float64, len(matches))
			for _, m := range matches {
				if _, known := byID[m.ID]; known {
					scores[m.ID] = m.Similarity
				}
			}
			return scores
		}
		log.Printf("search: similarity index search failed, falling back to scan: %v", err)
	}

	return scanScores(queryVec, candidates)
}

// matchesFilters reports whether a memory satisfies the optional user and
// type filters of a search call.
func matchesFilters(mem *types.Memory, opts SearchOptions) bool {
	if opts.UserID != "" && mem.UserID != opts.UserID {
		return false
	}
	if opts.MemoryType != "" && mem.MemoryType != opts.MemoryType {
		return false
	}
	return true
}

// scanScores computes cosine similarity against every candidate embedding,
// chunked across a small worker pool. Candidates without embeddings and
// dimension mismatches are skipped.
func scanScores(queryVec []float32, candidates []*types.Memory) map[string]float64 {
	type scored struct {
		id    string
		score float64
	}

	out := make(chan scored, len(candidates))
	var wg sync.WaitGroup

	chunk := (len(candidates) + scoreWorkers - 1) / scoreWorkers
	for start := 0; start < len(candidates); start += chunk {
		end := start + chunk
		if end > len(candidates) {
			end = len(candidates)
		}
		wg.Add(1)
		go func(part []*types.Memory) {
			defer wg.Done()
			for _, mem := range part {
				if len(mem.Embedding) == 0 {
					continue
				}
				sim, err := CosineSimilarity(queryVec, mem.Embedding)
				if err != nil {
					continue
				}
				out <- scored{id: mem.ID, score: sim}
			}
		}(candidates[start:end])
	}

	wg.Wait()
	close(out)

	scores := make(map[string]float64, len(candidates))
	for s := range out {
		scores[s.id] = s.score
	}
	return scores
}

// keywordScores scores each candidate by the fraction of query terms
// (longer than 2 characters) found as case-insensitive substrings of its
// content.
func keywordScores(query string, candidates []*types.Memory) map[string]float64 {
	var terms []string
	for _, term := range strings.Fields(strings.ToLower(query)) {
		if len(term) > 2 {
			terms = append(terms, term)
		}
	}
	if len(terms) == 0 {
		return nil
	}

	scores := make(map[string]float64, len(candidates))
	for _, mem := range candidates {
		content := strings.ToLower(mem.Content)
		hits := 0
		for _, term := range terms {
			if strings.Contains(content, term) {
				hits++
			}
		}
		if hits > 0 {
			scores[mem.ID] = float64(hits) / float64(len(terms))
		}
	}
	return scores
}

// listCandidates fetches the tenant's candidate memories for one search pass.
func (h *HybridSearcher) listCandidates(ctx context.Context, tenantID string, opts SearchOptions) ([]*types.Memory, error) {
	// Unembedded memories stay in the candidate set so keyword matching
	// can still surface them; the vector scan skips them.
	listOpts := storage.ListOptions{
		Limit:      candidatePageSize,
		UserID:     opts.UserID,
		MemoryType: opts.MemoryType,
	}
	page, err := h.store.List(ctx, tenantID, listOpts)
	if err != nil {
		return nil, fmt.Errorf("engine: failed to list candidate memories: %w", err)
	}
	candidates := make([]*types.Memory, len(page.Items))
	for i := range page.Items {
		candidates[i] = &page.Items[i]
	}
	return candidates, nil
}

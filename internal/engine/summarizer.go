package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/recallstack/engram/internal/config"
	"github.com/recallstack/engram/internal/llm"
	"github.com/recallstack/engram/internal/storage"
	"github.com/recallstack/engram/pkg/types"
)

// Summarizer condenses clusters of similar same-type memories into summary
// memories with provenance links back to the originals. Runs as a periodic
// batch pass, never on the live query path.
type Summarizer struct {
	store     storage.Store
	generator llm.TextGenerator
	embedder  llm.EmbeddingGenerator
	cfg       config.SummarizeConfig
	now       func() time.Time
}

// NewSummarizer creates a Summarizer. The embedder is optional; when nil,
// summary memories are stored without embeddings and picked up by a later
// re-embedding pass.
func NewSummarizer(store storage.Store, generator llm.TextGenerator, embedder llm.EmbeddingGenerator, cfg config.SummarizeConfig) *Summarizer {
	return &Summarizer{
		store:     store,
		generator: generator,
		embedder:  embedder,
		cfg:       cfg,
		now:       time.Now,
	}
}

// ClusterByType partitions memories by memory_type, then clusters within
// each type by pairwise cosine similarity using a single-link rule: an
// unassigned memory seeds a new cluster and pulls in every other unassigned
// memory whose similarity to the seed clears the threshold. Memories
// without embeddings are excluded. The procedure is deterministic for a
// fixed input order, so re-clustering an unchanged set reproduces the same
// partition.
func (s *Summarizer) ClusterByType(memories []*types.Memory) map[string][][]*types.Memory {
	byType := make(map[string][]*types.Memory)
	for _, mem := range memories {
		if len(mem.Embedding) == 0 {
			continue
		}
		byType[mem.MemoryType] = append(byType[mem.MemoryType], mem)
	}

	clusters := make(map[string][][]*types.Memory, len(byType))
	for memoryType, group := range byType {
		clusters[memoryType] = clusterBySimilarity(group, s.cfg.SimilarityThreshold)
	}
	return clusters
}

// clusterBySimilarity applies the single-link greedy rule within one type.
func clusterBySimilarity(memories []*types.Memory, threshold float64) [][]*types.Memory {
	// Stable seed order keeps clustering idempotent.
	ordered := make([]*types.Memory, len(memories))
	copy(ordered, memories)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	assigned := make(map[string]bool, len(ordered))
	var clusters [][]*types.Memory

	for _, seed := range ordered {
		if assigned[seed.ID] {
			continue
		}
		cluster := []*types.Memory{seed}
		assigned[seed.ID] = true

		for _, candidate := range ordered {
			if assigned[candidate.ID] {
				continue
			}
			sim, err := CosineSimilarity(seed.Embedding, candidate.Embedding)
			if err != nil {
				continue
			}
			if sim >= threshold {
				cluster = append(cluster, candidate)
				assigned[candidate.ID] = true
			}
		}
		clusters = append(clusters, cluster)
	}
	return clusters
}

// SummarizeAll clusters the tenant's non-summary memories and summarizes
// every eligible cluster. A failed cluster is logged and skipped without
// affecting the others. Returns the number of summaries created.
func (s *Summarizer) SummarizeAll(ctx context.Context, tenantID string) (int, error) {
	page, err := s.store.List(ctx, tenantID, storage.ListOptions{
		Limit:          1000,
		WithEmbeddings: true,
	})
	if err != nil {
		return 0, fmt.Errorf("engine: failed to list memories for summarization: %w", err)
	}

	memories := make([]*types.Memory, 0, len(page.Items))
	for i := range page.Items {
		if page.Items[i].IsSummary() {
			continue
		}
		// Originals already folded into a summary stay out of future passes.
		if page.Items[i].Metadata.SummaryRef != "" {
			continue
		}
		memories = append(memories, &page.Items[i])
	}

	created := 0
	for memoryType, clusters := range s.ClusterByType(memories) {
		for _, cluster := range clusters {
			if len(cluster) < s.cfg.MinMemoriesForSummary {
				continue
			}
			if err := s.summarizeCluster(ctx, tenantID, memoryType, cluster); err != nil {
				log.Printf("summarizer: cluster of %d %s memories failed: %v", len(cluster), memoryType, err)
				continue
			}
			created++
		}
	}
	return created, nil
}

// summarizeCluster produces and persists one summary memory for a cluster,
// wiring summarizes relationships and back-references.
func (s *Summarizer) summarizeCluster(ctx context.Context, tenantID, memoryType string, cluster []*types.Memory) error {
	if len(cluster) > s.cfg.MaxMemoriesPerSummary {
		cluster = cluster[:s.cfg.MaxMemoriesPerSummary]
	}

	contents := make([]string, len(cluster))
	for i, mem := range cluster {
		contents[i] = mem.Content
	}

	summary, err := s.generator.Complete(ctx, llm.SummarizationPrompt(memoryType, contents, s.cfg.MaxSummaryLength))
	if err != nil {
		return fmt.Errorf("summary generation failed: %w", err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return fmt.Errorf("summary generation returned empty response")
	}
	summary = truncateBytes(summary, s.cfg.MaxSummaryLength)

	var embedding []float32
	if s.embedder != nil {
		embedding, err = s.embedder.Embed(ctx, summary)
		if err != nil {
			return fmt.Errorf("summary embedding failed: %w", err)
		}
	}

	originalIDs := make([]string, len(cluster))
	for i, mem := range cluster {
		originalIDs[i] = mem.ID
	}

	now := s.now().UTC()
	summaryMemory := &types.Memory{
		ID:              newMemoryID(),
		TenantID:        tenantID,
		Content:         summary,
		MemoryType:      memoryType,
		Embedding:       embedding,
		ImportanceScore: types.DefaultTypeImportance(memoryType),
		Metadata: types.Metadata{
			IsSummary:         true,
			OriginalMemoryIDs: originalIDs,
			SummarizedCount:   len(cluster),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Store(ctx, summaryMemory); err != nil {
		return fmt.Errorf("failed to store summary memory: %w", err)
	}

	rels := make([]*types.Relationship, len(cluster))
	for i, mem := range cluster {
		rels[i] = &types.Relationship{
			ID:        newRelationshipID(),
			TenantID:  tenantID,
			SourceID:  summaryMemory.ID,
			TargetID:  mem.ID,
			Type:      types.RelSummarizes,
			Strength:  1.0,
			CreatedAt: now,
		}
	}
	if err := s.store.StoreRelationships(ctx, rels); err != nil {
		return fmt.Errorf("failed to store summarizes relationships: %w", err)
	}

	// Stamp each original with a back-reference to its summary. Concurrent
	// summarization of overlapping sets may overwrite a reference; the last
	// writer wins, which is tolerable for an advisory pointer.
	for _, mem := range cluster {
		meta := mem.Metadata
		meta.SummaryRef = summaryMemory.ID
		if err := s.store.UpdateMetadata(ctx, tenantID, mem.ID, meta); err != nil {
			return fmt.Errorf("failed to back-reference %s: %w", mem.ID, err)
		}
		mem.Metadata = meta
	}

	log.Printf("summarizer: condensed %d %s memories into %s", len(cluster), memoryType, summaryMemory.ID)
	return nil
}

package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/recallstack/engram/internal/config"
	"github.com/recallstack/engram/internal/llm"
	"github.com/recallstack/engram/internal/storage"
	"github.com/recallstack/engram/pkg/types"
)

// maxChainLength bounds how many memories one chain may contain.
const maxChainLength = 5

// ChainReasoner asks the language model to propose causal/logical chains
// and contradictions across retrieved memories. Both operations are
// advisory enrichment: on provider or parse failure they return empty
// results, never an error that would block baseline retrieval.
type ChainReasoner struct {
	store     storage.Store
	searcher  *HybridSearcher
	generator llm.TextGenerator
	embedder  llm.EmbeddingGenerator
	cfg       config.ChainsConfig
	now       func() time.Time
}

// NewChainReasoner creates a ChainReasoner.
func NewChainReasoner(store storage.Store, searcher *HybridSearcher, generator llm.TextGenerator, embedder llm.EmbeddingGenerator, cfg config.ChainsConfig) *ChainReasoner {
	return &ChainReasoner{
		store:     store,
		searcher:  searcher,
		generator: generator,
		embedder:  embedder,
		cfg:       cfg,
		now:       time.Now,
	}
}

// DiscoverChains retrieves candidates for the query, asks the model to
// propose chains, and persists accepted ones: follows relationships link
// consecutive members and a synthesized insight memory is linked
// related_to every member.
func (r *ChainReasoner) DiscoverChains(ctx context.Context, tenantID, query string) ([]types.MemoryChain, error) {
	candidates, byID, err := r.candidates(ctx, tenantID, query)
	if err != nil {
		return nil, err
	}
	if len(candidates) < 2 {
		return nil, nil
	}

	relLines := r.relationshipLines(ctx, tenantID, candidates)

	response, err := r.generator.Complete(ctx, llm.ChainProposalPrompt(query, candidateLines(candidates), relLines))
	if err != nil {
		log.Printf("chains: proposal call failed, returning no chains: %v", err)
		return nil, nil
	}

	proposed, err := llm.ParseChainResponse(response)
	if err != nil {
		log.Printf("chains: malformed proposal response, returning no chains: %v", err)
		return nil, nil
	}

	var accepted []types.MemoryChain
	for _, p := range proposed {
		if len(accepted) >= r.cfg.MaxChains {
			break
		}
		if p.Confidence < r.cfg.MinConfidence {
			continue
		}
		if len(p.MemoryIDs) > maxChainLength {
			continue
		}
		if !allKnown(p.MemoryIDs, byID) {
			log.Printf("chains: skipping chain %q referencing unknown memory ids", p.Name)
			continue
		}

		chain := types.MemoryChain{
			Name:       p.Name,
			MemoryIDs:  p.MemoryIDs,
			Rationale:  p.Rationale,
			Confidence: p.Confidence,
		}
		if err := r.persistChain(ctx, tenantID, chain); err != nil {
			log.Printf("chains: failed to persist chain %q: %v", chain.Name, err)
			continue
		}
		accepted = append(accepted, chain)
	}
	return accepted, nil
}

// FindContradictions asks the model to identify pairs of memories whose
// content logically conflicts. Results are advisory and not persisted.
func (r *ChainReasoner) FindContradictions(ctx context.Context, tenantID, query string) ([]types.Contradiction, error) {
	candidates, byID, err := r.candidates(ctx, tenantID, query)
	if err != nil {
		return nil, err
	}
	if len(candidates) < 2 {
		return nil, nil
	}

	response, err := r.generator.Complete(ctx, llm.ContradictionPrompt(candidateLines(candidates)))
	if err != nil {
		log.Printf("chains: contradiction call failed, returning none: %v", err)
		return nil, nil
	}

	parsed, err := llm.ParseContradictionResponse(response)
	if err != nil {
		log.Printf("chains: malformed contradiction response, returning none: %v", err)
		return nil, nil
	}

	var results []types.Contradiction
	for _, c := range parsed {
		if c.Confidence < r.cfg.MinConfidence {
			continue
		}
		if _, ok := byID[c.MemoryID1]; !ok {
			continue
		}
		if _, ok := byID[c.MemoryID2]; !ok {
			continue
		}
		results = append(results, types.Contradiction{
			MemoryID1:   c.MemoryID1,
			MemoryID2:   c.MemoryID2,
			Explanation: c.Explanation,
			Confidence:  c.Confidence,
		})
	}
	return results, nil
}

// candidates retrieves the query's top memories above the confidence
// threshold.
func (r *ChainReasoner) candidates(ctx context.Context, tenantID, query string) ([]SearchResult, map[string]*types.Memory, error) {
	results, err := r.searcher.Search(ctx, tenantID, query, SearchOptions{
		MinScore: r.cfg.MinConfidence,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("engine: candidate retrieval failed: %w", err)
	}
	byID := make(map[string]*types.Memory, len(results))
	for _, res := range results {
		byID[res.Memory.ID] = res.Memory
	}
	return results, byID, nil
}

// relationshipLines renders the candidates' existing edges as prompt hints.
// Failures here only degrade the hint section.
func (r *ChainReasoner) relationshipLines(ctx context.Context, tenantID string, candidates []SearchResult) []string {
	seen := make(map[string]bool)
	var lines []string
	for _, res := range candidates {
		rels, err := r.store.GetRelationships(ctx, tenantID, res.Memory.ID)
		if err != nil {
			log.Printf("chains: failed to load relationships for %s: %v", res.Memory.ID, err)
			continue
		}
		for _, rel := range rels {
			if seen[rel.ID] {
				continue
			}
			seen[rel.ID] = true
			lines = append(lines, fmt.Sprintf("%s -%s-> %s", rel.SourceID, rel.Type, rel.TargetID))
		}
	}
	return lines
}

// persistChain writes the follows relationships and the insight memory
// for an accepted chain.
func (r *ChainReasoner) persistChain(ctx context.Context, tenantID string, chain types.MemoryChain) error {
	now := r.now().UTC()

	rels := make([]*types.Relationship, 0, len(chain.MemoryIDs)-1+len(chain.MemoryIDs))
	for i := 0; i < len(chain.MemoryIDs)-1; i++ {
		rels = append(rels, &types.Relationship{
			ID:        newRelationshipID(),
			TenantID:  tenantID,
			SourceID:  chain.MemoryIDs[i],
			TargetID:  chain.MemoryIDs[i+1],
			Type:      types.RelFollows,
			Strength:  chain.Confidence,
			CreatedAt: now,
		})
	}

	content := fmt.Sprintf("Chain %q: %s", chain.Name, chain.Rationale)
	var embedding []float32
	if r.embedder != nil {
		vec, err := r.embedder.Embed(ctx, content)
		if err != nil {
			log.Printf("chains: insight embedding failed, storing without: %v", err)
		} else {
			embedding = vec
		}
	}

	insight := &types.Memory{
		ID:              newMemoryID(),
		TenantID:        tenantID,
		Content:         content,
		MemoryType:      types.MemoryTypeInsight,
		Embedding:       embedding,
		ImportanceScore: types.DefaultTypeImportance(types.MemoryTypeInsight),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := r.store.Store(ctx, insight); err != nil {
		return fmt.Errorf("failed to store insight memory: %w", err)
	}

	for _, memberID := range chain.MemoryIDs {
		rels = append(rels, &types.Relationship{
			ID:        newRelationshipID(),
			TenantID:  tenantID,
			SourceID:  insight.ID,
			TargetID:  memberID,
			Type:      types.RelRelatedTo,
			Strength:  chain.Confidence,
			CreatedAt: now,
		})
	}
	if err := r.store.StoreRelationships(ctx, rels); err != nil {
		return fmt.Errorf("failed to store chain relationships: %w", err)
	}
	return nil
}

// candidateLines renders candidates as "id | content" prompt lines.
func candidateLines(candidates []SearchResult) []string {
	lines := make([]string, len(candidates))
	for i, res := range candidates {
		content := strings.ReplaceAll(res.Memory.Content, "\n", " ")
		lines[i] = fmt.Sprintf("%s | %s", res.Memory.ID, content)
	}
	return lines
}

// allKnown reports whether every id is present in the candidate set.
func allKnown(ids []string, byID map[string]*types.Memory) bool {
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return false
		}
	}
	return true
}

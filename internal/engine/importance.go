package engine

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/recallstack/engram/internal/config"
	"github.com/recallstack/engram/internal/storage"
	"github.com/recallstack/engram/pkg/types"
)

// persistBatchSize bounds how many score writes go out per chunk.
const persistBatchSize = 50

// usageCap normalizes raw access counts: usageCap accesses saturate the
// usage sub-score at 1.0.
const usageCap = 100

// densityCap normalizes raw edge counts the same way.
const densityCap = 20

// ScoredMemory pairs a memory with its computed importance score.
type ScoredMemory struct {
	Memory *types.Memory
	Score  float64
}

// Scorer computes composite importance scores from recency, usage,
// feedback, relationship density, and explicit weight.
type Scorer struct {
	store storage.Store
	cfg   config.ImportanceConfig
	now   func() time.Time
}

// NewScorer creates a Scorer. The weight configuration must pass
// config.Validate before use; weights summing past 1.0 would push the
// composite score out of [0, 1].
func NewScorer(store storage.Store, cfg config.ImportanceConfig) *Scorer {
	return &Scorer{
		store: store,
		cfg:   cfg,
		now:   time.Now,
	}
}

// Score computes the importance of a single memory, fetching its access
// and relationship counts from storage. The result is always in [0, 1].
func (s *Scorer) Score(ctx context.Context, mem *types.Memory) (float64, error) {
	if mem == nil {
		return 0, fmt.Errorf("engine: memory is required")
	}

	accesses, err := s.store.CountAccesses(ctx, mem.TenantID, mem.ID)
	if err != nil {
		return 0, fmt.Errorf("engine: failed to count accesses for %s: %w", mem.ID, err)
	}
	edges, err := s.store.CountRelationships(ctx, mem.TenantID, mem.ID)
	if err != nil {
		return 0, fmt.Errorf("engine: failed to count relationships for %s: %w", mem.ID, err)
	}

	return s.composite(mem, accesses, edges), nil
}

// ScoreAndSort computes importance for every memory and returns them
// sorted by descending score. Access counts are fetched in one batched
// query; relationship counts per memory.
func (s *Scorer) ScoreAndSort(ctx context.Context, tenantID string, memories []*types.Memory) ([]ScoredMemory, error) {
	if len(memories) == 0 {
		return nil, nil
	}

	ids := make([]string, len(memories))
	for i, mem := range memories {
		ids[i] = mem.ID
	}

	accessCounts, err := s.store.CountAccessesBatch(ctx, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("engine: failed to count accesses: %w", err)
	}

	scored := make([]ScoredMemory, 0, len(memories))
	for _, mem := range memories {
		edges, err := s.store.CountRelationships(ctx, tenantID, mem.ID)
		if err != nil {
			return nil, fmt.Errorf("engine: failed to count relationships for %s: %w", mem.ID, err)
		}
		scored = append(scored, ScoredMemory{
			Memory: mem,
			Score:  s.composite(mem, accessCounts[mem.ID], edges),
		})
	}

	sortScoredDescending(scored)
	return scored, nil
}

// PersistScores writes computed scores back to storage in bounded-size
// batches, stamping each memory's metadata with the computation time.
func (s *Scorer) PersistScores(ctx context.Context, tenantID string, scored []ScoredMemory) error {
	now := s.now().UTC()
	for start := 0; start < len(scored); start += persistBatchSize {
		end := start + persistBatchSize
		if end > len(scored) {
			end = len(scored)
		}
		for _, sm := range scored[start:end] {
			if err := s.store.UpdateImportance(ctx, tenantID, sm.Memory.ID, sm.Score); err != nil {
				return fmt.Errorf("engine: failed to persist score for %s: %w", sm.Memory.ID, err)
			}
			meta := sm.Memory.Metadata
			score := sm.Score
			stamp := now
			meta.Importance = &score
			meta.ImportanceComputedAt = &stamp
			if err := s.store.UpdateMetadata(ctx, tenantID, sm.Memory.ID, meta); err != nil {
				return fmt.Errorf("engine: failed to stamp metadata for %s: %w", sm.Memory.ID, err)
			}
			sm.Memory.Metadata = meta
			sm.Memory.ImportanceScore = sm.Score
		}
		log.Printf("importance: persisted scores %d-%d of %d", start, end, len(scored))
	}
	return nil
}

// composite combines the five sub-scores under the configured weights and
// clamps the result to [0, 1].
func (s *Scorer) composite(mem *types.Memory, accessCount, edgeCount int) float64 {
	score := s.recencyScore(mem)*s.cfg.RecencyWeight +
		s.usageScore(accessCount)*s.cfg.UsageWeight +
		s.feedbackScore(mem)*s.cfg.FeedbackWeight +
		s.densityScore(edgeCount)*s.cfg.DensityWeight +
		s.explicitScore(mem)*s.cfg.TypeWeight
	return clamp01(score)
}

// recencyScore is 1.0 within the grace window, then decays exponentially
// with age in days.
func (s *Scorer) recencyScore(mem *types.Memory) float64 {
	age := mem.AgeDays(s.now())
	if age <= s.cfg.RecencyGraceDays {
		return 1.0
	}
	return math.Exp(-s.cfg.RecencyDecayRate * age)
}

// usageScore normalizes the access count by the cap and clamps to 1.
func (s *Scorer) usageScore(count int) float64 {
	if count <= 0 {
		return 0
	}
	return clamp01(float64(count) / usageCap)
}

// feedbackScore maps a 1-5 feedback scale onto [0, 1]. Absent feedback
// is neutral 0.5.
func (s *Scorer) feedbackScore(mem *types.Memory) float64 {
	fs := mem.Metadata.FeedbackScore
	if fs == nil {
		return 0.5
	}
	return clamp01((*fs - 1) / 4)
}

// densityScore normalizes the edge count by the cap and clamps to 1.
func (s *Scorer) densityScore(count int) float64 {
	if count <= 0 {
		return 0
	}
	return clamp01(float64(count) / densityCap)
}

// explicitScore uses metadata.importance when present, otherwise a fixed
// default keyed by memory type.
func (s *Scorer) explicitScore(mem *types.Memory) float64 {
	if imp := mem.Metadata.Importance; imp != nil {
		return clamp01(*imp)
	}
	return types.DefaultTypeImportance(mem.MemoryType)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// sortScoredDescending orders by score descending, breaking ties by id
// for deterministic output.
func sortScoredDescending(scored []ScoredMemory) {
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Memory.ID < scored[j].Memory.ID
	})
}

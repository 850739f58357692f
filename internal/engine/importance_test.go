package engine

import (
	"context"
	"testing"
	"time"

	"github.com/recallstack/engram/pkg/types"
)

func TestScoreWithinRangeForExtremeInputs(t *testing.T) {
	store := newTestStore(t)
	cfg := testConfig(t)
	scorer := NewScorer(store, cfg.Importance)
	em := &fakeEmbedder{}
	ctx := context.Background()

	negativeFeedback := -3.0
	hugeImportance := 99.0

	cases := []struct {
		name string
		mem  *types.Memory
	}{
		{
			name: "very old with negative feedback",
			mem: func() *types.Memory {
				m := storeMemory(t, store, em, "mem:old", "ancient fact", types.MemoryTypeObservation, time.Now().AddDate(-10, 0, 0))
				m.Metadata.FeedbackScore = &negativeFeedback
				return m
			}(),
		},
		{
			name: "explicit importance out of range",
			mem: func() *types.Memory {
				m := storeMemory(t, store, em, "mem:big", "overweighted fact", types.MemoryTypeDecision, time.Now())
				m.Metadata.Importance = &hugeImportance
				return m
			}(),
		},
		{
			name: "fresh with nothing else",
			mem:  storeMemory(t, store, em, "mem:fresh", "new fact", types.MemoryTypeInteraction, time.Now()),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			score, err := scorer.Score(ctx, tc.mem)
			if err != nil {
				t.Fatalf("Score failed: %v", err)
			}
			if score < 0 || score > 1 {
				t.Errorf("score %f out of [0,1]", score)
			}
		})
	}
}

func TestOldObservationScoresLowerThanFresh(t *testing.T) {
	store := newTestStore(t)
	cfg := testConfig(t)
	scorer := NewScorer(store, cfg.Importance)
	em := &fakeEmbedder{}
	ctx := context.Background()

	old := storeMemory(t, store, em, "mem:stale", "server room temperature normal", types.MemoryTypeObservation, time.Now().AddDate(0, -6, 0))
	fresh := storeMemory(t, store, em, "mem:today", "server room temperature normal", types.MemoryTypeObservation, time.Now())

	oldScore, err := scorer.Score(ctx, old)
	if err != nil {
		t.Fatalf("Score(old) failed: %v", err)
	}
	freshScore, err := scorer.Score(ctx, fresh)
	if err != nil {
		t.Fatalf("Score(fresh) failed: %v", err)
	}

	if oldScore >= freshScore {
		t.Errorf("old memory scored %f, expected strictly below fresh %f", oldScore, freshScore)
	}
}

func TestScoreAndSortDescending(t *testing.T) {
	store := newTestStore(t)
	cfg := testConfig(t)
	scorer := NewScorer(store, cfg.Importance)
	em := &fakeEmbedder{}
	ctx := context.Background()

	memories := []*types.Memory{
		storeMemory(t, store, em, "mem:a", "a low value note", types.MemoryTypeInteraction, time.Now().AddDate(-1, 0, 0)),
		storeMemory(t, store, em, "mem:b", "a key insight", types.MemoryTypeInsight, time.Now()),
		storeMemory(t, store, em, "mem:c", "a decision", types.MemoryTypeDecision, time.Now()),
	}

	scored, err := scorer.ScoreAndSort(ctx, testTenant, memories)
	if err != nil {
		t.Fatalf("ScoreAndSort failed: %v", err)
	}
	if len(scored) != 3 {
		t.Fatalf("expected 3 scored memories, got %d", len(scored))
	}
	for i := 1; i < len(scored); i++ {
		if scored[i-1].Score < scored[i].Score {
			t.Errorf("scores not descending at %d: %f < %f", i, scored[i-1].Score, scored[i].Score)
		}
	}
	if scored[0].Memory.ID != "mem:b" {
		t.Errorf("expected the insight to rank first, got %s", scored[0].Memory.ID)
	}
}

func TestPersistScoresStampsMetadata(t *testing.T) {
	store := newTestStore(t)
	cfg := testConfig(t)
	scorer := NewScorer(store, cfg.Importance)
	em := &fakeEmbedder{}
	ctx := context.Background()

	mem := storeMemory(t, store, em, "mem:persist", "a fact to rescore", types.MemoryTypeObservation, time.Now())

	scored, err := scorer.ScoreAndSort(ctx, testTenant, []*types.Memory{mem})
	if err != nil {
		t.Fatalf("ScoreAndSort failed: %v", err)
	}
	if err := scorer.PersistScores(ctx, testTenant, scored); err != nil {
		t.Fatalf("PersistScores failed: %v", err)
	}

	reloaded, err := store.Get(ctx, testTenant, mem.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if reloaded.ImportanceScore != scored[0].Score {
		t.Errorf("persisted score %f, expected %f", reloaded.ImportanceScore, scored[0].Score)
	}
	if reloaded.Metadata.Importance == nil || *reloaded.Metadata.Importance != scored[0].Score {
		t.Error("metadata importance not stamped")
	}
	if reloaded.Metadata.ImportanceComputedAt == nil {
		t.Error("metadata importance_computed_at not stamped")
	}
}

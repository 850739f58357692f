package engine

import (
	"context"
	"testing"
	"time"

	"github.com/recallstack/engram/internal/storage"
	"github.com/recallstack/engram/pkg/types"
)

// baseStore aliases storage.Store so it can be embedded without the field
// name colliding with the interface's Store method.
type baseStore = storage.Store

// vectorStore wraps a store with a canned native vector search.
type vectorStore struct {
	baseStore
	matches []storage.VectorMatch
}

func (v *vectorStore) VectorSearch(_ context.Context, _ string, _ []float32, _ int) ([]storage.VectorMatch, error) {
	return v.matches, nil
}

func TestSearchRanksPreferencesAboveUnrelated(t *testing.T) {
	store := newTestStore(t)
	cfg := testConfig(t)
	em := &fakeEmbedder{}
	searcher, err := NewHybridSearcher(store, em, nil, cfg.Search)
	if err != nil {
		t.Fatalf("failed to create searcher: %v", err)
	}
	ctx := context.Background()

	storeMemory(t, store, em, "mem:pref1", "customer prefers email contact", types.MemoryTypePreference, time.Now())
	storeMemory(t, store, em, "mem:pref2", "contact this customer by email", types.MemoryTypePreference, time.Now())
	storeMemory(t, store, em, "mem:maint", "server maintenance window friday night", types.MemoryTypeObservation, time.Now())

	results, err := searcher.Search(ctx, testTenant, "how should I contact this customer", SearchOptions{MinScore: 0.05})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) < 2 {
		t.Fatalf("expected both preference memories, got %d results", len(results))
	}

	rank := make(map[string]int)
	for i, r := range results {
		rank[r.Memory.ID] = i + 1
	}
	if _, found := rank["mem:maint"]; found {
		if rank["mem:maint"] < rank["mem:pref1"] || rank["mem:maint"] < rank["mem:pref2"] {
			t.Errorf("maintenance memory outranked a preference memory: %v", rank)
		}
	}
}

func TestSearchThresholdAndTruncation(t *testing.T) {
	store := newTestStore(t)
	cfg := testConfig(t)
	em := &fakeEmbedder{}
	searcher, err := NewHybridSearcher(store, em, nil, cfg.Search)
	if err != nil {
		t.Fatalf("failed to create searcher: %v", err)
	}
	ctx := context.Background()

	storeMemory(t, store, em, "mem:exact", "project alpha deadline status", types.MemoryTypeObservation, time.Now())
	storeMemory(t, store, em, "mem:far", "lunch menu rotation schedule", types.MemoryTypeObservation, time.Now())

	results, err := searcher.Search(ctx, testTenant, "project alpha deadline status", SearchOptions{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].Memory.ID != "mem:exact" {
		t.Fatalf("default threshold should keep only the exact match, got %+v", resultIDs(results))
	}
	if results[0].Score < cfg.Search.MinScore {
		t.Errorf("returned result below threshold: %f", results[0].Score)
	}

	limited, err := searcher.Search(ctx, testTenant, "project alpha deadline status", SearchOptions{MinScore: 0.01, MaxResults: 1})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("MaxResults=1 returned %d results", len(limited))
	}
}

func TestSearchDegradesToKeywordOnEmbedFailure(t *testing.T) {
	store := newTestStore(t)
	cfg := testConfig(t)
	good := &fakeEmbedder{}
	searcher, err := NewHybridSearcher(store, &fakeEmbedder{err: errProviderDown}, nil, cfg.Search)
	if err != nil {
		t.Fatalf("failed to create searcher: %v", err)
	}
	ctx := context.Background()

	storeMemory(t, store, good, "mem:kw", "customer prefers email contact", types.MemoryTypePreference, time.Now())

	results, err := searcher.Search(ctx, testTenant, "customer email contact", SearchOptions{MinScore: 0.1})
	if err != nil {
		t.Fatalf("keyword-only degradation should not fail: %v", err)
	}
	if len(results) != 1 || results[0].Memory.ID != "mem:kw" {
		t.Fatalf("expected keyword hit, got %+v", resultIDs(results))
	}
	if results[0].VectorScore != 0 {
		t.Errorf("vector score should be 0 in degraded mode, got %f", results[0].VectorScore)
	}
	if results[0].KeywordScore == 0 {
		t.Error("keyword score should be non-zero")
	}
}

func TestSearchNativeVectorMatchesHonorFilters(t *testing.T) {
	base := newTestStore(t)
	cfg := testConfig(t)
	em := &fakeEmbedder{}
	ctx := context.Background()

	pref := storeMemory(t, base, em, "mem:pref", "customer prefers email contact", types.MemoryTypePreference, time.Now())
	obs := storeMemory(t, base, em, "mem:obs", "customer prefers email contact", types.MemoryTypeObservation, time.Now())
	obs.UserID = "user:other"

	store := &vectorStore{baseStore: base, matches: []storage.VectorMatch{
		{Memory: pref, Similarity: 0.95},
		{Memory: obs, Similarity: 0.99},
	}}
	searcher, err := NewHybridSearcher(store, em, nil, cfg.Search)
	if err != nil {
		t.Fatalf("failed to create searcher: %v", err)
	}

	results, err := searcher.Search(ctx, testTenant, "customer prefers email contact", SearchOptions{
		MemoryType: types.MemoryTypePreference,
		MinScore:   0.1,
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].Memory.ID != pref.ID {
		t.Fatalf("type filter must exclude native matches of other types, got %v", resultIDs(results))
	}

	results, err = searcher.Search(ctx, testTenant, "customer prefers email contact", SearchOptions{
		UserID:   "user:wanted",
		MinScore: 0.1,
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	for _, r := range results {
		if r.Memory.ID == obs.ID {
			t.Fatalf("user filter must exclude native matches owned by other users, got %v", resultIDs(results))
		}
	}

	unfiltered, err := searcher.Search(ctx, testTenant, "customer prefers email contact", SearchOptions{MinScore: 0.1})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(unfiltered) != 2 {
		t.Fatalf("unfiltered search should keep both native matches, got %v", resultIDs(unfiltered))
	}
}

func TestSearchTemporalWeightingPrefersRecent(t *testing.T) {
	store := newTestStore(t)
	cfg := testConfig(t)
	em := &fakeEmbedder{}
	searcher, err := NewHybridSearcher(store, em, nil, cfg.Search)
	if err != nil {
		t.Fatalf("failed to create searcher: %v", err)
	}
	ctx := context.Background()

	storeMemory(t, store, em, "mem:recent", "database backup completed successfully", types.MemoryTypeObservation, time.Now())
	storeMemory(t, store, em, "mem:older", "database backup completed successfully", types.MemoryTypeObservation, time.Now().AddDate(0, -1, 0))

	results, err := searcher.Search(ctx, testTenant, "database backup completed successfully", SearchOptions{
		MinScore:          0.01,
		TemporalWeighting: true,
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Memory.ID != "mem:recent" {
		t.Errorf("temporal weighting should rank the recent memory first, got %s", results[0].Memory.ID)
	}
	if results[0].TemporalScore <= results[1].TemporalScore {
		t.Error("recent memory should carry the higher temporal score")
	}
}

func TestSearchQueryEmbeddingIsCached(t *testing.T) {
	store := newTestStore(t)
	cfg := testConfig(t)
	em := &fakeEmbedder{}
	searcher, err := NewHybridSearcher(store, em, nil, cfg.Search)
	if err != nil {
		t.Fatalf("failed to create searcher: %v", err)
	}
	ctx := context.Background()

	seed := &fakeEmbedder{}
	storeMemory(t, store, seed, "mem:cache", "weekly report ready", types.MemoryTypeObservation, time.Now())

	for i := 0; i < 3; i++ {
		if _, err := searcher.Search(ctx, testTenant, "weekly report ready", SearchOptions{MinScore: 0.01}); err != nil {
			t.Fatalf("Search failed: %v", err)
		}
	}
	if em.calls != 1 {
		t.Errorf("expected 1 embed call with caching, got %d", em.calls)
	}
}

func TestFindRelatedIncludesLinkedMemories(t *testing.T) {
	store := newTestStore(t)
	cfg := testConfig(t)
	em := &fakeEmbedder{}
	searcher, err := NewHybridSearcher(store, em, nil, cfg.Search)
	if err != nil {
		t.Fatalf("failed to create searcher: %v", err)
	}
	ctx := context.Background()

	source := storeMemory(t, store, em, "mem:src", "api latency spiked during deploy", types.MemoryTypeObservation, time.Now())
	// Linked but semantically unrelated: only reachable via the edge.
	linked := storeMemory(t, store, em, "mem:linked", "vendor invoice approved", types.MemoryTypeDecision, time.Now())
	storeMemory(t, store, em, "mem:sim", "api latency spiked during rollout", types.MemoryTypeObservation, time.Now())

	rel := &types.Relationship{
		ID:        "rel:1",
		TenantID:  testTenant,
		SourceID:  source.ID,
		TargetID:  linked.ID,
		Type:      types.RelCaused,
		Strength:  0.8,
		CreatedAt: time.Now(),
	}
	if err := store.StoreRelationship(ctx, rel); err != nil {
		t.Fatalf("failed to store relationship: %v", err)
	}

	results, err := searcher.FindRelated(ctx, testTenant, source.ID, SearchOptions{MinScore: 0.1})
	if err != nil {
		t.Fatalf("FindRelated failed: %v", err)
	}

	var linkedScore float64
	found := map[string]bool{}
	for _, r := range results {
		found[r.Memory.ID] = true
		if r.Memory.ID == linked.ID {
			linkedScore = r.Score
		}
		if r.Memory.ID == source.ID {
			t.Error("source memory must not appear in its own related set")
		}
	}
	if !found[linked.ID] {
		t.Fatal("explicitly linked memory missing from related set")
	}
	if linkedScore != 0.9 {
		t.Errorf("linked memory score = %f, want the fixed 0.9", linkedScore)
	}
	if !found["mem:sim"] {
		t.Error("semantically similar memory missing from related set")
	}
}

func resultIDs(results []SearchResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.Memory.ID
	}
	return ids
}

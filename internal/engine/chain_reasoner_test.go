package engine

import (
	"context"
	"testing"
	"time"

	"github.com/recallstack/engram/internal/storage"
	"github.com/recallstack/engram/pkg/types"
)

func newTestReasoner(t *testing.T, gen *fakeGenerator) (*ChainReasoner, storage.Store, *fakeEmbedder) {
	t.Helper()
	store := newTestStore(t)
	cfg := testConfig(t)
	em := &fakeEmbedder{}
	searcher, err := NewHybridSearcher(store, em, nil, cfg.Search)
	if err != nil {
		t.Fatalf("failed to create searcher: %v", err)
	}
	return NewChainReasoner(store, searcher, gen, em, cfg.Chains), store, em
}

// seedChainCandidates stores memories whose content closely matches the
// query so they clear the 0.7 candidate threshold.
func seedChainCandidates(t *testing.T, store storage.Store, em *fakeEmbedder) {
	t.Helper()
	storeMemory(t, store, em, "mem:c1", "project alpha deadline status slipped", types.MemoryTypeObservation, time.Now())
	storeMemory(t, store, em, "mem:c2", "project alpha deadline status moved to friday", types.MemoryTypeDecision, time.Now())
}

func TestDiscoverChainsPersistsAcceptedChain(t *testing.T) {
	gen := &fakeGenerator{response: `{"chains":[{"name":"deadline slip","memory_ids":["mem:c1","mem:c2"],"rationale":"the slip caused the reschedule","confidence":0.85}]}`}
	reasoner, store, em := newTestReasoner(t, gen)
	ctx := context.Background()

	seedChainCandidates(t, store, em)

	chains, err := reasoner.DiscoverChains(ctx, testTenant, "project alpha deadline status")
	if err != nil {
		t.Fatalf("DiscoverChains failed: %v", err)
	}
	if len(chains) != 1 {
		t.Fatalf("expected 1 accepted chain, got %d", len(chains))
	}
	if chains[0].Name != "deadline slip" || chains[0].Confidence != 0.85 {
		t.Errorf("unexpected chain: %+v", chains[0])
	}

	// Consecutive members are linked by a follows edge.
	rels, err := store.GetRelationships(ctx, testTenant, "mem:c1")
	if err != nil {
		t.Fatalf("GetRelationships failed: %v", err)
	}
	var followsFound, relatedFound bool
	var insightID string
	for _, rel := range rels {
		switch rel.Type {
		case types.RelFollows:
			if rel.SourceID == "mem:c1" && rel.TargetID == "mem:c2" {
				followsFound = true
			}
		case types.RelRelatedTo:
			relatedFound = true
			insightID = rel.SourceID
		}
	}
	if !followsFound {
		t.Error("missing follows edge between consecutive chain members")
	}
	if !relatedFound {
		t.Fatal("missing related_to edge from the insight memory")
	}

	insight, err := store.Get(ctx, testTenant, insightID)
	if err != nil {
		t.Fatalf("insight memory not stored: %v", err)
	}
	if insight.MemoryType != types.MemoryTypeInsight {
		t.Errorf("insight memory has type %q", insight.MemoryType)
	}
}

func TestDiscoverChainsFiltersLowConfidence(t *testing.T) {
	gen := &fakeGenerator{response: `{"chains":[{"name":"weak","memory_ids":["mem:c1","mem:c2"],"rationale":"maybe","confidence":0.4}]}`}
	reasoner, store, em := newTestReasoner(t, gen)

	seedChainCandidates(t, store, em)

	chains, err := reasoner.DiscoverChains(context.Background(), testTenant, "project alpha deadline status")
	if err != nil {
		t.Fatalf("DiscoverChains failed: %v", err)
	}
	if len(chains) != 0 {
		t.Errorf("low-confidence chain should be discarded, got %d", len(chains))
	}
}

func TestDiscoverChainsMalformedResponseReturnsEmpty(t *testing.T) {
	gen := &fakeGenerator{response: "I could not find any chains, sorry!"}
	reasoner, store, em := newTestReasoner(t, gen)

	seedChainCandidates(t, store, em)

	chains, err := reasoner.DiscoverChains(context.Background(), testTenant, "project alpha deadline status")
	if err != nil {
		t.Fatalf("malformed response must not surface an error: %v", err)
	}
	if len(chains) != 0 {
		t.Errorf("expected no chains from malformed response, got %d", len(chains))
	}
}

func TestDiscoverChainsProviderFailureReturnsEmpty(t *testing.T) {
	gen := &fakeGenerator{err: errProviderDown}
	reasoner, store, em := newTestReasoner(t, gen)

	seedChainCandidates(t, store, em)

	chains, err := reasoner.DiscoverChains(context.Background(), testTenant, "project alpha deadline status")
	if err != nil {
		t.Fatalf("provider failure must not surface an error: %v", err)
	}
	if len(chains) != 0 {
		t.Errorf("expected no chains on provider failure, got %d", len(chains))
	}
}

func TestDiscoverChainsRejectsUnknownMemoryIDs(t *testing.T) {
	gen := &fakeGenerator{response: `{"chains":[{"name":"phantom","memory_ids":["mem:c1","mem:ghost"],"rationale":"made up","confidence":0.9}]}`}
	reasoner, store, em := newTestReasoner(t, gen)

	seedChainCandidates(t, store, em)

	chains, err := reasoner.DiscoverChains(context.Background(), testTenant, "project alpha deadline status")
	if err != nil {
		t.Fatalf("DiscoverChains failed: %v", err)
	}
	if len(chains) != 0 {
		t.Errorf("chain referencing unknown ids should be skipped, got %d", len(chains))
	}
}

func TestFindContradictions(t *testing.T) {
	gen := &fakeGenerator{response: `{"contradictions":[
		{"memory_id_1":"mem:c1","memory_id_2":"mem:c2","explanation":"conflicting status","confidence":0.9},
		{"memory_id_1":"mem:c1","memory_id_2":"mem:c2","explanation":"weak hunch","confidence":0.3}
	]}`}
	reasoner, store, em := newTestReasoner(t, gen)

	seedChainCandidates(t, store, em)

	contradictions, err := reasoner.FindContradictions(context.Background(), testTenant, "project alpha deadline status")
	if err != nil {
		t.Fatalf("FindContradictions failed: %v", err)
	}
	if len(contradictions) != 1 {
		t.Fatalf("expected 1 contradiction above threshold, got %d", len(contradictions))
	}
	if contradictions[0].Explanation != "conflicting status" {
		t.Errorf("unexpected contradiction: %+v", contradictions[0])
	}
}

func TestFindContradictionsProviderFailureReturnsEmpty(t *testing.T) {
	gen := &fakeGenerator{err: errProviderDown}
	reasoner, store, em := newTestReasoner(t, gen)

	seedChainCandidates(t, store, em)

	contradictions, err := reasoner.FindContradictions(context.Background(), testTenant, "project alpha deadline status")
	if err != nil {
		t.Fatalf("provider failure must not surface an error: %v", err)
	}
	if len(contradictions) != 0 {
		t.Errorf("expected none on provider failure, got %d", len(contradictions))
	}
}

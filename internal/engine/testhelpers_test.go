package engine

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/recallstack/engram/internal/config"
	"github.com/recallstack/engram/internal/storage"
	"github.com/recallstack/engram/internal/storage/sqlite"
	"github.com/recallstack/engram/pkg/types"
)

const testTenant = "tenant-test"

// newTestStore creates an in-memory SQLite store for engine tests.
func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := sqlite.NewStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// testConfig returns the default configuration for engine tests.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadConfigFile("")
	if err != nil {
		t.Fatalf("failed to build test config: %v", err)
	}
	return cfg
}

// fakeEmbedder produces deterministic bag-of-words embeddings: each word
// hashes into one of 16 buckets and the vector is L2-normalized. Texts
// sharing words get high cosine similarity; disjoint texts get ~0.
type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	vec := make([]float32, 16)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		vec[h.Sum32()%16]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}

func (f *fakeEmbedder) GetModel() string { return "fake-embedder" }

// fakeGenerator returns a canned completion and records the prompts it saw.
type fakeGenerator struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeGenerator) Complete(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeGenerator) GetModel() string { return "fake-generator" }

var errProviderDown = errors.New("provider unavailable")

// storeMemory persists a memory with an embedding from the fake embedder.
func storeMemory(t *testing.T, store storage.Store, em *fakeEmbedder, id, content, memoryType string, createdAt time.Time) *types.Memory {
	t.Helper()
	embedding, err := em.Embed(context.Background(), content)
	if err != nil {
		t.Fatalf("failed to embed test memory: %v", err)
	}
	mem := &types.Memory{
		ID:              id,
		TenantID:        testTenant,
		Content:         content,
		MemoryType:      memoryType,
		Embedding:       embedding,
		ImportanceScore: types.DefaultTypeImportance(memoryType),
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}
	if err := store.Store(context.Background(), mem); err != nil {
		t.Fatalf("failed to store test memory: %v", err)
	}
	return mem
}

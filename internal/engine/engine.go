package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/recallstack/engram/internal/config"
	"github.com/recallstack/engram/internal/index"
	"github.com/recallstack/engram/internal/llm"
	"github.com/recallstack/engram/internal/storage"
	"github.com/recallstack/engram/pkg/types"
)

// Engine is the facade over the retrieval pipeline. It owns memory
// lifecycle (create, get, update, delete), hybrid search, context
// assembly, and the batch summarization/chain passes.
type Engine struct {
	store      storage.Store
	generator  llm.TextGenerator
	embedder   llm.EmbeddingGenerator
	idx        index.SimilarityIndex
	searcher   *HybridSearcher
	scorer     *Scorer
	builder    *ContextBuilder
	summarizer *Summarizer
	reasoner   *ChainReasoner
	contextTTL time.Duration
	defaults   config.ContextConfig
	now        func() time.Time
}

// New wires an Engine from its dependencies. The similarity index is
// optional (nil disables the in-process index path). The configuration
// must already have passed Validate.
func New(store storage.Store, generator llm.TextGenerator, embedder llm.EmbeddingGenerator, idx index.SimilarityIndex, cfg *config.Config) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("engine: store is required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("engine: config is required")
	}

	ttl, err := time.ParseDuration(cfg.Context.ContextTTL)
	if err != nil {
		return nil, fmt.Errorf("engine: invalid context TTL %q: %w", cfg.Context.ContextTTL, err)
	}

	searcher, err := NewHybridSearcher(store, embedder, idx, cfg.Search)
	if err != nil {
		return nil, err
	}

	return &Engine{
		store:      store,
		generator:  generator,
		embedder:   embedder,
		idx:        idx,
		searcher:   searcher,
		scorer:     NewScorer(store, cfg.Importance),
		builder:    NewContextBuilder(generator),
		summarizer: NewSummarizer(store, generator, embedder, cfg.Summarize),
		reasoner:   NewChainReasoner(store, searcher, generator, embedder, cfg.Chains),
		contextTTL: ttl,
		defaults:   cfg.Context,
		now:        time.Now,
	}, nil
}

// CreateMemoryInput carries the caller-supplied fields for a new memory.
type CreateMemoryInput struct {
	TenantID   string
	UserID     string
	Content    string
	MemoryType string
	Metadata   types.Metadata
}

// CreateMemory embeds the content synchronously and persists the memory.
// An embedding provider failure fails the whole operation; no partial
// write happens.
func (e *Engine) CreateMemory(ctx context.Context, input CreateMemoryInput) (*types.Memory, error) {
	if input.TenantID == "" {
		return nil, fmt.Errorf("engine: tenant id is required: %w", storage.ErrInvalidInput)
	}
	if strings.TrimSpace(input.Content) == "" {
		return nil, fmt.Errorf("engine: content is required: %w", storage.ErrInvalidInput)
	}
	if !types.IsValidMemoryType(input.MemoryType) {
		return nil, fmt.Errorf("engine: invalid memory type %q: %w", input.MemoryType, storage.ErrInvalidInput)
	}

	embedding, err := e.embed(ctx, input.Content)
	if err != nil {
		return nil, fmt.Errorf("engine: embedding failed, memory not created: %w", err)
	}

	now := e.now().UTC()
	mem := &types.Memory{
		ID:              newMemoryID(),
		TenantID:        input.TenantID,
		UserID:          input.UserID,
		Content:         input.Content,
		MemoryType:      input.MemoryType,
		Embedding:       embedding,
		ImportanceScore: initialImportance(input.MemoryType, input.Metadata),
		Metadata:        input.Metadata,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := e.store.Store(ctx, mem); err != nil {
		return nil, fmt.Errorf("engine: failed to store memory: %w", err)
	}
	e.indexAdd(mem)

	log.Printf("engine: created memory %s (type=%s, tenant=%s)", mem.ID, mem.MemoryType, mem.TenantID)
	return mem, nil
}

// GetMemory retrieves a memory and records the retrieval access.
func (e *Engine) GetMemory(ctx context.Context, tenantID, id string) (*types.Memory, error) {
	mem, err := e.store.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	e.recordAccess(ctx, tenantID, id, types.AccessRetrieve, "direct get")
	return mem, nil
}

// UpdateMemoryInput carries a partial update. Nil fields are untouched.
type UpdateMemoryInput struct {
	Content  *string
	Metadata *types.Metadata
}

// UpdateMemory applies a partial update. A content change regenerates the
// embedding first; if the provider fails, nothing is written.
func (e *Engine) UpdateMemory(ctx context.Context, tenantID, id string, input UpdateMemoryInput) (*types.Memory, error) {
	mem, err := e.store.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if input.Content != nil {
		newContent := strings.TrimSpace(*input.Content)
		if newContent == "" {
			return nil, fmt.Errorf("engine: content cannot be emptied: %w", storage.ErrInvalidInput)
		}
		if newContent != mem.Content {
			embedding, err := e.embed(ctx, newContent)
			if err != nil {
				return nil, fmt.Errorf("engine: re-embedding failed, memory not updated: %w", err)
			}
			mem.Content = newContent
			mem.Embedding = embedding
		}
	}
	if input.Metadata != nil {
		mem.Metadata = *input.Metadata
	}
	mem.UpdatedAt = e.now().UTC()

	if err := e.store.Store(ctx, mem); err != nil {
		return nil, fmt.Errorf("engine: failed to update memory: %w", err)
	}
	e.indexAdd(mem)
	return mem, nil
}

// DeleteMemory hard-deletes a memory on explicit caller request.
func (e *Engine) DeleteMemory(ctx context.Context, tenantID, id string) error {
	if err := e.store.Delete(ctx, tenantID, id); err != nil {
		return err
	}
	if e.idx != nil {
		e.idx.Remove(id)
	}
	return nil
}

// LinkMemories creates an explicit relationship between two memories after
// verifying both endpoints exist in the tenant.
func (e *Engine) LinkMemories(ctx context.Context, tenantID, sourceID, targetID, relType string, strength float64) (*types.Relationship, error) {
	if !types.IsValidRelationshipType(relType) {
		return nil, fmt.Errorf("engine: invalid relationship type %q: %w", relType, storage.ErrInvalidInput)
	}
	if _, err := e.store.Get(ctx, tenantID, sourceID); err != nil {
		return nil, fmt.Errorf("engine: source memory: %w", err)
	}
	if _, err := e.store.Get(ctx, tenantID, targetID); err != nil {
		return nil, fmt.Errorf("engine: target memory: %w", err)
	}

	rel := &types.Relationship{
		ID:        newRelationshipID(),
		TenantID:  tenantID,
		SourceID:  sourceID,
		TargetID:  targetID,
		Type:      relType,
		Strength:  strength,
		CreatedAt: e.now().UTC(),
	}
	if err := e.store.StoreRelationship(ctx, rel); err != nil {
		return nil, fmt.Errorf("engine: failed to store relationship: %w", err)
	}
	return rel, nil
}

// Search runs hybrid search and records a search access for every hit.
func (e *Engine) Search(ctx context.Context, tenantID, query string, opts SearchOptions) ([]SearchResult, error) {
	results, err := e.searcher.Search(ctx, tenantID, query, opts)
	if err != nil {
		return nil, err
	}
	e.recordSearchAccesses(ctx, tenantID, query, results)
	return results, nil
}

// FindRelated returns memories connected to the given one, explicitly
// linked or semantically similar.
func (e *Engine) FindRelated(ctx context.Context, tenantID, memoryID string, opts SearchOptions) ([]SearchResult, error) {
	results, err := e.searcher.FindRelated(ctx, tenantID, memoryID, opts)
	if err != nil {
		return nil, err
	}
	e.recordAccess(ctx, tenantID, memoryID, types.AccessAnalyze, "find related")
	return results, nil
}

// ContextOptions tunes BuildContext. Zero values use configured defaults.
type ContextOptions struct {
	MaxTokens         int
	MaxMemories       int
	MinImportance     float64
	UseCompression    bool
	CompressionRatio  float64
	TemporalWeighting bool

	// Persist stores the assembled context with the configured TTL.
	Persist bool
}

// BuildContext runs the full retrieval pipeline: hybrid search, importance
// scoring, and token-budgeted selection. The result may be empty but the
// call only fails on storage errors, never on provider degradation.
func (e *Engine) BuildContext(ctx context.Context, tenantID, query string, opts ContextOptions) (*types.Context, error) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = e.defaults.DefaultTokenBudget
	}
	maxMemories := opts.MaxMemories
	if maxMemories <= 0 {
		maxMemories = 20
	}

	results, err := e.searcher.Search(ctx, tenantID, query, SearchOptions{
		TemporalWeighting: opts.TemporalWeighting,
	})
	if err != nil {
		return nil, err
	}

	memories := make([]*types.Memory, len(results))
	for i, res := range results {
		memories[i] = res.Memory
	}

	scored, err := e.scorer.ScoreAndSort(ctx, tenantID, memories)
	if err != nil {
		return nil, err
	}

	built, err := e.builder.Build(ctx, tenantID, query, scored, BuildOptions{
		MaxTokens:        maxTokens,
		MaxMemories:      maxMemories,
		MinImportance:    opts.MinImportance,
		UseCompression:   opts.UseCompression,
		CompressionRatio: opts.CompressionRatio,
	})
	if err != nil {
		return nil, err
	}

	for _, cm := range built.Memories {
		e.recordAccess(ctx, tenantID, cm.Memory.ID, types.AccessApply, "context: "+query)
	}

	if opts.Persist {
		built.ID = newContextID()
		expires := built.CreatedAt.Add(e.contextTTL)
		built.ExpiresAt = &expires
		if err := e.store.StoreContext(ctx, built); err != nil {
			return nil, fmt.Errorf("engine: failed to persist context: %w", err)
		}
	}
	return built, nil
}

// GetContext retrieves a previously persisted context.
func (e *Engine) GetContext(ctx context.Context, tenantID, id string) (*types.Context, error) {
	return e.store.GetContext(ctx, tenantID, id)
}

// PurgeExpiredContexts removes persisted contexts past their expiry.
func (e *Engine) PurgeExpiredContexts(ctx context.Context, tenantID string) (int, error) {
	return e.store.PurgeExpiredContexts(ctx, tenantID)
}

// SummarizeMemories runs one summarization pass over the tenant.
func (e *Engine) SummarizeMemories(ctx context.Context, tenantID string) (int, error) {
	return e.summarizer.SummarizeAll(ctx, tenantID)
}

// DiscoverChains runs chain reasoning for a query.
func (e *Engine) DiscoverChains(ctx context.Context, tenantID, query string) ([]types.MemoryChain, error) {
	return e.reasoner.DiscoverChains(ctx, tenantID, query)
}

// FindContradictions runs contradiction detection for a query.
func (e *Engine) FindContradictions(ctx context.Context, tenantID, query string) ([]types.Contradiction, error) {
	return e.reasoner.FindContradictions(ctx, tenantID, query)
}

// RecomputeImportance scores every tenant memory and persists the results.
// Returns the number of memories scored.
func (e *Engine) RecomputeImportance(ctx context.Context, tenantID string) (int, error) {
	page, err := e.store.List(ctx, tenantID, storage.ListOptions{Limit: 1000})
	if err != nil {
		return 0, fmt.Errorf("engine: failed to list memories for scoring: %w", err)
	}
	memories := make([]*types.Memory, len(page.Items))
	for i := range page.Items {
		memories[i] = &page.Items[i]
	}

	scored, err := e.scorer.ScoreAndSort(ctx, tenantID, memories)
	if err != nil {
		return 0, err
	}
	if err := e.scorer.PersistScores(ctx, tenantID, scored); err != nil {
		return 0, err
	}
	return len(scored), nil
}

// RefreshIndex reloads the tenant's embeddings into the similarity index.
// A no-op when no index is configured.
func (e *Engine) RefreshIndex(ctx context.Context, tenantID string) error {
	if e.idx == nil {
		return nil
	}
	page, err := e.store.List(ctx, tenantID, storage.ListOptions{
		Limit:          1000,
		WithEmbeddings: true,
	})
	if err != nil {
		return fmt.Errorf("engine: failed to list memories for indexing: %w", err)
	}
	for i := range page.Items {
		mem := &page.Items[i]
		if err := e.idx.Add(mem.ID, mem.Embedding); err != nil {
			log.Printf("engine: failed to index %s: %v", mem.ID, err)
		}
	}
	return nil
}

// Close releases the underlying store.
func (e *Engine) Close() error {
	return e.store.Close()
}

// embed calls the embedding provider, which is required on the write path.
func (e *Engine) embed(ctx context.Context, content string) ([]float32, error) {
	if e.embedder == nil {
		return nil, fmt.Errorf("engine: no embedding provider configured")
	}
	return e.embedder.Embed(ctx, content)
}

// indexAdd mirrors a stored memory into the similarity index.
func (e *Engine) indexAdd(mem *types.Memory) {
	if e.idx == nil || len(mem.Embedding) == 0 {
		return
	}
	if err := e.idx.Add(mem.ID, mem.Embedding); err != nil {
		log.Printf("engine: failed to index %s: %v", mem.ID, err)
	}
}

// recordAccess appends one access record. Logging failures never disturb
// the caller's operation.
func (e *Engine) recordAccess(ctx context.Context, tenantID, memoryID, accessType, accessContext string) {
	access := &types.Access{
		ID:         newAccessID(),
		TenantID:   tenantID,
		MemoryID:   memoryID,
		AccessType: accessType,
		Context:    accessContext,
		CreatedAt:  e.now().UTC(),
	}
	if err := e.store.RecordAccess(ctx, access); err != nil {
		log.Printf("engine: failed to record %s access for %s: %v", accessType, memoryID, err)
	}
}

// recordSearchAccesses appends search access records for all hits in one
// chunked batch write.
func (e *Engine) recordSearchAccesses(ctx context.Context, tenantID, query string, results []SearchResult) {
	if len(results) == 0 {
		return
	}
	now := e.now().UTC()
	accesses := make([]*types.Access, len(results))
	for i, res := range results {
		accesses[i] = &types.Access{
			ID:         newAccessID(),
			TenantID:   tenantID,
			MemoryID:   res.Memory.ID,
			AccessType: types.AccessSearch,
			Context:    "search: " + query,
			CreatedAt:  now,
		}
	}
	if err := e.store.RecordAccessBatch(ctx, accesses); err != nil {
		log.Printf("engine: failed to record search accesses: %v", err)
	}
}

// initialImportance derives the creation-time importance score from
// explicit metadata or the type default.
func initialImportance(memoryType string, meta types.Metadata) float64 {
	if meta.Importance != nil {
		return clamp01(*meta.Importance)
	}
	return types.DefaultTypeImportance(memoryType)
}

// Package storage provides composable storage interfaces for the Engram system.
//
// The storage layer is designed with small, focused interfaces that can be
// implemented independently and composed as needed. Every method takes the
// tenant identifier explicitly; implementations apply it as a SQL-level
// filter so cross-tenant access is impossible by construction, not merely
// checked in application code.
package storage

import (
	"context"

	"github.com/recallstack/engram/pkg/types"
)

// MemoryStore provides CRUD operations and pagination for memories.
// This is the core storage interface for memory lifecycle management.
type MemoryStore interface {
	// Store creates or updates a memory (upsert semantics keyed by ID).
	Store(ctx context.Context, memory *types.Memory) error

	// Get retrieves a memory by ID within the tenant.
	// Returns ErrNotFound if the memory doesn't exist in that tenant.
	Get(ctx context.Context, tenantID, id string) (*types.Memory, error)

	// GetBatch retrieves multiple memories by ID within the tenant.
	// Missing ids are silently omitted from the result.
	GetBatch(ctx context.Context, tenantID string, ids []string) ([]*types.Memory, error)

	// List retrieves the tenant's memories with pagination and filtering.
	List(ctx context.Context, tenantID string, opts ListOptions) (*PaginatedResult[types.Memory], error)

	// UpdateMetadata replaces the metadata of an existing memory without
	// touching content or embedding.
	// Returns ErrNotFound if the memory doesn't exist in that tenant.
	UpdateMetadata(ctx context.Context, tenantID, id string, metadata types.Metadata) error

	// UpdateImportance writes a newly computed importance score.
	// Returns ErrNotFound if the memory doesn't exist in that tenant.
	UpdateImportance(ctx context.Context, tenantID, id string, score float64) error

	// Delete hard-deletes a memory by ID (explicit caller request only;
	// the core logic itself never deletes).
	// Returns ErrNotFound if the memory doesn't exist in that tenant.
	Delete(ctx context.Context, tenantID, id string) error

	// Close releases any resources held by the store.
	Close() error
}

// RelationshipStore manages the directed, typed edge list between memories.
// The graph may contain cycles; edges are never followed via pointers, only
// looked up by id.
type RelationshipStore interface {
	// StoreRelationship creates or updates an edge. Edges are deduplicated
	// on (tenant, source, target, type): storing an existing edge updates
	// its strength and metadata instead of inserting a duplicate.
	StoreRelationship(ctx context.Context, rel *types.Relationship) error

	// StoreRelationships stores a batch of edges, chunked internally to
	// bound transaction size.
	StoreRelationships(ctx context.Context, rels []*types.Relationship) error

	// GetRelationships returns all edges touching the given memory
	// (as source or target) within the tenant.
	GetRelationships(ctx context.Context, tenantID, memoryID string) ([]*types.Relationship, error)

	// CountRelationships returns the number of edges touching the memory.
	CountRelationships(ctx context.Context, tenantID, memoryID string) (int, error)

	// DeleteRelationship removes an edge by id.
	// Returns ErrNotFound if the edge doesn't exist in that tenant.
	DeleteRelationship(ctx context.Context, tenantID, id string) error
}

// AccessLogStore appends and counts memory access records.
type AccessLogStore interface {
	// RecordAccess appends one access record. Append-only.
	RecordAccess(ctx context.Context, access *types.Access) error

	// RecordAccessBatch appends many access records in chunked transactions.
	RecordAccessBatch(ctx context.Context, accesses []*types.Access) error

	// CountAccesses returns the number of access records for a memory.
	CountAccesses(ctx context.Context, tenantID, memoryID string) (int, error)

	// CountAccessesBatch returns access counts keyed by memory id for the
	// given set. Memories with no accesses are present with count 0.
	CountAccessesBatch(ctx context.Context, tenantID string, memoryIDs []string) (map[string]int, error)
}

// ContextStore optionally persists assembled contexts for reuse.
type ContextStore interface {
	// StoreContext persists a context and its ordered items.
	StoreContext(ctx context.Context, c *types.Context) error

	// GetContext retrieves a persisted context with its memories resolved.
	// Returns ErrNotFound if missing or expired.
	GetContext(ctx context.Context, tenantID, id string) (*types.Context, error)

	// PurgeExpiredContexts removes contexts whose expiry has passed and
	// returns the number purged.
	PurgeExpiredContexts(ctx context.Context, tenantID string) (int, error)
}

// VectorMatch is one result of a native vector search.
type VectorMatch struct {
	Memory *types.Memory

	// Similarity is the cosine similarity to the query vector, in [-1,1].
	Similarity float64
}

// VectorSearcher is implemented by backends with native vector search support
// (e.g. PostgreSQL with pgvector). Callers discover it by type assertion and
// fall back to in-process scanning when absent.
type VectorSearcher interface {
	// VectorSearch returns up to limit memories ordered by cosine similarity
	// to the query vector, scoped to the tenant.
	VectorSearch(ctx context.Context, tenantID string, query []float32, limit int) ([]VectorMatch, error)
}

// Store composes the full storage surface a backend must provide.
type Store interface {
	MemoryStore
	RelationshipStore
	AccessLogStore
	ContextStore
}

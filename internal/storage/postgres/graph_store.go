package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/recallstack/engram/internal/storage"
	"github.com/recallstack/engram/pkg/types"
)

// StoreRelationship creates or updates an edge, deduplicated on
// (tenant, source, target, type).
func (s *Store) StoreRelationship(ctx context.Context, rel *types.Relationship) error {
	if err := validateRelationship(rel); err != nil {
		return err
	}
	metadataJSON, err := marshalJSONColumn(rel.Metadata, len(rel.Metadata) == 0)
	if err != nil {
		return fmt.Errorf("postgres: failed to marshal relationship metadata: %w", err)
	}
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memory_relationships (
			id, tenant_id, source_id, target_id, relationship_type, strength, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id, source_id, target_id, relationship_type) DO UPDATE SET
			strength = excluded.strength,
			metadata = excluded.metadata
	`, rel.ID, rel.TenantID, rel.SourceID, rel.TargetID, rel.Type, rel.Strength, metadataJSON, rel.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to store relationship: %w", err)
	}
	return nil
}

// StoreRelationships stores a batch of edges in chunked transactions.
func (s *Store) StoreRelationships(ctx context.Context, rels []*types.Relationship) error {
	for start := 0; start < len(rels); start += batchSize {
		end := start + batchSize
		if end > len(rels) {
			end = len(rels)
		}
		if err := s.storeRelationshipChunk(ctx, rels[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) storeRelationshipChunk(ctx context.Context, rels []*types.Relationship) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, rel := range rels {
		if err := validateRelationship(rel); err != nil {
			return err
		}
		metadataJSON, err := marshalJSONColumn(rel.Metadata, len(rel.Metadata) == 0)
		if err != nil {
			return fmt.Errorf("postgres: failed to marshal relationship metadata: %w", err)
		}
		if rel.CreatedAt.IsZero() {
			rel.CreatedAt = time.Now()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO memory_relationships (
				id, tenant_id, source_id, target_id, relationship_type, strength, metadata, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (tenant_id, source_id, target_id, relationship_type) DO UPDATE SET
				strength = excluded.strength,
				metadata = excluded.metadata
		`, rel.ID, rel.TenantID, rel.SourceID, rel.TargetID, rel.Type, rel.Strength, metadataJSON, rel.CreatedAt)
		if err != nil {
			return fmt.Errorf("postgres: failed to store relationship: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: failed to commit relationships: %w", err)
	}
	return nil
}

// GetRelationships returns all edges touching the given memory.
func (s *Store) GetRelationships(ctx context.Context, tenantID, memoryID string) ([]*types.Relationship, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, source_id, target_id, relationship_type, strength, metadata, created_at
		FROM memory_relationships
		WHERE tenant_id = $1 AND (source_id = $2 OR target_id = $2)
		ORDER BY created_at
	`, tenantID, memoryID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to get relationships: %w", err)
	}
	defer rows.Close()

	var rels []*types.Relationship
	for rows.Next() {
		var (
			rel          types.Relationship
			metadataJSON []byte
		)
		if err := rows.Scan(&rel.ID, &rel.TenantID, &rel.SourceID, &rel.TargetID,
			&rel.Type, &rel.Strength, &metadataJSON, &rel.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan relationship: %w", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &rel.Metadata); err != nil {
				return nil, fmt.Errorf("postgres: failed to unmarshal relationship metadata: %w", err)
			}
		}
		rels = append(rels, &rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: row iteration failed: %w", err)
	}
	if rels == nil {
		rels = []*types.Relationship{}
	}
	return rels, nil
}

// CountRelationships returns the number of edges touching the memory.
func (s *Store) CountRelationships(ctx context.Context, tenantID, memoryID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM memory_relationships
		WHERE tenant_id = $1 AND (source_id = $2 OR target_id = $2)
	`, tenantID, memoryID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to count relationships: %w", err)
	}
	return count, nil
}

// DeleteRelationship removes an edge by id.
func (s *Store) DeleteRelationship(ctx context.Context, tenantID, id string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM memory_relationships WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete relationship: %w", err)
	}
	return requireRow(result)
}

// RecordAccess appends one access record.
func (s *Store) RecordAccess(ctx context.Context, access *types.Access) error {
	if err := validateAccess(access); err != nil {
		return err
	}
	if access.CreatedAt.IsZero() {
		access.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memory_access (id, tenant_id, memory_id, access_type, context, outcome, outcome_score, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, access.ID, access.TenantID, access.MemoryID, access.AccessType,
		nullString(access.Context), nullString(access.Outcome), access.OutcomeScore, access.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to record access: %w", err)
	}
	return nil
}

// RecordAccessBatch appends many access records in chunked transactions.
func (s *Store) RecordAccessBatch(ctx context.Context, accesses []*types.Access) error {
	for start := 0; start < len(accesses); start += batchSize {
		end := start + batchSize
		if end > len(accesses) {
			end = len(accesses)
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("postgres: failed to begin transaction: %w", err)
		}
		for _, access := range accesses[start:end] {
			if err := validateAccess(access); err != nil {
				_ = tx.Rollback()
				return err
			}
			if access.CreatedAt.IsZero() {
				access.CreatedAt = time.Now()
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO memory_access (id, tenant_id, memory_id, access_type, context, outcome, outcome_score, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`, access.ID, access.TenantID, access.MemoryID, access.AccessType,
				nullString(access.Context), nullString(access.Outcome), access.OutcomeScore, access.CreatedAt)
			if err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("postgres: failed to record access: %w", err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("postgres: failed to commit access records: %w", err)
		}
	}
	return nil
}

// CountAccesses returns the number of access records for a memory.
func (s *Store) CountAccesses(ctx context.Context, tenantID, memoryID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memory_access WHERE tenant_id = $1 AND memory_id = $2`,
		tenantID, memoryID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to count accesses: %w", err)
	}
	return count, nil
}

// CountAccessesBatch returns access counts keyed by memory id.
func (s *Store) CountAccessesBatch(ctx context.Context, tenantID string, memoryIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(memoryIDs))
	for _, id := range memoryIDs {
		counts[id] = 0
	}
	if len(memoryIDs) == 0 {
		return counts, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT memory_id, COUNT(*) FROM memory_access
		WHERE tenant_id = $1 AND memory_id = ANY($2)
		GROUP BY memory_id
	`, tenantID, pq.Array(memoryIDs))
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to count accesses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id    string
			count int
		)
		if err := rows.Scan(&id, &count); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan access count: %w", err)
		}
		counts[id] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: row iteration failed: %w", err)
	}
	return counts, nil
}

// StoreContext persists a context and its ordered items in one transaction.
func (s *Store) StoreContext(ctx context.Context, c *types.Context) error {
	if c == nil {
		return storage.ErrInvalidInput
	}
	if c.ID == "" || c.TenantID == "" {
		return fmt.Errorf("%w: context id and tenant are required", storage.ErrInvalidInput)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO memory_contexts (id, tenant_id, query, total_tokens, avg_importance, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			query = excluded.query,
			total_tokens = excluded.total_tokens,
			avg_importance = excluded.avg_importance,
			expires_at = excluded.expires_at
	`, c.ID, c.TenantID, c.Query, c.TotalTokens, c.AvgImportance, c.CreatedAt, c.ExpiresAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to store context: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_context_items WHERE context_id = $1`, c.ID); err != nil {
		return fmt.Errorf("postgres: failed to clear context items: %w", err)
	}

	for i, cm := range c.Memories {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO memory_context_items (context_id, memory_id, position, content, tokens, compressed)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, c.ID, cm.Memory.ID, i, cm.Content, cm.Tokens, cm.Compressed)
		if err != nil {
			return fmt.Errorf("postgres: failed to store context item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: failed to commit context: %w", err)
	}
	return nil
}

// GetContext retrieves a persisted context with its memories resolved.
// Expired contexts behave as missing.
func (s *Store) GetContext(ctx context.Context, tenantID, id string) (*types.Context, error) {
	var (
		c         types.Context
		expiresAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, query, total_tokens, avg_importance, created_at, expires_at
		FROM memory_contexts WHERE tenant_id = $1 AND id = $2
	`, tenantID, id).Scan(&c.ID, &c.TenantID, &c.Query, &c.TotalTokens, &c.AvgImportance, &c.CreatedAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to get context: %w", err)
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		c.ExpiresAt = &t
		if time.Now().After(t) {
			return nil, storage.ErrNotFound
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT memory_id, content, tokens, compressed
		FROM memory_context_items WHERE context_id = $1 ORDER BY position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to get context items: %w", err)
	}
	defer rows.Close()

	type item struct {
		memoryID   string
		content    string
		tokens     int
		compressed bool
	}
	var items []item
	for rows.Next() {
		var it item
		if err := rows.Scan(&it.memoryID, &it.content, &it.tokens, &it.compressed); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan context item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: row iteration failed: %w", err)
	}

	for _, it := range items {
		memory, err := s.Get(ctx, tenantID, it.memoryID)
		if err == storage.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		c.Memories = append(c.Memories, types.ContextMemory{
			Memory:     memory,
			Content:    it.content,
			Tokens:     it.tokens,
			Compressed: it.compressed,
		})
	}

	return &c, nil
}

// PurgeExpiredContexts removes contexts whose expiry has passed.
func (s *Store) PurgeExpiredContexts(ctx context.Context, tenantID string) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM memory_contexts
		WHERE tenant_id = $1 AND expires_at IS NOT NULL AND expires_at < NOW()
	`, tenantID)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to purge contexts: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to get rows affected: %w", err)
	}
	return int(n), nil
}

func validateRelationship(rel *types.Relationship) error {
	if rel == nil {
		return storage.ErrInvalidInput
	}
	if rel.ID == "" || rel.TenantID == "" || rel.SourceID == "" || rel.TargetID == "" {
		return fmt.Errorf("%w: relationship id, tenant, source and target are required", storage.ErrInvalidInput)
	}
	if !types.IsValidRelationshipType(rel.Type) {
		return fmt.Errorf("%w: invalid relationship type %q", storage.ErrInvalidInput, rel.Type)
	}
	return nil
}

func validateAccess(access *types.Access) error {
	if access == nil {
		return storage.ErrInvalidInput
	}
	if access.ID == "" || access.TenantID == "" || access.MemoryID == "" {
		return fmt.Errorf("%w: access id, tenant and memory are required", storage.ErrInvalidInput)
	}
	if !types.IsValidAccessType(access.AccessType) {
		return fmt.Errorf("%w: invalid access type %q", storage.ErrInvalidInput, access.AccessType)
	}
	return nil
}

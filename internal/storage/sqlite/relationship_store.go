package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/recallstack/engram/internal/storage"
	"github.com/recallstack/engram/pkg/types"
)

// relationshipBatchSize bounds the number of edges written per transaction.
const relationshipBatchSize = 50

// StoreRelationship creates or updates an edge. Edges are deduplicated on
// (tenant, source, target, type); re-storing updates strength and metadata.
func (s *Store) StoreRelationship(ctx context.Context, rel *types.Relationship) error {
	if err := validateRelationship(rel); err != nil {
		return err
	}

	metadataJSON, err := marshalRelMetadata(rel.Metadata)
	if err != nil {
		return fmt.Errorf("sqlite: failed to marshal relationship metadata: %w", err)
	}

	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memory_relationships (
			id, tenant_id, source_id, target_id, relationship_type,
			strength, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, source_id, target_id, relationship_type) DO UPDATE SET
			strength = excluded.strength,
			metadata = excluded.metadata
	`, rel.ID, rel.TenantID, rel.SourceID, rel.TargetID, rel.Type,
		rel.Strength, metadataJSON, rel.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: failed to store relationship: %w", err)
	}
	return nil
}

// StoreRelationships stores a batch of edges in chunked transactions.
func (s *Store) StoreRelationships(ctx context.Context, rels []*types.Relationship) error {
	for start := 0; start < len(rels); start += relationshipBatchSize {
		end := start + relationshipBatchSize
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
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, rel := range rels {
		if err := validateRelationship(rel); err != nil {
			return err
		}
		metadataJSON, err := marshalRelMetadata(rel.Metadata)
		if err != nil {
			return fmt.Errorf("sqlite: failed to marshal relationship metadata: %w", err)
		}
		if rel.CreatedAt.IsZero() {
			rel.CreatedAt = time.Now()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO memory_relationships (
				id, tenant_id, source_id, target_id, relationship_type,
				strength, metadata, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(tenant_id, source_id, target_id, relationship_type) DO UPDATE SET
				strength = excluded.strength,
				metadata = excluded.metadata
		`, rel.ID, rel.TenantID, rel.SourceID, rel.TargetID, rel.Type,
			rel.Strength, metadataJSON, rel.CreatedAt)
		if err != nil {
			return fmt.Errorf("sqlite: failed to store relationship: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: failed to commit relationships: %w", err)
	}
	return nil
}

// GetRelationships returns all edges touching the given memory within the tenant.
func (s *Store) GetRelationships(ctx context.Context, tenantID, memoryID string) ([]*types.Relationship, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, source_id, target_id, relationship_type, strength, metadata, created_at
		FROM memory_relationships
		WHERE tenant_id = ? AND (source_id = ? OR target_id = ?)
		ORDER BY created_at
	`, tenantID, memoryID, memoryID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get relationships: %w", err)
	}
	defer rows.Close()

	var rels []*types.Relationship
	for rows.Next() {
		var (
			rel          types.Relationship
			metadataJSON sql.NullString
		)
		if err := rows.Scan(&rel.ID, &rel.TenantID, &rel.SourceID, &rel.TargetID,
			&rel.Type, &rel.Strength, &metadataJSON, &rel.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan relationship: %w", err)
		}
		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &rel.Metadata); err != nil {
				return nil, fmt.Errorf("sqlite: failed to unmarshal relationship metadata: %w", err)
			}
		}
		rels = append(rels, &rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: row iteration failed: %w", err)
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
		WHERE tenant_id = ? AND (source_id = ? OR target_id = ?)
	`, tenantID, memoryID, memoryID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to count relationships: %w", err)
	}
	return count, nil
}

// DeleteRelationship removes an edge by id.
func (s *Store) DeleteRelationship(ctx context.Context, tenantID, id string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM memory_relationships WHERE tenant_id = ? AND id = ?`, tenantID, id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete relationship: %w", err)
	}
	return requireRow(result)
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

func marshalRelMetadata(metadata map[string]interface{}) (interface{}, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/recallstack/engram/internal/storage"
	"github.com/recallstack/engram/pkg/types"
)

// accessBatchSize bounds the number of access rows written per transaction.
const accessBatchSize = 50

// RecordAccess appends one access record. The log is append-only.
func (s *Store) RecordAccess(ctx context.Context, access *types.Access) error {
	if err := validateAccess(access); err != nil {
		return err
	}
	if access.CreatedAt.IsZero() {
		access.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memory_access (id, tenant_id, memory_id, access_type, context, outcome, outcome_score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, access.ID, access.TenantID, access.MemoryID, access.AccessType,
		nullString(access.Context), nullString(access.Outcome), access.OutcomeScore, access.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: failed to record access: %w", err)
	}
	return nil
}

// RecordAccessBatch appends many access records in chunked transactions.
func (s *Store) RecordAccessBatch(ctx context.Context, accesses []*types.Access) error {
	for start := 0; start < len(accesses); start += accessBatchSize {
		end := start + accessBatchSize
		if end > len(accesses) {
			end = len(accesses)
		}
		if err := s.recordAccessChunk(ctx, accesses[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) recordAccessChunk(ctx context.Context, accesses []*types.Access) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, access := range accesses {
		if err := validateAccess(access); err != nil {
			return err
		}
		if access.CreatedAt.IsZero() {
			access.CreatedAt = time.Now()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO memory_access (id, tenant_id, memory_id, access_type, context, outcome, outcome_score, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, access.ID, access.TenantID, access.MemoryID, access.AccessType,
			nullString(access.Context), nullString(access.Outcome), access.OutcomeScore, access.CreatedAt)
		if err != nil {
			return fmt.Errorf("sqlite: failed to record access: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: failed to commit access records: %w", err)
	}
	return nil
}

// CountAccesses returns the number of access records for a memory.
func (s *Store) CountAccesses(ctx context.Context, tenantID, memoryID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memory_access WHERE tenant_id = ? AND memory_id = ?`,
		tenantID, memoryID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to count accesses: %w", err)
	}
	return count, nil
}

// CountAccessesBatch returns access counts keyed by memory id. Memories with
// no recorded accesses are present with count 0.
func (s *Store) CountAccessesBatch(ctx context.Context, tenantID string, memoryIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(memoryIDs))
	for _, id := range memoryIDs {
		counts[id] = 0
	}
	if len(memoryIDs) == 0 {
		return counts, nil
	}

	placeholders := strings.Repeat("?,", len(memoryIDs))
	placeholders = placeholders[:len(placeholders)-1]
	query := fmt.Sprintf(`
		SELECT memory_id, COUNT(*) FROM memory_access
		WHERE tenant_id = ? AND memory_id IN (%s)
		GROUP BY memory_id
	`, placeholders)

	args := make([]interface{}, 0, len(memoryIDs)+1)
	args = append(args, tenantID)
	for _, id := range memoryIDs {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to count accesses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id    string
			count int
		)
		if err := rows.Scan(&id, &count); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan access count: %w", err)
		}
		counts[id] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: row iteration failed: %w", err)
	}
	return counts, nil
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

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/recallstack/engram/internal/storage"
	"github.com/recallstack/engram/pkg/types"
)

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
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO memory_contexts (id, tenant_id, query, total_tokens, avg_importance, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			query = excluded.query,
			total_tokens = excluded.total_tokens,
			avg_importance = excluded.avg_importance,
			expires_at = excluded.expires_at
	`, c.ID, c.TenantID, c.Query, c.TotalTokens, c.AvgImportance, c.CreatedAt, c.ExpiresAt)
	if err != nil {
		return fmt.Errorf("sqlite: failed to store context: %w", err)
	}

	// Replace items wholesale; a context's selection is immutable in practice
	// but upsert keeps the write idempotent.
	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_context_items WHERE context_id = ?`, c.ID); err != nil {
		return fmt.Errorf("sqlite: failed to clear context items: %w", err)
	}

	for i, cm := range c.Memories {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO memory_context_items (context_id, memory_id, position, content, tokens, compressed)
			VALUES (?, ?, ?, ?, ?, ?)
		`, c.ID, cm.Memory.ID, i, cm.Content, cm.Tokens, boolToInt(cm.Compressed))
		if err != nil {
			return fmt.Errorf("sqlite: failed to store context item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: failed to commit context: %w", err)
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
		FROM memory_contexts WHERE tenant_id = ? AND id = ?
	`, tenantID, id).Scan(&c.ID, &c.TenantID, &c.Query, &c.TotalTokens, &c.AvgImportance, &c.CreatedAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get context: %w", err)
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
		FROM memory_context_items WHERE context_id = ? ORDER BY position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get context items: %w", err)
	}
	defer rows.Close()

	type item struct {
		memoryID   string
		content    string
		tokens     int
		compressed int
	}
	var items []item
	for rows.Next() {
		var it item
		if err := rows.Scan(&it.memoryID, &it.content, &it.tokens, &it.compressed); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan context item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: row iteration failed: %w", err)
	}

	for _, it := range items {
		memory, err := s.Get(ctx, tenantID, it.memoryID)
		if err == storage.ErrNotFound {
			// The underlying memory was deleted after the context was
			// persisted; skip it rather than failing the whole context.
			continue
		}
		if err != nil {
			return nil, err
		}
		c.Memories = append(c.Memories, types.ContextMemory{
			Memory:     memory,
			Content:    it.content,
			Tokens:     it.tokens,
			Compressed: it.compressed != 0,
		})
	}

	return &c, nil
}

// PurgeExpiredContexts removes contexts whose expiry has passed.
func (s *Store) PurgeExpiredContexts(ctx context.Context, tenantID string) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM memory_contexts
		WHERE tenant_id = ? AND expires_at IS NOT NULL AND expires_at < ?
	`, tenantID, time.Now())
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to purge contexts: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to get rows affected: %w", err)
	}
	return int(n), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

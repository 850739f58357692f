// Package sqlite provides a SQLite implementation of the storage interfaces.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/recallstack/engram/internal/storage"
	"github.com/recallstack/engram/pkg/types"
)

// Store implements storage.Store using SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database, configures WAL mode, and applies the schema.
// Use ":memory:" as the dsn for an ephemeral test store.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Using a single open
	// connection serialises writes and avoids SQLITE_BUSY errors under
	// concurrent load. WAL mode lets readers proceed without blocking the
	// writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// GetDB returns the underlying database connection.
func (s *Store) GetDB() *sql.DB {
	return s.db
}

// Close releases the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Store creates or updates a memory (upsert semantics keyed by ID).
func (s *Store) Store(ctx context.Context, memory *types.Memory) error {
	if memory == nil {
		return storage.ErrInvalidInput
	}
	if memory.ID == "" {
		return fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}
	if memory.TenantID == "" {
		return fmt.Errorf("%w: tenant ID is required", storage.ErrInvalidInput)
	}
	if memory.Content == "" {
		return fmt.Errorf("%w: memory content is required", storage.ErrInvalidInput)
	}
	if !types.IsValidMemoryType(memory.MemoryType) {
		return fmt.Errorf("%w: invalid memory type %q", storage.ErrInvalidInput, memory.MemoryType)
	}

	embeddingJSON, err := marshalEmbedding(memory.Embedding)
	if err != nil {
		return fmt.Errorf("sqlite: failed to marshal embedding: %w", err)
	}

	metadataJSON, err := marshalMetadata(memory.Metadata)
	if err != nil {
		return fmt.Errorf("sqlite: failed to marshal metadata: %w", err)
	}

	if memory.CreatedAt.IsZero() {
		memory.CreatedAt = time.Now()
	}
	if memory.UpdatedAt.IsZero() {
		memory.UpdatedAt = time.Now()
	}

	query := `
		INSERT INTO memories (
			id, tenant_id, user_id, content, memory_type,
			embedding, importance_score, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			memory_type = excluded.memory_type,
			embedding = excluded.embedding,
			importance_score = excluded.importance_score,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
		WHERE memories.tenant_id = excluded.tenant_id
	`

	res, err := s.db.ExecContext(ctx, query,
		memory.ID, memory.TenantID, nullString(memory.UserID),
		memory.Content, memory.MemoryType,
		embeddingJSON, memory.ImportanceScore, metadataJSON,
		memory.CreatedAt, memory.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to store memory: %w", err)
	}
	// Zero rows means the ID already exists under a different tenant and
	// the conflict guard skipped the update.
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to store memory: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: memory ID %s belongs to another tenant", storage.ErrInvalidInput, memory.ID)
	}
	return nil
}

const memoryColumns = `id, tenant_id, user_id, content, memory_type,
	embedding, importance_score, metadata, created_at, updated_at`

// Get retrieves a memory by ID within the tenant.
func (s *Store) Get(ctx context.Context, tenantID, id string) (*types.Memory, error) {
	query := fmt.Sprintf(`SELECT %s FROM memories WHERE tenant_id = ? AND id = ?`, memoryColumns)

	row := s.db.QueryRowContext(ctx, query, tenantID, id)
	memory, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get memory: %w", err)
	}
	return memory, nil
}

// GetBatch retrieves multiple memories by ID within the tenant.
// Missing ids are silently omitted.
func (s *Store) GetBatch(ctx context.Context, tenantID string, ids []string) ([]*types.Memory, error) {
	if len(ids) == 0 {
		return []*types.Memory{}, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	query := fmt.Sprintf(`SELECT %s FROM memories WHERE tenant_id = ? AND id IN (%s)`,
		memoryColumns, placeholders)

	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, tenantID)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get memories: %w", err)
	}
	defer rows.Close()

	return scanMemories(rows)
}

// List retrieves the tenant's memories with pagination and filtering.
func (s *Store) List(ctx context.Context, tenantID string, opts storage.ListOptions) (*storage.PaginatedResult[types.Memory], error) {
	opts.Normalize()

	where := []string{"tenant_id = ?"}
	args := []interface{}{tenantID}

	if opts.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, opts.UserID)
	}
	if opts.MemoryType != "" {
		where = append(where, "memory_type = ?")
		args = append(args, opts.MemoryType)
	}
	if !opts.CreatedAfter.IsZero() {
		where = append(where, "created_at > ?")
		args = append(args, opts.CreatedAfter)
	}
	if !opts.CreatedBefore.IsZero() {
		where = append(where, "created_at < ?")
		args = append(args, opts.CreatedBefore)
	}
	if opts.WithEmbeddings {
		where = append(where, "embedding IS NOT NULL")
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM memories WHERE " + whereClause
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("sqlite: failed to count memories: %w", err)
	}

	// SortBy/SortOrder are whitelist-validated in Normalize.
	query := fmt.Sprintf(`SELECT %s FROM memories WHERE %s ORDER BY %s %s LIMIT ? OFFSET ?`,
		memoryColumns, whereClause, opts.SortBy, strings.ToUpper(opts.SortOrder))
	args = append(args, opts.Limit, opts.Offset())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list memories: %w", err)
	}
	defer rows.Close()

	memories, err := scanMemories(rows)
	if err != nil {
		return nil, err
	}

	items := make([]types.Memory, len(memories))
	for i, m := range memories {
		items[i] = *m
	}

	return &storage.PaginatedResult[types.Memory]{
		Items:    items,
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.Limit,
		HasMore:  opts.Offset()+len(items) < total,
	}, nil
}

// UpdateMetadata replaces the metadata of an existing memory.
func (s *Store) UpdateMetadata(ctx context.Context, tenantID, id string, metadata types.Metadata) error {
	metadataJSON, err := marshalMetadata(metadata)
	if err != nil {
		return fmt.Errorf("sqlite: failed to marshal metadata: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE memories SET metadata = ?, updated_at = ? WHERE tenant_id = ? AND id = ?`,
		metadataJSON, time.Now(), tenantID, id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to update metadata: %w", err)
	}
	return requireRow(result)
}

// UpdateImportance writes a newly computed importance score.
func (s *Store) UpdateImportance(ctx context.Context, tenantID, id string, score float64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE memories SET importance_score = ?, updated_at = ? WHERE tenant_id = ? AND id = ?`,
		score, time.Now(), tenantID, id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to update importance: %w", err)
	}
	return requireRow(result)
}

// Delete hard-deletes a memory by ID within the tenant.
func (s *Store) Delete(ctx context.Context, tenantID, id string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM memories WHERE tenant_id = ? AND id = ?`, tenantID, id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete memory: %w", err)
	}
	return requireRow(result)
}

// requireRow converts a zero-rows-affected result into ErrNotFound.
func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to get rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row rowScanner) (*types.Memory, error) {
	var (
		m             types.Memory
		userID        sql.NullString
		embeddingJSON sql.NullString
		metadataJSON  sql.NullString
	)

	err := row.Scan(&m.ID, &m.TenantID, &userID, &m.Content, &m.MemoryType,
		&embeddingJSON, &m.ImportanceScore, &metadataJSON, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if userID.Valid {
		m.UserID = userID.String
	}
	if embeddingJSON.Valid && embeddingJSON.String != "" {
		if err := json.Unmarshal([]byte(embeddingJSON.String), &m.Embedding); err != nil {
			return nil, fmt.Errorf("sqlite: failed to unmarshal embedding: %w", err)
		}
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &m.Metadata); err != nil {
			return nil, fmt.Errorf("sqlite: failed to unmarshal metadata: %w", err)
		}
	}

	return &m, nil
}

func scanMemories(rows *sql.Rows) ([]*types.Memory, error) {
	var memories []*types.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan memory: %w", err)
		}
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: row iteration failed: %w", err)
	}
	if memories == nil {
		memories = []*types.Memory{}
	}
	return memories, nil
}

func marshalEmbedding(embedding []float32) (interface{}, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(embedding)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func marshalMetadata(metadata types.Metadata) (interface{}, error) {
	if metadata.IsZero() {
		return nil, nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Compile-time assertion.
var _ storage.Store = (*Store)(nil)

package types

import "time"

// Memory represents a single memory unit in the system.
// Memories are the atomic units of information storage, containing content,
// a vector embedding, a mutable importance score, and typed metadata.
// Every memory is scoped to a tenant; cross-tenant reads are prevented at
// the storage query level.
type Memory struct {
	// Core identification fields
	ID       string `json:"id"`                 // Unique identifier (format: mem:uuid)
	TenantID string `json:"tenant_id"`          // Isolation boundary (organization)
	UserID   string `json:"user_id,omitempty"`  // Optional owning user within the tenant

	Content string `json:"content"` // Raw memory content (never empty)

	// MemoryType classifies the memory (observation, decision, feedback,
	// interaction, tactic, preference, insight).
	MemoryType string `json:"memory_type"`

	// Embedding is the vector representation of Content produced by the
	// embedding provider. Regenerated whenever Content changes. Dimension is
	// provider-defined and assumed consistent within a tenant.
	Embedding []float32 `json:"embedding,omitempty"`

	// ImportanceScore is the derived 0.0-1.0 retention/surfacing value.
	// Mutable; recomputed by the importance scorer.
	ImportanceScore float64 `json:"importance_score"`

	// Metadata carries typed well-known fields plus an open extension map.
	Metadata Metadata `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"` // When the memory was created
	UpdatedAt time.Time `json:"updated_at"` // Last update timestamp
}

// AgeDays returns the age of the memory in days relative to now.
func (m *Memory) AgeDays(now time.Time) float64 {
	return now.Sub(m.CreatedAt).Hours() / 24.0
}

// IsSummary reports whether this memory is a synthesized summary of others.
func (m *Memory) IsSummary() bool {
	return m.Metadata.IsSummary
}

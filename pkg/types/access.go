package types

import "time"

// Access is an append-only audit record of one retrieval or use of a memory.
// Access counts feed the usage sub-score of the importance scorer.
type Access struct {
	ID       string `json:"id"`        // Unique identifier (format: acc:uuid)
	TenantID string `json:"tenant_id"` // Isolation boundary
	MemoryID string `json:"memory_id"` // The memory that was accessed

	// AccessType is one of retrieve, search, analyze, apply.
	AccessType string `json:"access_type"`

	// Context is free text describing why the memory was accessed
	// (typically the originating query).
	Context string `json:"context,omitempty"`

	// Outcome optionally records whether the use helped ("positive" or
	// "negative"), with an optional score.
	Outcome      string   `json:"outcome,omitempty"`
	OutcomeScore *float64 `json:"outcome_score,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

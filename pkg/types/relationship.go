package types

import "time"

// Relationship represents a directed, typed edge between two memories.
// The relationship graph is tenant-scoped and may contain cycles (related_to
// is often bidirectional in practice), so it is stored as an edge list keyed
// by stable ids rather than in-memory object pointers.
type Relationship struct {
	// Core identification fields
	ID       string `json:"id"`        // Unique identifier (format: rel:uuid)
	TenantID string `json:"tenant_id"` // Isolation boundary

	SourceID string `json:"source_id"` // Source memory ID
	TargetID string `json:"target_id"` // Target memory ID

	// Type is one of caused, related_to, contradicts, supports, follows,
	// precedes, summarizes.
	Type string `json:"relationship_type"`

	// Strength is the edge weight (0.0-1.0).
	Strength float64 `json:"strength"`

	// Metadata carries arbitrary edge context (e.g. chain name, rationale).
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Touches reports whether the relationship has the given memory as either
// endpoint.
func (r *Relationship) Touches(memoryID string) bool {
	return r.SourceID == memoryID || r.TargetID == memoryID
}

// OtherEnd returns the opposite endpoint of the edge relative to memoryID,
// or an empty string when memoryID is not an endpoint.
func (r *Relationship) OtherEnd(memoryID string) string {
	switch memoryID {
	case r.SourceID:
		return r.TargetID
	case r.TargetID:
		return r.SourceID
	default:
		return ""
	}
}

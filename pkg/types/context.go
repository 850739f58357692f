package types

import "time"

// ContextMemory is one selected memory inside an assembled context, carrying
// the (possibly compressed) content actually rendered into the prompt.
type ContextMemory struct {
	Memory *Memory `json:"memory"`

	// Content is the text that will be rendered. Equal to Memory.Content
	// unless compression replaced it with a shorter form.
	Content string `json:"content"`

	// Tokens is the estimated token count of Content.
	Tokens int `json:"tokens"`

	// Compressed indicates the content was shortened to fit the budget.
	Compressed bool `json:"compressed,omitempty"`
}

// Context is the token-budgeted bundle of memories assembled for one
// downstream generation call. Ephemeral by default; persisted contexts carry
// an expiry timestamp.
type Context struct {
	ID       string `json:"id,omitempty"` // Set when persisted (format: ctx:uuid)
	TenantID string `json:"tenant_id"`

	// Query is the caller query that produced this context.
	Query string `json:"query"`

	// Memories is the ordered selection (highest importance first).
	Memories []ContextMemory `json:"memories"`

	// TotalTokens is the summed estimated token count of all selections.
	// Never exceeds the configured budget.
	TotalTokens int `json:"total_tokens"`

	// AvgImportance is the mean importance score of the selection
	// (0 when empty).
	AvgImportance float64 `json:"avg_importance"`

	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"` // Persisted contexts only
}

// IsEmpty reports whether no memories were selected.
func (c *Context) IsEmpty() bool {
	return len(c.Memories) == 0
}

// MemoryIDs returns the ids of the selected memories in order.
func (c *Context) MemoryIDs() []string {
	ids := make([]string, len(c.Memories))
	for i, cm := range c.Memories {
		ids[i] = cm.Memory.ID
	}
	return ids
}

package types

import (
	"encoding/json"
	"time"
)

// Metadata models the open key/value bag attached to a memory as typed
// well-known fields plus a fallback Extra map for forward compatibility.
// It serializes to a single flat JSON object: known fields under their
// conventional names, Extra entries alongside them. Unknown keys seen during
// deserialization land in Extra and survive a round trip.
type Metadata struct {
	// Summary provenance (set on synthesized summary memories)
	IsSummary         bool     `json:"-"`
	OriginalMemoryIDs []string `json:"-"`
	SummarizedCount   int      `json:"-"`

	// SummaryRef back-references the summary memory from an original.
	SummaryRef string `json:"-"`

	// FeedbackScore is an optional 1-5 user rating signal.
	FeedbackScore *float64 `json:"-"`

	// Importance is an optional explicit importance override in [0,1].
	Importance *float64 `json:"-"`

	// ImportanceComputedAt records when the importance scorer last persisted
	// a computed score into this memory.
	ImportanceComputedAt *time.Time `json:"-"`

	// Extra holds any keys not recognized above.
	Extra map[string]interface{} `json:"-"`
}

// Well-known metadata keys. These match the conventional names used in the
// stored JSON so external writers and the typed accessors agree.
const (
	metaKeyIsSummary            = "is_summary"
	metaKeyOriginalMemoryIDs    = "original_memory_ids"
	metaKeySummarizedCount      = "summarized_count"
	metaKeySummaryRef           = "summary_ref"
	metaKeyFeedbackScore        = "feedback_score"
	metaKeyImportance           = "importance"
	metaKeyImportanceComputedAt = "importance_computed_at"
)

// IsZero reports whether the metadata carries no information at all.
func (m Metadata) IsZero() bool {
	return !m.IsSummary &&
		len(m.OriginalMemoryIDs) == 0 &&
		m.SummarizedCount == 0 &&
		m.SummaryRef == "" &&
		m.FeedbackScore == nil &&
		m.Importance == nil &&
		m.ImportanceComputedAt == nil &&
		len(m.Extra) == 0
}

// MarshalJSON flattens the typed fields and Extra into one JSON object.
func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(m.Extra)+7)
	for k, v := range m.Extra {
		out[k] = v
	}
	if m.IsSummary {
		out[metaKeyIsSummary] = true
	}
	if len(m.OriginalMemoryIDs) > 0 {
		out[metaKeyOriginalMemoryIDs] = m.OriginalMemoryIDs
	}
	if m.SummarizedCount > 0 {
		out[metaKeySummarizedCount] = m.SummarizedCount
	}
	if m.SummaryRef != "" {
		out[metaKeySummaryRef] = m.SummaryRef
	}
	if m.FeedbackScore != nil {
		out[metaKeyFeedbackScore] = *m.FeedbackScore
	}
	if m.Importance != nil {
		out[metaKeyImportance] = *m.Importance
	}
	if m.ImportanceComputedAt != nil {
		out[metaKeyImportanceComputedAt] = m.ImportanceComputedAt.Format(time.RFC3339Nano)
	}
	return json.Marshal(out)
}

// UnmarshalJSON lifts well-known keys into typed fields and keeps the rest
// in Extra.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	raw := make(map[string]interface{})
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*m = Metadata{}

	if v, ok := raw[metaKeyIsSummary].(bool); ok {
		m.IsSummary = v
		delete(raw, metaKeyIsSummary)
	}
	if v, ok := raw[metaKeyOriginalMemoryIDs].([]interface{}); ok {
		ids := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				ids = append(ids, s)
			}
		}
		m.OriginalMemoryIDs = ids
		delete(raw, metaKeyOriginalMemoryIDs)
	}
	if v, ok := raw[metaKeySummarizedCount].(float64); ok {
		m.SummarizedCount = int(v)
		delete(raw, metaKeySummarizedCount)
	}
	if v, ok := raw[metaKeySummaryRef].(string); ok {
		m.SummaryRef = v
		delete(raw, metaKeySummaryRef)
	}
	if v, ok := raw[metaKeyFeedbackScore].(float64); ok {
		score := v
		m.FeedbackScore = &score
		delete(raw, metaKeyFeedbackScore)
	}
	if v, ok := raw[metaKeyImportance].(float64); ok {
		imp := v
		m.Importance = &imp
		delete(raw, metaKeyImportance)
	}
	if v, ok := raw[metaKeyImportanceComputedAt].(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			m.ImportanceComputedAt = &ts
		}
		delete(raw, metaKeyImportanceComputedAt)
	}

	if len(raw) > 0 {
		m.Extra = raw
	}
	return nil
}

// SetExtra stores an arbitrary key/value pair in the open extension map.
func (m *Metadata) SetExtra(key string, value interface{}) {
	if m.Extra == nil {
		m.Extra = make(map[string]interface{})
	}
	m.Extra[key] = value
}

// GetExtra returns the value for an extension key, or nil when absent.
func (m Metadata) GetExtra(key string) interface{} {
	if m.Extra == nil {
		return nil
	}
	return m.Extra[key]
}

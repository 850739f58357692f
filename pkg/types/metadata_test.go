package types

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestMetadataMarshalFlattens(t *testing.T) {
	fs := 4.0
	m := Metadata{
		IsSummary:         true,
		OriginalMemoryIDs: []string{"mem:1", "mem:2"},
		SummarizedCount:   2,
		FeedbackScore:     &fs,
	}
	m.SetExtra("source", "import")

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	s := string(data)
	if strings.Contains(s, "Extra") || strings.Contains(s, "extra") {
		t.Errorf("extension map leaked as a nested object: %s", s)
	}
	for _, key := range []string{`"is_summary":true`, `"summarized_count":2`, `"feedback_score":4`, `"source":"import"`} {
		if !strings.Contains(s, key) {
			t.Errorf("flat JSON missing %s: %s", key, s)
		}
	}
}

func TestMetadataUnknownKeysSurviveRoundTrip(t *testing.T) {
	input := `{"is_summary": true, "summary_ref": "mem:s", "pipeline_run": "run-42", "tags": ["a", "b"]}`

	var m Metadata
	if err := json.Unmarshal([]byte(input), &m); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !m.IsSummary || m.SummaryRef != "mem:s" {
		t.Errorf("known keys not lifted: %+v", m)
	}
	if m.GetExtra("pipeline_run") != "run-42" {
		t.Errorf("unknown key lost: %+v", m.Extra)
	}

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("re-Marshal failed: %v", err)
	}
	var again Metadata
	if err := json.Unmarshal(data, &again); err != nil {
		t.Fatalf("re-Unmarshal failed: %v", err)
	}
	if again.GetExtra("pipeline_run") != "run-42" {
		t.Errorf("unknown key did not survive a round trip: %+v", again.Extra)
	}
	if tags, ok := again.GetExtra("tags").([]interface{}); !ok || len(tags) != 2 {
		t.Errorf("structured extra value mangled: %+v", again.GetExtra("tags"))
	}
}

func TestMetadataTimestampRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	m := Metadata{ImportanceComputedAt: &ts}

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var got Metadata
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if got.ImportanceComputedAt == nil || !got.ImportanceComputedAt.Equal(ts) {
		t.Errorf("timestamp mangled: %+v", got.ImportanceComputedAt)
	}
}

func TestMetadataIsZero(t *testing.T) {
	if !(Metadata{}).IsZero() {
		t.Error("empty metadata should be zero")
	}
	m := Metadata{}
	m.SetExtra("k", "v")
	if m.IsZero() {
		t.Error("metadata with extras should not be zero")
	}
}

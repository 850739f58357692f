package engine

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/recallstack/engram/pkg/types"
)

func scoredFixture(id, content string, score float64) ScoredMemory {
	return ScoredMemory{
		Memory: &types.Memory{
			ID:              id,
			TenantID:        testTenant,
			Content:         content,
			MemoryType:      types.MemoryTypeObservation,
			ImportanceScore: score,
			CreatedAt:       time.Now(),
			UpdatedAt:       time.Now(),
		},
		Score: score,
	}
}

func TestBuildNeverExceedsBudgets(t *testing.T) {
	builder := NewContextBuilder(nil)
	ctx := context.Background()

	scored := []ScoredMemory{
		scoredFixture("mem:1", strings.Repeat("a", 400), 0.9),
		scoredFixture("mem:2", strings.Repeat("b", 200), 0.8),
		scoredFixture("mem:3", strings.Repeat("c", 100), 0.7),
		scoredFixture("mem:4", strings.Repeat("d", 40), 0.6),
		scoredFixture("mem:5", strings.Repeat("e", 8), 0.5),
	}

	cases := []struct {
		name        string
		maxTokens   int
		maxMemories int
	}{
		{"tight tokens", 60, 10},
		{"tight count", 10000, 2},
		{"both tight", 30, 1},
		{"roomy", 10000, 10},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			built, err := builder.Build(ctx, testTenant, "query", scored, BuildOptions{
				MaxTokens:   tc.maxTokens,
				MaxMemories: tc.maxMemories,
			})
			if err != nil {
				t.Fatalf("Build failed: %v", err)
			}
			if built.TotalTokens > tc.maxTokens {
				t.Errorf("total tokens %d exceeds budget %d", built.TotalTokens, tc.maxTokens)
			}
			if len(built.Memories) > tc.maxMemories {
				t.Errorf("selected %d memories, cap was %d", len(built.Memories), tc.maxMemories)
			}
			var sum int
			for _, cm := range built.Memories {
				sum += cm.Tokens
			}
			if sum != built.TotalTokens {
				t.Errorf("token sum %d does not match TotalTokens %d", sum, built.TotalTokens)
			}
		})
	}
}

func TestBuildFiltersBelowImportanceThreshold(t *testing.T) {
	builder := NewContextBuilder(nil)

	scored := []ScoredMemory{
		scoredFixture("mem:keep", "important fact", 0.9),
		scoredFixture("mem:drop", "trivial fact", 0.2),
	}

	built, err := builder.Build(context.Background(), testTenant, "query", scored, BuildOptions{
		MaxTokens:     1000,
		MaxMemories:   10,
		MinImportance: 0.5,
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(built.Memories) != 1 || built.Memories[0].Memory.ID != "mem:keep" {
		t.Fatalf("expected only mem:keep, got %v", built.MemoryIDs())
	}
}

func TestBuildSelectsHighestImportanceFirst(t *testing.T) {
	builder := NewContextBuilder(nil)

	scored := []ScoredMemory{
		scoredFixture("mem:low", "customer prefers phone", 0.5),
		scoredFixture("mem:high", "customer prefers email", 0.95),
	}

	built, err := builder.Build(context.Background(), testTenant, "contact", scored, BuildOptions{
		MaxTokens:   50,
		MaxMemories: 1,
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(built.Memories) != 1 || built.Memories[0].Memory.ID != "mem:high" {
		t.Fatalf("expected the single highest-importance memory, got %v", built.MemoryIDs())
	}
}

func TestBuildCompressionKeepsOnlySmallerContent(t *testing.T) {
	// Truncation path: no generator configured.
	builder := NewContextBuilder(nil)

	long := scoredFixture("mem:long", strings.Repeat("x", 800), 0.9)
	built, err := builder.Build(context.Background(), testTenant, "query", []ScoredMemory{long}, BuildOptions{
		MaxTokens:        150,
		MaxMemories:      5,
		UseCompression:   true,
		CompressionRatio: 0.5,
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(built.Memories) != 1 {
		t.Fatalf("expected compressed memory to fit, got %d selections", len(built.Memories))
	}
	cm := built.Memories[0]
	if !cm.Compressed {
		t.Error("expected content to be marked compressed")
	}
	if len(cm.Content) >= len(long.Memory.Content) {
		t.Error("compressed content is not smaller than the original")
	}
	if built.TotalTokens > 150 {
		t.Errorf("total tokens %d exceeds budget", built.TotalTokens)
	}
}

func TestBuildCompressionUsesGenerator(t *testing.T) {
	gen := &fakeGenerator{response: "short version"}
	builder := NewContextBuilder(gen)

	long := scoredFixture("mem:long", strings.Repeat("word ", 200), 0.9)
	built, err := builder.Build(context.Background(), testTenant, "query", []ScoredMemory{long}, BuildOptions{
		MaxTokens:        100,
		MaxMemories:      5,
		UseCompression:   true,
		CompressionRatio: 0.3,
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(gen.prompts) == 0 {
		t.Fatal("expected the generator to be invoked for compression")
	}
	if len(built.Memories) != 1 || built.Memories[0].Content != "short version" {
		t.Fatalf("expected generator output as content, got %+v", built.Memories)
	}
}

func TestTruncateBytesKeepsValidUTF8(t *testing.T) {
	cases := []struct {
		s     string
		limit int
	}{
		{strings.Repeat("é", 50), 25},
		{strings.Repeat("日本語", 30), 40},
		{"plain ascii text", 5},
		{"héllo", 100},
	}
	for _, tc := range cases {
		got := truncateBytes(tc.s, tc.limit)
		if len(got) > tc.limit {
			t.Errorf("truncateBytes(%q, %d) returned %d bytes", tc.s, tc.limit, len(got))
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncateBytes(%q, %d) produced invalid UTF-8: %q", tc.s, tc.limit, got)
		}
		if !strings.HasPrefix(tc.s, got) {
			t.Errorf("truncateBytes(%q, %d) is not a prefix: %q", tc.s, tc.limit, got)
		}
	}
}

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		content string
		want    int
	}{
		{"", 0},
		{"abc", 1},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 400), 100},
	}
	for _, tc := range cases {
		if got := EstimateTokens(tc.content); got != tc.want {
			t.Errorf("EstimateTokens(%d chars) = %d, want %d", len(tc.content), got, tc.want)
		}
	}
}

func TestFormatForPromptEmptySentinel(t *testing.T) {
	got := FormatForPrompt(&types.Context{})
	if got != "No relevant memories found." {
		t.Errorf("unexpected empty sentinel: %q", got)
	}
	if FormatForPrompt(nil) != got {
		t.Error("nil context should render the same sentinel")
	}
}

func TestFormatForPromptAnnotations(t *testing.T) {
	c := &types.Context{
		Memories: []types.ContextMemory{
			{
				Memory: &types.Memory{
					MemoryType:      types.MemoryTypePreference,
					ImportanceScore: 0.75,
				},
				Content: "customer prefers email",
				Tokens:  6,
			},
		},
	}
	got := FormatForPrompt(c)
	if !strings.Contains(got, "preference") || !strings.Contains(got, "0.75") || !strings.Contains(got, "customer prefers email") {
		t.Errorf("formatted context missing annotations: %q", got)
	}
}

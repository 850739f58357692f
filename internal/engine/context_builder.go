package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/recallstack/engram/internal/llm"
	"github.com/recallstack/engram/pkg/types"
)

// emptyContextSentinel is rendered when no memory cleared the importance
// threshold, so downstream prompts always receive a well-formed section.
const emptyContextSentinel = "No relevant memories found."

// BuildOptions tunes one context assembly call.
type BuildOptions struct {
	// MaxTokens is the hard token budget for the selection.
	MaxTokens int

	// MaxMemories caps how many memories are selected.
	MaxMemories int

	// MinImportance filters out memories scoring below it.
	MinImportance float64

	// UseCompression shortens oversized memories to fit more of them.
	UseCompression bool

	// CompressionRatio is the target fraction of the original token count
	// when compressing (default 0.5).
	CompressionRatio float64
}

// ContextBuilder assembles a token-budgeted context from ranked memories
// using greedy selection in ranking order. Memories that do not fit the
// remaining budget are skipped, not truncated.
type ContextBuilder struct {
	// generator, when set, produces LLM compressions of oversized content.
	// When nil or failing, compression falls back to truncation.
	generator llm.TextGenerator
	now       func() time.Time
}

// NewContextBuilder creates a ContextBuilder. The text generator is
// optional and only used for content compression.
func NewContextBuilder(generator llm.TextGenerator) *ContextBuilder {
	return &ContextBuilder{
		generator: generator,
		now:       time.Now,
	}
}

// EstimateTokens approximates the token count of content as ceil(len/4).
// This is a cheap byte-length heuristic, not an exact tokenizer; budgets
// built on it are approximate bounds for non-ASCII text.
func EstimateTokens(content string) int {
	if content == "" {
		return 0
	}
	return (len(content) + 3) / 4
}

// Build selects memories under the token and count budgets. The input is
// sorted by importance descending internally, so callers may pass results
// in any order.
func (b *ContextBuilder) Build(ctx context.Context, tenantID, query string, scored []ScoredMemory, opts BuildOptions) (*types.Context, error) {
	if opts.MaxTokens <= 0 {
		return nil, fmt.Errorf("engine: max tokens must be positive")
	}
	if opts.MaxMemories <= 0 {
		return nil, fmt.Errorf("engine: max memories must be positive")
	}
	ratio := opts.CompressionRatio
	if ratio <= 0 || ratio >= 1 {
		ratio = 0.5
	}

	candidates := make([]ScoredMemory, 0, len(scored))
	for _, sm := range scored {
		if sm.Score >= opts.MinImportance {
			candidates = append(candidates, sm)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Memory.ID < candidates[j].Memory.ID
	})

	result := &types.Context{
		TenantID:  tenantID,
		Query:     query,
		CreatedAt: b.now().UTC(),
	}

	var totalImportance float64
	for _, sm := range candidates {
		if len(result.Memories) >= opts.MaxMemories {
			break
		}

		content := sm.Memory.Content
		tokens := EstimateTokens(content)
		compressed := false

		if opts.UseCompression {
			target := int(float64(tokens) * ratio)
			if target > 0 && tokens > target {
				if shorter, ok := b.compress(ctx, content, target); ok && EstimateTokens(shorter) < tokens {
					content = shorter
					tokens = EstimateTokens(shorter)
					compressed = true
				}
			}
		}

		if result.TotalTokens+tokens > opts.MaxTokens {
			continue
		}

		result.Memories = append(result.Memories, types.ContextMemory{
			Memory:     sm.Memory,
			Content:    content,
			Tokens:     tokens,
			Compressed: compressed,
		})
		result.TotalTokens += tokens
		totalImportance += sm.Score
	}

	if len(result.Memories) > 0 {
		result.AvgImportance = totalImportance / float64(len(result.Memories))
	}
	return result, nil
}

// compress shortens content toward the target token count. It tries the
// text generator first and falls back to plain truncation; the boolean is
// false only when nothing shorter could be produced.
func (b *ContextBuilder) compress(ctx context.Context, content string, targetTokens int) (string, bool) {
	if b.generator != nil {
		out, err := b.generator.Complete(ctx, llm.CompressionPrompt(content, targetTokens))
		if err == nil {
			out = strings.TrimSpace(out)
			if out != "" && len(out) < len(content) {
				return out, true
			}
		} else {
			log.Printf("context: compression call failed, truncating instead: %v", err)
		}
	}

	// Truncation fallback: keep roughly targetTokens worth of bytes.
	limit := targetTokens * 4
	if limit >= len(content) || limit <= 3 {
		return content, false
	}
	return truncateBytes(content, limit-3) + "...", true
}

// truncateBytes cuts s to at most limit bytes without splitting a rune.
func truncateBytes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

// FormatForPrompt renders a context as a prompt section with type and
// importance annotations, or the explicit empty sentinel.
func FormatForPrompt(c *types.Context) string {
	if c == nil || c.IsEmpty() {
		return emptyContextSentinel
	}

	var sb strings.Builder
	sb.WriteString("Relevant memories:\n")
	for i, cm := range c.Memories {
		fmt.Fprintf(&sb, "%d. [%s, importance %.2f] %s\n",
			i+1, cm.Memory.MemoryType, cm.Memory.ImportanceScore, cm.Content)
	}
	return sb.String()
}

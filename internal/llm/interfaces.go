// Package llm provides the external provider clients used by the memory
// engine: text completion for summarization and chain reasoning, and vector
// embedding generation for semantic search. All clients wrap their HTTP
// calls with circuit breaker protection and outbound rate limiting.
package llm

import "context"

// TextGenerator is the interface for LLM text completion.
// All prompts use single-string completion style (not chat).
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GetModel() string
}

// EmbeddingGenerator is the interface for generating vector embeddings.
// Dimensionality is provider-defined; the engine only requires it to be
// consistent within a tenant.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	GetModel() string
}

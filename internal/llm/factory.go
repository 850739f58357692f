package llm

import (
	"fmt"

	"github.com/recallstack/engram/internal/config"
)

// NewTextGenerator creates the appropriate TextGenerator based on LLM config.
func NewTextGenerator(cfg config.LLMConfig) (TextGenerator, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:    cfg.OpenAIAPIKey,
			Model:     cfg.OpenAIModel,
			ReqPerSec: cfg.ReqPerSec,
		}), nil
	case "ollama", "":
		return NewOllamaClient(OllamaConfig{
			BaseURL:   cfg.OllamaURL,
			Model:     cfg.OllamaModel,
			ReqPerSec: cfg.ReqPerSec,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}

// NewEmbeddingGenerator creates the appropriate EmbeddingGenerator based on LLM config.
func NewEmbeddingGenerator(cfg config.LLMConfig) (EmbeddingGenerator, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIEmbeddingClient(OpenAIEmbeddingConfig{
			APIKey:    cfg.OpenAIAPIKey,
			Model:     cfg.OpenAIEmbeddingModel,
			ReqPerSec: cfg.ReqPerSec,
		}), nil
	case "ollama", "":
		return NewOllamaClient(OllamaConfig{
			BaseURL:   cfg.OllamaURL,
			Model:     cfg.OllamaEmbeddingModel,
			ReqPerSec: cfg.ReqPerSec,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}

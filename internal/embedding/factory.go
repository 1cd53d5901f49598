package embedding

import (
	"os"

	"github.com/localmem/memdex/internal/config"
)

// NewFromConfig creates an embedder for the configured provider.
// Returns nil when embeddings are disabled; the store then runs FTS-only.
func NewFromConfig(cfg config.EmbedderConfig) Embedder {
	switch cfg.Provider {
	case "ollama":
		model := cfg.Model
		if model == "" {
			model = "nomic-embed-text"
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = os.Getenv("OLLAMA_HOST")
		}
		return NewOllamaEmbedder(baseURL, model, cfg.Dims)
	case "openai":
		return NewOpenAIEmbedder(cfg.BaseURL, os.Getenv("OPENAI_API_KEY"), cfg.Model, cfg.Dims)
	case "mock":
		return NewMockEmbedder(cfg.Dims)
	default:
		return nil
	}
}

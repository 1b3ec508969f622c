package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// EmbedderConfig represents the configuration for the query embedder.
type EmbedderConfig struct {
	Provider string
	Model    string
	BaseURL  string // Ollama server URL or OpenAI-compatible endpoint
	APIKey   string
}

// Embedder turns a query into the vector the search function expects. It must
// use the same model that produced the stored embeddings.
type Embedder struct {
	Config EmbedderConfig
	embed  embeddings.Embedder
}

func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	if config.Provider == "" {
		config.Provider = "ollama"
	}

	var client embeddings.EmbedderClient
	switch config.Provider {
	case "ollama":
		if config.Model == "" {
			config.Model = "all-minilm"
		}
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434" // Default Ollama URL
		}
		emb, err := ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ollama embedder: %w", err)
		}
		client = emb
	case "openai":
		if config.APIKey == "" {
			return nil, fmt.Errorf("openai embedder: %w", ErrMissingAPIKey)
		}
		if config.Model == "" {
			config.Model = "text-embedding-3-small"
		}
		opts := []openai.Option{
			openai.WithToken(config.APIKey),
			openai.WithEmbeddingModel(config.Model),
		}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		emb, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize openai embedder: %w", err)
		}
		client = emb
	default:
		return nil, fmt.Errorf("unknown embedder provider %q", config.Provider)
	}

	return NewEmbedderFromClient(config, client)
}

// NewEmbedderFromClient wraps any langchaingo embedder client.
func NewEmbedderFromClient(config EmbedderConfig, client embeddings.EmbedderClient) (*Embedder, error) {
	emb, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	return &Embedder{Config: config, embed: emb}, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.embed.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to create query embedding: %w", err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("failed to create query embedding: empty vector")
	}
	return vec, nil
}

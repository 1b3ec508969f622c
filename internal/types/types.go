package types

import (
	"context"
	"time"

	"github.com/xhad/crossrag/internal/models"
)

// Core interfaces

type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type VectorStore interface {
	Search(ctx context.Context, embedding []float32, params SearchParams) ([]models.Chunk, error)
	Stats(ctx context.Context) (map[string]interface{}, error)
	Close()
}

type GraphStore interface {
	Communities(ctx context.Context, keywords []string, limit int) ([]models.Community, error)
	Entities(ctx context.Context, keywords []string, opts EntityOptions) ([]models.Entity, error)
	EntityCount(ctx context.Context) (int, error)
	Close(ctx context.Context) error
}

type ChatModel interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Clear(ctx context.Context) error
}

// SearchParams are the knobs forwarded to the vector search function.
type SearchParams struct {
	MatchThreshold float64
	MatchCount     int
	DocumentType   string
}

type EntityOptions struct {
	Limit             int
	RelationshipLimit int
	MessageLimit      int
}

package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/crossrag/internal/models"
	"github.com/xhad/crossrag/pkg/config"
	"github.com/xhad/crossrag/pkg/query"
)

func loadConfig(t *testing.T, yaml string) *config.Config {
	t.Helper()
	for _, k := range []string{
		"SUPABASE_URL", "SUPABASE_SERVICE_KEY", "DATABASE_URL", "QDRANT_ADDR",
		"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "NEO4J_URL", "REDIS_ADDR",
	} {
		t.Setenv(k, "")
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0600))
	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	return cfg
}

func TestBuildWithoutBackends(t *testing.T) {
	cfg := loadConfig(t, "cache:\n  backend: none\n")

	a, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.False(t, a.Status.Documents)
	assert.False(t, a.Status.Communications)
	assert.False(t, a.Status.LLM)

	resp, err := a.Orchestrator.Run(context.Background(), query.Request{Query: "custody", Mode: models.ModeContradiction}, nil)
	require.NoError(t, err)
	assert.Contains(t, resp.Results.Documents.Error, "not configured")
	assert.Contains(t, resp.Results.Communications.Error, "not configured")
	assert.Contains(t, resp.Results.Synthesis.Error, "not configured")
	assert.Len(t, a.Orchestrator.Templates(), 3)
}

func TestBuildRejectsFatalConfig(t *testing.T) {
	cfg := loadConfig(t, "cache:\n  backend: memcached\n")

	_, err := Build(context.Background(), cfg)
	assert.ErrorContains(t, err, "cache.backend")
}

func TestBuildUsesMemoryCacheByDefault(t *testing.T) {
	cfg := loadConfig(t, "history:\n  size: 2\n")

	a, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	for _, q := range []string{"one", "two", "three"} {
		_, err := a.Orchestrator.Run(context.Background(), query.Request{Query: q, Mode: models.ModeDocuments}, nil)
		require.NoError(t, err)
	}
	h := a.Orchestrator.History()
	require.Len(t, h, 2)
	assert.Equal(t, "three", h[0].Query)
	assert.NoError(t, a.Orchestrator.ClearCache(context.Background()))
}

func TestBuildNamesTheMissingSettings(t *testing.T) {
	tests := []struct {
		name      string
		yaml      string
		documents string
		synthesis string
	}{
		{
			name:      "postgrest",
			yaml:      "cache:\n  backend: none\n",
			documents: "set SUPABASE_URL and SUPABASE_SERVICE_KEY",
			synthesis: "set ANTHROPIC_API_KEY",
		},
		{
			name:      "postgres",
			yaml:      "documents:\n  backend: postgres\nllm:\n  provider: openai\ncache:\n  backend: none\n",
			documents: "set DATABASE_URL",
			synthesis: "set OPENAI_API_KEY",
		},
		{
			name:      "qdrant",
			yaml:      "documents:\n  backend: qdrant\ncache:\n  backend: none\n",
			documents: "set QDRANT_ADDR",
			synthesis: "set ANTHROPIC_API_KEY",
		},
		{
			name:      "embedder",
			yaml:      "documents:\n  backend: qdrant\n  qdrant:\n    address: localhost:6334\nembedder:\n  provider: openai\ncache:\n  backend: none\n",
			documents: "embedder unavailable",
			synthesis: "set ANTHROPIC_API_KEY",
		},
		{
			name:      "unreachable database",
			yaml:      "documents:\n  backend: postgres\n  database_url: postgres://u:p@127.0.0.1:1/db\ncache:\n  backend: none\n",
			documents: "postgres backend unreachable at startup",
			synthesis: "set ANTHROPIC_API_KEY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Build(context.Background(), loadConfig(t, tt.yaml))
			require.NoError(t, err)
			defer a.Close()

			resp, err := a.Orchestrator.Run(context.Background(), query.Request{Query: "custody", Mode: models.ModeContradiction}, nil)
			require.NoError(t, err)
			assert.Contains(t, resp.Results.Documents.Error, tt.documents)
			assert.Contains(t, resp.Results.Communications.Error, "set NEO4J_URL")
			assert.Contains(t, resp.Results.Synthesis.Error, tt.synthesis)
		})
	}
}

package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/crossrag/internal/types"
)

func TestSearchSQL(t *testing.T) {
	sql := searchSQL("search_court_documents")
	assert.Contains(t, sql, `FROM "search_court_documents"($1::vector, $2, $3, $4)`)
	assert.Contains(t, sql, "coalesce(metadata, '{}'::jsonb)")

	assert.Equal(t, `SELECT to_jsonb(s) FROM "get_document_stats"() s LIMIT 1`, statsSQL("get_document_stats"))
}

func TestValidIdentifier(t *testing.T) {
	for _, name := range []string{"search_court_documents", "_fn", "Fn2"} {
		assert.NoError(t, validIdentifier(name), name)
	}
	for _, name := range []string{"", "1fn", "fn; drop table x", "schema.fn", "fn()"} {
		assert.ErrorIs(t, validIdentifier(name), ErrInvalidFunction, name)
	}
}

func TestNewWithConfigRejectsBadFunction(t *testing.T) {
	_, err := NewWithConfig(context.Background(), VectorStoreConfig{
		ConnString:     "postgresql://localhost/none",
		SearchFunction: "bad name",
	})
	assert.ErrorIs(t, err, ErrInvalidFunction)
}

func TestOpenUnknownBackend(t *testing.T) {
	for _, backend := range []string{"milvus", "supabase", "pgvector", ""} {
		t.Run(backend, func(t *testing.T) {
			vs, err := Open(context.Background(), Options{Backend: backend, URL: "https://abc.supabase.co", ServiceKey: "k"})
			assert.ErrorIs(t, err, ErrUnknownBackend)
			assert.Nil(t, vs)
		})
	}
}

func TestOpenMissingCredentials(t *testing.T) {
	vs, err := Open(context.Background(), Options{Backend: "postgrest"})
	assert.ErrorIs(t, err, ErrMissingCredential)
	assert.Nil(t, vs)

	vs, err = Open(context.Background(), Options{Backend: "qdrant"})
	assert.ErrorIs(t, err, ErrMissingCredential)
	assert.Nil(t, vs)
}

func TestRound(t *testing.T) {
	assert.Equal(t, 0.8123, round(0.81234, 4))
	assert.Equal(t, 0.5, round(0.49999999, 6))
}

// TestVectorStore runs against a live database that already holds the
// search and stats functions.
func TestVectorStore(t *testing.T) {
	connString := os.Getenv("TEST_DATABASE_URL")
	if connString == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	s, err := NewWithConfig(ctx, VectorStoreConfig{ConnString: connString})
	require.NoError(t, err)
	defer s.Close()

	embedding := make([]float32, 384)
	embedding[0] = 1

	chunks, err := s.Search(ctx, embedding, types.SearchParams{MatchThreshold: 0, MatchCount: 5})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(chunks), 5)
	for _, c := range chunks {
		assert.NotEmpty(t, c.Filename)
	}

	_, err = s.Search(ctx, nil, types.SearchParams{MatchCount: 5})
	assert.Error(t, err)
}

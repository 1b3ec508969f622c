package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/xhad/crossrag/internal/models"
	"github.com/xhad/crossrag/internal/types"
)

type VectorStoreConfig struct {
	ConnString     string
	SearchFunction string
	StatsFunction  string
}

// VectorStore talks to Postgres directly and calls the same SQL functions the
// Supabase RPC endpoint exposes.
type VectorStore struct {
	config VectorStoreConfig
	pool   *pgxpool.Pool
}

func NewWithConfig(ctx context.Context, config VectorStoreConfig) (*VectorStore, error) {
	if config.SearchFunction == "" {
		config.SearchFunction = "search_court_documents"
	}
	if config.StatsFunction == "" {
		config.StatsFunction = "get_document_stats"
	}
	if err := validIdentifier(config.SearchFunction); err != nil {
		return nil, err
	}
	if err := validIdentifier(config.StatsFunction); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &VectorStore{
		config: config,
		pool:   pool,
	}, nil
}

func searchSQL(function string) string {
	return fmt.Sprintf(`
		SELECT id::text, filename, coalesce(document_type, ''), content, similarity,
			coalesce(chunk_index, 0), coalesce(total_chunks, 0), coalesce(metadata, '{}'::jsonb)
		FROM %s($1::vector, $2, $3, $4)`,
		pgx.Identifier{function}.Sanitize())
}

func statsSQL(function string) string {
	return fmt.Sprintf(`SELECT to_jsonb(s) FROM %s() s LIMIT 1`, pgx.Identifier{function}.Sanitize())
}

func (vs *VectorStore) Search(ctx context.Context, queryEmbedding []float32, params types.SearchParams) ([]models.Chunk, error) {
	if len(queryEmbedding) == 0 {
		return nil, fmt.Errorf("query embedding cannot be empty")
	}

	var docType *string
	if params.DocumentType != "" {
		docType = &params.DocumentType
	}

	embedding := pgvector.NewVector(queryEmbedding)
	rows, err := vs.pool.Query(ctx, searchSQL(vs.config.SearchFunction),
		embedding, params.MatchThreshold, params.MatchCount, docType)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var (
			c  models.Chunk
			id string
		)
		err := rows.Scan(
			&id,
			&c.Filename,
			&c.DocumentType,
			&c.Content,
			&c.Similarity,
			&c.ChunkIndex,
			&c.TotalChunks,
			&c.Metadata,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		c.ID = models.ChunkID(id)
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating through documents: %w", err)
	}

	return chunks, nil
}

func (vs *VectorStore) Stats(ctx context.Context) (map[string]interface{}, error) {
	var stats map[string]interface{}
	err := vs.pool.QueryRow(ctx, statsSQL(vs.config.StatsFunction)).Scan(&stats)
	if err == pgx.ErrNoRows {
		return nil, ErrNoStats
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	return stats, nil
}

func (vs *VectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

// Package documents searches the court document index and renders the hits as
// markdown.
package documents

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xhad/crossrag/internal/models"
	"github.com/xhad/crossrag/internal/types"
	"github.com/xhad/crossrag/pkg/logger"
)

const NoMatchesMessage = "No matching documents found. Try broadening your search terms or lowering the similarity threshold."

type Config struct {
	MatchCount     int
	MatchThreshold float64
	// IndexSize is the number of documents in the index. When zero it is read
	// once from the stats function.
	IndexSize int
}

type Query struct {
	Text       string
	MatchCount int
	// MatchThreshold overrides the configured threshold when set.
	MatchThreshold *float64
	DocumentType   string
}

type Service struct {
	embedder types.Embedder
	store    types.VectorStore
	config   Config
	log      *logrus.Entry

	mu        sync.Mutex
	indexSize int
	sizeKnown bool
	checkedAt time.Time
	now       func() time.Time
}

// statsRetry spaces out index size lookups after a failed stats call.
const statsRetry = time.Minute

func New(embedder types.Embedder, store types.VectorStore, config Config) *Service {
	if config.MatchCount == 0 {
		config.MatchCount = 20
	}
	if config.MatchThreshold == 0 {
		config.MatchThreshold = 0.3
	}
	return &Service{
		embedder:  embedder,
		store:     store,
		config:    config,
		log:       logger.New("documents"),
		indexSize: config.IndexSize,
		sizeKnown: config.IndexSize > 0,
		now:       time.Now,
	}
}

// Search embeds the query, runs the backend search and formats the hits.
// Failures are reported in the result, never as a Go error.
func (s *Service) Search(ctx context.Context, q Query) *models.DocumentResult {
	params := types.SearchParams{
		MatchCount:     q.MatchCount,
		MatchThreshold: s.config.MatchThreshold,
		DocumentType:   q.DocumentType,
	}
	if params.MatchCount == 0 {
		params.MatchCount = s.config.MatchCount
	}
	if q.MatchThreshold != nil {
		params.MatchThreshold = *q.MatchThreshold
	}

	total := s.TotalInIndex(ctx)
	log := s.log.WithFields(logrus.Fields{
		"match_count":     params.MatchCount,
		"match_threshold": params.MatchThreshold,
	})

	chunks, err := s.search(ctx, q.Text, params)
	if err != nil {
		log.WithError(err).Error("document search failed")
		return &models.DocumentResult{
			Status:       models.StatusError,
			Error:        err.Error(),
			TotalInIndex: total,
		}
	}

	log.WithField("chunks", len(chunks)).Info("document search complete")

	if len(chunks) == 0 {
		return &models.DocumentResult{
			Status:            models.StatusSuccess,
			Results:           NoMatchesMessage,
			DocumentsSearched: total,
			TotalInIndex:      total,
		}
	}

	return &models.DocumentResult{
		Status:            models.StatusSuccess,
		Results:           FormatResults(chunks, q.Text),
		DocumentsSearched: total,
		TotalInIndex:      total,
		ChunksFound:       len(chunks),
		RawResults:        chunks,
	}
}

func (s *Service) search(ctx context.Context, text string, params types.SearchParams) ([]models.Chunk, error) {
	if s.embedder == nil || s.store == nil {
		return nil, fmt.Errorf("document search is not configured")
	}
	embedding, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	return s.store.Search(ctx, embedding, params)
}

// Stats returns the backend's statistics row.
func (s *Service) Stats(ctx context.Context) (map[string]interface{}, error) {
	if s.store == nil {
		return nil, fmt.Errorf("document search is not configured")
	}
	return s.store.Stats(ctx)
}

// TotalInIndex returns the configured index size, falling back to the
// total_documents column of the stats function. A backend without that column
// reports zero from then on; a failed lookup is retried after statsRetry.
func (s *Service) TotalInIndex(ctx context.Context) int {
	s.mu.Lock()
	if s.sizeKnown || s.store == nil {
		defer s.mu.Unlock()
		return s.indexSize
	}
	if !s.checkedAt.IsZero() && s.now().Sub(s.checkedAt) < statsRetry {
		s.mu.Unlock()
		return 0
	}
	s.checkedAt = s.now()
	s.mu.Unlock()

	stats, err := s.store.Stats(ctx)
	if err != nil {
		s.log.WithError(err).Debug("could not read index size")
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sizeKnown = true
	if n, ok := toInt(stats["total_documents"]); ok {
		s.indexSize = n
	} else {
		s.log.Debug("backend stats carry no total_documents")
	}
	return s.indexSize
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	}
	return 0, false
}

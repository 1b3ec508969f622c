package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xhad/crossrag/internal/models"
	"github.com/xhad/crossrag/internal/types"
)

type PostgRESTConfig struct {
	URL            string
	ServiceKey     string
	SearchFunction string
	StatsFunction  string
	Timeout        time.Duration
	HTTPClient     *http.Client
}

// PostgRESTStore calls the search function through Supabase's REST RPC
// endpoint, authenticating with the service key.
type PostgRESTStore struct {
	config PostgRESTConfig
	client *http.Client
}

func NewPostgREST(config PostgRESTConfig) (*PostgRESTStore, error) {
	if config.URL == "" || config.ServiceKey == "" {
		return nil, fmt.Errorf("%w: configure SUPABASE_URL and SUPABASE_SERVICE_KEY", ErrMissingCredential)
	}
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
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	config.URL = strings.TrimRight(config.URL, "/")

	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}

	return &PostgRESTStore{config: config, client: client}, nil
}

type searchRequest struct {
	QueryEmbedding     []float32 `json:"query_embedding"`
	MatchThreshold     float64   `json:"match_threshold"`
	MatchCount         int       `json:"match_count"`
	FilterDocumentType *string   `json:"filter_document_type"`
}

func (s *PostgRESTStore) Search(ctx context.Context, embedding []float32, params types.SearchParams) ([]models.Chunk, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("query embedding cannot be empty")
	}

	body := searchRequest{
		QueryEmbedding: embedding,
		MatchThreshold: params.MatchThreshold,
		MatchCount:     params.MatchCount,
	}
	if params.DocumentType != "" {
		body.FilterDocumentType = &params.DocumentType
	}

	var chunks []models.Chunk
	if err := s.rpc(ctx, s.config.SearchFunction, body, &chunks); err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	return chunks, nil
}

func (s *PostgRESTStore) Stats(ctx context.Context) (map[string]interface{}, error) {
	var rows []map[string]interface{}
	if err := s.rpc(ctx, s.config.StatsFunction, struct{}{}, &rows); err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNoStats
	}
	return rows[0], nil
}

func (s *PostgRESTStore) Close() {
	s.client.CloseIdleConnections()
}

func (s *PostgRESTStore) rpc(ctx context.Context, function string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/rest/v1/rpc/%s", s.config.URL, function)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", s.config.ServiceKey)
	req.Header.Set("Authorization", "Bearer "+s.config.ServiceKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &HTTPError{Function: function, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// HTTPError is a non-2xx reply from the REST endpoint.
type HTTPError struct {
	Function   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("rpc %s: HTTP %d", e.Function, e.StatusCode)
	}
	return fmt.Sprintf("rpc %s: HTTP %d: %s", e.Function, e.StatusCode, e.Body)
}

// Unauthorized reports a rejected service key.
func (e *HTTPError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// Package query runs a query against the court documents and the
// communications graph, in parallel when both are needed, and optionally
// synthesises a contradiction report from the two.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/xhad/crossrag/internal/models"
	"github.com/xhad/crossrag/internal/types"
	"github.com/xhad/crossrag/pkg/cache"
	"github.com/xhad/crossrag/pkg/documents"
	"github.com/xhad/crossrag/pkg/graph"
	"github.com/xhad/crossrag/pkg/history"
	"github.com/xhad/crossrag/pkg/logger"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrNotConfigured  = errors.New("not configured")
)

// Source names used in events and cache keys.
const (
	SourceDocuments      = "documents"
	SourceCommunications = "communications"
	SourceSynthesis      = "synthesis"
)

type DocumentSearcher interface {
	Search(ctx context.Context, q documents.Query) *models.DocumentResult
	Stats(ctx context.Context) (map[string]interface{}, error)
}

type GraphSearcher interface {
	Query(ctx context.Context, query, method string) *models.GraphResult
	EntityCount(ctx context.Context) (int, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, query string, docs *models.DocumentResult, comms *models.GraphResult) *models.SynthesisResult
}

// StreamingSynthesizer can deliver the report incrementally.
type StreamingSynthesizer interface {
	Synthesizer
	SynthesizeStream(ctx context.Context, query string, docs *models.DocumentResult, comms *models.GraphResult, onChunk func(string)) *models.SynthesisResult
}

type Config struct {
	// Streaming emits the contradiction report as chunk events while it is
	// generated, when the synthesizer supports it.
	Streaming      bool
	MatchCount     int
	MatchThreshold float64
	MaxMatchCount  int
	Method         string
	CacheTTL       time.Duration
	Templates      []models.Template
	// Hints tell the operator how to enable a source that is missing.
	Hints Hints
}

type Hints struct {
	Documents      string
	Communications string
	Synthesis      string
}

// Options carries the components. Any of them may be nil: a missing source
// yields an ERROR result for that source, a missing cache disables caching.
type Options struct {
	Documents   DocumentSearcher
	Graph       GraphSearcher
	Synthesizer Synthesizer
	Cache       types.Cache
	History     *history.History
}

type Orchestrator struct {
	documents   DocumentSearcher
	graph       GraphSearcher
	synthesizer Synthesizer
	cache       types.Cache
	history     *history.History
	config      Config
	log         *logrus.Entry
}

func New(opts Options, config Config) *Orchestrator {
	if config.MatchCount == 0 {
		config.MatchCount = 20
	}
	if config.MatchThreshold == 0 {
		config.MatchThreshold = 0.3
	}
	if config.MaxMatchCount == 0 {
		config.MaxMatchCount = 50
	}
	if config.Method == "" {
		config.Method = graph.MethodGlobal
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = time.Hour
	}
	if config.Hints.Documents == "" {
		config.Hints.Documents = "set SUPABASE_URL and SUPABASE_SERVICE_KEY"
	}
	if config.Hints.Communications == "" {
		config.Hints.Communications = "set NEO4J_URL"
	}
	if config.Hints.Synthesis == "" {
		config.Hints.Synthesis = "set ANTHROPIC_API_KEY"
	}
	if opts.History == nil {
		opts.History = history.New(10)
	}
	return &Orchestrator{
		documents:   opts.Documents,
		graph:       opts.Graph,
		synthesizer: opts.Synthesizer,
		cache:       opts.Cache,
		history:     opts.History,
		config:      config,
		log:         logger.New("query"),
	}
}

// Request is one query as submitted by a client. Zero values take the
// configured defaults; MatchThreshold and Synthesis are pointers so an
// explicit zero or false can be told apart from "unset".
type Request struct {
	Query          string      `json:"query"`
	Mode           models.Mode `json:"mode"`
	MatchCount     int         `json:"match_count,omitempty"`
	MatchThreshold *float64    `json:"match_threshold,omitempty"`
	Method         string      `json:"method,omitempty"`
	DocumentType   string      `json:"document_type,omitempty"`
	// Synthesis toggles the contradiction report in contradiction mode.
	// Unset means enabled.
	Synthesis *bool `json:"synthesis,omitempty"`
}

type Response struct {
	Query          string         `json:"query"`
	Mode           models.Mode    `json:"mode"`
	Method         string         `json:"method,omitempty"`
	MatchCount     int            `json:"match_count"`
	MatchThreshold float64        `json:"match_threshold"`
	Timestamp      time.Time      `json:"timestamp"`
	Parallel       bool           `json:"parallel"`
	ElapsedMS      int64          `json:"elapsed_ms"`
	Results        models.Results `json:"results"`
}

// Validate fills in defaults and checks the request.
func (o *Orchestrator) Validate(req Request) (Request, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return req, fmt.Errorf("%w: query cannot be empty", ErrInvalidRequest)
	}

	mode, err := models.ParseMode(string(req.Mode))
	if err != nil {
		return req, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	req.Mode = mode

	if req.MatchCount == 0 {
		req.MatchCount = o.config.MatchCount
	}
	if req.MatchCount < 1 || req.MatchCount > o.config.MaxMatchCount {
		return req, fmt.Errorf("%w: match_count must be between 1 and %d", ErrInvalidRequest, o.config.MaxMatchCount)
	}

	if req.MatchThreshold == nil {
		threshold := o.config.MatchThreshold
		req.MatchThreshold = &threshold
	}
	if t := *req.MatchThreshold; t < 0 || t > 1 {
		return req, fmt.Errorf("%w: match_threshold must be between 0 and 1", ErrInvalidRequest)
	}

	if req.Method == "" {
		req.Method = o.config.Method
	}
	if !graph.ValidMethod(req.Method) {
		return req, fmt.Errorf("%w: method must be global or local", ErrInvalidRequest)
	}

	if req.Synthesis == nil {
		enabled := true
		req.Synthesis = &enabled
	}
	return req, nil
}

// Run validates the request, records it in the history and queries the
// sources the mode selects. Source failures are reported inside the
// response; only invalid requests and a cancelled or expired ctx return an
// error.
func (o *Orchestrator) Run(ctx context.Context, req Request, observer Observer) (*Response, error) {
	req, err := o.Validate(req)
	if err != nil {
		return nil, err
	}
	notify := observer.serialized()

	start := time.Now()
	o.history.Add(req.Query, req.Mode)

	resp := &Response{
		Query:          req.Query,
		Mode:           req.Mode,
		MatchCount:     req.MatchCount,
		MatchThreshold: *req.MatchThreshold,
		Timestamp:      start,
	}
	if req.Mode.QueriesCommunications() {
		resp.Method = req.Method
	}

	log := o.log.WithFields(logrus.Fields{
		"mode":        req.Mode,
		"match_count": req.MatchCount,
		"method":      resp.Method,
	})

	runDocs := req.Mode.QueriesDocuments()
	runComms := req.Mode.QueriesCommunications()
	resp.Parallel = runDocs && runComms

	if resp.Parallel {
		log.Info("running document and communications queries in parallel")
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			resp.Results.Documents = o.searchDocuments(gctx, req, notify)
			return nil
		})
		g.Go(func() error {
			resp.Results.Communications = o.searchCommunications(gctx, req, notify)
			return nil
		})
		_ = g.Wait()
	} else {
		if runDocs {
			resp.Results.Documents = o.searchDocuments(ctx, req, notify)
		}
		if runComms {
			resp.Results.Communications = o.searchCommunications(ctx, req, notify)
		}
	}

	if req.Mode == models.ModeContradiction && *req.Synthesis && ctx.Err() == nil {
		resp.Results.Synthesis = o.synthesize(ctx, req, resp.Results, notify)
	}

	resp.ElapsedMS = time.Since(start).Milliseconds()
	if err := ctx.Err(); err != nil {
		log.WithError(err).WithField("elapsed_ms", resp.ElapsedMS).Warn("query abandoned")
		return nil, fmt.Errorf("query interrupted: %w", err)
	}
	log.WithField("elapsed_ms", resp.ElapsedMS).Info("query complete")
	return resp, nil
}

func (o *Orchestrator) searchDocuments(ctx context.Context, req Request, notify Observer) *models.DocumentResult {
	notify.emit(Event{Source: SourceDocuments, Stage: StageStart, Message: "Searching court documents"})

	var res *models.DocumentResult
	if o.documents == nil {
		res = &models.DocumentResult{
			Status: models.StatusError,
			Error:  fmt.Sprintf("court document search %v: %s", ErrNotConfigured, o.config.Hints.Documents),
		}
	} else {
		key := cache.Key(SourceDocuments, req.Query, req.MatchCount, *req.MatchThreshold, req.DocumentType)
		var hit bool
		res, hit = cache.Fetch(ctx, o.cache, key, o.config.CacheTTL, func() *models.DocumentResult {
			return o.documents.Search(ctx, documents.Query{
				Text:           req.Query,
				MatchCount:     req.MatchCount,
				MatchThreshold: req.MatchThreshold,
				DocumentType:   req.DocumentType,
			})
		}, (*models.DocumentResult).OK)
		if hit {
			notify.emit(Event{Source: SourceDocuments, Stage: StageCached})
		}
	}

	if res.OK() {
		notify.emit(Event{Source: SourceDocuments, Stage: StageDone, Message: fmt.Sprintf("%d chunks found", res.ChunksFound)})
	} else {
		notify.emit(Event{Source: SourceDocuments, Stage: StageError, Message: res.Error})
	}
	return res
}

func (o *Orchestrator) searchCommunications(ctx context.Context, req Request, notify Observer) *models.GraphResult {
	notify.emit(Event{Source: SourceCommunications, Stage: StageStart, Message: fmt.Sprintf("Using %s query method", req.Method)})

	var res *models.GraphResult
	if o.graph == nil {
		res = &models.GraphResult{
			Status: models.StatusError,
			Method: req.Method,
			Error:  fmt.Sprintf("communications graph %v: %s", ErrNotConfigured, o.config.Hints.Communications),
		}
	} else {
		key := cache.Key(SourceCommunications, req.Query, req.Method)
		var hit bool
		res, hit = cache.Fetch(ctx, o.cache, key, o.config.CacheTTL, func() *models.GraphResult {
			return o.graph.Query(ctx, req.Query, req.Method)
		}, (*models.GraphResult).OK)
		if hit {
			notify.emit(Event{Source: SourceCommunications, Stage: StageCached})
		}
	}

	if res.OK() {
		notify.emit(Event{Source: SourceCommunications, Stage: StageDone, Message: fmt.Sprintf("%s method complete", req.Method)})
	} else {
		notify.emit(Event{Source: SourceCommunications, Stage: StageError, Message: res.Error})
	}
	return res
}

func (o *Orchestrator) synthesize(ctx context.Context, req Request, results models.Results, notify Observer) *models.SynthesisResult {
	notify.emit(Event{Source: SourceSynthesis, Stage: StageStart, Message: "Analysing contradictions"})

	var res *models.SynthesisResult
	if o.synthesizer == nil {
		res = &models.SynthesisResult{
			Status: models.StatusError,
			Error:  fmt.Sprintf("contradiction analysis %v: %s", ErrNotConfigured, o.config.Hints.Synthesis),
		}
	} else {
		key := cache.Key(SourceSynthesis, req.Query, resultText(results.Documents), graphText(results.Communications))
		var hit bool
		res, hit = cache.Fetch(ctx, o.cache, key, o.config.CacheTTL, func() *models.SynthesisResult {
			if st, ok := o.synthesizer.(StreamingSynthesizer); ok && o.config.Streaming {
				return st.SynthesizeStream(ctx, req.Query, results.Documents, results.Communications, func(chunk string) {
					notify.emit(Event{Source: SourceSynthesis, Stage: StageChunk, Message: chunk})
				})
			}
			return o.synthesizer.Synthesize(ctx, req.Query, results.Documents, results.Communications)
		}, (*models.SynthesisResult).OK)
		if hit {
			notify.emit(Event{Source: SourceSynthesis, Stage: StageCached})
		}
	}

	if res.OK() {
		notify.emit(Event{Source: SourceSynthesis, Stage: StageDone, Message: "3-section analysis complete"})
	} else {
		notify.emit(Event{Source: SourceSynthesis, Stage: StageError, Message: res.Error})
	}
	return res
}

func resultText(r *models.DocumentResult) string {
	if !r.OK() {
		return ""
	}
	return r.Results
}

func graphText(r *models.GraphResult) string {
	if !r.OK() {
		return ""
	}
	return r.Results
}

// ClearCache drops every cached source and synthesis result.
func (o *Orchestrator) ClearCache(ctx context.Context) error {
	if o.cache == nil {
		return nil
	}
	if err := o.cache.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	o.log.Info("cache cleared")
	return nil
}

func (o *Orchestrator) History() []models.HistoryEntry {
	return o.history.List()
}

// Rerun repeats the i-th history entry (zero is the newest) with its mode.
func (o *Orchestrator) Rerun(ctx context.Context, i int, req Request, observer Observer) (*Response, error) {
	entry, err := o.history.Get(i)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	req.Query = entry.Query
	req.Mode = entry.Mode
	return o.Run(ctx, req, observer)
}

func (o *Orchestrator) Templates() []models.Template {
	out := make([]models.Template, len(o.config.Templates))
	copy(out, o.config.Templates)
	return out
}

// Template looks up a template by name, ignoring case.
func (o *Orchestrator) Template(name string) (models.Template, bool) {
	for _, t := range o.config.Templates {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return models.Template{}, false
}

type Stats struct {
	Documents           map[string]interface{} `json:"documents,omitempty"`
	DocumentsError      string                 `json:"documents_error,omitempty"`
	Entities            int                    `json:"entities,omitempty"`
	CommunicationsError string                 `json:"communications_error,omitempty"`
}

// Stats collects backend statistics from both sources concurrently.
func (o *Orchestrator) Stats(ctx context.Context) Stats {
	var (
		stats Stats
		mu    sync.Mutex
		g     errgroup.Group
	)

	g.Go(func() error {
		if o.documents == nil {
			mu.Lock()
			stats.DocumentsError = "court document search " + ErrNotConfigured.Error()
			mu.Unlock()
			return nil
		}
		s, err := o.documents.Stats(ctx)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			stats.DocumentsError = err.Error()
		} else {
			stats.Documents = s
		}
		return nil
	})
	g.Go(func() error {
		if o.graph == nil {
			mu.Lock()
			stats.CommunicationsError = "communications graph " + ErrNotConfigured.Error()
			mu.Unlock()
			return nil
		}
		n, err := o.graph.EntityCount(ctx)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			stats.CommunicationsError = err.Error()
		} else {
			stats.Entities = n
		}
		return nil
	})
	_ = g.Wait()

	return stats
}

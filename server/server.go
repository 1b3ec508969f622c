// Package server exposes the query orchestrator over HTTP and a websocket
// that streams per-source progress while a query runs.
package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/xhad/crossrag/internal/models"
	"github.com/xhad/crossrag/pkg/config"
	"github.com/xhad/crossrag/pkg/export"
	"github.com/xhad/crossrag/pkg/history"
	"github.com/xhad/crossrag/pkg/logger"
	"github.com/xhad/crossrag/pkg/query"
)

//go:embed index.html
var indexHTML []byte

// Querier is the part of the orchestrator the server needs.
type Querier interface {
	Run(ctx context.Context, req query.Request, observer query.Observer) (*query.Response, error)
	History() []models.HistoryEntry
	ClearCache(ctx context.Context) error
	Stats(ctx context.Context) query.Stats
	Templates() []models.Template
}

type Config struct {
	// RateLimit is the sustained number of queries per second across all
	// clients; Burst the number allowed at once.
	RateLimit    float64
	Burst        int
	QueryTimeout time.Duration
	Streaming    bool
}

type Server struct {
	querier Querier
	status  config.Status
	config  Config
	limiter *rate.Limiter
	log     *logrus.Entry
	now     func() time.Time
}

func New(querier Querier, status config.Status, cfg Config) *Server {
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 2
	}
	if cfg.Burst == 0 {
		cfg.Burst = 5
	}
	if cfg.QueryTimeout == 0 {
		cfg.QueryTimeout = 2 * time.Minute
	}
	return &Server{
		querier: querier,
		status:  status,
		config:  cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		log:     logger.New("server"),
		now:     time.Now,
	}
}

// Handler returns the routed, middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	limited := RateLimit(s.limiter)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/templates", s.handleTemplates)
	mux.Handle("POST /api/query", limited(http.HandlerFunc(s.handleQuery)))
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("DELETE /api/cache", s.handleClearCache)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("POST /api/export", s.handleExport)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	return Chain(mux,
		Logger(s.log),
		Recover(s.log),
	)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Services  config.Status `json:"services"`
	Modes     []modeInfo    `json:"modes"`
	Streaming bool          `json:"streaming"`
}

type modeInfo struct {
	Mode  models.Mode `json:"mode"`
	Label string      `json:"label"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Services: s.status, Streaming: s.config.Streaming}
	for _, m := range models.Modes() {
		resp.Modes = append(resp.Modes, modeInfo{Mode: m, Label: m.Label()})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.querier.Templates())
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req query.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.QueryTimeout)
	defer cancel()

	resp, err := s.querier.Run(ctx, req, nil)
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type historyItem struct {
	models.HistoryEntry
	Preview string `json:"preview"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries := s.querier.History()
	items := make([]historyItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, historyItem{HistoryEntry: e, Preview: history.Preview(e.Query)})
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if err := s.querier.ClearCache(r.Context()); err != nil {
		s.log.WithError(err).Error("cache clear failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.querier.Stats(r.Context()))
}

// handleExport renders a previously returned result as a download. The body
// is {query, timestamp, results}; a missing timestamp means now.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var bundle export.Bundle
	if err := json.NewDecoder(r.Body).Decode(&bundle); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if bundle.Query == "" || bundle.Results.Empty() {
		writeError(w, http.StatusBadRequest, "nothing to export")
		return
	}
	if bundle.Timestamp.IsZero() {
		bundle.Timestamp = s.now()
	}

	data, err := export.Render(format, bundle)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName(bundle.Timestamp, format)+`"`)
	w.Write(data)
}

func (s *Server) writeQueryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, query.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "query timed out")
	default:
		s.log.WithError(err).Error("query failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

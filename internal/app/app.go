// Package app builds the query orchestrator and its backends from a Config.
// A backend that cannot be reached is logged and left out; the orchestrator
// then reports that source as not configured.
package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/xhad/crossrag/internal/types"
	"github.com/xhad/crossrag/pkg/cache"
	"github.com/xhad/crossrag/pkg/config"
	"github.com/xhad/crossrag/pkg/documents"
	"github.com/xhad/crossrag/pkg/graph"
	"github.com/xhad/crossrag/pkg/history"
	"github.com/xhad/crossrag/pkg/llm"
	"github.com/xhad/crossrag/pkg/logger"
	"github.com/xhad/crossrag/pkg/query"
	"github.com/xhad/crossrag/pkg/store"
	"github.com/xhad/crossrag/pkg/synthesis"
)

type App struct {
	Config       *config.Config
	Orchestrator *query.Orchestrator
	// Status reflects what was actually connected, not just configured.
	Status config.Status

	closers []func()
	hints   query.Hints
	log     *logrus.Entry
}

// Build validates cfg and connects every configured backend. Only fatal
// configuration errors are returned.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, log: logger.New("app")}

	warnings, fatal := config.Split(cfg.Validate())
	if len(fatal) > 0 {
		return nil, fmt.Errorf("invalid configuration: %v", fatal)
	}
	for _, w := range warnings {
		a.log.WithField("field", w.Field).Warn(w.Message)
	}

	opts := query.Options{History: history.New(cfg.History.Size)}

	chat := a.openChat()
	if svc := a.openDocuments(ctx); svc != nil {
		opts.Documents = svc
	}
	if search := a.openGraph(ctx, chat); search != nil {
		opts.Graph = search
	}
	if chat != nil {
		opts.Synthesizer = synthesis.New(chat, synthesis.Config{MaxContextChars: cfg.Synthesis.MaxContextChars})
		a.Status.LLM = true
	} else {
		a.hints.Synthesis = "set " + cfg.LLMEnv()
	}
	opts.Cache = a.openCache(ctx)

	a.Orchestrator = query.New(opts, query.Config{
		Streaming:      cfg.UI.Streaming,
		MatchCount:     cfg.Documents.MatchCount,
		MatchThreshold: cfg.Documents.MatchThreshold,
		MaxMatchCount:  cfg.Documents.MaxMatchCount,
		Method:         cfg.Graph.Method,
		CacheTTL:       cfg.Cache.TTL,
		Templates:      cfg.UI.Templates,
		Hints:          a.hints,
	})

	a.log.WithFields(logrus.Fields{
		"documents":      a.Status.Documents,
		"communications": a.Status.Communications,
		"llm":            a.Status.LLM,
		"cache":          cfg.Cache.Backend,
	}).Info("components ready")

	return a, nil
}

// Close releases every backend connection in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) openChat() types.ChatModel {
	c := a.Config.LLM
	engine, err := llm.NewWithConfig(llm.ChatConfig{
		Provider:    c.Provider,
		Model:       c.Model,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		BaseURL:     c.BaseURL,
		APIKey:      c.APIKey,
	})
	if err != nil {
		a.log.WithError(err).Warn("LLM unavailable, contradiction analysis disabled")
		return nil
	}
	return engine
}

func (a *App) openDocuments(ctx context.Context) *documents.Service {
	d := a.Config.Documents
	log := a.log.WithField("backend", d.Backend)

	e := a.Config.Embedder
	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Provider: e.Provider,
		Model:    e.Model,
		BaseURL:  e.BaseURL,
		APIKey:   e.APIKey,
	})
	if err != nil {
		log.WithError(err).Warn("embedder unavailable, court document search disabled")
		a.hints.Documents = fmt.Sprintf("embedder unavailable (%v), set %s", err, a.Config.EmbedderEnv())
		return nil
	}
	a.Status.Embedder = true

	if !a.Config.Status().Documents {
		log.Warn("court document search not configured")
		a.hints.Documents = "set " + a.Config.DocumentsEnv()
		return nil
	}

	vs, err := store.Open(ctx, store.Options{
		Backend:          d.Backend,
		URL:              d.URL,
		ServiceKey:       d.ServiceKey,
		DatabaseURL:      d.DatabaseURL,
		SearchFunction:   d.SearchFunction,
		StatsFunction:    d.StatsFunction,
		QdrantAddress:    d.Qdrant.Address,
		QdrantCollection: d.Qdrant.Collection,
		QdrantAPIKey:     d.Qdrant.APIKey,
		QdrantTLS:        d.Qdrant.TLS,
		Timeout:          d.Timeout,
	})
	if err != nil {
		log.WithError(err).Warn("vector store unavailable, court document search disabled")
		a.hints.Documents = fmt.Sprintf("%s backend unreachable at startup (%v), check %s", d.Backend, err, a.Config.DocumentsEnv())
		return nil
	}
	a.closers = append(a.closers, vs.Close)
	a.Status.Documents = true

	return documents.New(embedder, vs, documents.Config{
		MatchCount:     d.MatchCount,
		MatchThreshold: d.MatchThreshold,
		IndexSize:      d.IndexSize,
	})
}

func (a *App) openGraph(ctx context.Context, chat types.ChatModel) *graph.Search {
	g := a.Config.Graph
	if !g.Enabled {
		a.log.Info("communications graph disabled")
		a.hints.Communications = "set NEO4J_URL"
		return nil
	}

	gs, err := graph.NewNeo4j(ctx, graph.Neo4jConfig{
		URL:            g.URL,
		Username:       g.Username,
		Password:       g.Password,
		Database:       g.Database,
		EntityLabel:    g.EntityLabel,
		CommunityLabel: g.CommunityLabel,
		MessageLabel:   g.MessageLabel,
	})
	if err != nil {
		a.log.WithError(err).Warn("neo4j unavailable, communications search disabled")
		a.hints.Communications = fmt.Sprintf("neo4j unreachable at startup (%v), check NEO4J_URL", err)
		return nil
	}
	a.closers = append(a.closers, func() {
		if err := gs.Close(context.Background()); err != nil {
			a.log.WithError(err).Warn("failed to close neo4j driver")
		}
	})
	a.Status.Communications = true

	return graph.NewSearch(gs, chat, graph.Config{
		Method:            g.Method,
		CommunityLimit:    g.CommunityLimit,
		EntityLimit:       g.EntityLimit,
		RelationshipLimit: g.RelationshipLimit,
		MessageLimit:      g.MessageLimit,
	})
}

func (a *App) openCache(ctx context.Context) types.Cache {
	c := a.Config.Cache
	switch c.Backend {
	case "none":
		return nil
	case "redis":
		rc, err := cache.NewRedis(ctx, cache.RedisConfig{
			Address:  c.Redis.Address,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
			Prefix:   c.Redis.Prefix,
		})
		if err == nil {
			a.closers = append(a.closers, func() { rc.Close() })
			return rc
		}
		a.log.WithError(err).Warn("redis unavailable, falling back to in-memory cache")
	}
	return cache.NewMemory(c.Capacity)
}

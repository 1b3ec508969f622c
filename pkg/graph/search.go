// Package graph queries the communications knowledge graph built by GraphRAG.
//
// The global method answers from community summaries; the local method
// answers from matching entities, their neighbours and the dated messages that
// mention them.
package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/xhad/crossrag/internal/models"
	"github.com/xhad/crossrag/internal/types"
	"github.com/xhad/crossrag/pkg/logger"
	"github.com/xhad/crossrag/pkg/processor"
)

const (
	MethodGlobal = "global"
	MethodLocal  = "local"
)

const NoMatchesMessage = "No matching communications found. Try different search terms."

const answerSystemPrompt = `You analyse a family's communications (text messages and emails) for legal case preparation.
Answer the question using only the context provided. Quote dates and senders when the context has them.
If the context does not answer the question, say so.`

type Config struct {
	Method            string
	CommunityLimit    int
	EntityLimit       int
	RelationshipLimit int
	MessageLimit      int
	// ExcerptChars bounds each summary or message in the rendered context.
	ExcerptChars int
}

type Search struct {
	store     types.GraphStore
	chat      types.ChatModel
	config    Config
	processor processor.Processor
	log       *logrus.Entry
}

// NewSearch builds a graph search. chat may be nil, in which case results
// carry only the retrieved context.
func NewSearch(store types.GraphStore, chat types.ChatModel, config Config) *Search {
	if config.Method == "" {
		config.Method = MethodGlobal
	}
	if config.CommunityLimit == 0 {
		config.CommunityLimit = 10
	}
	if config.EntityLimit == 0 {
		config.EntityLimit = 10
	}
	if config.RelationshipLimit == 0 {
		config.RelationshipLimit = 10
	}
	if config.MessageLimit == 0 {
		config.MessageLimit = 5
	}
	if config.ExcerptChars == 0 {
		config.ExcerptChars = 1200
	}
	return &Search{
		store:     store,
		chat:      chat,
		config:    config,
		processor: processor.Default(),
		log:       logger.New("graph"),
	}
}

func ValidMethod(method string) bool {
	return method == MethodGlobal || method == MethodLocal
}

// Query runs the graph search with the given method; an empty method uses the
// configured default.
func (s *Search) Query(ctx context.Context, query, method string) *models.GraphResult {
	if method == "" {
		method = s.config.Method
	}
	result := &models.GraphResult{Method: method}

	fail := func(err error) *models.GraphResult {
		s.log.WithError(err).WithField("method", method).Error("graph query failed")
		result.Status = models.StatusError
		result.Error = err.Error()
		return result
	}

	if !ValidMethod(method) {
		return fail(fmt.Errorf("unknown query method %q (expected global or local)", method))
	}
	if s.store == nil {
		return fail(fmt.Errorf("communications graph is not configured"))
	}

	keywords := s.processor.Keywords(query)
	if len(keywords) == 0 {
		result.Status = models.StatusSuccess
		result.Results = NoMatchesMessage
		return result
	}

	var (
		rendered string
		err      error
	)
	switch method {
	case MethodGlobal:
		var communities []models.Community
		communities, err = s.store.Communities(ctx, keywords, s.config.CommunityLimit)
		result.CommunitiesFound = len(communities)
		rendered = s.renderCommunities(communities)
	case MethodLocal:
		var entities []models.Entity
		entities, err = s.store.Entities(ctx, keywords, types.EntityOptions{
			Limit:             s.config.EntityLimit,
			RelationshipLimit: s.config.RelationshipLimit,
			MessageLimit:      s.config.MessageLimit,
		})
		result.EntitiesFound = len(entities)
		rendered = s.renderEntities(entities)
	}
	if err != nil {
		return fail(err)
	}

	s.log.WithFields(logrus.Fields{
		"method":      method,
		"keywords":    len(keywords),
		"entities":    result.EntitiesFound,
		"communities": result.CommunitiesFound,
	}).Info("graph query complete")

	result.Status = models.StatusSuccess
	if rendered == "" {
		result.Results = NoMatchesMessage
		return result
	}

	var out strings.Builder
	fmt.Fprintf(&out, "# Communications Analysis (%s search)\n\n", method)
	fmt.Fprintf(&out, "**Query:** %s\n\n", query)

	if s.chat != nil {
		answer, err := s.chat.Generate(ctx, answerSystemPrompt, answerPrompt(query, rendered))
		if err != nil {
			s.log.WithError(err).Warn("graph answer generation failed, returning context only")
		} else if answer = strings.TrimSpace(answer); answer != "" {
			fmt.Fprintf(&out, "## Answer\n\n%s\n\n---\n\n", answer)
		}
	}

	out.WriteString(rendered)
	result.Results = strings.TrimRight(out.String(), "\n")
	return result
}

func answerPrompt(query, rendered string) string {
	return fmt.Sprintf("Question: %s\n\nContext:\n\n%s", query, rendered)
}

func (s *Search) renderCommunities(communities []models.Community) string {
	if len(communities) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Community Summaries\n\n")
	for i, c := range communities {
		title := c.Title
		if title == "" {
			title = "Untitled community"
		}
		fmt.Fprintf(&b, "### %d. %s (rank %.1f)\n\n", i+1, title, c.Rank)
		fmt.Fprintf(&b, "%s\n\n", s.processor.Excerpt(c.Summary, s.config.ExcerptChars))
	}
	return b.String()
}

func (s *Search) renderEntities(entities []models.Entity) string {
	if len(entities) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Entities\n\n")
	for i, e := range entities {
		if e.Type != "" {
			fmt.Fprintf(&b, "### %d. %s (%s)\n\n", i+1, e.Name, e.Type)
		} else {
			fmt.Fprintf(&b, "### %d. %s\n\n", i+1, e.Name)
		}
		if e.Description != "" {
			fmt.Fprintf(&b, "%s\n\n", s.processor.Excerpt(e.Description, s.config.ExcerptChars))
		}
		if len(e.Relationships) > 0 {
			b.WriteString("**Relationships:**\n")
			for _, r := range e.Relationships {
				fmt.Fprintf(&b, "- %s → %s: %s\n", r.Source, r.Target, r.Description)
			}
			b.WriteString("\n")
		}
		if len(e.Messages) > 0 {
			b.WriteString("**Messages:**\n")
			for _, m := range e.Messages {
				date := m.Date
				if date == "" {
					date = "undated"
				}
				sender := m.Sender
				if sender == "" {
					sender = "unknown sender"
				}
				fmt.Fprintf(&b, "- [%s] %s: %s\n", date, sender, s.processor.Excerpt(m.Text, s.config.ExcerptChars))
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// EntityCount reports the number of entities in the graph.
func (s *Search) EntityCount(ctx context.Context) (int, error) {
	if s.store == nil {
		return 0, fmt.Errorf("communications graph is not configured")
	}
	return s.store.EntityCount(ctx)
}

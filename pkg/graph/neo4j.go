package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/xhad/crossrag/internal/models"
	"github.com/xhad/crossrag/internal/types"
)

type Neo4jConfig struct {
	URL            string
	Username       string
	Password       string
	Database       string
	EntityLabel    string
	CommunityLabel string
	MessageLabel   string
}

// runner executes one read query and returns every record.
type runner interface {
	run(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error)
	close(ctx context.Context) error
}

type driverRunner struct {
	driver   neo4j.DriverWithContext
	database string
}

func (d *driverRunner) run(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	sess := d.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: d.database,
	})
	defer sess.Close(ctx)

	result, err := sess.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	return result.Collect(ctx)
}

func (d *driverRunner) close(ctx context.Context) error {
	return d.driver.Close(ctx)
}

// Neo4jStore reads the GraphRAG output (entities, community reports and the
// messages that mention entities) from Neo4j.
type Neo4jStore struct {
	runner runner
	config Neo4jConfig
}

var _ types.GraphStore = (*Neo4jStore)(nil)

func NewNeo4j(ctx context.Context, config Neo4jConfig) (*Neo4jStore, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("neo4j url is empty")
	}

	driver, err := neo4j.NewDriverWithContext(config.URL, neo4j.BasicAuth(config.Username, config.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to connect to neo4j: %w", err)
	}

	return newNeo4jWithRunner(&driverRunner{driver: driver, database: config.Database}, config), nil
}

func newNeo4jWithRunner(r runner, config Neo4jConfig) *Neo4jStore {
	if config.EntityLabel == "" {
		config.EntityLabel = "Entity"
	}
	if config.CommunityLabel == "" {
		config.CommunityLabel = "Community"
	}
	if config.MessageLabel == "" {
		config.MessageLabel = "Message"
	}
	return &Neo4jStore{runner: r, config: config}
}

// label quotes a node label for interpolation into cypher. Anything outside
// [A-Za-z0-9_] is dropped.
func label(name, fallback string) string {
	safe := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			safe = append(safe, c)
		}
	}
	if len(safe) == 0 {
		safe = []byte(fallback)
	}
	return "`" + string(safe) + "`"
}

func (s *Neo4jStore) communitiesCypher() string {
	return fmt.Sprintf(`
		MATCH (c:%s)
		WITH c, [k IN $keywords WHERE toLower(coalesce(c.title, '')) CONTAINS k
			OR toLower(coalesce(c.summary, '')) CONTAINS k] AS matched
		WHERE size(matched) > 0
		RETURN coalesce(c.title, '') AS title,
			coalesce(c.summary, '') AS summary,
			toFloat(coalesce(c.rank, 0)) AS rank,
			size(matched) AS hits
		ORDER BY hits DESC, rank DESC
		LIMIT $limit`,
		label(s.config.CommunityLabel, "Community"))
}

func (s *Neo4jStore) entitiesCypher() string {
	return fmt.Sprintf(`
		MATCH (e:%[1]s)
		WITH e, [k IN $keywords WHERE toLower(coalesce(e.name, '')) CONTAINS k
			OR toLower(coalesce(e.description, '')) CONTAINS k] AS matched
		WHERE size(matched) > 0
		WITH e, size(matched) AS hits
		ORDER BY hits DESC, coalesce(e.degree, 0) DESC
		LIMIT $limit
		OPTIONAL MATCH (e)-[r]-(n:%[1]s)
		WITH e, hits, collect(DISTINCT CASE WHEN n IS NULL THEN NULL ELSE
			{target: coalesce(n.name, ''), description: coalesce(r.description, type(r))} END)[..$relationships] AS relationships
		OPTIONAL MATCH (m:%[2]s)-[:MENTIONS]->(e)
		WITH e, hits, relationships, m
		ORDER BY m.date DESC
		WITH e, hits, relationships, collect(CASE WHEN m IS NULL THEN NULL ELSE
			{text: coalesce(m.text, ''), date: toString(coalesce(m.date, '')), sender: coalesce(m.sender, '')} END)[..$messages] AS messages
		RETURN coalesce(e.name, '') AS name,
			coalesce(e.type, '') AS type,
			coalesce(e.description, '') AS description,
			hits, relationships, messages
		ORDER BY hits DESC`,
		label(s.config.EntityLabel, "Entity"), label(s.config.MessageLabel, "Message"))
}

// Communities returns community reports whose title or summary contains any
// keyword, most matches first.
func (s *Neo4jStore) Communities(ctx context.Context, keywords []string, limit int) ([]models.Community, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	records, err := s.runner.run(ctx, s.communitiesCypher(), map[string]any{
		"keywords": lower(keywords),
		"limit":    limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query communities: %w", err)
	}

	communities := make([]models.Community, 0, len(records))
	for _, rec := range records {
		communities = append(communities, communityFromRecord(rec))
	}
	return communities, nil
}

// Entities returns matching entities with their neighbours and the newest
// messages that mention them.
func (s *Neo4jStore) Entities(ctx context.Context, keywords []string, opts types.EntityOptions) ([]models.Entity, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	records, err := s.runner.run(ctx, s.entitiesCypher(), map[string]any{
		"keywords":      lower(keywords),
		"limit":         opts.Limit,
		"relationships": opts.RelationshipLimit,
		"messages":      opts.MessageLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}

	entities := make([]models.Entity, 0, len(records))
	for _, rec := range records {
		entities = append(entities, entityFromRecord(rec))
	}
	return entities, nil
}

func (s *Neo4jStore) EntityCount(ctx context.Context) (int, error) {
	cypher := fmt.Sprintf(`MATCH (e:%s) RETURN count(e) AS n`, label(s.config.EntityLabel, "Entity"))
	records, err := s.runner.run(ctx, cypher, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count entities: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}
	return asInt(get(records[0], "n")), nil
}

func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.runner.close(ctx)
}

func communityFromRecord(rec *neo4j.Record) models.Community {
	return models.Community{
		Title:   asString(get(rec, "title")),
		Summary: asString(get(rec, "summary")),
		Rank:    asFloat(get(rec, "rank")),
		Hits:    asInt(get(rec, "hits")),
	}
}

func entityFromRecord(rec *neo4j.Record) models.Entity {
	e := models.Entity{
		Name:        asString(get(rec, "name")),
		Type:        asString(get(rec, "type")),
		Description: asString(get(rec, "description")),
		Hits:        asInt(get(rec, "hits")),
	}
	for _, raw := range asList(get(rec, "relationships")) {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		e.Relationships = append(e.Relationships, models.Relationship{
			Source:      e.Name,
			Target:      asString(m["target"]),
			Description: asString(m["description"]),
		})
	}
	for _, raw := range asList(get(rec, "messages")) {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		e.Messages = append(e.Messages, models.Message{
			Text:   asString(m["text"]),
			Date:   asString(m["date"]),
			Sender: asString(m["sender"]),
		})
	}
	return e
}

func get(rec *neo4j.Record, key string) any {
	v, _ := rec.Get(key)
	return v
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func asInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}

func asList(v any) []any {
	l, _ := v.([]any)
	return l
}

func lower(keywords []string) []string {
	out := make([]string, len(keywords))
	for i, k := range keywords {
		out[i] = strings.ToLower(k)
	}
	return out
}

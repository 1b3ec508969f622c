package graph

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/crossrag/internal/types"
)

type fakeRunner struct {
	records []*neo4j.Record
	err     error
	cypher  string
	params  map[string]any
	closed  bool
}

func (f *fakeRunner) run(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	f.cypher = cypher
	f.params = params
	return f.records, f.err
}

func (f *fakeRunner) close(ctx context.Context) error {
	f.closed = true
	return nil
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "`Entity`", label("Entity", "X"))
	assert.Equal(t, "`EntityDROP`", label("Entity` DROP", "X"))
	assert.Equal(t, "`X`", label("!!", "X"))
}

func TestCommunities(t *testing.T) {
	r := &fakeRunner{records: []*neo4j.Record{
		{
			Keys:   []string{"title", "summary", "rank", "hits"},
			Values: []any{"School pickups", "Arguments over pickup times.", 8.5, int64(2)},
		},
	}}
	s := newNeo4jWithRunner(r, Neo4jConfig{CommunityLabel: "Report"})

	got, err := s.Communities(context.Background(), []string{"School", "pickup"}, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "School pickups", got[0].Title)
	assert.Equal(t, 8.5, got[0].Rank)
	assert.Equal(t, 2, got[0].Hits)

	assert.Contains(t, r.cypher, "MATCH (c:`Report`)")
	assert.Equal(t, []string{"school", "pickup"}, r.params["keywords"])
	assert.Equal(t, 5, r.params["limit"])
}

func TestCommunitiesNoKeywords(t *testing.T) {
	r := &fakeRunner{}
	s := newNeo4jWithRunner(r, Neo4jConfig{})

	got, err := s.Communities(context.Background(), nil, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, r.cypher)
}

func TestEntities(t *testing.T) {
	r := &fakeRunner{records: []*neo4j.Record{
		{
			Keys: []string{"name", "type", "description", "hits", "relationships", "messages"},
			Values: []any{
				"Lincoln Elementary", "ORGANIZATION", "School the children attend.", int64(1),
				[]any{map[string]any{"target": "Ms. Park", "description": "coaches"}},
				[]any{map[string]any{"text": "Running late to Lincoln", "date": "2023-04-02", "sender": "Mom"}},
			},
		},
	}}
	s := newNeo4jWithRunner(r, Neo4jConfig{})

	got, err := s.Entities(context.Background(), []string{"lincoln"}, types.EntityOptions{Limit: 3, RelationshipLimit: 4, MessageLimit: 2})
	require.NoError(t, err)
	require.Len(t, got, 1)

	e := got[0]
	assert.Equal(t, "Lincoln Elementary", e.Name)
	assert.Equal(t, "ORGANIZATION", e.Type)
	require.Len(t, e.Relationships, 1)
	assert.Equal(t, "Lincoln Elementary", e.Relationships[0].Source)
	assert.Equal(t, "Ms. Park", e.Relationships[0].Target)
	require.Len(t, e.Messages, 1)
	assert.Equal(t, "2023-04-02", e.Messages[0].Date)

	assert.Contains(t, r.cypher, "MATCH (e:`Entity`)")
	assert.Contains(t, r.cypher, "OPTIONAL MATCH (m:`Message`)-[:MENTIONS]->(e)")
	assert.Equal(t, 3, r.params["limit"])
	assert.Equal(t, 4, r.params["relationships"])
	assert.Equal(t, 2, r.params["messages"])
}

func TestEntitiesError(t *testing.T) {
	s := newNeo4jWithRunner(&fakeRunner{err: errors.New("connection reset")}, Neo4jConfig{})

	_, err := s.Entities(context.Background(), []string{"x"}, types.EntityOptions{Limit: 1})
	assert.ErrorContains(t, err, "connection reset")
}

func TestEntityCount(t *testing.T) {
	r := &fakeRunner{records: []*neo4j.Record{{Keys: []string{"n"}, Values: []any{int64(23784)}}}}
	s := newNeo4jWithRunner(r, Neo4jConfig{})

	n, err := s.EntityCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 23784, n)

	require.NoError(t, s.Close(context.Background()))
	assert.True(t, r.closed)
}

func TestNeo4jLive(t *testing.T) {
	url := os.Getenv("TEST_NEO4J_URL")
	if url == "" {
		t.Skip("TEST_NEO4J_URL not set")
	}

	ctx := context.Background()
	s, err := NewNeo4j(ctx, Neo4jConfig{
		URL:      url,
		Username: os.Getenv("TEST_NEO4J_USER"),
		Password: os.Getenv("TEST_NEO4J_PASSWORD"),
	})
	require.NoError(t, err)
	defer s.Close(ctx)

	_, err = s.EntityCount(ctx)
	assert.NoError(t, err)
}

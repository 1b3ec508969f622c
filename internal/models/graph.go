package models

// Community is a GraphRAG community summary.
type Community struct {
	Title   string  `json:"title"`
	Summary string  `json:"summary"`
	Rank    float64 `json:"rank"`
	Hits    int     `json:"hits"`
}

// Relationship links two entities in the communications graph.
type Relationship struct {
	Source      string `json:"source"`
	Target      string `json:"target"`
	Description string `json:"description"`
}

// Message is a raw communication that mentions an entity.
type Message struct {
	Text   string `json:"text"`
	Date   string `json:"date"`
	Sender string `json:"sender"`
}

// Entity is a GraphRAG entity plus its local neighbourhood.
type Entity struct {
	Name          string         `json:"name"`
	Type          string         `json:"type"`
	Description   string         `json:"description"`
	Hits          int            `json:"hits"`
	Relationships []Relationship `json:"relationships,omitempty"`
	Messages      []Message      `json:"messages,omitempty"`
}

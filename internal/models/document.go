package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

const (
	StatusSuccess = "SUCCESS"
	StatusError   = "ERROR"
)

// ChunkID accepts either a JSON string or a JSON number, since search functions
// return bigint or uuid primary keys depending on the schema.
type ChunkID string

func (id *ChunkID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ChunkID(s)
		return nil
	}
	*id = ChunkID(strings.TrimSpace(string(data)))
	return nil
}

// Chunk is one passage returned by the vector search function.
type Chunk struct {
	ID           ChunkID                `json:"id"`
	Filename     string                 `json:"filename"`
	DocumentType string                 `json:"document_type"`
	Content      string                 `json:"content"`
	Similarity   float64                `json:"similarity"`
	ChunkIndex   int                    `json:"chunk_index"`
	TotalChunks  int                    `json:"total_chunks"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// DocumentResult is the outcome of a document search. Failures are reported
// through Status and Error rather than a Go error so one broken source does not
// hide the other.
type DocumentResult struct {
	Status            string  `json:"status"`
	Results           string  `json:"results,omitempty"`
	DocumentsSearched int     `json:"documents_searched"`
	TotalInIndex      int     `json:"total_in_index"`
	ChunksFound       int     `json:"chunks_found"`
	RawResults        []Chunk `json:"raw_results,omitempty"`
	Error             string  `json:"error,omitempty"`
}

func (r *DocumentResult) OK() bool { return r != nil && r.Status == StatusSuccess }

// GraphResult is the outcome of a communications graph query.
type GraphResult struct {
	Status           string `json:"status"`
	Method           string `json:"method"`
	Results          string `json:"results,omitempty"`
	EntitiesFound    int    `json:"entities_found"`
	CommunitiesFound int    `json:"communities_found"`
	Error            string `json:"error,omitempty"`
}

func (r *GraphResult) OK() bool { return r != nil && r.Status == StatusSuccess }

// SynthesisResult holds the contradiction analysis report.
type SynthesisResult struct {
	Status string `json:"status"`
	Report string `json:"report,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (r *SynthesisResult) OK() bool { return r != nil && r.Status == StatusSuccess }

// Results bundles whatever each source produced for one query. A nil field
// means the source was not queried in the selected mode.
type Results struct {
	Documents      *DocumentResult  `json:"documents,omitempty"`
	Communications *GraphResult     `json:"communications,omitempty"`
	Synthesis      *SynthesisResult `json:"synthesis,omitempty"`
}

func (r Results) Empty() bool {
	return r.Documents == nil && r.Communications == nil && r.Synthesis == nil
}

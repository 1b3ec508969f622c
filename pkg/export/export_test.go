package export

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/crossrag/internal/models"
)

var stamp = time.Date(2024, 3, 9, 14, 30, 5, 0, time.UTC)

func dualBundle() Bundle {
	return Bundle{
		Query:     "custody schedule",
		Timestamp: stamp,
		Results: models.Results{
			Documents:      &models.DocumentResult{Status: models.StatusSuccess, Results: "doc hits"},
			Communications: &models.GraphResult{Status: models.StatusError, Error: "neo4j down"},
		},
	}
}

func TestMarkdown(t *testing.T) {
	want := "# Cross-RAG Query Results\n\n" +
		"**Query:** custody schedule\n" +
		"**Date:** 2024-03-09 14:30:05\n\n" +
		"---\n\n" +
		"## Court Documents Results\n\n" +
		"doc hits\n\n---\n\n" +
		"## Communications Results\n\n" +
		"Error: neo4j down\n"

	assert.Equal(t, want, string(Markdown(dualBundle())))
}

func TestMarkdownPutsSynthesisFirst(t *testing.T) {
	b := dualBundle()
	b.Results.Synthesis = &models.SynthesisResult{Status: models.StatusSuccess, Report: "## 1. Claims"}

	out := string(Markdown(b))
	assert.Contains(t, out, "---\n\n## Contradiction Analysis\n\n## 1. Claims\n\n---\n\n## Court Documents Results")
}

func TestMarkdownSingleSource(t *testing.T) {
	b := Bundle{Query: "q", Timestamp: stamp, Results: models.Results{
		Communications: &models.GraphResult{Status: models.StatusSuccess, Results: "comms"},
	}}
	out := string(Markdown(b))
	assert.NotContains(t, out, "Court Documents")
	assert.Contains(t, out, "## Communications Results\n\ncomms\n")
}

func TestJSON(t *testing.T) {
	data, err := JSON(dualBundle())
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "custody schedule", got["query"])
	assert.Equal(t, "2024-03-09T14:30:05.000000", got["timestamp"])

	results := got["results"].(map[string]interface{})
	assert.Contains(t, results, "documents")
	assert.Contains(t, results, "communications")
	assert.NotContains(t, results, "synthesis")
	assert.Contains(t, string(data), "\n  \"query\"")
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "cross_rag_results_20240309_143005.json", FileName(stamp, FormatJSON))
	assert.Equal(t, "cross_rag_results_20240309_143005.md", FileName(stamp, FormatMarkdown))
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"json": FormatJSON, "MD": FormatMarkdown, "markdown": FormatMarkdown} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("pdf")
	assert.Error(t, err)
}

func TestRender(t *testing.T) {
	data, err := Render(FormatMarkdown, dualBundle())
	require.NoError(t, err)
	assert.Equal(t, Markdown(dualBundle()), data)

	_, err = Render("pdf", dualBundle())
	assert.Error(t, err)
}

// Package export renders a query and its results as a downloadable JSON or
// Markdown document.
package export

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xhad/crossrag/internal/models"
)

type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "md"
)

// ParseFormat accepts "json", "md" and "markdown".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/markdown; charset=utf-8"
}

// Bundle is what gets exported.
type Bundle struct {
	Query     string         `json:"query"`
	Timestamp time.Time      `json:"timestamp"`
	Results   models.Results `json:"results"`
}

type jsonBundle struct {
	Query     string         `json:"query"`
	Timestamp string         `json:"timestamp"`
	Results   models.Results `json:"results"`
}

// JSON encodes the bundle with two-space indentation. The timestamp is
// written in ISO 8601 local time without a zone.
func JSON(b Bundle) ([]byte, error) {
	return json.MarshalIndent(jsonBundle{
		Query:     b.Query,
		Timestamp: b.Timestamp.Format("2006-01-02T15:04:05.000000"),
		Results:   b.Results,
	}, "", "  ")
}

// Markdown renders the bundle with one section per source that was queried.
// The contradiction report comes first when present.
func Markdown(b Bundle) []byte {
	var sb strings.Builder

	sb.WriteString("# Cross-RAG Query Results\n\n")
	fmt.Fprintf(&sb, "**Query:** %s\n", b.Query)
	fmt.Fprintf(&sb, "**Date:** %s\n\n", b.Timestamp.Format("2006-01-02 15:04:05"))
	sb.WriteString("---\n\n")

	if s := b.Results.Synthesis; s != nil {
		sb.WriteString("## Contradiction Analysis\n\n")
		sb.WriteString(synthesisText(s))
		sb.WriteString("\n\n---\n\n")
	}
	if d := b.Results.Documents; d != nil {
		sb.WriteString("## Court Documents Results\n\n")
		sb.WriteString(documentText(d))
		sb.WriteString("\n\n---\n\n")
	}
	if c := b.Results.Communications; c != nil {
		sb.WriteString("## Communications Results\n\n")
		sb.WriteString(graphText(c))
		sb.WriteString("\n")
	}

	return []byte(sb.String())
}

// Render dispatches on the format.
func Render(f Format, b Bundle) ([]byte, error) {
	switch f {
	case FormatJSON:
		return JSON(b)
	case FormatMarkdown:
		return Markdown(b), nil
	}
	return nil, fmt.Errorf("unknown export format %q", f)
}

// FileName returns cross_rag_results_YYYYMMDD_HHMMSS.<ext>.
func FileName(ts time.Time, f Format) string {
	return fmt.Sprintf("cross_rag_results_%s.%s", ts.Format("20060102_150405"), f)
}

func documentText(r *models.DocumentResult) string {
	if r.OK() {
		return r.Results
	}
	return "Error: " + r.Error
}

func graphText(r *models.GraphResult) string {
	if r.OK() {
		return r.Results
	}
	return "Error: " + r.Error
}

func synthesisText(r *models.SynthesisResult) string {
	if r.OK() {
		return r.Report
	}
	return "Error: " + r.Error
}

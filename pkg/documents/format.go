package documents

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/xhad/crossrag/internal/models"
)

const chunksPerDocument = 3

type documentHits struct {
	filename     string
	documentType string
	chunks       []models.Chunk
	best         float64
}

// FormatResults groups chunks by filename and renders the most relevant
// documents first, with up to three passages each.
func FormatResults(chunks []models.Chunk, query string) string {
	if len(chunks) == 0 {
		return "No results found."
	}

	docs := groupByDocument(chunks)
	title := cases.Title(language.English)

	out := []string{
		fmt.Sprintf("# Search Results for: %s\n", query),
		fmt.Sprintf("**Found %d relevant passages from %d documents**\n", len(chunks), len(docs)),
		"---\n",
	}

	for i, doc := range docs {
		docType := "Unknown"
		if doc.documentType != "" {
			docType = title.String(strings.ReplaceAll(doc.documentType, "_", " "))
		}
		out = append(out,
			fmt.Sprintf("## %d. %s", i+1, doc.filename),
			fmt.Sprintf("**Type:** %s | **Relevance:** %s\n", docType, percent(doc.best)),
		)

		sort.SliceStable(doc.chunks, func(a, b int) bool {
			return doc.chunks[a].Similarity > doc.chunks[b].Similarity
		})
		top := doc.chunks
		if len(top) > chunksPerDocument {
			top = top[:chunksPerDocument]
		}
		for _, c := range top {
			out = append(out,
				fmt.Sprintf("### Chunk %d/%d (Similarity: %s)\n", c.ChunkIndex+1, c.TotalChunks, percent(c.Similarity)),
				c.Content+"\n",
				"---\n",
			)
		}
	}

	return strings.Join(out, "\n")
}

// groupByDocument keeps documents in first-seen order, then stable-sorts them
// by their best similarity.
func groupByDocument(chunks []models.Chunk) []*documentHits {
	var docs []*documentHits
	index := make(map[string]*documentHits)
	for _, c := range chunks {
		doc, ok := index[c.Filename]
		if !ok {
			doc = &documentHits{filename: c.Filename, documentType: c.DocumentType, best: c.Similarity}
			index[c.Filename] = doc
			docs = append(docs, doc)
		}
		doc.chunks = append(doc.chunks, c)
		if c.Similarity > doc.best {
			doc.best = c.Similarity
		}
	}

	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].best > docs[j].best
	})
	return docs
}

func percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}

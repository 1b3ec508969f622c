// Package processor prepares query text for graph lookups and trims long
// passages before they go into prompts.
package processor

import (
	"strings"
	"unicode/utf8"
)

type ProcessorConfig struct {
	MinKeywordLength int
	MaxKeywords      int
	RemoveStopwords  bool
	CustomStopwords  []string
}

type Processor struct {
	config    ProcessorConfig
	stopwords map[string]bool
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.MinKeywordLength == 0 {
		config.MinKeywordLength = 3
	}
	if config.MaxKeywords == 0 {
		config.MaxKeywords = 12
	}

	stopwords := make(map[string]bool)
	if config.RemoveStopwords {
		for _, w := range getStopwords() {
			stopwords[w] = true
		}
		for _, w := range config.CustomStopwords {
			stopwords[strings.ToLower(w)] = true
		}
	}

	return Processor{
		config:    config,
		stopwords: stopwords,
	}
}

// Default is the processor the graph search uses.
func Default() Processor {
	return NewWithConfig(ProcessorConfig{RemoveStopwords: true})
}

// Keywords lowercases the query, strips punctuation and returns the distinct
// non-stopword terms in query order.
func (p *Processor) Keywords(query string) []string {
	words := strings.Fields(p.cleanText(query))

	seen := make(map[string]bool)
	var keywords []string
	for _, w := range words {
		w = strings.Trim(w, "?.,!;:'\"()[]{}")
		if utf8.RuneCountInString(w) < p.config.MinKeywordLength || p.stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		keywords = append(keywords, w)
		if len(keywords) == p.config.MaxKeywords {
			break
		}
	}
	return keywords
}

func (p *Processor) cleanText(text string) string {
	text = strings.ToLower(text)

	// Replace multiple spaces with single space
	return strings.Join(strings.Fields(text), " ")
}

// Excerpt shortens text to at most maxChars bytes, cutting at the last
// sentence boundary that fits. Without one it cuts at a word boundary and
// appends "...".
func (p *Processor) Excerpt(text string, maxChars int) string {
	text = strings.TrimSpace(text)
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}

	var out strings.Builder
	for _, sentence := range p.splitIntoSentences(text) {
		if out.Len()+len(sentence)+1 > maxChars {
			break
		}
		if out.Len() > 0 {
			out.WriteByte(' ')
		}
		out.WriteString(sentence)
	}
	if out.Len() > 0 {
		return out.String()
	}

	cut := text[:maxChars]
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	for !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut + "..."
}

func (p *Processor) splitIntoSentences(text string) []string {
	sentenceEnders := []string{". ", "! ", "? ", ".\n", "!\n", "?\n"}
	var sentences []string

	current := strings.Builder{}

	for i := 0; i < len(text); i++ {
		current.WriteByte(text[i])

		for _, ender := range sentenceEnders {
			if strings.HasSuffix(current.String(), ender) {
				sentences = append(sentences, strings.TrimSpace(current.String()))
				current.Reset()
				break
			}
		}
	}

	if current.Len() > 0 {
		sentences = append(sentences, strings.TrimSpace(current.String()))
	}

	return sentences
}

// Common English stopwords plus the question words queries tend to start with.
func getStopwords() []string {
	return []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "for",
		"from", "has", "he", "in", "is", "it", "its", "of", "on",
		"that", "the", "to", "was", "were", "will", "with",
		"all", "any", "about", "did", "does", "find", "have", "how",
		"not", "or", "she", "show", "there", "this", "what", "when",
		"where", "which", "who", "why",
	}
}

// Package synthesis asks the LLM to set the court document claims against the
// communications evidence.
package synthesis

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

const systemPrompt = `You are a litigation support analyst preparing material for a family law attorney.
You receive passages retrieved from court documents (affidavits, declarations, orders) and evidence retrieved from the parties' communications.
Write a report with exactly these three sections, in markdown:

## 1. Claims in the Court Documents
Each claim relevant to the question, with the document it comes from.

## 2. Counter-Evidence from Communications
For each claim, the communications that contradict or qualify it. Always give the date and the source (sender or thread).
Say plainly when no counter-evidence was found.

## 3. Cross-Examination Questions
Specific questions the attorney can ask, each tied to a claim and the evidence above.

Use only the material provided. Do not invent dates, quotes or documents.`

type Config struct {
	// MaxContextChars bounds the source material placed in the prompt.
	MaxContextChars int
}

type Synthesizer struct {
	chat      types.ChatModel
	config    Config
	processor processor.Processor
	log       *logrus.Entry
}

func New(chat types.ChatModel, config Config) *Synthesizer {
	if config.MaxContextChars == 0 {
		config.MaxContextChars = 60000
	}
	return &Synthesizer{
		chat:      chat,
		config:    config,
		processor: processor.Default(),
		log:       logger.New("synthesis"),
	}
}

// streamer is implemented by chat models that can deliver text incrementally.
type streamer interface {
	Stream(ctx context.Context, system, prompt string, fn func(chunk string) error) (string, error)
}

// Synthesize builds the three-section report. It needs a chat model and at
// least one successful source; failures come back as an ERROR result.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, docs *models.DocumentResult, comms *models.GraphResult) *models.SynthesisResult {
	return s.SynthesizeStream(ctx, query, docs, comms, nil)
}

// SynthesizeStream is Synthesize that hands report chunks to onChunk as the
// model produces them. Models without streaming support deliver the whole
// report as one chunk.
func (s *Synthesizer) SynthesizeStream(ctx context.Context, query string, docs *models.DocumentResult, comms *models.GraphResult, onChunk func(string)) *models.SynthesisResult {
	if s.chat == nil {
		return failed(fmt.Errorf("contradiction analysis requires a configured LLM"))
	}
	if !docs.OK() && !comms.OK() {
		return failed(fmt.Errorf("no successful source results to analyse"))
	}

	prompt := s.Prompt(query, docs, comms)
	s.log.WithField("prompt_chars", len(prompt)).Info("generating contradiction analysis")

	report, err := s.generate(ctx, prompt, onChunk)
	if err != nil {
		s.log.WithError(err).Error("contradiction analysis failed")
		return failed(err)
	}
	report = strings.TrimSpace(report)
	if report == "" {
		return failed(fmt.Errorf("the model returned an empty report"))
	}

	return &models.SynthesisResult{Status: models.StatusSuccess, Report: report}
}

func (s *Synthesizer) generate(ctx context.Context, prompt string, onChunk func(string)) (string, error) {
	if onChunk == nil {
		return s.chat.Generate(ctx, systemPrompt, prompt)
	}
	st, ok := s.chat.(streamer)
	if !ok {
		report, err := s.chat.Generate(ctx, systemPrompt, prompt)
		if err == nil {
			onChunk(report)
		}
		return report, err
	}
	return st.Stream(ctx, systemPrompt, prompt, func(chunk string) error {
		onChunk(chunk)
		return nil
	})
}

// Prompt renders the user message. Each successful source gets an equal share
// of the context budget.
func (s *Synthesizer) Prompt(query string, docs *models.DocumentResult, comms *models.GraphResult) string {
	sources := 0
	if docs.OK() {
		sources++
	}
	if comms.OK() {
		sources++
	}
	budget := s.config.MaxContextChars
	if sources > 1 {
		budget /= sources
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", query)

	b.WriteString("# Court Documents\n\n")
	if docs.OK() {
		b.WriteString(s.processor.Excerpt(docs.Results, budget))
	} else {
		b.WriteString(unavailable(docs == nil, errorOf(docs)))
	}
	b.WriteString("\n\n# Communications\n\n")
	if comms.OK() {
		b.WriteString(s.processor.Excerpt(comms.Results, budget))
	} else {
		b.WriteString(unavailable(comms == nil, errorOfGraph(comms)))
	}
	return b.String()
}

func unavailable(notQueried bool, reason string) string {
	if notQueried {
		return "(not queried)"
	}
	return fmt.Sprintf("(unavailable: %s)", reason)
}

func errorOf(r *models.DocumentResult) string {
	if r == nil {
		return ""
	}
	return r.Error
}

func errorOfGraph(r *models.GraphResult) string {
	if r == nil {
		return ""
	}
	return r.Error
}

func failed(err error) *models.SynthesisResult {
	return &models.SynthesisResult{Status: models.StatusError, Error: err.Error()}
}

package synthesis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/crossrag/internal/models"
)

type fakeChat struct {
	report string
	err    error
	system string
	prompt string
}

func (f *fakeChat) Generate(ctx context.Context, system, prompt string) (string, error) {
	f.system = system
	f.prompt = prompt
	return f.report, f.err
}

func docsOK(text string) *models.DocumentResult {
	return &models.DocumentResult{Status: models.StatusSuccess, Results: text}
}

func commsOK(text string) *models.GraphResult {
	return &models.GraphResult{Status: models.StatusSuccess, Results: text}
}

func TestSynthesize(t *testing.T) {
	chat := &fakeChat{report: "  ## 1. Claims in the Court Documents\n...  "}
	s := New(chat, Config{})

	res := s.Synthesize(context.Background(), "cannabis use", docsOK("affidavit says never"), commsOK("2022-06-01 text says otherwise"))
	require.True(t, res.OK(), res.Error)
	assert.Equal(t, "## 1. Claims in the Court Documents\n...", res.Report)

	assert.Contains(t, chat.system, "## 2. Counter-Evidence from Communications")
	assert.Contains(t, chat.system, "## 3. Cross-Examination Questions")
	assert.Contains(t, chat.prompt, "Question: cannabis use")
	assert.Contains(t, chat.prompt, "affidavit says never")
	assert.Contains(t, chat.prompt, "2022-06-01 text says otherwise")
}

func TestSynthesizeOneSourceFailed(t *testing.T) {
	chat := &fakeChat{report: "report"}
	s := New(chat, Config{})

	comms := &models.GraphResult{Status: models.StatusError, Error: "neo4j down"}
	res := s.Synthesize(context.Background(), "q", docsOK("claims"), comms)
	require.True(t, res.OK())
	assert.Contains(t, chat.prompt, "(unavailable: neo4j down)")
}

func TestSynthesizeErrors(t *testing.T) {
	failedDocs := &models.DocumentResult{Status: models.StatusError, Error: "bad key"}

	tests := []struct {
		name  string
		chat  *fakeChat
		docs  *models.DocumentResult
		comms *models.GraphResult
		want  string
	}{
		{"no llm", nil, docsOK("x"), commsOK("y"), "requires a configured LLM"},
		{"no successful source", &fakeChat{report: "r"}, failedDocs, nil, "no successful source"},
		{"llm error", &fakeChat{err: errors.New("overloaded")}, docsOK("x"), nil, "overloaded"},
		{"empty report", &fakeChat{report: "  "}, docsOK("x"), nil, "empty report"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s *Synthesizer
			if tt.chat == nil {
				s = New(nil, Config{})
			} else {
				s = New(tt.chat, Config{})
			}
			res := s.Synthesize(context.Background(), "q", tt.docs, tt.comms)
			assert.Equal(t, models.StatusError, res.Status)
			assert.Contains(t, res.Error, tt.want)
		})
	}
}

func TestPromptIsBounded(t *testing.T) {
	s := New(&fakeChat{}, Config{MaxContextChars: 200})
	long := strings.Repeat("The affidavit states a fact. ", 50)

	prompt := s.Prompt("q", docsOK(long), commsOK(long))
	assert.Less(t, len(prompt), 300)
	assert.Contains(t, prompt, "# Court Documents")
	assert.Contains(t, prompt, "# Communications")
}

func TestPromptNotQueried(t *testing.T) {
	s := New(&fakeChat{}, Config{})
	prompt := s.Prompt("q", docsOK("claims"), nil)
	assert.Contains(t, prompt, "(not queried)")
}

type streamingChat struct {
	fakeChat
	chunks []string
}

func (f *streamingChat) Stream(ctx context.Context, system, prompt string, fn func(string) error) (string, error) {
	for _, c := range f.chunks {
		if err := fn(c); err != nil {
			return "", err
		}
	}
	return strings.Join(f.chunks, ""), nil
}

func TestSynthesizeStream(t *testing.T) {
	chat := &streamingChat{chunks: []string{"## 1. Claims", " in the Court Documents"}}
	s := New(chat, Config{})

	var got []string
	res := s.SynthesizeStream(context.Background(), "q", docsOK("d"), commsOK("c"), func(chunk string) {
		got = append(got, chunk)
	})
	require.True(t, res.OK())
	assert.Equal(t, chat.chunks, got)
	assert.Equal(t, "## 1. Claims in the Court Documents", res.Report)
}

func TestSynthesizeStreamWithoutStreamingModel(t *testing.T) {
	s := New(&fakeChat{report: "whole report"}, Config{})

	var got []string
	res := s.SynthesizeStream(context.Background(), "q", docsOK("d"), nil, func(chunk string) {
		got = append(got, chunk)
	})
	require.True(t, res.OK())
	assert.Equal(t, []string{"whole report"}, got)
}

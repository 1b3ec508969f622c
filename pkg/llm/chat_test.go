package llm_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/xhad/crossrag/pkg/llm"
)

type fakeModel struct {
	reply    string
	err      error
	messages []llms.MessageContent
	opts     llms.CallOptions
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	for _, o := range options {
		o(&f.opts)
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.opts.StreamingFunc != nil {
		for _, word := range strings.SplitAfter(f.reply, " ") {
			if err := f.opts.StreamingFunc(ctx, []byte(word)); err != nil {
				return nil, err
			}
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestNewWithConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  llm.ChatConfig
		wantErr error
	}{
		{
			name:   "ollama needs no key",
			config: llm.ChatConfig{Provider: "ollama", Temperature: 0.5, BaseURL: "http://localhost:1234"},
		},
		{
			name:    "anthropic without key",
			config:  llm.ChatConfig{Provider: "anthropic", Temperature: 0.5},
			wantErr: llm.ErrMissingAPIKey,
		},
		{
			name:    "openai without key",
			config:  llm.ChatConfig{Provider: "openai", Temperature: 0.5},
			wantErr: llm.ErrMissingAPIKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, err := llm.NewWithConfig(tt.config)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, engine)
		})
	}
}

func TestNewWithConfigRejectsBadValues(t *testing.T) {
	_, err := llm.NewWithConfig(llm.ChatConfig{Provider: "ollama", Temperature: 1.5})
	assert.Error(t, err)

	_, err = llm.NewWithConfig(llm.ChatConfig{Provider: "ollama", MaxTokens: -1})
	assert.Error(t, err)

	_, err = llm.NewWithConfig(llm.ChatConfig{Provider: "cohere"})
	assert.Error(t, err)
}

func TestGenerate(t *testing.T) {
	model := &fakeModel{reply: "three sections"}
	engine := llm.NewWithModel(llm.ChatConfig{MaxTokens: 512, Temperature: 0.2}, model)

	out, err := engine.Generate(context.Background(), "be precise", "what happened?")
	require.NoError(t, err)
	assert.Equal(t, "three sections", out)

	require.Len(t, model.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[1].Role)
	assert.Equal(t, 512, model.opts.MaxTokens)
	assert.Equal(t, 0.2, model.opts.Temperature)
}

func TestGenerateWithoutSystem(t *testing.T) {
	model := &fakeModel{reply: "ok"}
	engine := llm.NewWithModel(llm.ChatConfig{}, model)

	_, err := engine.Generate(context.Background(), " ", "hello")
	require.NoError(t, err)
	assert.Len(t, model.messages, 1)
}

func TestGenerateError(t *testing.T) {
	engine := llm.NewWithModel(llm.ChatConfig{}, &fakeModel{err: errors.New("401 unauthorized")})

	_, err := engine.Generate(context.Background(), "", "hello")
	assert.ErrorContains(t, err, "401 unauthorized")
}

func TestStream(t *testing.T) {
	engine := llm.NewWithModel(llm.ChatConfig{}, &fakeModel{reply: "a b c"})

	var chunks []string
	full, err := engine.Stream(context.Background(), "", "q", func(chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "a b c", full)
	assert.Equal(t, []string{"a ", "b ", "c"}, chunks)
}

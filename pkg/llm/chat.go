package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

var ErrMissingAPIKey = errors.New("missing API key")

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Provider    string
	Model       string
	Temperature float64
	MaxTokens   int
	BaseURL     string
	APIKey      string
}

// ChatEngine is an engine that uses an LLM to generate responses.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
}

// NewWithConfig creates a new ChatEngine with the given configuration.
func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	if config.Temperature < 0 || config.Temperature > 1 {
		return nil, fmt.Errorf("temperature must be between 0 and 1")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 4096
	}
	if config.Provider == "" {
		config.Provider = "anthropic"
	}

	var (
		model llms.Model
		err   error
	)
	switch config.Provider {
	case "anthropic":
		if config.APIKey == "" {
			return nil, fmt.Errorf("anthropic: %w", ErrMissingAPIKey)
		}
		opts := []anthropic.Option{anthropic.WithToken(config.APIKey)}
		if config.Model != "" {
			opts = append(opts, anthropic.WithModel(config.Model))
		}
		if config.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(config.BaseURL))
		}
		model, err = anthropic.New(opts...)
	case "openai":
		if config.APIKey == "" {
			return nil, fmt.Errorf("openai: %w", ErrMissingAPIKey)
		}
		opts := []openai.Option{openai.WithToken(config.APIKey)}
		if config.Model != "" {
			opts = append(opts, openai.WithModel(config.Model))
		}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		model, err = openai.New(opts...)
	case "ollama":
		if config.Model == "" {
			config.Model = "mistral"
		}
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434"
		}
		model, err = ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
	default:
		return nil, fmt.Errorf("unknown llm provider %q", config.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return NewWithModel(config, model), nil
}

// NewWithModel wraps an already constructed model.
func NewWithModel(config ChatConfig, model llms.Model) *ChatEngine {
	if config.MaxTokens == 0 {
		config.MaxTokens = 4096
	}
	return &ChatEngine{config: config, llm: model}
}

func (ce *ChatEngine) Model() string { return ce.config.Model }

// Generate sends a system and a user message and returns the first choice.
func (ce *ChatEngine) Generate(ctx context.Context, system, prompt string) (string, error) {
	response, err := ce.llm.GenerateContent(ctx, ce.messages(system, prompt), ce.options()...)
	if err != nil {
		return "", fmt.Errorf("chat error: %w", err)
	}
	return firstChoice(response)
}

// Stream is Generate with incremental delivery. fn receives each chunk as it
// arrives; the full text is still returned.
func (ce *ChatEngine) Stream(ctx context.Context, system, prompt string, fn func(chunk string) error) (string, error) {
	opts := append(ce.options(), llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
		return fn(string(chunk))
	}))
	response, err := ce.llm.GenerateContent(ctx, ce.messages(system, prompt), opts...)
	if err != nil {
		return "", fmt.Errorf("chat error: %w", err)
	}
	return firstChoice(response)
}

func (ce *ChatEngine) messages(system, prompt string) []llms.MessageContent {
	var content []llms.MessageContent
	if strings.TrimSpace(system) != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}
	return append(content, llms.TextParts(llms.ChatMessageTypeHuman, prompt))
}

func (ce *ChatEngine) options() []llms.CallOption {
	return []llms.CallOption{
		llms.WithMaxTokens(ce.config.MaxTokens),
		llms.WithTemperature(ce.config.Temperature),
	}
}

func firstChoice(response *llms.ContentResponse) (string, error) {
	if response == nil || len(response.Choices) == 0 || response.Choices[0] == nil {
		return "", fmt.Errorf("chat error: no response from LLM")
	}
	return response.Choices[0].Content, nil
}

package config

import (
	"fmt"
	"net/url"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// missingService lists fields whose absence only disables one source.
var missingService = map[string]bool{
	"documents.url":            true,
	"documents.service_key":    true,
	"documents.database_url":   true,
	"documents.qdrant.address": true,
	"embedder.base_url":        true,
	"embedder.api_key":         true,
	"graph.url":                true,
}

// Degrading reports whether the error leaves the rest of the system usable.
// Such errors are logged as warnings at startup instead of aborting.
func (e ValidationError) Degrading() bool {
	return missingService[e.Field]
}

// Split separates degrading errors from fatal ones.
func Split(errs []ValidationError) (warnings, fatal []ValidationError) {
	for _, e := range errs {
		if e.Degrading() {
			warnings = append(warnings, e)
		} else {
			fatal = append(fatal, e)
		}
	}
	return warnings, fatal
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate Documents config
	switch c.Documents.Backend {
	case "postgrest":
		if c.Documents.URL == "" {
			errors = append(errors, ValidationError{
				Field:   "documents.url",
				Message: "Supabase URL is required for the postgrest backend",
			})
		} else if !isHTTPURL(c.Documents.URL) {
			errors = append(errors, ValidationError{
				Field:   "documents.url",
				Message: "invalid Supabase URL",
			})
		}
		if c.Documents.ServiceKey == "" {
			errors = append(errors, ValidationError{
				Field:   "documents.service_key",
				Message: "service key is required for the postgrest backend",
			})
		}
	case "postgres":
		if c.Documents.DatabaseURL == "" {
			errors = append(errors, ValidationError{
				Field:   "documents.database_url",
				Message: "database URL is required for the postgres backend",
			})
		} else if _, err := url.Parse(c.Documents.DatabaseURL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "documents.database_url",
				Message: "invalid database URL",
			})
		}
	case "qdrant":
		if c.Documents.Qdrant.Address == "" {
			errors = append(errors, ValidationError{
				Field:   "documents.qdrant.address",
				Message: "Qdrant address is required for the qdrant backend",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "documents.backend",
			Message: fmt.Sprintf("unknown backend %q", c.Documents.Backend),
		})
	}

	if c.Documents.MaxMatchCount < 1 {
		errors = append(errors, ValidationError{
			Field:   "documents.max_match_count",
			Message: "max_match_count must be positive",
		})
	}

	if c.Documents.MatchCount < 1 || c.Documents.MatchCount > c.Documents.MaxMatchCount {
		errors = append(errors, ValidationError{
			Field:   "documents.match_count",
			Message: fmt.Sprintf("match_count must be between 1 and %d", c.Documents.MaxMatchCount),
		})
	}

	if c.Documents.MatchThreshold < 0 || c.Documents.MatchThreshold > 1 {
		errors = append(errors, ValidationError{
			Field:   "documents.match_threshold",
			Message: "match_threshold must be between 0 and 1",
		})
	}

	// Validate Embedder config
	switch c.Embedder.Provider {
	case "ollama":
		if !isHTTPURL(c.Embedder.BaseURL) {
			errors = append(errors, ValidationError{
				Field:   "embedder.base_url",
				Message: "Ollama base URL is required",
			})
		}
	case "openai":
		if c.Embedder.APIKey == "" {
			errors = append(errors, ValidationError{
				Field:   "embedder.api_key",
				Message: "OpenAI API key is required for the openai embedder",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "embedder.provider",
			Message: fmt.Sprintf("unknown provider %q", c.Embedder.Provider),
		})
	}

	// Validate LLM config
	switch c.LLM.Provider {
	case "anthropic", "openai", "ollama":
	default:
		errors = append(errors, ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("unknown provider %q", c.LLM.Provider),
		})
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 8192 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 8192",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 1 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 1",
		})
	}

	// Validate Graph config
	if c.Graph.Enabled {
		if c.Graph.URL == "" {
			errors = append(errors, ValidationError{
				Field:   "graph.url",
				Message: "Neo4j URL is required when the graph is enabled",
			})
		}
		if c.Graph.Method != "global" && c.Graph.Method != "local" {
			errors = append(errors, ValidationError{
				Field:   "graph.method",
				Message: "method must be global or local",
			})
		}
	}

	// Validate Cache config
	if c.Cache.Backend != "memory" && c.Cache.Backend != "redis" && c.Cache.Backend != "none" {
		errors = append(errors, ValidationError{
			Field:   "cache.backend",
			Message: fmt.Sprintf("unknown backend %q", c.Cache.Backend),
		})
	}

	if c.Cache.TTL < 0 {
		errors = append(errors, ValidationError{
			Field:   "cache.ttl",
			Message: "ttl must not be negative",
		})
	}

	if c.History.Size < 1 {
		errors = append(errors, ValidationError{
			Field:   "history.size",
			Message: "size must be positive",
		})
	}

	for i, t := range c.UI.Templates {
		if strings.TrimSpace(t.Name) == "" || strings.TrimSpace(t.Query) == "" {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("ui.templates[%d]", i),
				Message: "template needs a name and a query",
			})
		}
	}

	return errors
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

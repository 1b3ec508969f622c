package config

// Status reports which external services have the credentials they need.
type Status struct {
	Documents      bool `json:"documents"`
	Communications bool `json:"communications"`
	LLM            bool `json:"llm"`
	Embedder       bool `json:"embedder"`
}

func (c *Config) Status() Status {
	s := Status{}

	switch c.Documents.Backend {
	case "postgrest":
		s.Documents = c.Documents.URL != "" && c.Documents.ServiceKey != ""
	case "postgres":
		s.Documents = c.Documents.DatabaseURL != ""
	case "qdrant":
		s.Documents = c.Documents.Qdrant.Address != ""
	}

	s.Communications = c.Graph.Enabled && c.Graph.URL != ""

	switch c.LLM.Provider {
	case "ollama":
		s.LLM = c.LLM.BaseURL != ""
	default:
		s.LLM = c.LLM.APIKey != ""
	}

	switch c.Embedder.Provider {
	case "openai":
		s.Embedder = c.Embedder.APIKey != ""
	default:
		s.Embedder = c.Embedder.BaseURL != ""
	}

	return s
}

// DocumentsEnv names the environment variables that configure the selected
// document backend.
func (c *Config) DocumentsEnv() string {
	switch c.Documents.Backend {
	case "postgres":
		return "DATABASE_URL"
	case "qdrant":
		return "QDRANT_ADDR"
	default:
		return "SUPABASE_URL and SUPABASE_SERVICE_KEY"
	}
}

func (c *Config) EmbedderEnv() string {
	if c.Embedder.Provider == "openai" {
		return "OPENAI_API_KEY"
	}
	return "OLLAMA_BASE_URL"
}

func (c *Config) LLMEnv() string {
	switch c.LLM.Provider {
	case "ollama":
		return "OLLAMA_BASE_URL"
	case "openai":
		return "OPENAI_API_KEY"
	default:
		return "ANTHROPIC_API_KEY"
	}
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/xhad/crossrag/internal/models"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Documents DocumentsConfig `yaml:"documents"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Graph     GraphConfig     `yaml:"graph"`
	LLM       LLMConfig       `yaml:"llm"`
	Synthesis SynthesisConfig `yaml:"synthesis"`
	Cache     CacheConfig     `yaml:"cache"`
	History   HistoryConfig   `yaml:"history"`
	Log       LogConfig       `yaml:"log"`
	UI        UIConfig        `yaml:"ui"`
}

type ServerConfig struct {
	Address      string        `yaml:"address"`
	RateLimit    float64       `yaml:"rate_limit"`
	Burst        int           `yaml:"burst"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

type DocumentsConfig struct {
	// Backend is one of postgrest, postgres or qdrant.
	Backend        string        `yaml:"backend"`
	URL            string        `yaml:"url"`
	ServiceKey     string        `yaml:"service_key"`
	DatabaseURL    string        `yaml:"database_url"`
	SearchFunction string        `yaml:"search_function"`
	StatsFunction  string        `yaml:"stats_function"`
	MatchCount     int           `yaml:"match_count"`
	MatchThreshold float64       `yaml:"match_threshold"`
	MaxMatchCount  int           `yaml:"max_match_count"`
	IndexSize      int           `yaml:"index_size"`
	Timeout        time.Duration `yaml:"timeout"`
	Qdrant         QdrantConfig  `yaml:"qdrant"`
}

type QdrantConfig struct {
	Address    string `yaml:"address"`
	Collection string `yaml:"collection"`
	APIKey     string `yaml:"api_key"`
	TLS        bool   `yaml:"tls"`
}

type EmbedderConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
}

type GraphConfig struct {
	Enabled           bool   `yaml:"enabled"`
	URL               string `yaml:"url"`
	Username          string `yaml:"username"`
	Password          string `yaml:"password"`
	Database          string `yaml:"database"`
	Method            string `yaml:"method"`
	EntityLabel       string `yaml:"entity_label"`
	CommunityLabel    string `yaml:"community_label"`
	MessageLabel      string `yaml:"message_label"`
	EntityLimit       int    `yaml:"entity_limit"`
	CommunityLimit    int    `yaml:"community_limit"`
	RelationshipLimit int    `yaml:"relationship_limit"`
	MessageLimit      int    `yaml:"message_limit"`
}

type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

type SynthesisConfig struct {
	MaxContextChars int `yaml:"max_context_chars"`
}

type CacheConfig struct {
	Backend  string        `yaml:"backend"`
	TTL      time.Duration `yaml:"ttl"`
	Capacity int           `yaml:"capacity"`
	Redis    RedisConfig   `yaml:"redis"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type HistoryConfig struct {
	Size int `yaml:"size"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type UIConfig struct {
	Streaming bool              `yaml:"streaming"`
	Templates []models.Template `yaml:"templates"`
}

// LoadEnvFile loads KEY=VALUE pairs from the given .env files into the
// process environment. Missing files are skipped; existing variables win.
func LoadEnvFile(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("error loading env file %s: %w", p, err)
		}
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/crossrag/config.yaml"),
			"/etc/crossrag/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.Server.Address == "" {
		config.Server.Address = ":8080"
	}
	if config.Server.RateLimit == 0 {
		config.Server.RateLimit = 2.0
	}
	if config.Server.Burst == 0 {
		config.Server.Burst = 5
	}
	if config.Server.ReadTimeout == 0 {
		config.Server.ReadTimeout = 15 * time.Second
	}
	if config.Server.WriteTimeout == 0 {
		config.Server.WriteTimeout = 3 * time.Minute
	}
	if config.Server.QueryTimeout == 0 {
		config.Server.QueryTimeout = 2 * time.Minute
	}

	if config.Documents.Backend == "" {
		if config.Documents.URL == "" && config.Documents.DatabaseURL != "" {
			config.Documents.Backend = "postgres"
		} else {
			config.Documents.Backend = "postgrest"
		}
	}
	if config.Documents.SearchFunction == "" {
		config.Documents.SearchFunction = "search_court_documents"
	}
	if config.Documents.StatsFunction == "" {
		config.Documents.StatsFunction = "get_document_stats"
	}
	if config.Documents.MatchCount == 0 {
		config.Documents.MatchCount = 20
	}
	if config.Documents.MatchThreshold == 0 {
		config.Documents.MatchThreshold = 0.3
	}
	if config.Documents.MaxMatchCount == 0 {
		config.Documents.MaxMatchCount = 50
	}
	if config.Documents.Timeout == 0 {
		config.Documents.Timeout = 30 * time.Second
	}
	if config.Documents.Qdrant.Collection == "" {
		config.Documents.Qdrant.Collection = "court_documents"
	}

	if config.Embedder.Provider == "" {
		config.Embedder.Provider = "ollama"
	}
	if config.Embedder.Model == "" {
		switch config.Embedder.Provider {
		case "openai":
			config.Embedder.Model = "text-embedding-3-small"
		default:
			// all-MiniLM-L6-v2, 384 dimensions
			config.Embedder.Model = "all-minilm"
		}
	}
	if config.Embedder.BaseURL == "" && config.Embedder.Provider == "ollama" {
		config.Embedder.BaseURL = "http://localhost:11434"
	}

	if config.Graph.Method == "" {
		config.Graph.Method = "global"
	}
	if config.Graph.Username == "" {
		config.Graph.Username = "neo4j"
	}
	if config.Graph.EntityLabel == "" {
		config.Graph.EntityLabel = "Entity"
	}
	if config.Graph.CommunityLabel == "" {
		config.Graph.CommunityLabel = "Community"
	}
	if config.Graph.MessageLabel == "" {
		config.Graph.MessageLabel = "Message"
	}
	if config.Graph.EntityLimit == 0 {
		config.Graph.EntityLimit = 10
	}
	if config.Graph.CommunityLimit == 0 {
		config.Graph.CommunityLimit = 10
	}
	if config.Graph.RelationshipLimit == 0 {
		config.Graph.RelationshipLimit = 10
	}
	if config.Graph.MessageLimit == 0 {
		config.Graph.MessageLimit = 5
	}

	if config.LLM.Provider == "" {
		config.LLM.Provider = "anthropic"
	}
	if config.LLM.Model == "" {
		switch config.LLM.Provider {
		case "openai":
			config.LLM.Model = "gpt-4o-mini"
		case "ollama":
			config.LLM.Model = "mistral"
		default:
			config.LLM.Model = "claude-3-5-sonnet-20241022"
		}
	}
	if config.LLM.BaseURL == "" && config.LLM.Provider == "ollama" {
		config.LLM.BaseURL = "http://localhost:11434"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 4096
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.2
	}

	if config.Synthesis.MaxContextChars == 0 {
		config.Synthesis.MaxContextChars = 60000
	}

	if config.Cache.Backend == "" {
		config.Cache.Backend = "memory"
	}
	if config.Cache.TTL == 0 {
		config.Cache.TTL = time.Hour
	}
	if config.Cache.Capacity == 0 {
		config.Cache.Capacity = 256
	}
	if config.Cache.Redis.Address == "" {
		config.Cache.Redis.Address = "localhost:6379"
	}
	if config.Cache.Redis.Prefix == "" {
		config.Cache.Redis.Prefix = "crossrag:"
	}

	if config.History.Size == 0 {
		config.History.Size = 10
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "json"
	}

	if len(config.UI.Templates) == 0 {
		config.UI.Templates = DefaultTemplates()
	}
}

// DefaultTemplates are the quick queries offered when none are configured.
func DefaultTemplates() []models.Template {
	return []models.Template{
		{Name: "Cannabis", Query: "Find all references to cannabis, marijuana, drug use, or substance abuse."},
		{Name: "Parenting", Query: "Find all information about parenting involvement, care-giving responsibilities, and daily parenting tasks."},
		{Name: "Stability", Query: "Find all claims about housing stability, employment stability, emotional stability, or concerns about instability."},
	}
}

func mergeWithEnv(config *Config) {
	if v := os.Getenv("SUPABASE_URL"); v != "" {
		config.Documents.URL = v
	}
	if v := os.Getenv("SUPABASE_SERVICE_KEY"); v != "" {
		config.Documents.ServiceKey = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		config.Documents.DatabaseURL = v
	}
	if v := os.Getenv("QDRANT_ADDR"); v != "" {
		config.Documents.Qdrant.Address = v
	}
	if v := os.Getenv("QDRANT_API_KEY"); v != "" {
		config.Documents.Qdrant.APIKey = v
	}
	if v := os.Getenv("OLLAMA_BASE_URL"); v != "" {
		if config.Embedder.Provider == "" || config.Embedder.Provider == "ollama" {
			config.Embedder.BaseURL = v
		}
		if config.LLM.Provider == "ollama" {
			config.LLM.BaseURL = v
		}
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		if config.LLM.Provider == "" || config.LLM.Provider == "anthropic" {
			config.LLM.APIKey = v
		}
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		if config.LLM.Provider == "openai" {
			config.LLM.APIKey = v
		}
		if config.Embedder.Provider == "openai" {
			config.Embedder.APIKey = v
		}
	}
	if v := os.Getenv("NEO4J_URL"); v != "" {
		config.Graph.URL = v
		config.Graph.Enabled = true
	}
	if v := os.Getenv("NEO4J_USER"); v != "" {
		config.Graph.Username = v
	}
	if v := os.Getenv("NEO4J_PASSWORD"); v != "" {
		config.Graph.Password = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		config.Cache.Redis.Address = v
		config.Cache.Backend = "redis"
	}
	if v := os.Getenv("PORT"); v != "" {
		config.Server.Address = ":" + v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		config.Log.Level = v
	}
}

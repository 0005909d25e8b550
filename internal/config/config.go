package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the tender analysis server.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Database DatabaseConfig
	Redis    RedisConfig
	AI       AIConfig
	Analysis AnalysisConfig
}

type ServerConfig struct {
	Port               int
	Env                string
	RateLimitPerMinute int
	// BootstrapAdminKey, when set, is registered as an admin key of the
	// default organization at startup.
	BootstrapAdminKey string
}

type StoreConfig struct {
	Backend string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsDir   string
}

type RedisConfig struct {
	URL string
}

type AIConfig struct {
	Provider string
	// InferenceTimeout bounds a single model call. Zero disables the deadline.
	InferenceTimeout time.Duration
	OpenAI           OpenAIConfig
	VLLM             OpenAIConfig
	Ollama           OpenAIConfig
	Anthropic        AnthropicConfig
	Gemini           GeminiConfig
}

// OpenAIConfig also serves vLLM and Ollama, which expose the same chat completions API.
type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type AnthropicConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type AnalysisConfig struct {
	MaxActiveRunsPerOrg int
	PagesPerChunk       int
	EvalConcurrency     int
	TemplateCacheSize   int
}

const minBootstrapKeyLen = 24

const (
	StoreBackendPostgres = "postgres"
	StoreBackendMemory   = "memory"
)

var validProviders = map[string]bool{
	"openai":    true,
	"vllm":      true,
	"ollama":    true,
	"anthropic": true,
	"gemini":    true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:               envInt("TENDER_PORT", 8080),
			Env:                envString("TENDER_ENV", "development"),
			RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 60),
			BootstrapAdminKey:  os.Getenv("TENDER_BOOTSTRAP_ADMIN_KEY"),
		},
		Store: StoreConfig{
			Backend: envString("STORE_BACKEND", StoreBackendPostgres),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			MigrationsDir:   envString("MIGRATIONS_DIR", "migrations"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		AI: AIConfig{
			Provider:         os.Getenv("AI_PROVIDER"),
			InferenceTimeout: envDurationSecs("AI_INFERENCE_TIMEOUT_SECS", 0),
			OpenAI: OpenAIConfig{
				BaseURL: envString("OPENAI_BASE_URL", "https://api.openai.com/v1"),
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				Model:   envString("OPENAI_MODEL", "gpt-4o-mini"),
			},
			VLLM: OpenAIConfig{
				BaseURL: envString("VLLM_BASE_URL", "http://localhost:8000/v1"),
				Model:   envString("VLLM_MODEL", ""),
			},
			Ollama: OpenAIConfig{
				BaseURL: envString("OLLAMA_BASE_URL", "http://localhost:11434/v1"),
				Model:   envString("OLLAMA_MODEL", "llama3"),
			},
			Anthropic: AnthropicConfig{
				BaseURL: envString("ANTHROPIC_BASE_URL", "https://api.anthropic.com/v1"),
				APIKey:  os.Getenv("ANTHROPIC_API_KEY"),
				Model:   envString("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
			},
			Gemini: GeminiConfig{
				APIKey: os.Getenv("GEMINI_API_KEY"),
				Model:  envString("GEMINI_MODEL", "gemini-2.5-flash"),
			},
		},
		Analysis: AnalysisConfig{
			MaxActiveRunsPerOrg: envInt("ANALYSIS_MAX_ACTIVE_RUNS_PER_ORG", 1),
			PagesPerChunk:       envInt("ANALYSIS_PAGES_PER_CHUNK", 10),
			EvalConcurrency:     envInt("ANALYSIS_EVAL_CONCURRENCY", 1),
			TemplateCacheSize:   envInt("TEMPLATE_CACHE_SIZE", 256),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if k := c.Server.BootstrapAdminKey; k != "" && len(k) < minBootstrapKeyLen {
		return fmt.Errorf("TENDER_BOOTSTRAP_ADMIN_KEY must be at least %d characters", minBootstrapKeyLen)
	}

	switch c.Store.Backend {
	case StoreBackendPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case StoreBackendMemory:
	default:
		return fmt.Errorf("STORE_BACKEND must be one of postgres, memory; got %q", c.Store.Backend)
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if !strings.HasPrefix(c.Redis.URL, "redis://") && !strings.HasPrefix(c.Redis.URL, "rediss://") {
		return fmt.Errorf("REDIS_URL must start with redis:// or rediss://, got %q", c.Redis.URL)
	}

	if c.AI.Provider == "" {
		return fmt.Errorf("AI_PROVIDER is required")
	}
	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of openai, vllm, ollama, anthropic, gemini; got %q", c.AI.Provider)
	}
	if c.AI.Provider == "openai" && c.AI.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is openai")
	}
	if c.AI.Provider == "vllm" && c.AI.VLLM.Model == "" {
		return fmt.Errorf("VLLM_MODEL is required when AI_PROVIDER is vllm")
	}
	if c.AI.Provider == "anthropic" && c.AI.Anthropic.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is anthropic")
	}
	if c.AI.Provider == "gemini" && c.AI.Gemini.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required when AI_PROVIDER is gemini")
	}
	if c.AI.InferenceTimeout < 0 {
		return fmt.Errorf("AI_INFERENCE_TIMEOUT_SECS must not be negative")
	}

	if c.Analysis.MaxActiveRunsPerOrg < 1 {
		return fmt.Errorf("ANALYSIS_MAX_ACTIVE_RUNS_PER_ORG must be at least 1, got %d", c.Analysis.MaxActiveRunsPerOrg)
	}
	if c.Analysis.PagesPerChunk < 1 {
		return fmt.Errorf("ANALYSIS_PAGES_PER_CHUNK must be at least 1, got %d", c.Analysis.PagesPerChunk)
	}
	if c.Analysis.EvalConcurrency < 1 {
		return fmt.Errorf("ANALYSIS_EVAL_CONCURRENCY must be at least 1, got %d", c.Analysis.EvalConcurrency)
	}
	if c.Analysis.TemplateCacheSize < 1 {
		return fmt.Errorf("TEMPLATE_CACHE_SIZE must be at least 1, got %d", c.Analysis.TemplateCacheSize)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}

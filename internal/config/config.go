// Package config loads process configuration from an optional YAML file and
// environment overrides. All values consumed by the research loop are fixed
// here at startup; per-run overrides arrive through the run API instead.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Provider identifiers accepted by the research configuration.
const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config is the full orchestrator configuration.
type Config struct {
	Provider       string `mapstructure:"provider"`
	ReasoningModel string `mapstructure:"reasoning_model"`

	// Credentials are read from the environment only, never from file.
	GeminiAPIKey    string `mapstructure:"-"`
	OpenAIAPIKey    string `mapstructure:"-"`
	AnthropicAPIKey string `mapstructure:"-"`

	// OpenAIBaseURL allows pointing the OpenAI-compatible client at a
	// different endpoint (Azure deployments, local inference servers).
	OpenAIBaseURL string `mapstructure:"openai_base_url"`

	Research ResearchConfig `mapstructure:"research"`
	Search   SearchConfig   `mapstructure:"search"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Temporal TemporalConfig `mapstructure:"temporal"`
	Server   ServerConfig   `mapstructure:"server"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// ResearchConfig bounds the research loop.
type ResearchConfig struct {
	InitialQueryCount int `mapstructure:"initial_query_count"`
	MaxResearchLoops  int `mapstructure:"max_research_loops"`
}

// SearchConfig bounds the fallback search/fetch strategy.
type SearchConfig struct {
	MaxResults       int           `mapstructure:"max_results"`
	MaxContentLength int           `mapstructure:"max_content_length"`
	FetchTimeout     time.Duration `mapstructure:"fetch_timeout"`
	PolicyFile       string        `mapstructure:"policy_file"`
}

// LLMConfig bounds individual model calls.
type LLMConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// TemporalConfig locates the workflow backend.
type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

// ServerConfig holds the admin/run HTTP surface.
type ServerConfig struct {
	Port        int `mapstructure:"port"`
	MetricsPort int `mapstructure:"metrics_port"`
}

// RedisConfig enables the fetched-page cache when an address is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// Load reads configuration from PROSEARCH_CONFIG (or config/prosearch.yaml if
// present), applies environment overrides, and validates the result.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PROSEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	cfgPath := os.Getenv("PROSEARCH_CONFIG")
	if cfgPath == "" {
		if _, err := os.Stat("config/prosearch.yaml"); err == nil {
			cfgPath = "config/prosearch.yaml"
		}
	}
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderGemini)
	v.SetDefault("reasoning_model", "")
	v.SetDefault("openai_base_url", "https://api.openai.com/v1")

	v.SetDefault("research.initial_query_count", 3)
	v.SetDefault("research.max_research_loops", 2)

	v.SetDefault("search.max_results", 5)
	v.SetDefault("search.max_content_length", 2000)
	v.SetDefault("search.fetch_timeout", 10*time.Second)

	v.SetDefault("llm.timeout", 120*time.Second)
	v.SetDefault("llm.max_retries", 2)

	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "prosearch-research")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_port", 2112)

	v.SetDefault("redis.cache_ttl", 1*time.Hour)
}

// Validate rejects values the research loop cannot run with.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderGemini, ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("unsupported provider %q (supported: gemini, openai, anthropic)", c.Provider)
	}
	if c.Research.InitialQueryCount < 1 {
		return fmt.Errorf("research.initial_query_count must be >= 1, got %d", c.Research.InitialQueryCount)
	}
	if c.Research.MaxResearchLoops < 0 {
		return fmt.Errorf("research.max_research_loops must be >= 0, got %d", c.Research.MaxResearchLoops)
	}
	if c.Search.MaxResults < 1 {
		return fmt.Errorf("search.max_results must be >= 1, got %d", c.Search.MaxResults)
	}
	if c.Search.MaxContentLength < 1 {
		return fmt.Errorf("search.max_content_length must be >= 1, got %d", c.Search.MaxContentLength)
	}
	return nil
}

// DefaultModel returns the reasoning model for the configured provider when
// none was set explicitly.
func (c *Config) DefaultModel() string {
	if c.ReasoningModel != "" {
		return c.ReasoningModel
	}
	switch c.Provider {
	case ProviderGemini:
		return "gemini-2.5-flash"
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderAnthropic:
		return "claude-3-5-haiku-20241022"
	}
	return ""
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PROSEARCH_CONFIG", "")
	t.Setenv("GEMINI_API_KEY", "test-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ProviderGemini, cfg.Provider)
	assert.Equal(t, 3, cfg.Research.InitialQueryCount)
	assert.Equal(t, 2, cfg.Research.MaxResearchLoops)
	assert.Equal(t, 5, cfg.Search.MaxResults)
	assert.Equal(t, 2000, cfg.Search.MaxContentLength)
	assert.Equal(t, 10*time.Second, cfg.Search.FetchTimeout)
	assert.Equal(t, "test-key", cfg.GeminiAPIKey)
	assert.Equal(t, "prosearch-research", cfg.Temporal.TaskQueue)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prosearch.yaml")
	content := []byte(`
provider: openai
reasoning_model: gpt-4o
research:
  initial_query_count: 5
  max_research_loops: 4
search:
  max_results: 8
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	t.Setenv("PROSEARCH_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ProviderOpenAI, cfg.Provider)
	assert.Equal(t, "gpt-4o", cfg.ReasoningModel)
	assert.Equal(t, 5, cfg.Research.InitialQueryCount)
	assert.Equal(t, 4, cfg.Research.MaxResearchLoops)
	assert.Equal(t, 8, cfg.Search.MaxResults)
	// Untouched values keep defaults.
	assert.Equal(t, 2000, cfg.Search.MaxContentLength)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown provider", func(c *Config) { c.Provider = "cohere" }},
		{"zero query count", func(c *Config) { c.Research.InitialQueryCount = 0 }},
		{"negative loop budget", func(c *Config) { c.Research.MaxResearchLoops = -1 }},
		{"zero max results", func(c *Config) { c.Search.MaxResults = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDefaultModelPerProvider(t *testing.T) {
	cfg := validConfig()

	cfg.Provider = ProviderGemini
	assert.Equal(t, "gemini-2.5-flash", cfg.DefaultModel())

	cfg.Provider = ProviderOpenAI
	assert.Equal(t, "gpt-4o-mini", cfg.DefaultModel())

	cfg.ReasoningModel = "custom-model"
	assert.Equal(t, "custom-model", cfg.DefaultModel())
}

func validConfig() *Config {
	return &Config{
		Provider: ProviderGemini,
		Research: ResearchConfig{InitialQueryCount: 3, MaxResearchLoops: 2},
		Search:   SearchConfig{MaxResults: 5, MaxContentLength: 2000},
	}
}

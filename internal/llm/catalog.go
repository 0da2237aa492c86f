package llm

import "github.com/prosearch-ai/prosearch/internal/config"

// ModelInfo is one selectable reasoning model for a provider.
type ModelInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

// ProviderInfo describes one selectable provider for the run API.
type ProviderInfo struct {
	Name           string      `json:"name"`
	DefaultModel   string      `json:"default_model"`
	Models         []ModelInfo `json:"models"`
	Configured     bool        `json:"configured"`
	GroundedSearch bool        `json:"grounded_search"`
}

// SupportedModels lists the reasoning models a provider accepts as a
// per-run override. Unknown providers yield nil.
func SupportedModels(provider string) []ModelInfo {
	switch provider {
	case config.ProviderGemini:
		return []ModelInfo{
			{Name: "gemini-2.5-flash", DisplayName: "Gemini 2.5 Flash"},
			{Name: "gemini-2.5-flash-lite", DisplayName: "Gemini 2.5 Flash Lite"},
			{Name: "gemini-2.5-pro", DisplayName: "Gemini 2.5 Pro"},
		}
	case config.ProviderOpenAI:
		return []ModelInfo{
			{Name: "gpt-4o-mini", DisplayName: "GPT-4o Mini"},
			{Name: "gpt-4o", DisplayName: "GPT-4o"},
		}
	case config.ProviderAnthropic:
		return []ModelInfo{
			{Name: "claude-3-5-haiku-20241022", DisplayName: "Claude 3.5 Haiku"},
			{Name: "claude-3-5-sonnet-20241022", DisplayName: "Claude 3.5 Sonnet"},
		}
	}
	return nil
}

// Catalog lists the known providers with their credential status. Grounded
// search is a Gemini-only capability.
func Catalog(cfg *config.Config) []ProviderInfo {
	return []ProviderInfo{
		{
			Name:           config.ProviderGemini,
			DefaultModel:   defaultModelFor(config.ProviderGemini),
			Models:         SupportedModels(config.ProviderGemini),
			Configured:     cfg.GeminiAPIKey != "",
			GroundedSearch: cfg.GeminiAPIKey != "",
		},
		{
			Name:         config.ProviderOpenAI,
			DefaultModel: defaultModelFor(config.ProviderOpenAI),
			Models:       SupportedModels(config.ProviderOpenAI),
			Configured:   cfg.OpenAIAPIKey != "",
		},
		{
			Name:         config.ProviderAnthropic,
			DefaultModel: defaultModelFor(config.ProviderAnthropic),
			Models:       SupportedModels(config.ProviderAnthropic),
			Configured:   cfg.AnthropicAPIKey != "",
		},
	}
}

// Package llm adapts LLM provider HTTP APIs to the two generation ports the
// research loop consumes: structured JSON output and free text. It also
// exposes the optional grounded-search capability for providers that return
// citation metadata alongside generated text.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/prosearch-ai/prosearch/internal/circuitbreaker"
	"github.com/prosearch-ai/prosearch/internal/citations"
	"github.com/prosearch-ai/prosearch/internal/config"
	"github.com/prosearch-ai/prosearch/internal/metrics"
)

// StructuredGenerator produces a JSON document matching the shape of out.
type StructuredGenerator interface {
	GenerateJSON(ctx context.Context, prompt string, out interface{}) error
}

// TextGenerator produces free text for a prompt.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// GroundedSearcher runs a search-capable generation that returns text plus
// provider-native grounding references.
type GroundedSearcher interface {
	GroundedSearch(ctx context.Context, query string) (*GroundedResult, error)
}

// GroundingSupport ties a character span of the generated text to the
// grounding references (by index) that support it.
type GroundingSupport struct {
	StartIndex   int
	EndIndex     int
	ChunkIndices []int
}

// GroundedResult is the outcome of a grounded search call.
type GroundedResult struct {
	Text       string
	References []citations.GroundingRef
	Supports   []GroundingSupport
}

// ErrMissingCredential marks an unusable provider configuration. It is fatal:
// runs must not start (or must abort) when the selected provider has no key.
var ErrMissingCredential = errors.New("missing provider credential")

// GenerationError wraps a model call failure after the port's own bounded
// retries were exhausted.
type GenerationError struct {
	Provider string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s generation failed: %v", e.Provider, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Clients bundles the generation ports constructed once at process start.
// Grounded is nil when no grounded-search capability is configured.
type Clients struct {
	Provider   string
	Structured StructuredGenerator
	Text       TextGenerator
	Grounded   GroundedSearcher
}

// NewClients builds clients for the configured default provider. The
// provider must have its credential present; the grounded-search capability
// is attached whenever a Gemini key exists, regardless of the reasoning
// provider, matching the hybrid search setup.
func NewClients(cfg *config.Config, logger *zap.Logger) (*Clients, error) {
	return NewClientsFor(cfg, cfg.Provider, "", logger)
}

// NewAvailableClients builds clients for every provider whose credential is
// present. Runs that override the provider pick from this set.
func NewAvailableClients(cfg *config.Config, logger *zap.Logger) (map[string]*Clients, error) {
	available := make(map[string]*Clients)
	for _, info := range Catalog(cfg) {
		if !info.Configured {
			continue
		}
		c, err := NewClientsFor(cfg, info.Name, "", logger)
		if err != nil {
			return nil, err
		}
		available[info.Name] = c
	}
	if _, ok := available[cfg.Provider]; !ok {
		return nil, fmt.Errorf("%w: no credential for default provider %q", ErrMissingCredential, cfg.Provider)
	}
	return available, nil
}

// NewClientsFor builds clients for one provider. model overrides the
// provider's default reasoning model when non-empty.
func NewClientsFor(cfg *config.Config, provider, model string, logger *zap.Logger) (*Clients, error) {
	if model == "" {
		if provider == cfg.Provider {
			model = cfg.DefaultModel()
		} else {
			model = defaultModelFor(provider)
		}
	}

	core := coreClient{
		httpClient: &http.Client{Timeout: cfg.LLM.Timeout},
		maxRetries: cfg.LLM.MaxRetries,
		logger:     logger,
	}

	clients := &Clients{Provider: provider}

	switch provider {
	case config.ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("%w: GEMINI_API_KEY is not set", ErrMissingCredential)
		}
		g := newGeminiClient(core, cfg.GeminiAPIKey, model)
		clients.Structured = g
		clients.Text = g
	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("%w: OPENAI_API_KEY is not set", ErrMissingCredential)
		}
		o := newOpenAIClient(core, cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, model)
		clients.Structured = o
		clients.Text = o
	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("%w: ANTHROPIC_API_KEY is not set", ErrMissingCredential)
		}
		a := newAnthropicClient(core, cfg.AnthropicAPIKey, model)
		clients.Structured = a
		clients.Text = a
	default:
		return nil, fmt.Errorf("unsupported provider %q", provider)
	}

	if cfg.GeminiAPIKey != "" {
		groundedModel := model
		if provider != config.ProviderGemini {
			groundedModel = defaultModelFor(config.ProviderGemini)
		}
		clients.Grounded = newGeminiClient(core, cfg.GeminiAPIKey, groundedModel)
	}

	return clients, nil
}

// WithModel returns a copy of the clients whose reasoning ports target the
// given model. The grounded-search port keeps its own model, and the copy
// shares the original's circuit breaker. An empty model returns the receiver.
func (c *Clients) WithModel(model string) *Clients {
	if model == "" {
		return c
	}
	out := &Clients{Provider: c.Provider, Structured: c.Structured, Text: c.Text, Grounded: c.Grounded}
	switch adapter := c.Structured.(type) {
	case *geminiClient:
		g := adapter.withModel(model)
		out.Structured, out.Text = g, g
	case *openAIClient:
		o := adapter.withModel(model)
		out.Structured, out.Text = o, o
	case *anthropicClient:
		a := adapter.withModel(model)
		out.Structured, out.Text = a, a
	}
	return out
}

func defaultModelFor(provider string) string {
	switch provider {
	case config.ProviderGemini:
		return "gemini-2.5-flash"
	case config.ProviderOpenAI:
		return "gpt-4o-mini"
	case config.ProviderAnthropic:
		return "claude-3-5-haiku-20241022"
	}
	return ""
}

// coreClient carries the pieces shared by all provider adapters.
type coreClient struct {
	httpClient *http.Client
	maxRetries int
	logger     *zap.Logger
}

// callWithRetry runs one provider request with bounded retries and a circuit
// breaker. Retries cover transport errors, 429 and 5xx responses; anything
// else fails immediately.
func (c coreClient) callWithRetry(ctx context.Context, provider string, breaker *circuitbreaker.CircuitBreaker, do func(ctx context.Context) error) error {
	attempts := c.maxRetries + 1
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		start := time.Now()
		err := breaker.Execute(func() error { return do(ctx) })
		metrics.LLMCallDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())

		if err == nil {
			metrics.LLMCalls.WithLabelValues(provider, "ok").Inc()
			return nil
		}
		metrics.LLMCalls.WithLabelValues(provider, "error").Inc()
		lastErr = err

		if !isRetryable(err) {
			break
		}
		c.logger.Warn("Model call failed, retrying",
			zap.String("provider", provider),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}

	return &GenerationError{Provider: provider, Err: lastErr}
}

// httpStatusError distinguishes retryable provider responses.
type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.status, truncate(e.body, 200))
}

func isRetryable(err error) bool {
	if errors.Is(err, circuitbreaker.ErrOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return false
	}
	var se *httpStatusError
	if errors.As(err, &se) {
		return se.status == http.StatusTooManyRequests || se.status >= 500
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// Transport-level failures are worth one more try.
	return true
}

// cleanJSONBlock strips markdown code fences that models wrap around JSON.
func cleanJSONBlock(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// Package activities implements the research loop's Temporal activities:
// query generation, web research, reflection, and answer finalization. Each
// activity is a plain method on Activities so dependencies are injected once
// at worker start.
package activities

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/prosearch-ai/prosearch/internal/config"
	"github.com/prosearch-ai/prosearch/internal/llm"
	"github.com/prosearch-ai/prosearch/internal/search"
)

// ErrTypeConfiguration is the application error type for unusable provider
// configuration. Workflows must not retry it.
const ErrTypeConfiguration = "ConfigurationError"

// PageFetcher downloads a page and returns its extracted text.
type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string) (string, error)
}

// Activities carries the dependencies shared by all research activities.
type Activities struct {
	clients         map[string]*llm.Clients
	defaultProvider string
	searcher        search.Searcher
	fetcher         PageFetcher
	cfg             *config.Config
	logger          *zap.Logger
}

// NewActivities wires the research activities. clients maps provider name to
// its constructed ports; only providers with credentials appear in it.
func NewActivities(clients map[string]*llm.Clients, cfg *config.Config, searcher search.Searcher, fetcher PageFetcher, logger *zap.Logger) *Activities {
	return &Activities{
		clients:         clients,
		defaultProvider: cfg.Provider,
		searcher:        searcher,
		fetcher:         fetcher,
		cfg:             cfg,
		logger:          logger,
	}
}

// clientsFor resolves per-run provider and reasoning-model overrides. An
// unknown or credential-less provider is a configuration error and must fail
// the run rather than retry.
func (a *Activities) clientsFor(provider, model string) (*llm.Clients, error) {
	if provider == "" {
		provider = a.defaultProvider
	}
	c, ok := a.clients[provider]
	if !ok {
		return nil, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("provider %q is not configured", provider),
			ErrTypeConfiguration,
			llm.ErrMissingCredential,
		)
	}
	return c.WithModel(model), nil
}

package activities

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/prosearch-ai/prosearch/internal/citations"
	"github.com/prosearch-ai/prosearch/internal/llm"
	"github.com/prosearch-ai/prosearch/internal/metrics"
)

// Research strategies, recorded per contribution.
const (
	StrategyGrounded = "grounded"
	StrategyFetched  = "fetched"
)

// fetchedDocument is one page retrieved by the fallback strategy.
type fetchedDocument struct {
	Title   string
	URL     string
	Snippet string
	Content string
}

// WebResearch executes one research task. When the provider exposes grounded
// search it is tried first; otherwise, or when it fails, the task falls back
// to plain search plus page fetching. Errors returned here are transient:
// the workflow retries them and eventually records an empty contribution.
func (a *Activities) WebResearch(ctx context.Context, input WebResearchInput) (WebResearchOutput, error) {
	clients, err := a.clientsFor(input.Provider, input.Model)
	if err != nil {
		return WebResearchOutput{}, err
	}

	if clients.Grounded != nil {
		out, err := a.groundedResearch(ctx, clients, input)
		if err == nil {
			metrics.ResearchTasks.WithLabelValues(StrategyGrounded, "ok").Inc()
			return out, nil
		}
		metrics.ResearchTasks.WithLabelValues(StrategyGrounded, "error").Inc()
		a.logger.Warn("Grounded search failed, falling back to fetch strategy",
			zap.Int("query_id", input.QueryID),
			zap.Error(err),
		)
	}

	out, err := a.fetchedResearch(ctx, clients, input)
	if err != nil {
		metrics.ResearchTasks.WithLabelValues(StrategyFetched, "error").Inc()
		return WebResearchOutput{}, err
	}
	metrics.ResearchTasks.WithLabelValues(StrategyFetched, "ok").Inc()
	return out, nil
}

// groundedResearch converts provider grounding metadata into short-form
// citation markers embedded in the summary text.
func (a *Activities) groundedResearch(ctx context.Context, clients *llm.Clients, input WebResearchInput) (WebResearchOutput, error) {
	result, err := clients.Grounded.GroundedSearch(ctx, groundedSearchPrompt(input.Query))
	if err != nil {
		return WebResearchOutput{}, err
	}
	if result.Text == "" {
		return WebResearchOutput{}, fmt.Errorf("grounded search returned empty text for query %d", input.QueryID)
	}

	resolved := citations.ResolveReferences(result.References, input.QueryID)

	spans := make([]citations.Span, 0, len(result.Supports))
	for _, sup := range result.Supports {
		refs := make([]citations.ResolvedRef, 0, len(sup.ChunkIndices))
		for _, idx := range sup.ChunkIndices {
			if idx >= 0 && idx < len(resolved) {
				refs = append(refs, resolved[idx])
			}
		}
		spans = append(spans, citations.Span{Start: sup.StartIndex, End: sup.EndIndex, Refs: refs})
	}

	summary := citations.InsertMarkers(result.Text, spans)

	seen := make(map[string]bool)
	sources := make([]citations.Source, 0, len(resolved))
	for _, ref := range resolved {
		if seen[ref.ShortForm] {
			continue
		}
		seen[ref.ShortForm] = true
		sources = append(sources, citations.Source{
			Kind:      citations.KindGrounded,
			Title:     ref.Title,
			URL:       ref.Target,
			ShortForm: ref.ShortForm,
		})
	}

	return WebResearchOutput{Summary: summary, Sources: sources, Strategy: StrategyGrounded}, nil
}

// fetchedResearch searches the web, fetches the hits concurrently, and has
// the reasoning model synthesize them. When synthesis fails the snippets
// become a basic summary so the wave still gets a contribution.
func (a *Activities) fetchedResearch(ctx context.Context, clients *llm.Clients, input WebResearchInput) (WebResearchOutput, error) {
	results, err := a.searcher.Search(ctx, input.Query, a.cfg.Search.MaxResults)
	if err != nil {
		return WebResearchOutput{}, fmt.Errorf("search for query %d: %w", input.QueryID, err)
	}
	if len(results) == 0 {
		return WebResearchOutput{}, fmt.Errorf("no search results for query %d", input.QueryID)
	}

	docs := make([]fetchedDocument, len(results))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, r := range results {
		i, r := i, r
		g.Go(func() error {
			content, err := a.fetcher.Fetch(gctx, r.URL)
			if err != nil {
				// A dead page costs this slot its content, not the task.
				a.logger.Debug("Page fetch failed", zap.String("url", r.URL), zap.Error(err))
				content = ""
			}
			mu.Lock()
			docs[i] = fetchedDocument{Title: r.Title, URL: r.URL, Snippet: r.Snippet, Content: content}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return WebResearchOutput{}, err
	}

	sources := make([]citations.Source, 0, len(docs))
	for _, doc := range docs {
		sources = append(sources, citations.Source{
			Kind:      citations.KindFetched,
			Title:     doc.Title,
			URL:       doc.URL,
			ShortForm: citations.ShortFormFor(doc.URL),
			Snippet:   doc.Snippet,
		})
	}

	summary := a.synthesize(ctx, clients, input.Query, docs)
	summary = citations.InsertHeuristic(summary, sources)

	return WebResearchOutput{Summary: summary, Sources: sources, Strategy: StrategyFetched}, nil
}

// synthesize produces the task summary, degrading to concatenated snippets
// when the model call fails.
func (a *Activities) synthesize(ctx context.Context, clients *llm.Clients, query string, docs []fetchedDocument) string {
	withContent := make([]fetchedDocument, 0, len(docs))
	for _, doc := range docs {
		if doc.Content != "" {
			withContent = append(withContent, doc)
		}
	}

	if len(withContent) > 0 {
		summary, err := clients.Text.GenerateText(ctx, synthesisPrompt(query, withContent))
		if err == nil && strings.TrimSpace(summary) != "" {
			return summary
		}
		if err != nil {
			a.logger.Warn("Synthesis failed, using basic summary", zap.String("query", query), zap.Error(err))
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Search results for \"%s\":\n\n", query)
	for _, doc := range docs {
		fmt.Fprintf(&sb, "%s: %s\n", doc.Title, doc.Snippet)
	}
	return sb.String()
}

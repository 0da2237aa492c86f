package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/prosearch-ai/prosearch/internal/metrics"
)

// Fetcher downloads a page and reduces it to readable text, bounded by
// maxContentLength. A Redis cache (optional) short-circuits repeat fetches of
// the same URL across research waves and runs.
type Fetcher struct {
	httpClient *http.Client
	maxLen     int
	cache      *redis.Client
	cacheTTL   time.Duration
	logger     *zap.Logger
}

// NewFetcher builds a fetcher. cache may be nil to disable caching.
func NewFetcher(timeout time.Duration, maxContentLength int, cache *redis.Client, cacheTTL time.Duration, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{Timeout: timeout},
		maxLen:     maxContentLength,
		cache:      cache,
		cacheTTL:   cacheTTL,
		logger:     logger,
	}
}

// Fetch returns the extracted text of a page, truncated to the configured
// length. Non-HTML content types are rejected.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	cacheKey := "prosearch:page:" + pageURL

	if f.cache != nil {
		if cached, err := f.cache.Get(ctx, cacheKey).Result(); err == nil {
			metrics.FetchCacheHits.Inc()
			return cached, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		metrics.PageFetches.WithLabelValues("error").Inc()
		return "", fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.PageFetches.WithLabelValues("error").Inc()
		return "", fmt.Errorf("fetch %s: HTTP %d", pageURL, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") && !strings.Contains(ct, "text/plain") {
		metrics.PageFetches.WithLabelValues("skipped").Inc()
		return "", fmt.Errorf("fetch %s: unsupported content type %q", pageURL, ct)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		metrics.PageFetches.WithLabelValues("error").Inc()
		return "", fmt.Errorf("fetch %s: read body: %w", pageURL, err)
	}

	text := ExtractText(string(body))
	if len(text) > f.maxLen {
		cut := f.maxLen
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	metrics.PageFetches.WithLabelValues("ok").Inc()

	if f.cache != nil && text != "" {
		if err := f.cache.Set(ctx, cacheKey, text, f.cacheTTL).Err(); err != nil {
			f.logger.Warn("Page cache write failed", zap.String("url", pageURL), zap.Error(err))
		}
	}
	return text, nil
}

// ExtractText strips markup from an HTML document, dropping script, style and
// other non-content subtrees, and collapses runs of whitespace.
func ExtractText(page string) string {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return ""
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "svg", "head":
				return
			}
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return strings.Join(strings.Fields(sb.String()), " ")
}

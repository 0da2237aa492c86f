// Package search implements the fallback research strategy: web search via
// the DuckDuckGo HTML endpoint plus direct page fetching with text
// extraction. It is used when the provider has no grounded-search capability
// or a grounded call fails.
package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"
)

const ddgEndpoint = "https://html.duckduckgo.com/html/"

// userAgent identifies the crawler; some sites reject requests without one.
const userAgent = "Mozilla/5.0 (compatible; prosearch/1.0)"

// Result is a single search hit.
type Result struct {
	Title   string
	URL     string
	Snippet string
}

// Searcher finds pages relevant to a query.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// DuckDuckGo queries the no-JS HTML endpoint and scrapes result anchors.
type DuckDuckGo struct {
	endpoint   string
	httpClient *http.Client
	policy     *Policy
	logger     *zap.Logger
}

// NewDuckDuckGo builds a searcher with the given fetch policy. policy may be
// nil to accept every result.
func NewDuckDuckGo(client *http.Client, policy *Policy, logger *zap.Logger) *DuckDuckGo {
	return &DuckDuckGo{
		endpoint:   ddgEndpoint,
		httpClient: client,
		policy:     policy,
		logger:     logger,
	}
}

// Search returns up to maxResults hits, policy-filtered and deduplicated by
// URL, in the engine's ranking order.
func (d *DuckDuckGo) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.endpoint+"?q="+url.QueryEscape(query), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search %q: HTTP %d", query, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("search %q: read body: %w", query, err)
	}

	results := parseResults(string(body))

	seen := make(map[string]bool)
	filtered := make([]Result, 0, maxResults)
	for _, r := range results {
		if seen[r.URL] {
			continue
		}
		seen[r.URL] = true
		if d.policy != nil && d.policy.ShouldSkip(r.URL) {
			d.logger.Debug("Skipping result by policy", zap.String("url", r.URL))
			continue
		}
		filtered = append(filtered, r)
		if len(filtered) >= maxResults {
			break
		}
	}
	return filtered, nil
}

// parseResults walks the result page and pairs result__a anchors (title+href)
// with their result__snippet siblings.
func parseResults(page string) []Result {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil
	}

	var results []Result
	var current *Result

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			switch {
			case hasClass(n, "result__a"):
				if current != nil && current.URL != "" {
					results = append(results, *current)
				}
				current = &Result{
					Title: strings.TrimSpace(textContent(n)),
					URL:   decodeRedirect(attr(n, "href")),
				}
			case hasClass(n, "result__snippet"):
				if current != nil {
					current.Snippet = strings.TrimSpace(textContent(n))
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if current != nil && current.URL != "" {
		results = append(results, *current)
	}
	return results
}

// decodeRedirect unwraps DuckDuckGo's /l/?uddg= redirect links.
func decodeRedirect(href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

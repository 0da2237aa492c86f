package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const resultsPage = `<html><body>
<div class="result">
  <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fblog%2Fgo1.22&rut=abc">Go 1.22 is released</a>
  <a class="result__snippet" href="#">The latest Go release adds loop variable scoping.</a>
</div>
<div class="result">
  <a class="result__a" href="https://example.com/report.pdf">Annual report</a>
  <a class="result__snippet" href="#">A large PDF document.</a>
</div>
<div class="result">
  <a class="result__a" href="https://en.wikipedia.org/wiki/Go_(programming_language)">Go (programming language)</a>
  <a class="result__snippet" href="#">Go is a statically typed language.</a>
</div>
<div class="result">
  <a class="result__a" href="https://en.wikipedia.org/wiki/Go_(programming_language)">Go (programming language)</a>
  <a class="result__snippet" href="#">Duplicate entry.</a>
</div>
</body></html>`

func TestSearchParsesFiltersAndDedupes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "go 1.22 release", r.URL.Query().Get("q"))
		w.Write([]byte(resultsPage))
	}))
	defer srv.Close()

	d := NewDuckDuckGo(srv.Client(), DefaultPolicy(), zap.NewNop())
	d.endpoint = srv.URL

	results, err := d.Search(context.Background(), "go 1.22 release", 5)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "Go 1.22 is released", results[0].Title)
	assert.Equal(t, "https://go.dev/blog/go1.22", results[0].URL)
	assert.Equal(t, "The latest Go release adds loop variable scoping.", results[0].Snippet)
	assert.Equal(t, "https://en.wikipedia.org/wiki/Go_(programming_language)", results[1].URL)
}

func TestSearchHonorsMaxResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(resultsPage))
	}))
	defer srv.Close()

	d := NewDuckDuckGo(srv.Client(), nil, zap.NewNop())
	d.endpoint = srv.URL

	results, err := d.Search(context.Background(), "anything", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestDecodeRedirect(t *testing.T) {
	assert.Equal(t, "https://go.dev/doc/faq",
		decodeRedirect("//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fdoc%2Ffaq&rut=x"))
	assert.Equal(t, "https://example.com/page", decodeRedirect("https://example.com/page"))
	assert.Equal(t, "", decodeRedirect(""))
}

func TestFetchExtractsText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>t</title><style>.x{}</style></head>
<body><script>var x = 1;</script><h1>Heading</h1>
<p>First   paragraph
with   newlines.</p></body></html>`))
	}))
	defer srv.Close()

	f := NewFetcher(5*time.Second, 2000, nil, 0, zap.NewNop())

	text, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Heading First paragraph with newlines.", text)
}

func TestFetchTruncatesContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<p>" + strings.Repeat("word ", 100) + "</p>"))
	}))
	defer srv.Close()

	f := NewFetcher(5*time.Second, 50, nil, 0, zap.NewNop())

	text, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, text, 50)
}

func TestFetchTruncatesOnRuneBoundary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<p>" + strings.Repeat("é", 40) + "</p>"))
	}))
	defer srv.Close()

	// An odd byte limit lands mid-rune for two-byte characters; the cut
	// must back up rather than emit a broken trailing byte.
	f := NewFetcher(5*time.Second, 51, nil, 0, zap.NewNop())

	text, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(text))
	assert.Len(t, text, 50)
}

func TestFetchRejectsNonHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	f := NewFetcher(5*time.Second, 2000, nil, 0, zap.NewNop())

	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported content type")
}

func TestFetchUsesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<p>cached content</p>"))
	}))
	defer srv.Close()

	f := NewFetcher(5*time.Second, 2000, cache, time.Hour, zap.NewNop())

	first, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	second, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load())
}

func TestExtractText(t *testing.T) {
	assert.Equal(t, "a b", ExtractText("<div>a</div><script>bad()</script><div>b</div>"))
	assert.Equal(t, "", ExtractText("<script>only()</script>"))
}

func TestPolicyShouldSkip(t *testing.T) {
	p := DefaultPolicy()

	assert.True(t, p.ShouldSkip("https://example.com/report.PDF"))
	assert.True(t, p.ShouldSkip("https://site.com/login?next=/"))
	assert.False(t, p.ShouldSkip("https://go.dev/blog/go1.22"))
}

func TestLoadPolicyMergesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("skip_domains:\n  - blocked.example.com\n"), 0o644))

	p, err := LoadPolicy(path)
	require.NoError(t, err)

	assert.True(t, p.ShouldSkip("https://blocked.example.com/article"))
	assert.True(t, p.ShouldSkip("https://other.com/file.zip"))
}

func TestLoadPolicyEmptyPath(t *testing.T) {
	p, err := LoadPolicy("")
	require.NoError(t, err)
	assert.NotEmpty(t, p.SkipSuffixes)
}

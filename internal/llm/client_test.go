package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/prosearch-ai/prosearch/internal/config"
)

func testCore(t *testing.T) coreClient {
	t.Helper()
	return coreClient{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		maxRetries: 2,
		logger:     zap.NewNop(),
	}
}

func TestOpenAIGenerateJSON(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")

		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "json_object", req.ResponseFormat.Type)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": `{"query": ["a", "b"]}`}},
			},
		})
	}))
	defer srv.Close()

	c := newOpenAIClient(testCore(t), srv.URL, "sk-test", "gpt-4o-mini")

	var out struct {
		Query []string `json:"query"`
	}
	require.NoError(t, c.GenerateJSON(context.Background(), "make queries", &out))
	assert.Equal(t, []string{"a", "b"}, out.Query)
	assert.Equal(t, "Bearer sk-test", gotAuth)
}

func TestOpenAIRetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "upstream overloaded", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "recovered"}},
			},
		})
	}))
	defer srv.Close()

	c := newOpenAIClient(testCore(t), srv.URL, "sk-test", "gpt-4o-mini")

	text, err := c.GenerateText(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "recovered", text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenAIBadRequestFailsWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad model", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newOpenAIClient(testCore(t), srv.URL, "sk-test", "nope")

	_, err := c.GenerateText(context.Background(), "hello")
	require.Error(t, err)

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, "openai", genErr.Provider)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGeminiGroundedSearchParsesMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Tools, 1)
		assert.NotNil(t, req.Tools[0].GoogleSearch)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []map[string]interface{}{
				{
					"content": map[string]interface{}{
						"parts": []map[string]string{{"text": "Go was released in 2009."}},
					},
					"groundingMetadata": map[string]interface{}{
						"groundingChunks": []map[string]interface{}{
							{"web": map[string]string{"uri": "https://go.dev/doc/faq", "title": "go.dev"}},
							{"web": map[string]string{"uri": "https://en.wikipedia.org/wiki/Go", "title": "wikipedia.org"}},
						},
						"groundingSupports": []map[string]interface{}{
							{
								"segment":               map[string]int{"startIndex": 0, "endIndex": 24},
								"groundingChunkIndices": []int{0, 1},
							},
						},
					},
				},
			},
		})
	}))
	defer srv.Close()

	c := newGeminiClient(testCore(t), "key", "gemini-2.5-flash")
	c.baseURL = srv.URL

	result, err := c.GroundedSearch(context.Background(), "when was Go released")
	require.NoError(t, err)

	assert.Equal(t, "Go was released in 2009.", result.Text)
	require.Len(t, result.References, 2)
	assert.Equal(t, "https://go.dev/doc/faq", result.References[0].Target)
	assert.Equal(t, "go.dev", result.References[0].Title)
	require.Len(t, result.Supports, 1)
	assert.Equal(t, 24, result.Supports[0].EndIndex)
	assert.Equal(t, []int{0, 1}, result.Supports[0].ChunkIndices)
}

func TestGeminiGroundedSearchWithoutMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []map[string]interface{}{
				{"content": map[string]interface{}{
					"parts": []map[string]string{{"text": "no sources found"}},
				}},
			},
		})
	}))
	defer srv.Close()

	c := newGeminiClient(testCore(t), "key", "gemini-2.5-flash")
	c.baseURL = srv.URL

	result, err := c.GroundedSearch(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, "no sources found", result.Text)
	assert.Empty(t, result.References)
	assert.Empty(t, result.Supports)
}

func TestAnthropicGenerateJSONStripsFences(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"content": []map[string]string{
				{"type": "text", "text": "```json\n{\"is_sufficient\": true}\n```"},
			},
		})
	}))
	defer srv.Close()

	c := newAnthropicClient(testCore(t), "key", "claude-3-5-haiku-20241022")

	// Point the client at the test server by swapping the transport.
	c.httpClient = &http.Client{
		Transport: rewriteTransport{target: srv.URL},
		Timeout:   5 * time.Second,
	}

	var out struct {
		IsSufficient bool `json:"is_sufficient"`
	}
	require.NoError(t, c.GenerateJSON(context.Background(), "evaluate", &out))
	assert.True(t, out.IsSufficient)
}

// rewriteTransport redirects all requests to a test server.
type rewriteTransport struct {
	target string
}

func (t rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	redirected, err := http.NewRequestWithContext(req.Context(), req.Method, t.target, req.Body)
	if err != nil {
		return nil, err
	}
	redirected.Header = req.Header
	return http.DefaultTransport.RoundTrip(redirected)
}

func TestCleanJSONBlock(t *testing.T) {
	assert.Equal(t, `{"a":1}`, cleanJSONBlock("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, cleanJSONBlock("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, cleanJSONBlock(`  {"a":1}  `))
}

func TestNewClientsRequiresCredential(t *testing.T) {
	cfg := &config.Config{Provider: config.ProviderOpenAI}
	_, err := NewClients(cfg, zap.NewNop())
	require.ErrorIs(t, err, ErrMissingCredential)
}

func TestNewClientsAttachesGroundedCapability(t *testing.T) {
	cfg := &config.Config{
		Provider:      config.ProviderOpenAI,
		OpenAIAPIKey:  "sk-test",
		OpenAIBaseURL: "https://api.openai.com/v1",
		GeminiAPIKey:  "g-key",
	}
	clients, err := NewClients(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, clients.Structured)
	assert.NotNil(t, clients.Grounded)

	cfg.GeminiAPIKey = ""
	clients, err = NewClients(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, clients.Grounded)
}

func TestCatalogReflectsCredentials(t *testing.T) {
	cfg := &config.Config{GeminiAPIKey: "k"}
	infos := Catalog(cfg)
	require.Len(t, infos, 3)

	byName := map[string]ProviderInfo{}
	for _, info := range infos {
		byName[info.Name] = info
	}
	assert.True(t, byName["gemini"].Configured)
	assert.True(t, byName["gemini"].GroundedSearch)
	assert.False(t, byName["openai"].Configured)
	assert.False(t, byName["anthropic"].GroundedSearch)

	for name, info := range byName {
		assert.NotEmpty(t, info.Models, "provider %s lists its models", name)
	}
}

func TestWithModelRetargetsReasoningPorts(t *testing.T) {
	cfg := &config.Config{
		Provider:      config.ProviderOpenAI,
		OpenAIAPIKey:  "sk-test",
		OpenAIBaseURL: "https://api.openai.com/v1",
		GeminiAPIKey:  "g-key",
	}
	clients, err := NewClients(cfg, zap.NewNop())
	require.NoError(t, err)

	overridden := clients.WithModel("gpt-4o")

	oc, ok := overridden.Structured.(*openAIClient)
	require.True(t, ok)
	assert.Equal(t, "gpt-4o", oc.model)
	assert.Same(t, overridden.Structured, overridden.Text)

	// The original keeps its default model; grounded search keeps its own.
	assert.Equal(t, "gpt-4o-mini", clients.Structured.(*openAIClient).model)
	assert.Same(t, clients.Grounded, overridden.Grounded)

	assert.Same(t, clients, clients.WithModel(""))
}

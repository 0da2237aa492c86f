package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/prosearch-ai/prosearch/internal/activities"
	"github.com/prosearch-ai/prosearch/internal/citations"
	"github.com/prosearch-ai/prosearch/internal/config"
	"github.com/prosearch-ai/prosearch/internal/workflows"
)

type fakeRun struct {
	id     string
	result *workflows.ResearchOutput
	err    error
}

func (f *fakeRun) GetID() string    { return f.id }
func (f *fakeRun) GetRunID() string { return "run-1" }

func (f *fakeRun) Get(_ context.Context, valuePtr interface{}) error {
	if f.err != nil {
		return f.err
	}
	*(valuePtr.(*workflows.ResearchOutput)) = *f.result
	return nil
}

func (f *fakeRun) GetWithOptions(ctx context.Context, valuePtr interface{}, _ client.WorkflowRunGetOptions) error {
	return f.Get(ctx, valuePtr)
}

type fakeRunner struct {
	lastInput workflows.ResearchInput
	run       *fakeRun
	err       error
}

func (f *fakeRunner) ExecuteWorkflow(_ context.Context, options client.StartWorkflowOptions, _ interface{}, args ...interface{}) (client.WorkflowRun, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.lastInput = args[0].(workflows.ResearchInput)
	f.run.id = options.ID
	return f.run, nil
}

func testServer(runner *fakeRunner) *Server {
	cfg := &config.Config{
		Provider:     config.ProviderGemini,
		GeminiAPIKey: "key",
		Research:     config.ResearchConfig{InitialQueryCount: 3, MaxResearchLoops: 2},
		Temporal:     config.TemporalConfig{TaskQueue: "prosearch-research"},
	}
	return NewServer(runner, cfg, zap.NewNop())
}

func TestHandleResearchResolvesDefaults(t *testing.T) {
	runner := &fakeRunner{run: &fakeRun{result: &workflows.ResearchOutput{
		FinalText: "answer",
		Sources:   []citations.Source{{Title: "t", URL: "https://e.com"}},
		Waves:     1,
		Queries:   []string{"q"},
	}}}
	srv := testServer(runner)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/research",
		strings.NewReader(`{"question": "what is Go"}`))
	srv.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "what is Go", runner.lastInput.Question)
	assert.Equal(t, 3, runner.lastInput.InitialQueryCount)
	assert.Equal(t, 2, runner.lastInput.LoopBudget)

	var resp ResearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "answer", resp.FinalText)
	assert.True(t, strings.HasPrefix(resp.RunID, "research-"))
	assert.Len(t, resp.Sources, 1)
}

func TestHandleResearchHonorsOverrides(t *testing.T) {
	runner := &fakeRunner{run: &fakeRun{result: &workflows.ResearchOutput{FinalText: "x"}}}
	srv := testServer(runner)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/research",
		strings.NewReader(`{"question": "q", "initial_query_count": 5, "max_research_loops": 0, "provider": "gemini", "reasoning_model": "gemini-2.5-pro"}`))
	srv.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, runner.lastInput.InitialQueryCount)
	assert.Equal(t, 0, runner.lastInput.LoopBudget)
	assert.Equal(t, "gemini", runner.lastInput.Provider)
	assert.Equal(t, "gemini-2.5-pro", runner.lastInput.Model)
}

func TestHandleResearchRejectsMissingQuestion(t *testing.T) {
	srv := testServer(&fakeRunner{run: &fakeRun{}})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/research", strings.NewReader(`{}`))
	srv.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleResearchRejectsUnconfiguredProvider(t *testing.T) {
	srv := testServer(&fakeRunner{run: &fakeRun{}})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/research",
		strings.NewReader(`{"question": "q", "provider": "openai"}`))
	srv.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "not configured")
}

func TestHandleResearchMapsConfigurationErrors(t *testing.T) {
	runner := &fakeRunner{run: &fakeRun{
		err: temporal.NewNonRetryableApplicationError("bad provider", activities.ErrTypeConfiguration, nil),
	}}
	srv := testServer(runner)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/research",
		strings.NewReader(`{"question": "q"}`))
	srv.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleProviders(t *testing.T) {
	srv := testServer(&fakeRunner{run: &fakeRun{}})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/providers", nil)
	srv.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Default   string `json:"default"`
		Providers []struct {
			Name       string `json:"name"`
			Configured bool   `json:"configured"`
			Models     []struct {
				Name string `json:"name"`
			} `json:"models"`
		} `json:"providers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "gemini", resp.Default)
	require.Len(t, resp.Providers, 3)

	for _, p := range resp.Providers {
		if p.Name == "gemini" {
			assert.True(t, p.Configured)
		} else {
			assert.False(t, p.Configured)
		}
		assert.NotEmpty(t, p.Models)
	}
}

func TestHandleHealth(t *testing.T) {
	srv := testServer(&fakeRunner{run: &fakeRun{}})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	srv.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

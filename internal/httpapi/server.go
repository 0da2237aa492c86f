// Package httpapi exposes the run driver: a small HTTP surface that starts
// research runs on Temporal and waits for their results.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/prosearch-ai/prosearch/internal/activities"
	"github.com/prosearch-ai/prosearch/internal/citations"
	"github.com/prosearch-ai/prosearch/internal/config"
	"github.com/prosearch-ai/prosearch/internal/llm"
	"github.com/prosearch-ai/prosearch/internal/metrics"
	"github.com/prosearch-ai/prosearch/internal/workflows"
)

// workflowRunner is the slice of the Temporal client the server needs.
type workflowRunner interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// Server handles research run requests.
type Server struct {
	temporal workflowRunner
	cfg      *config.Config
	logger   *zap.Logger
}

// NewServer builds the run driver on top of a Temporal client.
func NewServer(temporalClient workflowRunner, cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{temporal: temporalClient, cfg: cfg, logger: logger}
}

// Routes returns the HTTP handler for the run API.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/research", s.handleResearch)
	mux.HandleFunc("/api/providers", s.handleProviders)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// ResearchRequest starts a run. Zero-valued knobs fall back to configuration
// defaults; MaxResearchLoops uses a pointer so an explicit 0 survives.
type ResearchRequest struct {
	Question          string `json:"question"`
	InitialQueryCount int    `json:"initial_query_count,omitempty"`
	MaxResearchLoops  *int   `json:"max_research_loops,omitempty"`
	Provider          string `json:"provider,omitempty"`
	ReasoningModel    string `json:"reasoning_model,omitempty"`
}

// ResearchResponse is the completed run.
type ResearchResponse struct {
	RunID     string             `json:"run_id"`
	FinalText string             `json:"final_text"`
	Sources   []citations.Source `json:"sources"`
	Waves     int                `json:"waves"`
	Queries   []string           `json:"queries"`
}

func (s *Server) handleResearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req ResearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	if req.Provider != "" && !s.providerConfigured(req.Provider) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("provider %q is not configured", req.Provider))
		return
	}

	input := s.resolveInput(req)
	workflowID := "research-" + uuid.NewString()

	start := time.Now()
	metrics.RunsStarted.Inc()

	run, err := s.temporal.ExecuteWorkflow(r.Context(), client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: s.cfg.Temporal.TaskQueue,
	}, workflows.ResearchWorkflow, input)
	if err != nil {
		metrics.RunsCompleted.WithLabelValues("error").Inc()
		s.logger.Error("Failed to start research run", zap.String("workflow_id", workflowID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to start research run")
		return
	}

	s.logger.Info("Research run started",
		zap.String("workflow_id", workflowID),
		zap.String("question", req.Question),
	)

	var out workflows.ResearchOutput
	if err := run.Get(r.Context(), &out); err != nil {
		status, code := http.StatusBadGateway, "error"
		var appErr *temporal.ApplicationError
		if errors.As(err, &appErr) && appErr.Type() == activities.ErrTypeConfiguration {
			status, code = http.StatusBadRequest, "config_error"
		}
		metrics.RunsCompleted.WithLabelValues(code).Inc()
		s.logger.Error("Research run failed", zap.String("workflow_id", workflowID), zap.Error(err))
		writeError(w, status, fmt.Sprintf("research run failed: %v", err))
		return
	}

	metrics.RunsCompleted.WithLabelValues("ok").Inc()
	metrics.RunDuration.Observe(time.Since(start).Seconds())
	metrics.RunWaves.Observe(float64(out.Waves))

	writeJSON(w, http.StatusOK, ResearchResponse{
		RunID:     workflowID,
		FinalText: out.FinalText,
		Sources:   out.Sources,
		Waves:     out.Waves,
		Queries:   out.Queries,
	})
}

// resolveInput fills unset request knobs from configuration so the workflow
// input is fully concrete.
func (s *Server) resolveInput(req ResearchRequest) workflows.ResearchInput {
	input := workflows.ResearchInput{
		Question:          req.Question,
		InitialQueryCount: req.InitialQueryCount,
		LoopBudget:        s.cfg.Research.MaxResearchLoops,
		Provider:          req.Provider,
		Model:             req.ReasoningModel,
	}
	if input.InitialQueryCount < 1 {
		input.InitialQueryCount = s.cfg.Research.InitialQueryCount
	}
	if req.MaxResearchLoops != nil && *req.MaxResearchLoops >= 0 {
		input.LoopBudget = *req.MaxResearchLoops
	}
	return input
}

func (s *Server) providerConfigured(provider string) bool {
	for _, info := range llm.Catalog(s.cfg) {
		if info.Name == provider {
			return info.Configured
		}
	}
	return false
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"default":   s.cfg.Provider,
		"providers": llm.Catalog(s.cfg),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

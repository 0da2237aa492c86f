// Package workflows contains the research loop workflow: query generation,
// concurrent research waves, sufficiency reflection, and cited finalization.
package workflows

import (
	"errors"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/prosearch-ai/prosearch/internal/activities"
	"github.com/prosearch-ai/prosearch/internal/citations"
)

// ResearchInput starts one research run. All fields are concrete: the driver
// resolves configuration defaults before starting the workflow, so replays
// never depend on worker-side configuration.
type ResearchInput struct {
	Question          string `json:"question"`
	InitialQueryCount int    `json:"initial_query_count"`
	LoopBudget        int    `json:"loop_budget"`
	Provider          string `json:"provider,omitempty"`
	Model             string `json:"model,omitempty"`
}

// ResearchOutput is the run's result.
type ResearchOutput struct {
	FinalText string             `json:"final_text"`
	Sources   []citations.Source `json:"sources"`
	Waves     int                `json:"waves"`
	Queries   []string           `json:"queries"`
}

// waveResult is one research task's outcome, collected in completion order.
type waveResult struct {
	QueryID int
	Query   string
	Output  activities.WebResearchOutput
	Err     error
}

// ResearchWorkflow drives the iterative research loop. Each wave fans out
// one WebResearch activity per query; reflection then either ends the loop
// or supplies follow-up queries for the next wave. A failed task contributes
// nothing to the evidence pool but does not fail the run; configuration
// errors fail it immediately.
func ResearchWorkflow(ctx workflow.Context, input ResearchInput) (*ResearchOutput, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Research run started",
		"question", input.Question,
		"initial_query_count", input.InitialQueryCount,
		"loop_budget", input.LoopBudget,
	)

	if input.Question == "" {
		return nil, temporal.NewNonRetryableApplicationError(
			"research question is empty", activities.ErrTypeConfiguration, nil)
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2.0,
			MaximumAttempts:        2,
			NonRetryableErrorTypes: []string{activities.ErrTypeConfiguration},
		},
	})

	var acts *activities.Activities

	var generated activities.GenerateQueriesOutput
	err := workflow.ExecuteActivity(ctx, acts.GenerateQueries, activities.GenerateQueriesInput{
		Question: input.Question,
		Count:    input.InitialQueryCount,
		Provider: input.Provider,
		Model:    input.Model,
	}).Get(ctx, &generated)
	if err != nil {
		return nil, err
	}

	var (
		summaries  []string
		sources    []citations.Source
		allQueries []string
	)
	queries := generated.Queries
	nextQueryID := 0
	loopCount := 0
	waves := 0

	for {
		waves++
		allQueries = append(allQueries, queries...)

		results := runWave(ctx, acts, queries, nextQueryID, input.Provider, input.Model)
		nextQueryID += len(queries)

		for _, r := range results {
			if r.Err != nil {
				if isConfigurationError(r.Err) {
					return nil, r.Err
				}
				logger.Warn("Research task failed, continuing without its contribution",
					"query_id", r.QueryID,
					"query", r.Query,
					"error", r.Err,
				)
				// A failed task still contributes an explicit empty entry
				// so the evidence pool tracks one entry per completed task.
				summaries = append(summaries, "")
				continue
			}
			summaries = append(summaries, r.Output.Summary)
			sources = append(sources, r.Output.Sources...)
		}

		loopCount++

		var verdict activities.ReflectOutput
		err := workflow.ExecuteActivity(ctx, acts.Reflect, activities.ReflectInput{
			Question:  input.Question,
			Summaries: summaries,
			Provider:  input.Provider,
			Model:     input.Model,
		}).Get(ctx, &verdict)
		if err != nil {
			// Reflection is a single unparallelized step; its failure fails
			// the run, unlike per-task failures inside a wave.
			return nil, err
		}

		if verdict.IsSufficient || loopCount >= input.LoopBudget {
			logger.Info("Research loop finished",
				"waves", waves,
				"sufficient", verdict.IsSufficient,
				"loop_count", loopCount,
			)
			break
		}

		logger.Info("Evidence insufficient, starting follow-up wave",
			"knowledge_gap", verdict.KnowledgeGap,
			"follow_up_count", len(verdict.FollowUpQueries),
		)
		queries = verdict.FollowUpQueries
	}

	var final activities.FinalizeOutput
	err = workflow.ExecuteActivity(ctx, acts.FinalizeAnswer, activities.FinalizeInput{
		Question:  input.Question,
		Summaries: summaries,
		Sources:   sources,
		Provider:  input.Provider,
		Model:     input.Model,
	}).Get(ctx, &final)
	if err != nil {
		return nil, err
	}

	return &ResearchOutput{
		FinalText: final.FinalText,
		Sources:   final.Sources,
		Waves:     waves,
		Queries:   allQueries,
	}, nil
}

// runWave fans out one WebResearch activity per query and collects results in
// completion order. Query ids continue from firstID so short-form citation
// labels stay unique across waves.
func runWave(ctx workflow.Context, acts *activities.Activities, queries []string, firstID int, provider, model string) []waveResult {
	resultsCh := workflow.NewChannel(ctx)

	for i, query := range queries {
		i, query := i, query
		workflow.Go(ctx, func(gctx workflow.Context) {
			var out activities.WebResearchOutput
			err := workflow.ExecuteActivity(gctx, acts.WebResearch, activities.WebResearchInput{
				Query:    query,
				QueryID:  firstID + i,
				Provider: provider,
				Model:    model,
			}).Get(gctx, &out)
			resultsCh.Send(gctx, waveResult{QueryID: firstID + i, Query: query, Output: out, Err: err})
		})
	}

	results := make([]waveResult, 0, len(queries))
	for range queries {
		var r waveResult
		resultsCh.Receive(ctx, &r)
		results = append(results, r)
	}
	return results
}

func isConfigurationError(err error) bool {
	var appErr *temporal.ApplicationError
	return errors.As(err, &appErr) && appErr.Type() == activities.ErrTypeConfiguration
}

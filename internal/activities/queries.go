package activities

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// GenerateQueries asks the reasoning model for search queries covering the
// question. The model may return fewer than Count; blank entries are dropped
// and the question itself backstops an empty result.
func (a *Activities) GenerateQueries(ctx context.Context, input GenerateQueriesInput) (GenerateQueriesOutput, error) {
	clients, err := a.clientsFor(input.Provider, input.Model)
	if err != nil {
		return GenerateQueriesOutput{}, err
	}

	count := input.Count
	if count < 1 {
		count = a.cfg.Research.InitialQueryCount
	}

	var parsed struct {
		Rationale string   `json:"rationale"`
		Queries   []string `json:"queries"`
	}
	if err := clients.Structured.GenerateJSON(ctx, queryWriterPrompt(input.Question, count), &parsed); err != nil {
		return GenerateQueriesOutput{}, fmt.Errorf("generate queries: %w", err)
	}

	queries := make([]string, 0, len(parsed.Queries))
	for _, q := range parsed.Queries {
		if q = strings.TrimSpace(q); q != "" {
			queries = append(queries, q)
		}
	}
	if len(queries) > count {
		queries = queries[:count]
	}
	if len(queries) == 0 {
		a.logger.Warn("Query generation returned nothing, falling back to the question itself",
			zap.String("question", input.Question))
		queries = []string{input.Question}
	}

	return GenerateQueriesOutput{Queries: queries, Rationale: parsed.Rationale}, nil
}

package activities

import (
	"context"
	"fmt"
	"strings"
)

// Reflect evaluates whether the gathered summaries answer the question. A
// verdict of insufficient must carry follow-up queries, otherwise the loop
// would spin without new work; such a verdict is coerced to sufficient.
func (a *Activities) Reflect(ctx context.Context, input ReflectInput) (ReflectOutput, error) {
	clients, err := a.clientsFor(input.Provider, input.Model)
	if err != nil {
		return ReflectOutput{}, err
	}

	if !hasEvidence(input.Summaries) {
		return ReflectOutput{
			IsSufficient:    false,
			KnowledgeGap:    "no research results were gathered",
			FollowUpQueries: []string{input.Question},
		}, nil
	}

	var parsed struct {
		IsSufficient    bool     `json:"is_sufficient"`
		KnowledgeGap    string   `json:"knowledge_gap"`
		FollowUpQueries []string `json:"follow_up_queries"`
	}
	if err := clients.Structured.GenerateJSON(ctx, reflectionPrompt(input.Question, input.Summaries), &parsed); err != nil {
		return ReflectOutput{}, fmt.Errorf("reflect: %w", err)
	}

	followUps := make([]string, 0, len(parsed.FollowUpQueries))
	for _, q := range parsed.FollowUpQueries {
		if q = strings.TrimSpace(q); q != "" {
			followUps = append(followUps, q)
		}
	}

	out := ReflectOutput{
		IsSufficient:    parsed.IsSufficient,
		KnowledgeGap:    parsed.KnowledgeGap,
		FollowUpQueries: followUps,
	}
	if !out.IsSufficient && len(out.FollowUpQueries) == 0 {
		out.IsSufficient = true
	}
	return out, nil
}

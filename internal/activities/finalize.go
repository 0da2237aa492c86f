package activities

import (
	"context"
	"fmt"
	"strings"

	"github.com/prosearch-ai/prosearch/internal/citations"
)

// FinalizeAnswer composes the cited answer from the evidence pool, then
// rewrites short-form citation labels to the real URLs and deduplicates the
// source list against the final text.
func (a *Activities) FinalizeAnswer(ctx context.Context, input FinalizeInput) (FinalizeOutput, error) {
	clients, err := a.clientsFor(input.Provider, input.Model)
	if err != nil {
		return FinalizeOutput{}, err
	}

	text, err := clients.Text.GenerateText(ctx, answerPrompt(input.Question, input.Summaries))
	if err != nil {
		return FinalizeOutput{}, fmt.Errorf("finalize answer: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return FinalizeOutput{}, fmt.Errorf("finalize answer: model returned empty text")
	}

	finalText, deduped := citations.DedupSources(text, input.Sources)
	return FinalizeOutput{FinalText: finalText, Sources: deduped}, nil
}

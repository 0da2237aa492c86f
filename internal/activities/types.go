package activities

import "github.com/prosearch-ai/prosearch/internal/citations"

// GenerateQueriesInput asks for search queries covering a question.
type GenerateQueriesInput struct {
	Question string `json:"question"`
	Count    int    `json:"count"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

// GenerateQueriesOutput carries the generated queries and the model's
// stated rationale.
type GenerateQueriesOutput struct {
	Queries   []string `json:"queries"`
	Rationale string   `json:"rationale,omitempty"`
}

// WebResearchInput is one research task: a single query plus the run-unique
// numeric id used to mint short-form citation labels.
type WebResearchInput struct {
	Query    string `json:"query"`
	QueryID  int    `json:"query_id"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

// WebResearchOutput is one task's contribution to the evidence pool.
type WebResearchOutput struct {
	Summary  string             `json:"summary"`
	Sources  []citations.Source `json:"sources"`
	Strategy string             `json:"strategy"`
}

// ReflectInput carries the evidence gathered so far.
type ReflectInput struct {
	Question  string   `json:"question"`
	Summaries []string `json:"summaries"`
	Provider  string   `json:"provider,omitempty"`
	Model     string   `json:"model,omitempty"`
}

// ReflectOutput is the sufficiency verdict plus follow-up queries for the
// next wave when the evidence falls short.
type ReflectOutput struct {
	IsSufficient    bool     `json:"is_sufficient"`
	KnowledgeGap    string   `json:"knowledge_gap,omitempty"`
	FollowUpQueries []string `json:"follow_up_queries,omitempty"`
}

// FinalizeInput carries everything needed to compose the cited answer.
type FinalizeInput struct {
	Question  string             `json:"question"`
	Summaries []string           `json:"summaries"`
	Sources   []citations.Source `json:"sources"`
	Provider  string             `json:"provider,omitempty"`
	Model     string             `json:"model,omitempty"`
}

// FinalizeOutput is the run's final product: the answer text with citation
// markers rewritten to real URLs, plus the deduplicated sources it cites.
type FinalizeOutput struct {
	FinalText string             `json:"final_text"`
	Sources   []citations.Source `json:"sources"`
}

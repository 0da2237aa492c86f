package activities

import (
	"fmt"
	"strings"
	"time"
)

// currentDate anchors every prompt in time so models prefer recent
// information and date arithmetic in answers is correct.
func currentDate() string {
	return time.Now().Format("January 2, 2006")
}

func queryWriterPrompt(question string, count int) string {
	return fmt.Sprintf(`Your goal is to generate sophisticated and diverse web search queries for a research assistant.

Instructions:
- Prefer fewer queries; only add another query when the question has clearly distinct aspects that one query cannot cover.
- Generate at most %d queries.
- Each query should focus on one specific aspect of the question.
- Queries should be diverse; do not generate near-duplicates.
- Ensure queries gather the most current information. The current date is %s.

Respond with a JSON object with exactly these keys:
- "rationale": brief explanation of why these queries are relevant
- "queries": a list of search query strings

Question: %s`, count, currentDate(), question)
}

func groundedSearchPrompt(query string) string {
	return fmt.Sprintf(`Conduct a targeted web search to gather the most recent, credible information on "%s" and synthesize it into a verifiable text artifact.

Instructions:
- The current date is %s.
- Search for the most recent information available.
- Consolidate key findings while tracking the source of each specific piece of information.
- The output should be a well-written summary based only on information found in the search results.
- Do not include any information that is not supported by the search results.`, query, currentDate())
}

func synthesisPrompt(query string, documents []fetchedDocument) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `Summarize the following web pages to answer the search query "%s".

Instructions:
- The current date is %s.
- Base the summary only on the page contents below.
- Keep specific facts, figures and dates; drop navigation text and boilerplate.
- Write a few dense paragraphs, not a bullet list.

`, query, currentDate())
	for i, doc := range documents {
		fmt.Fprintf(&sb, "--- Page %d: %s (%s) ---\n%s\n\n", i+1, doc.Title, doc.URL, doc.Content)
	}
	return sb.String()
}

func reflectionPrompt(question string, summaries []string) string {
	return fmt.Sprintf(`You are an expert research assistant analyzing summaries gathered about "%s".

Instructions:
- Identify knowledge gaps or areas that need deeper exploration.
- If the summaries are sufficient to answer the question, no follow-up is needed.
- If there is a gap, generate follow-up queries that would close it. Follow-up queries must be self-contained and include the context needed for a web search.

Respond with a JSON object with exactly these keys:
- "is_sufficient": true or false
- "knowledge_gap": what is missing (empty string if sufficient)
- "follow_up_queries": list of search query strings (empty list if sufficient)

The current date is %s.

Summaries:
%s`, question, currentDate(), joinEvidence(summaries))
}

func answerPrompt(question string, summaries []string) string {
	return fmt.Sprintf(`Generate a high-quality answer to the user's question based on the provided research summaries.

Instructions:
- The current date is %s.
- You are the final step of a multi-step research process; do not mention that you are the final step.
- Base the answer only on the summaries below.
- Carry the markdown citation links from the summaries into the answer, attached to the facts they support.

Question: %s

Summaries:
%s`, currentDate(), question, joinEvidence(summaries))
}

// joinEvidence renders the evidence pool for a prompt, skipping the empty
// entries contributed by failed research tasks.
func joinEvidence(summaries []string) string {
	parts := make([]string, 0, len(summaries))
	for _, s := range summaries {
		if strings.TrimSpace(s) != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// hasEvidence reports whether any entry in the pool carries content.
func hasEvidence(summaries []string) bool {
	for _, s := range summaries {
		if strings.TrimSpace(s) != "" {
			return true
		}
	}
	return false
}

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/prosearch-ai/prosearch/internal/circuitbreaker"
	"github.com/prosearch-ai/prosearch/internal/citations"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// geminiClient speaks the generateContent protocol. It is the only adapter
// implementing GroundedSearcher: Gemini's google_search tool returns citation
// metadata (source chunks plus supported text segments) with the answer.
type geminiClient struct {
	coreClient
	baseURL string
	apiKey  string
	model   string
	breaker *circuitbreaker.CircuitBreaker
}

func newGeminiClient(core coreClient, apiKey, model string) *geminiClient {
	return &geminiClient{
		coreClient: core,
		baseURL:    geminiBaseURL,
		apiKey:     apiKey,
		model:      model,
		breaker:    circuitbreaker.New("gemini", circuitbreaker.DefaultConfig(), core.logger),
	}
}

// withModel copies the client, retargeted to model. The breaker is shared.
func (c *geminiClient) withModel(model string) *geminiClient {
	copied := *c
	copied.model = model
	return &copied
}

type geminiRequest struct {
	Contents         []geminiContent  `json:"contents"`
	Tools            []geminiTool     `json:"tools,omitempty"`
	GenerationConfig *geminiGenConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiTool struct {
	GoogleSearch *struct{} `json:"google_search,omitempty"`
}

type geminiGenConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		GroundingMetadata *geminiGroundingMetadata `json:"groundingMetadata,omitempty"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type geminiGroundingMetadata struct {
	GroundingChunks []struct {
		Web struct {
			URI   string `json:"uri"`
			Title string `json:"title"`
		} `json:"web"`
	} `json:"groundingChunks"`
	GroundingSupports []struct {
		Segment struct {
			StartIndex int `json:"startIndex"`
			EndIndex   int `json:"endIndex"`
		} `json:"segment"`
		GroundingChunkIndices []int `json:"groundingChunkIndices"`
	} `json:"groundingSupports"`
}

func (c *geminiClient) GenerateJSON(ctx context.Context, prompt string, out interface{}) error {
	req := geminiRequest{
		Contents:         []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: &geminiGenConfig{Temperature: 0.2, ResponseMimeType: "application/json"},
	}
	resp, err := c.generate(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(cleanJSONBlock(candidateText(resp))), out); err != nil {
		return &GenerationError{Provider: "gemini", Err: fmt.Errorf("parse model JSON: %w", err)}
	}
	return nil
}

func (c *geminiClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	req := geminiRequest{
		Contents:         []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: &geminiGenConfig{Temperature: 0.7},
	}
	resp, err := c.generate(ctx, req)
	if err != nil {
		return "", err
	}
	return candidateText(resp), nil
}

func (c *geminiClient) GroundedSearch(ctx context.Context, query string) (*GroundedResult, error) {
	req := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: query}}}},
		Tools:    []geminiTool{{GoogleSearch: &struct{}{}}},
	}
	resp, err := c.generate(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &GroundedResult{Text: candidateText(resp)}
	if len(resp.Candidates) == 0 || resp.Candidates[0].GroundingMetadata == nil {
		return result, nil
	}

	md := resp.Candidates[0].GroundingMetadata
	for _, chunk := range md.GroundingChunks {
		result.References = append(result.References, citations.GroundingRef{
			Title:  chunk.Web.Title,
			Target: chunk.Web.URI,
		})
	}
	for _, sup := range md.GroundingSupports {
		result.Supports = append(result.Supports, GroundingSupport{
			StartIndex:   sup.Segment.StartIndex,
			EndIndex:     sup.Segment.EndIndex,
			ChunkIndices: sup.GroundingChunkIndices,
		})
	}
	return result, nil
}

func (c *geminiClient) generate(ctx context.Context, req geminiRequest) (*geminiResponse, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)

	var parsed geminiResponse
	err := c.callWithRetry(ctx, "gemini", c.breaker, func(ctx context.Context) error {
		body, err := json.Marshal(req)
		if err != nil {
			return err
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return &httpStatusError{status: resp.StatusCode, body: string(raw)}
		}

		parsed = geminiResponse{}
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		if parsed.Error != nil {
			return fmt.Errorf("api error: %s", parsed.Error.Message)
		}
		if len(parsed.Candidates) == 0 {
			return fmt.Errorf("response contained no candidates")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func candidateText(resp *geminiResponse) string {
	if len(resp.Candidates) == 0 {
		return ""
	}
	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		text += part.Text
	}
	return text
}

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/prosearch-ai/prosearch/internal/circuitbreaker"
)

// openAIClient speaks the OpenAI chat-completions protocol. It also serves
// OpenAI-compatible endpoints via a configurable base URL.
type openAIClient struct {
	coreClient
	baseURL string
	apiKey  string
	model   string
	breaker *circuitbreaker.CircuitBreaker
}

func newOpenAIClient(core coreClient, baseURL, apiKey, model string) *openAIClient {
	return &openAIClient{
		coreClient: core,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		breaker:    circuitbreaker.New("openai", circuitbreaker.DefaultConfig(), core.logger),
	}
}

// withModel copies the client, retargeted to model. The breaker is shared.
func (c *openAIClient) withModel(model string) *openAIClient {
	copied := *c
	copied.model = model
	return &copied
}

type openAIRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *openAIFormat   `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIFormat struct {
	Type string `json:"type"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *openAIClient) GenerateJSON(ctx context.Context, prompt string, out interface{}) error {
	req := openAIRequest{
		Model:          c.model,
		Messages:       []openAIMessage{{Role: "user", Content: prompt}},
		Temperature:    0.2,
		ResponseFormat: &openAIFormat{Type: "json_object"},
	}
	text, err := c.complete(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(cleanJSONBlock(text)), out); err != nil {
		return &GenerationError{Provider: "openai", Err: fmt.Errorf("parse model JSON: %w", err)}
	}
	return nil
}

func (c *openAIClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	req := openAIRequest{
		Model:       c.model,
		Messages:    []openAIMessage{{Role: "user", Content: prompt}},
		Temperature: 0.7,
	}
	return c.complete(ctx, req)
}

func (c *openAIClient) complete(ctx context.Context, req openAIRequest) (string, error) {
	var text string
	err := c.callWithRetry(ctx, "openai", c.breaker, func(ctx context.Context) error {
		body, err := json.Marshal(req)
		if err != nil {
			return err
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

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

		var parsed openAIResponse
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		if parsed.Error != nil {
			return fmt.Errorf("api error: %s", parsed.Error.Message)
		}
		if len(parsed.Choices) == 0 {
			return fmt.Errorf("response contained no choices")
		}
		text = parsed.Choices[0].Message.Content
		return nil
	})
	return text, err
}

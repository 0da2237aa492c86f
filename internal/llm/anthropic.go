package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/prosearch-ai/prosearch/internal/circuitbreaker"
)

const (
	anthropicEndpoint = "https://api.anthropic.com/v1/messages"
	anthropicVersion  = "2023-06-01"
	anthropicMaxTok   = 4096
)

type anthropicClient struct {
	coreClient
	apiKey  string
	model   string
	breaker *circuitbreaker.CircuitBreaker
}

func newAnthropicClient(core coreClient, apiKey, model string) *anthropicClient {
	return &anthropicClient{
		coreClient: core,
		apiKey:     apiKey,
		model:      model,
		breaker:    circuitbreaker.New("anthropic", circuitbreaker.DefaultConfig(), core.logger),
	}
}

// withModel copies the client, retargeted to model. The breaker is shared.
func (c *anthropicClient) withModel(model string) *anthropicClient {
	copied := *c
	copied.model = model
	return &copied
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *anthropicClient) GenerateJSON(ctx context.Context, prompt string, out interface{}) error {
	// Anthropic has no JSON response mode; the prompt carries the schema and
	// the fence stripper handles wrapped output.
	text, err := c.complete(ctx, prompt+"\n\nRespond with a single JSON object and nothing else.")
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(cleanJSONBlock(text)), out); err != nil {
		return &GenerationError{Provider: "anthropic", Err: fmt.Errorf("parse model JSON: %w", err)}
	}
	return nil
}

func (c *anthropicClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, prompt)
}

func (c *anthropicClient) complete(ctx context.Context, prompt string) (string, error) {
	req := anthropicRequest{
		Model:     c.model,
		MaxTokens: anthropicMaxTok,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
	}

	var text string
	err := c.callWithRetry(ctx, "anthropic", c.breaker, func(ctx context.Context) error {
		body, err := json.Marshal(req)
		if err != nil {
			return err
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicEndpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-api-key", c.apiKey)
		httpReq.Header.Set("anthropic-version", anthropicVersion)

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

		var parsed anthropicResponse
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		if parsed.Error != nil {
			return fmt.Errorf("api error: %s", parsed.Error.Message)
		}
		for _, block := range parsed.Content {
			if block.Type == "text" {
				text = block.Text
				return nil
			}
		}
		return fmt.Errorf("response contained no text block")
	})
	return text, err
}

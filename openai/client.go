// Package openai is a minimal client for the chat-completions API,
// covering the two call shapes the enrichment worker needs: a
// structured-output categorization call and a free-text completion
// with adjustable creativity and length.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/nwilson314/stash/models"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel handles categorization and on-demand summaries.
	DefaultModel = "gpt-4o-2024-11-20"
	// DefaultMiniModel handles the weekly digest, where cost matters
	// more than polish.
	DefaultMiniModel = "gpt-4o-mini"
)

// Client calls the chat-completions API.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient creates a new Client instance. model is the default for
// calls that don't override it.
func NewClient(baseURL, apiKey, model string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout:   60 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *jsonSchema `json:"json_schema,omitempty"`
}

type jsonSchema struct {
	Name   string          `json:"name"`
	Strict bool            `json:"strict"`
	Schema json.RawMessage `json:"schema"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// categorySuggestionSchema forces the categorization response into
// exactly {category, short_summary}.
var categorySuggestionSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"category": {"type": "string"},
		"short_summary": {"type": "string"}
	},
	"required": ["category", "short_summary"],
	"additionalProperties": false
}`)

// SuggestCategory runs the structured categorization call and parses
// the result into a CategorySuggestion.
func (c *Client) SuggestCategory(ctx context.Context, system, prompt string) (*models.CategorySuggestion, error) {
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		ResponseFormat: &responseFormat{
			Type: "json_schema",
			JSONSchema: &jsonSchema{
				Name:   "category_suggestion",
				Strict: true,
				Schema: categorySuggestionSchema,
			},
		},
	}

	content, err := c.complete(ctx, req)
	if err != nil {
		return nil, err
	}

	var suggestion models.CategorySuggestion
	if err := json.Unmarshal([]byte(content), &suggestion); err != nil {
		return nil, fmt.Errorf("failed to parse structured response: %w", err)
	}
	if suggestion.Category == "" {
		return nil, fmt.Errorf("model returned empty category")
	}

	return &suggestion, nil
}

// Complete runs a free-text completion. model may be empty to use the
// client default; temperature and maxTokens bound creativity and
// output length.
func (c *Client) Complete(ctx context.Context, model, system, prompt string, temperature float64, maxTokens int) (string, error) {
	if model == "" {
		model = c.model
	}

	req := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Temperature: &temperature,
		MaxTokens:   maxTokens,
	}

	return c.complete(ctx, req)
}

// complete posts a chat request and returns the first choice's content.
func (c *Client) complete(ctx context.Context, req chatRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to call model API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var chat chatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if chat.Error != nil {
		return "", fmt.Errorf("model API error: %s", chat.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("model API returned HTTP %d", resp.StatusCode)
	}
	if len(chat.Choices) == 0 {
		return "", fmt.Errorf("model API returned no choices")
	}

	return chat.Choices[0].Message.Content, nil
}

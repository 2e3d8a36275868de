// Package ai talks to an OpenAI-compatible chat completions endpoint to turn
// a report prompt into text.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"poupa/internal/core"
	"poupa/internal/ports"

	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "llama-3.3-70b-versatile"
)

type Client struct {
	api     *openai.Client
	baseURL string
	model   string
	timeout time.Duration
}

var _ ports.TextGenerator = (*Client)(nil)

func NewClient(baseURL, apiKey, model string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	baseURL = strings.TrimRight(baseURL, "/")

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	return &Client{
		api:     openai.NewClientWithConfig(cfg),
		baseURL: baseURL,
		model:   model,
		timeout: timeout,
	}
}

// Generate sends one system and one user message and returns the first
// choice. Every failure wraps core.ErrGenerationFailed.
func (c *Client) Generate(ctx context.Context, system, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0.2,
	}
	if system != "" {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	req.Messages = append(req.Messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		if status := statusOf(err); status != 0 {
			slog.WarnContext(ctx, "Text generation request rejected",
				"status", status,
				"error", err)
			return "", fmt.Errorf("%w: status %d", core.ErrGenerationFailed, status)
		}
		return "", fmt.Errorf("%w: %v", core.ErrGenerationFailed, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", core.ErrGenerationFailed)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%w: empty response", core.ErrGenerationFailed)
	}

	slog.DebugContext(ctx, "Text generated",
		"model", c.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"length", len(text))
	return text, nil
}

// statusOf extracts the HTTP status of a rejected request, or 0 when the
// request never got a response.
func statusOf(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

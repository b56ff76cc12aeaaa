package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/weliao/weliao/internal/config"
)

// UpstreamError represents a non-success response from the completion
// provider. It carries the HTTP status and raw response body so the failure
// is diagnosable from logs alone.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("completion API error %d: %s", e.StatusCode, e.Body)
}

// deepseekMessage represents a single message in the chat completion request.
type deepseekMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// deepseekChatRequest represents the request payload for the chat completions endpoint.
type deepseekChatRequest struct {
	Model       string            `json:"model"`
	Messages    []deepseekMessage `json:"messages"`
	MaxTokens   int               `json:"max_tokens"`
	Temperature float32           `json:"temperature"`
}

// deepseekChatResponse represents the response payload from the chat completions endpoint.
type deepseekChatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// deepseekClient implements Client over the OpenAI-compatible DeepSeek REST API.
type deepseekClient struct {
	httpClient  *http.Client
	log         *slog.Logger
	baseURL     string
	apiKey      string
	model       string
	maxTokens   int
	temperature float32
}

// newDeepSeekClient creates a new DeepSeek client using direct HTTP calls.
func newDeepSeekClient(cfg config.DeepSeekConfig, log *slog.Logger) (*deepseekClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("deepseek API key is required")
	}

	return &deepseekClient{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		log:         log.With("component", "deepseek_client"),
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

// Complete sends a system turn plus an optional user turn and returns the
// first completion's text content, or "" when the provider returns no content.
func (c *deepseekClient) Complete(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	if systemPrompt == "" {
		return "", errors.New("system prompt cannot be empty")
	}

	messages := []deepseekMessage{{Role: "system", Content: systemPrompt}}
	if userMessage != "" {
		messages = append(messages, deepseekMessage{Role: "user", Content: userMessage})
	}

	reqBody := deepseekChatRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &UpstreamError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var parsed deepseekChatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(parsed.Choices) == 0 {
		c.log.WarnContext(ctx, "Completion response contained no choices")
		return "", nil
	}
	return parsed.Choices[0].Message.Content, nil
}

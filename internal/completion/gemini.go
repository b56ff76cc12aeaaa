package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/weliao/weliao/internal/config"
)

// geminiClient implements Client using Google's Gemini SDK.
type geminiClient struct {
	genaiClient *genai.Client
	log         *slog.Logger
	model       string
	temperature float32
}

// newGeminiClient creates a new Gemini-backed completion client.
func newGeminiClient(ctx context.Context, cfg config.GeminiConfig, log *slog.Logger) (*geminiClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &geminiClient{
		genaiClient: gi,
		log:         log.With("component", "gemini_client"),
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}, nil
}

// Complete maps the system/user turn pair onto the Gemini API. With no user
// turn, the system prompt is carried as the sole user content because the
// API rejects empty contents.
func (c *geminiClient) Complete(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	if systemPrompt == "" {
		return "", errors.New("system prompt cannot be empty")
	}

	temperature := c.temperature
	genCfg := &genai.GenerateContentConfig{
		Temperature: &temperature,
	}

	var contents []*genai.Content
	if userMessage != "" {
		genCfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}}
		contents = []*genai.Content{genai.NewContentFromText(userMessage, genai.RoleUser)}
	} else {
		contents = []*genai.Content{genai.NewContentFromText(systemPrompt, genai.RoleUser)}
	}

	resp, err := c.genaiClient.Models.GenerateContent(ctx, c.model, contents, genCfg)
	if err != nil {
		c.log.ErrorContext(ctx, "Gemini API call failed", "error", err)
		return "", fmt.Errorf("gemini API call failed: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		c.log.WarnContext(ctx, "Gemini response missing candidates or content")
		return "", nil
	}
	return resp.Text(), nil
}

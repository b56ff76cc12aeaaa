// Package completion provides interfaces and implementations for interacting
// with hosted chat-completion backends.
package completion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weliao/weliao/internal/config"
)

// Client defines the interface for a chat-completion backend. Complete sends
// a single request carrying a system turn with systemPrompt and, when
// userMessage is non-empty, a user turn, and returns the first completion's
// text content. Implementations do not retry; any retry policy belongs to
// callers, and the bot-reply pipeline deliberately has none.
type Client interface {
	Complete(ctx context.Context, systemPrompt, userMessage string) (string, error)
}

// NewClient creates and returns a Client based on the provided configuration.
// It acts as a factory, selecting either the DeepSeek or Gemini implementation.
func NewClient(ctx context.Context, cfg config.CompletionConfig, log *slog.Logger) (Client, error) {
	log.Info("Initializing completion client", "backend", cfg.Backend)

	switch cfg.Backend {
	case "deepseek":
		client, err := newDeepSeekClient(cfg.DeepSeek, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create DeepSeek client: %w", err)
		}
		return client, nil
	case "gemini":
		client, err := newGeminiClient(ctx, cfg.Gemini, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown completion backend specified: %s", cfg.Backend)
	}
}

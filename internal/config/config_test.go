package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/weliao/weliao/internal/config"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfigFile(t, `
auth:
  internal_api_key: test-secret
completion:
  deepseek:
    api_key: sk-test
`)

	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Completion.Backend != "deepseek" {
		t.Errorf("Completion.Backend = %q, want deepseek", cfg.Completion.Backend)
	}
	if cfg.Completion.DeepSeek.Model != "deepseek-chat" {
		t.Errorf("DeepSeek.Model = %q, want deepseek-chat", cfg.Completion.DeepSeek.Model)
	}
	if cfg.Completion.DeepSeek.MaxTokens != 800 {
		t.Errorf("DeepSeek.MaxTokens = %d, want 800", cfg.Completion.DeepSeek.MaxTokens)
	}
	if cfg.BotReply.HistoryLimit != 50 {
		t.Errorf("BotReply.HistoryLimit = %d, want 50", cfg.BotReply.HistoryLimit)
	}
	if cfg.BotReply.MaxChainDepth != 3 {
		t.Errorf("BotReply.MaxChainDepth = %d, want 3", cfg.BotReply.MaxChainDepth)
	}
	if cfg.Auth.SessionTTL != 720*time.Hour {
		t.Errorf("Auth.SessionTTL = %v, want 720h", cfg.Auth.SessionTTL)
	}
}

func TestLoadConfig_FileOverrides(t *testing.T) {
	path := writeConfigFile(t, `
server:
  addr: ":9090"
logger:
  level: debug
  json: false
completion:
  backend: deepseek
  deepseek:
    api_key: sk-test
    temperature: 1.2
bot_reply:
  history_limit: 20
  max_chain_depth: 5
auth:
  internal_api_key: test-secret
`)

	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("Server.Addr = %q, want :9090", cfg.Server.Addr)
	}
	if cfg.Logger.Level != "debug" {
		t.Errorf("Logger.Level = %q, want debug", cfg.Logger.Level)
	}
	if cfg.Completion.DeepSeek.Temperature != 1.2 {
		t.Errorf("DeepSeek.Temperature = %v, want 1.2", cfg.Completion.DeepSeek.Temperature)
	}
	if cfg.BotReply.HistoryLimit != 20 {
		t.Errorf("BotReply.HistoryLimit = %d, want 20", cfg.BotReply.HistoryLimit)
	}
	if cfg.BotReply.MaxChainDepth != 5 {
		t.Errorf("BotReply.MaxChainDepth = %d, want 5", cfg.BotReply.MaxChainDepth)
	}
}

func TestLoadConfig_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "Missing internal API key",
			content: `
completion:
  deepseek:
    api_key: sk-test
`,
		},
		{
			name: "Invalid backend",
			content: `
completion:
  backend: smoke-signals
auth:
  internal_api_key: test-secret
`,
		},
		{
			name: "Invalid log level",
			content: `
logger:
  level: loudest
auth:
  internal_api_key: test-secret
`,
		},
		{
			name: "History limit out of range",
			content: `
bot_reply:
  history_limit: 5000
auth:
  internal_api_key: test-secret
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, tt.content)
			if _, err := config.LoadConfig(path); err == nil {
				t.Error("LoadConfig() succeeded, want validation error")
			}
		})
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("WELIAO_AUTH_INTERNAL_API_KEY", "env-secret")

	cfg, err := config.LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Auth.InternalAPIKey != "env-secret" {
		t.Errorf("Auth.InternalAPIKey = %q, want env-secret", cfg.Auth.InternalAPIKey)
	}
}

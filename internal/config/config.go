// Package config provides configuration loading, validation, and management
// for the WeLiao server. It handles reading from YAML files, WELIAO_*
// environment variables, default values, and validation of the result.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config defines the application configuration parameters for all components
// of the WeLiao server: HTTP server, logging, database, completion backends,
// bot reply orchestration, scheduled tasks, and auth.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logger     LoggerConfig     `mapstructure:"logger"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Completion CompletionConfig `mapstructure:"completion"`
	BotReply   BotReplyConfig   `mapstructure:"bot_reply"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Auth       AuthConfig       `mapstructure:"auth"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"             validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"     validate:"min=1s"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"    validate:"min=1s"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=1s"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// CompletionConfig selects and configures the chat-completion backend.
type CompletionConfig struct {
	Backend  string         `mapstructure:"backend" validate:"oneof=deepseek gemini"`
	DeepSeek DeepSeekConfig `mapstructure:"deepseek"`
	Gemini   GeminiConfig   `mapstructure:"gemini"`
}

// DeepSeekConfig configures the OpenAI-compatible HTTP backend.
type DeepSeekConfig struct {
	BaseURL     string        `mapstructure:"base_url"    validate:"required,url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"       validate:"required"`
	MaxTokens   int           `mapstructure:"max_tokens"  validate:"min=1,max=8192"`
	Temperature float32       `mapstructure:"temperature" validate:"min=0,max=2"`
	Timeout     time.Duration `mapstructure:"timeout"     validate:"min=1s,max=10m"`
}

// GeminiConfig configures the Gemini SDK backend.
type GeminiConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Temperature float32 `mapstructure:"temperature" validate:"min=0,max=2"`
}

// BotReplyConfig controls the reply orchestration pipeline.
type BotReplyConfig struct {
	HistoryLimit  int           `mapstructure:"history_limit"   validate:"min=1,max=100"`
	MaxChainDepth int           `mapstructure:"max_chain_depth" validate:"min=0,max=10"`
	QueueSize     int           `mapstructure:"queue_size"      validate:"min=1"`
	RunTimeout    time.Duration `mapstructure:"run_timeout"     validate:"min=1s,max=10m"`
}

// SchedulerConfig holds scheduled task settings keyed by task name.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// TaskConfig enables a single scheduled task with a cron schedule.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// AuthConfig holds session and internal-API settings. InternalAPIKey is the
// shared secret expected in X-API-Key on the service-to-service trigger
// endpoint.
type AuthConfig struct {
	InternalAPIKey string        `mapstructure:"internal_api_key" validate:"required"`
	SessionTTL     time.Duration `mapstructure:"session_ttl"      validate:"min=1m"`
}

// LoadConfig loads and validates configuration from:
// 1. Default values
// 2. The YAML file at configPath (optional)
// 3. WELIAO_* environment variables
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("WELIAO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional; env and defaults may be enough.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !isNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func isNotExist(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.json", true)

	v.SetDefault("database.path", "weliao.db")

	v.SetDefault("completion.backend", "deepseek")
	v.SetDefault("completion.deepseek.api_key", "")
	v.SetDefault("completion.deepseek.base_url", "https://api.deepseek.com")
	v.SetDefault("completion.deepseek.model", "deepseek-chat")
	v.SetDefault("completion.deepseek.max_tokens", 800)
	v.SetDefault("completion.deepseek.temperature", 0.8)
	v.SetDefault("completion.deepseek.timeout", 2*time.Minute)
	v.SetDefault("completion.gemini.api_key", "")
	v.SetDefault("completion.gemini.model", "gemini-2.0-flash")
	v.SetDefault("completion.gemini.temperature", 0.8)

	v.SetDefault("bot_reply.history_limit", 50)
	v.SetDefault("bot_reply.max_chain_depth", 3)
	v.SetDefault("bot_reply.queue_size", 256)
	v.SetDefault("bot_reply.run_timeout", 3*time.Minute)

	v.SetDefault("scheduler.tasks", map[string]TaskConfig{})

	// Registered with an empty default so the WELIAO_AUTH_INTERNAL_API_KEY
	// env variable is picked up without a config file; validation still
	// rejects the empty value.
	v.SetDefault("auth.internal_api_key", "")
	v.SetDefault("auth.session_ttl", 720*time.Hour)
}

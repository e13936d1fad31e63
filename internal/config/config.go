package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	WeRead    WeReadConfig
	Assistant AssistantConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type WeReadConfig struct {
	BaseURL        string
	Timeout        time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryJitter    time.Duration
	// Cookie is the reader's session for the CLI and MCP server. HTTP
	// clients send their own with every request.
	Cookie string
}

type AssistantConfig struct {
	APIKey           string
	BaseURL          string
	Model            string
	MaxContextTokens int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 7001,
		},
		WeRead: WeReadConfig{
			BaseURL:        "https://weread.qq.com",
			Timeout:        30 * time.Second,
			RetryAttempts:  3,
			RetryBaseDelay: 5 * time.Second,
			RetryJitter:    3 * time.Second,
		},
		Assistant: AssistantConfig{
			BaseURL:          "https://api.moonshot.cn/v1",
			Model:            "moonshot-v1-8k",
			MaxContextTokens: 4000,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from, in increasing precedence: built-in
// defaults, the TOML file at path (DefaultPath when empty), a .env file in
// the working directory, and SHELFWISE_* environment variables.
//
// Secrets (server.api_token, weread.cookie, assistant.api_key) are never
// read from the TOML file; set them in the environment or in .env.
//
// A missing assistant API key is not an error: the assistant then answers
// from its built-in fallbacks.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	return loadFromPath(path, ".env")
}

func loadFromPath(path, envFile string) (Config, error) {
	cfg := defaults()

	b, err := newFileBackend(path)
	if err != nil {
		return Config{}, err
	}
	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	if envFile != "" {
		// Existing environment variables win over .env entries.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}
	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var problems []string
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.WeRead.RetryAttempts < 1 {
		problems = append(problems, "weread.retry_attempts must be at least 1")
	}
	if c.WeRead.Timeout <= 0 {
		problems = append(problems, "weread.timeout must be positive")
	}
	if c.WeRead.RetryBaseDelay < 0 || c.WeRead.RetryJitter < 0 {
		problems = append(problems, "weread retry delays must not be negative")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

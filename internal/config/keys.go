package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "SHELFWISE_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "SHELFWISE_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "weread.base_url", typ: kString, env: "SHELFWISE_WEREAD_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.WeRead.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.WeRead.BaseURL },
	},
	{
		key: "weread.timeout", typ: kDuration, env: "SHELFWISE_WEREAD_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.WeRead.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.WeRead.Timeout },
	},
	{
		key: "weread.retry_attempts", typ: kInt, env: "SHELFWISE_WEREAD_RETRY_ATTEMPTS",
		apply:   func(cfg *Config, v any) { cfg.WeRead.RetryAttempts = v.(int) },
		extract: func(cfg Config) any { return cfg.WeRead.RetryAttempts },
	},
	{
		key: "weread.retry_base_delay", typ: kDuration, env: "SHELFWISE_WEREAD_RETRY_BASE_DELAY",
		apply:   func(cfg *Config, v any) { cfg.WeRead.RetryBaseDelay = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.WeRead.RetryBaseDelay },
	},
	{
		key: "weread.retry_jitter", typ: kDuration, env: "SHELFWISE_WEREAD_RETRY_JITTER",
		apply:   func(cfg *Config, v any) { cfg.WeRead.RetryJitter = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.WeRead.RetryJitter },
	},
	{
		key: "weread.cookie", typ: kString, env: "SHELFWISE_WEREAD_COOKIE",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.WeRead.Cookie = v.(string) },
		extract: func(cfg Config) any { return cfg.WeRead.Cookie },
	},
	{
		key: "assistant.api_key", typ: kString, env: "SHELFWISE_ASSISTANT_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Assistant.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Assistant.APIKey },
	},
	{
		key: "assistant.base_url", typ: kString, env: "SHELFWISE_ASSISTANT_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Assistant.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Assistant.BaseURL },
	},
	{
		key: "assistant.model", typ: kString, env: "SHELFWISE_ASSISTANT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Assistant.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Assistant.Model },
	},
	{
		key: "assistant.max_context_tokens", typ: kInt, env: "SHELFWISE_ASSISTANT_MAX_CONTEXT_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.Assistant.MaxContextTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.Assistant.MaxContextTokens },
	},
	{
		key: "log.level", typ: kString, env: "SHELFWISE_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kDuration:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				d, err := time.ParseDuration(v)
				if err != nil {
					return fmt.Errorf("reading %s: %w", s.key, err)
				}
				s.apply(cfg, d)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kDuration:
			if d, err := time.ParseDuration(raw); err == nil {
				s.apply(cfg, d)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}

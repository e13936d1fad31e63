package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/kalambet/shelfwise/internal/assistant"
	"github.com/kalambet/shelfwise/internal/composer"
	"github.com/kalambet/shelfwise/internal/config"
	"github.com/kalambet/shelfwise/internal/library"
	"github.com/kalambet/shelfwise/internal/proxy"
	"github.com/kalambet/shelfwise/internal/retry"
	"github.com/kalambet/shelfwise/internal/session"
	"github.com/kalambet/shelfwise/internal/weread"
)

// app is the wired service graph shared by the server and CLI commands.
type app struct {
	cfg       config.Config
	library   *library.Engine
	composer  *composer.Composer
	llm       *proxy.Client
	assistant *assistant.Assistant
	session   session.Session
}

var errNoCookie = errors.New("no WeRead cookie configured; set SHELFWISE_WEREAD_COOKIE")

var newApp = func() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return buildApp(cfg), nil
}

func buildApp(cfg config.Config) *app {
	gw := weread.NewClient(weread.Options{
		BaseURL: cfg.WeRead.BaseURL,
		Timeout: cfg.WeRead.Timeout,
		Retry: retry.Policy{
			MaxAttempts: cfg.WeRead.RetryAttempts,
			BaseDelay:   cfg.WeRead.RetryBaseDelay,
			MaxJitter:   cfg.WeRead.RetryJitter,
		},
	})
	engine := library.NewEngine(gw)
	comp := composer.New(cfg.Assistant.MaxContextTokens)
	llm := proxy.NewClientWithBaseURL(cfg.Assistant.APIKey, cfg.Assistant.BaseURL)

	a := &app{
		cfg:       cfg,
		library:   engine,
		composer:  comp,
		llm:       llm,
		assistant: assistant.New(llm, comp, engine, cfg.Assistant.Model),
	}

	// An unparsable configured cookie is reported when a command needs it.
	if cfg.WeRead.Cookie != "" {
		if s, err := session.New(cfg.WeRead.Cookie); err == nil {
			a.session = s
		} else {
			slog.Warn("configured WeRead cookie is invalid", "error", err)
		}
	}
	return a
}

// requireSession returns the configured reader session.
func (a *app) requireSession() (session.Session, error) {
	if a.session.IsZero() {
		if a.cfg.WeRead.Cookie != "" {
			return session.Session{}, fmt.Errorf("configured WeRead cookie: %w", session.ErrInvalid)
		}
		return session.Session{}, errNoCookie
	}
	return a.session, nil
}

func logLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setupLogging(level string) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(level)})))
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/shelfwise/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the configured reader's library over MCP (stdio)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP(cmd.Context())
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the server is running and how it is configured",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd)
	},
}

func runServer(parent context.Context) error {
	fmt.Fprintf(os.Stderr, "shelfwise version %s\n", version)

	a, err := newApp()
	if err != nil {
		return err
	}
	setupLogging(a.cfg.Log.Level)
	if a.cfg.Server.APIToken == "" {
		slog.Warn("no API token configured, /api routes are unauthenticated")
	}
	if a.cfg.Assistant.APIKey == "" {
		slog.Warn("no assistant API key configured, answers use built-in fallbacks")
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler := api.NewHandler(api.Deps{
		Library:   a.library,
		Assistant: a.assistant,
		Composer:  a.composer,
		Token:     a.cfg.Server.APIToken,
	})

	addr := fmt.Sprintf(":%d", a.cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "shelfwise listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMCP(parent context.Context) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	// stdout carries the protocol, so logs stay on stderr.
	setupLogging(a.cfg.Log.Level)
	if a.session.IsZero() {
		slog.Warn("no usable WeRead cookie configured, library tools will fail")
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Library:   a.library,
		Assistant: a.assistant,
		Composer:  a.composer,
		Session:   a.session,
	}, version)

	slog.Info("MCP server started (stdio transport)")
	err = server.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}

func showStatus(cmd *cobra.Command) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/health", a.cfg.Server.Port))
	if err != nil {
		printStatus(w, "Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			printStatus(w, "Server", "running on port %d", a.cfg.Server.Port)
		} else {
			printStatus(w, "Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus(w, "WeRead", "%s", a.cfg.WeRead.BaseURL)
	switch {
	case !a.session.IsZero():
		printStatus(w, "Reader", "vid %s", a.session.VID())
	case a.cfg.WeRead.Cookie != "":
		printStatus(w, "Reader", "cookie invalid")
	default:
		printStatus(w, "Reader", "no cookie")
	}
	printStatus(w, "Model", "%s", a.cfg.Assistant.Model)
	if a.cfg.Assistant.APIKey == "" {
		printStatus(w, "Assistant", "fallback answers (no API key)")
	} else {
		printStatus(w, "Assistant", "%s", a.cfg.Assistant.BaseURL)
	}
	return nil
}

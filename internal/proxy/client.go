package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"github.com/kalambet/shelfwise/internal/retry"
)

const (
	DefaultBaseURL = "https://api.moonshot.cn/v1"
	DefaultModel   = "moonshot-v1-8k"

	unaryTimeout  = 60 * time.Second
	streamTimeout = 5 * time.Minute
	listTimeout   = 15 * time.Second

	rateLimitAttempts = 3
	rateLimitDelay    = 500 * time.Millisecond
	rateLimitJitter   = 250 * time.Millisecond

	maxErrorBody = 4096
)

// ErrNoAPIKey is returned before any network call when no key is configured.
var ErrNoAPIKey = errors.New("chat completion API key not configured")

// StatusError is a non-200 answer from the completion endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Code == http.StatusTooManyRequests {
		return fmt.Sprintf("rate limited (HTTP %d)", e.Code)
	}
	if e.Body == "" {
		return fmt.Sprintf("completion endpoint returned HTTP %d", e.Code)
	}
	return fmt.Sprintf("completion endpoint returned HTTP %d: %s", e.Code, e.Body)
}

// IsRateLimited reports whether err is an HTTP 429 from the endpoint.
func IsRateLimited(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusTooManyRequests
}

// Client talks to an OpenAI-compatible chat completion endpoint. Only rate
// limiting is retried; every other failure is returned at once so the caller
// can fall back.
type Client struct {
	apiKey  string
	baseURL string
	hc      *http.Client
	retry   retry.Policy
}

// NewClient creates a client for the default endpoint.
func NewClient(apiKey string) *Client {
	return NewClientWithBaseURL(apiKey, DefaultBaseURL)
}

// NewClientWithBaseURL creates a client for baseURL (DefaultBaseURL when empty).
func NewClientWithBaseURL(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		// Deadlines are per request so streamed bodies can outlive unaryTimeout.
		hc: &http.Client{},
		retry: retry.Policy{
			MaxAttempts: rateLimitAttempts,
			BaseDelay:   rateLimitDelay,
			MaxJitter:   rateLimitJitter,
			Retryable:   IsRateLimited,
		},
	}
}

// Chat posts req and hands back the open response body: SSE events when
// req.Stream is set, a single JSON object otherwise. The caller closes it.
func (c *Client) Chat(ctx context.Context, req openai.ChatCompletionRequest) (io.ReadCloser, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding completion request: %w", err)
	}

	timeout := unaryTimeout
	if req.Stream {
		timeout = streamTimeout
	}
	body, err := retry.Do(ctx, c.retry, func(ctx context.Context) (io.ReadCloser, error) {
		return c.send(ctx, http.MethodPost, "/chat/completions", payload, timeout)
	})
	if err != nil {
		if IsRateLimited(err) {
			return nil, fmt.Errorf("giving up after %d attempts: %w", c.retry.MaxAttempts, err)
		}
		return nil, err
	}
	return body, nil
}

// Complete sends a unary completion and returns the first choice's text.
func (c *Client) Complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	req.Stream = false
	body, err := c.Chat(ctx, req)
	if err != nil {
		return "", err
	}
	defer body.Close()

	var resp openai.ChatCompletionResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return "", fmt.Errorf("decoding completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("completion has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// ListModels returns the models served by the endpoint.
func (c *Client) ListModels(ctx context.Context) ([]openai.Model, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	body, err := c.send(ctx, http.MethodGet, "/models", nil, listTimeout)
	if err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}
	defer body.Close()

	var list openai.ModelsList
	if err := json.NewDecoder(body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decoding model list: %w", err)
	}
	if list.Models == nil {
		return []openai.Model{}, nil
	}
	return list.Models, nil
}

// send performs one request under its own deadline. On success the deadline
// stays armed until the returned body is closed.
func (c *Client) send(ctx context.Context, method, path string, payload []byte, timeout time.Duration) (io.ReadCloser, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)

	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		cancel()
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	return &deadlineBody{ReadCloser: resp.Body, release: cancel}, nil
}

// deadlineBody releases the request deadline when the body is closed.
type deadlineBody struct {
	io.ReadCloser
	release context.CancelFunc
}

func (b *deadlineBody) Close() error {
	defer b.release()
	return b.ReadCloser.Close()
}

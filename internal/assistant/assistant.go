package assistant

import (
	"context"
	"io"
	"log/slog"
	"strings"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"github.com/kalambet/shelfwise/internal/composer"
	"github.com/kalambet/shelfwise/internal/proxy"
)

const (
	temperature     = 0.7
	askMaxTokens    = 2000
	streamMaxTokens = 1500
)

// Completer is the chat-completion transport.
type Completer interface {
	Chat(ctx context.Context, req openai.ChatCompletionRequest) (io.ReadCloser, error)
	Complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error)
}

// Assistant answers reading questions over a completion endpoint and falls
// back to deterministic answers when the endpoint is unusable.
type Assistant struct {
	llm      Completer
	composer *composer.Composer
	books    BookLister
	model    string
}

// New creates an Assistant. An empty model selects the endpoint default.
// books may be nil, in which case organized notes keep their own titles.
func New(llm Completer, comp *composer.Composer, books BookLister, model string) *Assistant {
	if model == "" {
		model = proxy.DefaultModel
	}
	if comp == nil {
		comp = composer.New(0)
	}
	return &Assistant{llm: llm, composer: comp, books: books, model: model}
}

func (a *Assistant) request(msgs []openai.ChatCompletionMessage, maxTokens int, stream bool) openai.ChatCompletionRequest {
	temp := float32(temperature)
	return openai.ChatCompletionRequest{
		Model:       a.model,
		Messages:    msgs,
		Temperature: &temp,
		MaxTokens:   maxTokens,
		Stream:      stream,
	}
}

// Ask returns a unary answer to question, optionally grounded in contextText.
// When the completion fails or comes back empty the canned answer for the
// question is returned instead.
func (a *Assistant) Ask(ctx context.Context, question, contextText string) string {
	req := a.request(a.composer.Messages(composer.AskSystemPrompt, question, contextText), askMaxTokens, false)
	answer, err := a.llm.Complete(ctx, req)
	if err != nil {
		slog.Warn("assistant: completion failed, using canned answer", "error", err)
		return CannedAnswer(question)
	}
	if strings.TrimSpace(answer) == "" {
		slog.Warn("assistant: empty completion, using canned answer")
		return CannedAnswer(question)
	}
	return answer
}

// AskStream returns a streamed answer. If the completion request cannot be
// opened, or the live stream ends before its first delta, the stream is
// synthesized from the canned answer with the same frame contract.
func (a *Assistant) AskStream(ctx context.Context, question, contextText string) Stream {
	req := a.request(a.composer.Messages(composer.StreamSystemPrompt, question, contextText), streamMaxTokens, true)
	body, err := a.llm.Chat(ctx, req)
	if err != nil {
		slog.Warn("assistant: stream failed, using synthetic stream", "error", err)
		return Synthetic(CannedAnswer(question))
	}
	up := newUpstreamStream(body)
	first, err := up.Next(ctx)
	if err != nil || first.Terminal() {
		up.Close()
		slog.Warn("assistant: stream produced no content, using synthetic stream", "error", err, "frame", first.Kind, "message", first.Text)
		return Synthetic(CannedAnswer(question))
	}
	return &primedStream{first: first, pending: true, Stream: up}
}

// primedStream replays a frame already pulled from Stream before continuing.
type primedStream struct {
	Stream
	first   Frame
	pending bool
}

func (s *primedStream) Next(ctx context.Context) (Frame, error) {
	if s.pending {
		s.pending = false
		return s.first, nil
	}
	return s.Stream.Next(ctx)
}

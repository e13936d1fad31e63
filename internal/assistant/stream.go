package assistant

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"

	openai "github.com/meguminnnnnnnnn/go-openai"
)

const maxLineBytes = 1 << 20

// upstreamStream re-frames an OpenAI-style SSE body. Bytes are read only when
// the consumer pulls the next frame.
type upstreamStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

func newUpstreamStream(body io.ReadCloser) *upstreamStream {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &upstreamStream{body: body, scanner: sc}
}

func (s *upstreamStream) Next(ctx context.Context) (Frame, error) {
	if s.done {
		return Frame{}, io.EOF
	}
	for {
		if err := ctx.Err(); err != nil {
			s.done = true
			return Frame{}, err
		}
		if !s.scanner.Scan() {
			s.done = true
			if err := s.scanner.Err(); err != nil {
				if cerr := ctx.Err(); cerr != nil {
					return Frame{}, cerr
				}
				return ErrorFrame(err.Error()), nil
			}
			// EOF without the sentinel still closes the stream cleanly.
			return Done(), nil
		}

		line := s.scanner.Bytes()
		data, ok := bytes.CutPrefix(line, []byte("data:"))
		if !ok {
			continue
		}
		data = bytes.TrimSpace(data)
		if len(data) == 0 {
			continue
		}
		if string(data) == "[DONE]" {
			s.done = true
			return Done(), nil
		}

		if msg, ok := parseErrorEvent(data); ok {
			s.done = true
			return ErrorFrame(msg), nil
		}

		var chunk openai.ChatCompletionStreamResponse
		if err := json.Unmarshal(data, &chunk); err != nil {
			slog.Debug("assistant: skipping malformed stream event", "error", err)
			continue
		}
		var text strings.Builder
		for _, c := range chunk.Choices {
			text.WriteString(c.Delta.Content)
		}
		if text.Len() == 0 {
			continue
		}
		return Delta(text.String()), nil
	}
}

func (s *upstreamStream) Close() error {
	s.done = true
	return s.body.Close()
}

func parseErrorEvent(data []byte) (string, bool) {
	if !bytes.Contains(data, []byte(`"error"`)) {
		return "", false
	}
	var e struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &e) != nil || e.Error == nil {
		return "", false
	}
	if e.Error.Message == "" {
		return "upstream stream error", true
	}
	return e.Error.Message, true
}

// syntheticStream replays a fixed answer one code point per frame, then done.
type syntheticStream struct {
	runes []rune
	pos   int
	done  bool
}

// Synthetic returns a stream that emits text one rune at a time followed by
// a single done frame.
func Synthetic(text string) Stream {
	return &syntheticStream{runes: []rune(text)}
}

func (s *syntheticStream) Next(ctx context.Context) (Frame, error) {
	if s.done {
		return Frame{}, io.EOF
	}
	if err := ctx.Err(); err != nil {
		s.done = true
		return Frame{}, err
	}
	if s.pos < len(s.runes) {
		r := s.runes[s.pos]
		s.pos++
		return Delta(string(r)), nil
	}
	s.done = true
	return Done(), nil
}

func (s *syntheticStream) Close() error {
	s.done = true
	return nil
}

package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
)

// FrameKind discriminates stream frames.
type FrameKind int

const (
	FrameDelta FrameKind = iota
	FrameDone
	FrameError
)

func (k FrameKind) String() string {
	switch k {
	case FrameDelta:
		return "delta"
	case FrameDone:
		return "done"
	case FrameError:
		return "error"
	}
	return "unknown"
}

// Frame is one unit of an assistant response stream. Text carries the delta
// for FrameDelta and the message for FrameError.
type Frame struct {
	Kind FrameKind
	Text string
}

func Delta(text string) Frame { return Frame{Kind: FrameDelta, Text: text} }
func Done() Frame { return Frame{Kind: FrameDone} }
func ErrorFrame(msg string) Frame { return Frame{Kind: FrameError, Text: msg} }

// Terminal reports whether no frame may follow f.
func (f Frame) Terminal() bool {
	return f.Kind != FrameDelta
}

// Stream yields frames on demand. A stream ends with exactly one terminal
// frame (done or error); every later Next returns io.EOF. Real and synthetic
// streams share this contract.
type Stream interface {
	Next(ctx context.Context) (Frame, error)
	Close() error
}

// StreamError is an error event received from the completion endpoint.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string { return "assistant stream: " + e.Message }

// wire shapes of the client-facing event stream
type wireDelta struct {
	Content string `json:"content"`
}

type wireChoice struct {
	Delta wireDelta `json:"delta"`
}

type wireChunk struct {
	Choices []wireChoice `json:"choices"`
}

type wireError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

var doneEvent = []byte("data: [DONE]\n\n")

// EncodeFrame writes f as a server-sent event. Deltas become
// {"choices":[{"delta":{"content":...}}]} events; done becomes the [DONE]
// sentinel; an error frame becomes an {"error":{"message":...}} event
// followed by the sentinel so clients always see the stream close.
func EncodeFrame(w io.Writer, f Frame) error {
	switch f.Kind {
	case FrameDone:
		_, err := w.Write(doneEvent)
		return err
	case FrameError:
		var e wireError
		e.Error.Message = f.Text
		if err := writeEvent(w, e); err != nil {
			return err
		}
		_, err := w.Write(doneEvent)
		return err
	default:
		return writeEvent(w, wireChunk{Choices: []wireChoice{{Delta: wireDelta{Content: f.Text}}}})
	}
}

func writeEvent(w io.Writer, v any) error {
	var buf bytes.Buffer
	buf.WriteString("data: ")
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	// Encode terminates with a newline; one more closes the event.
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}

package relay

import (
	"context"
	"io"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/papercomputeco/chatstream/pkg/llm"
)

// AnthropicStream is the subset of the SDK's
// *ssestream.Stream[anthropic.MessageStreamEventUnion] the relay reads.
type AnthropicStream interface {
	Next() bool
	Current() anthropic.MessageStreamEventUnion
	Err() error
	Close() error
}

// AnthropicSource adapts an anthropic-sdk-go message stream.
type AnthropicSource struct {
	stream AnthropicStream
}

// NewAnthropicSource wraps the stream returned by
// client.Messages.NewStreaming.
func NewAnthropicSource(stream AnthropicStream) *AnthropicSource {
	return &AnthropicSource{stream: stream}
}

func (s *AnthropicSource) Next(ctx context.Context) (*llm.StreamChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !s.stream.Next() {
		if err := s.stream.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}

	chunk := &llm.StreamChunk{}
	switch e := s.stream.Current().AsAny().(type) {
	case anthropic.MessageStartEvent:
		chunk.Model = string(e.Message.Model)
	case anthropic.ContentBlockDeltaEvent:
		if delta, ok := e.Delta.AsAny().(anthropic.TextDelta); ok {
			chunk.Text = delta.Text
		}
	case anthropic.MessageDeltaEvent:
		chunk.StopReason = string(e.Delta.StopReason)
	case anthropic.MessageStopEvent:
		chunk.Done = true
	default:
		// content block start/stop and pings carry no text
	}
	return chunk, nil
}

// Close releases the underlying HTTP response.
func (s *AnthropicSource) Close() error {
	return s.stream.Close()
}

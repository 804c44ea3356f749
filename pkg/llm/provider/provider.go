// Package provider knows how to read each supported LLM API's request and
// streaming formats.
package provider

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/papercomputeco/chatstream/pkg/llm"
)

// StreamFormat is the wire format of a provider's streamed response body.
type StreamFormat int

const (
	// FormatSSE is text/event-stream (OpenAI, Anthropic).
	FormatSSE StreamFormat = iota

	// FormatNDJSON is newline-delimited JSON (Ollama).
	FormatNDJSON
)

// Provider parses one LLM API's request and streaming formats into the
// internal representation.
type Provider interface {
	// Name returns the canonical provider name (e.g., "anthropic", "openai", "ollama")
	Name() string

	// CanHandle returns true if the request payload appears to be for this provider.
	CanHandle(payload []byte) bool

	// ParseRequest converts a provider-specific request into the internal format.
	ParseRequest(payload []byte) (*llm.ChatRequest, error)

	// ParseStreamChunk extracts the text fragment from one streamed chunk.
	// Returns an error wrapping llm.ErrMalformedChunk when the payload cannot
	// be parsed, and an *llm.UpstreamError when the provider reports a failure
	// in-band.
	ParseStreamChunk(payload []byte) (*llm.StreamChunk, error)

	// StreamFormat reports how the streamed body is framed.
	StreamFormat() StreamFormat

	// ChatPath is the upstream path for chat completions.
	ChatPath() string

	// DefaultUpstream is the provider's public base URL.
	DefaultUpstream() string

	// SetAuth sets the provider's authentication headers on an upstream request.
	SetAuth(req *http.Request, apiKey string)
}

// EnableStreaming returns payload with its top-level "stream" field forced to
// true. Every supported provider uses the same field name.
func EnableStreaming(payload []byte) ([]byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	fields["stream"] = json.RawMessage("true")

	out, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	return out, nil
}

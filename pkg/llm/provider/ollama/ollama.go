// Package ollama parses Ollama /api/chat requests and NDJSON stream lines.
package ollama

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/papercomputeco/chatstream/pkg/llm"
)

// provider implements the Provider interface for Ollama's chat API.
type provider struct{}

func New() *provider { return &provider{} }

func (o *provider) Name() string {
	return "ollama"
}

func (o *provider) ChatPath() string {
	return "/api/chat"
}

func (o *provider) DefaultUpstream() string {
	return "http://localhost:11434"
}

// SetAuth sets a bearer token for Ollama instances behind an authenticating
// reverse proxy. Local Ollama needs none.
func (o *provider) SetAuth(req *http.Request, apiKey string) {
	if apiKey == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
}

func (o *provider) CanHandle(payload []byte) bool {
	var probe struct {
		KeepAlive string `json:"keep_alive"`
		Options   any    `json:"options"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return false
	}
	return probe.KeepAlive != "" || probe.Options != nil
}

func (o *provider) ParseRequest(payload []byte) (*llm.ChatRequest, error) {
	var req ollamaRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, err
	}

	messages := make([]llm.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, llm.NewTextMessage(msg.Role, msg.Content))
	}

	return &llm.ChatRequest{
		Model:      req.Model,
		Messages:   messages,
		Stream:     req.Stream,
		RawRequest: payload,
	}, nil
}

func (o *provider) ParseStreamChunk(payload []byte) (*llm.StreamChunk, error) {
	var chunk ollamaStreamChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return nil, llm.MalformedChunk(err)
	}

	if chunk.Error != "" {
		return nil, llm.NewUpstreamError("stream", errors.New(chunk.Error))
	}

	result := &llm.StreamChunk{
		Model:      chunk.Model,
		Done:       chunk.Done,
		StopReason: chunk.DoneReason,
	}
	if chunk.Message != nil {
		result.Text = chunk.Message.Content
	}

	return result, nil
}

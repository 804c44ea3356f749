// Package openai parses OpenAI Chat Completions requests and streamed chunks.
package openai

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/papercomputeco/chatstream/pkg/llm"
)

// provider implements the Provider interface for OpenAI's Chat Completions API.
type provider struct{}

func New() *provider { return &provider{} }

func (o *provider) Name() string {
	return "openai"
}

func (o *provider) ChatPath() string {
	return "/v1/chat/completions"
}

func (o *provider) DefaultUpstream() string {
	return "https://api.openai.com"
}

func (o *provider) SetAuth(req *http.Request, apiKey string) {
	if apiKey == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
}

func (o *provider) CanHandle(payload []byte) bool {
	var probe struct {
		Model            string   `json:"model"`
		FrequencyPenalty *float64 `json:"frequency_penalty"`
		PresencePenalty  *float64 `json:"presence_penalty"`
		Messages         []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return false
	}

	if strings.HasPrefix(probe.Model, "gpt-") || strings.HasPrefix(probe.Model, "o1") ||
		strings.HasPrefix(probe.Model, "o3") || strings.HasPrefix(probe.Model, "o4") {
		return true
	}

	if probe.FrequencyPenalty != nil || probe.PresencePenalty != nil {
		return true
	}

	// OpenAI keeps the system prompt inside messages
	for _, m := range probe.Messages {
		if m.Role == "system" || m.Role == "developer" {
			return true
		}
	}

	return false
}

func (o *provider) ParseRequest(payload []byte) (*llm.ChatRequest, error) {
	var req openaiRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, err
	}

	messages := make([]llm.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		converted := llm.Message{Role: msg.Role}

		switch content := msg.Content.(type) {
		case string:
			converted.Content = []llm.ContentBlock{{Type: "text", Text: content}}
		case []any:
			for _, item := range content {
				part, ok := item.(map[string]any)
				if !ok {
					continue
				}
				cb := llm.ContentBlock{}
				cb.Type, _ = part["type"].(string)
				cb.Text, _ = part["text"].(string)
				converted.Content = append(converted.Content, cb)
			}
		}

		messages = append(messages, converted)
	}

	return &llm.ChatRequest{
		Model:          req.Model,
		Messages:       messages,
		Stream:         req.Stream,
		ConversationID: req.Metadata["conversation_id"],
		RawRequest:     payload,
	}, nil
}

func (o *provider) ParseStreamChunk(payload []byte) (*llm.StreamChunk, error) {
	var chunk openaiStreamChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return nil, llm.MalformedChunk(err)
	}

	if chunk.Error != nil {
		return nil, llm.NewUpstreamError("stream", errors.New(chunk.Error.Message))
	}

	result := &llm.StreamChunk{Model: chunk.Model}
	if len(chunk.Choices) == 0 {
		// Usage-only trailer when stream_options.include_usage is set
		return result, nil
	}

	choice := chunk.Choices[0]
	if choice.Delta.Content != nil {
		result.Text = *choice.Delta.Content
	}
	if choice.FinishReason != nil {
		result.StopReason = *choice.FinishReason
	}

	return result, nil
}

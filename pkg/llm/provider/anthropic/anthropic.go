// Package anthropic parses Anthropic Messages API requests and streamed events.
package anthropic

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/papercomputeco/chatstream/pkg/llm"
)

// apiVersion is sent as the anthropic-version header.
const apiVersion = "2023-06-01"

// provider implements the Provider interface for Anthropic's Claude API.
type provider struct{}

func New() *provider { return &provider{} }

func (p *provider) Name() string {
	return "anthropic"
}

func (p *provider) ChatPath() string {
	return "/v1/messages"
}

func (p *provider) DefaultUpstream() string {
	return "https://api.anthropic.com"
}

func (p *provider) SetAuth(req *http.Request, apiKey string) {
	if req.Header.Get("anthropic-version") == "" {
		req.Header.Set("anthropic-version", apiVersion)
	}
	if apiKey == "" {
		return
	}
	req.Header.Set("x-api-key", apiKey)
}

func (p *provider) CanHandle(payload []byte) bool {
	var probe struct {
		Model     string `json:"model"`
		MaxTokens *int   `json:"max_tokens"`
		System    any    `json:"system"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return false
	}

	if strings.HasPrefix(probe.Model, "claude-") {
		return true
	}

	// max_tokens is required by Anthropic; together with a top-level system
	// field it is a strong signal
	return probe.MaxTokens != nil && probe.System != nil
}

func (p *provider) ParseRequest(payload []byte) (*llm.ChatRequest, error) {
	var req anthropicRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, err
	}

	messages := make([]llm.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, llm.Message{
			Role:    msg.Role,
			Content: parseBlocks(msg.Content),
		})
	}

	result := &llm.ChatRequest{
		Model:      req.Model,
		Messages:   messages,
		MaxTokens:  req.MaxTokens,
		Stream:     req.Stream,
		RawRequest: payload,
	}

	// System is a string or an array of text blocks
	switch sys := req.System.(type) {
	case string:
		result.System = sys
	case []any:
		var b strings.Builder
		for _, block := range parseBlocks(sys) {
			b.WriteString(block.Text)
		}
		result.System = b.String()
	}

	if req.Metadata != nil {
		result.ConversationID = req.Metadata.UserID
	}

	return result, nil
}

func parseBlocks(content any) []llm.ContentBlock {
	switch c := content.(type) {
	case string:
		return []llm.ContentBlock{{Type: "text", Text: c}}
	case []any:
		blocks := make([]llm.ContentBlock, 0, len(c))
		for _, item := range c {
			block, ok := item.(map[string]any)
			if !ok {
				continue
			}
			cb := llm.ContentBlock{}
			cb.Type, _ = block["type"].(string)
			cb.Text, _ = block["text"].(string)
			blocks = append(blocks, cb)
		}
		return blocks
	}
	return nil
}

// ParseStreamChunk reads one Messages streaming event. Only text deltas carry
// a fragment; tool input and thinking deltas are not part of the visible reply.
func (p *provider) ParseStreamChunk(payload []byte) (*llm.StreamChunk, error) {
	var ev anthropicStreamEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, llm.MalformedChunk(err)
	}

	chunk := &llm.StreamChunk{}
	switch ev.Type {
	case "message_start":
		if ev.Message != nil {
			chunk.Model = ev.Message.Model
		}
	case "content_block_delta":
		if ev.Delta == nil {
			return nil, llm.MalformedChunk(fmt.Errorf("content_block_delta without delta"))
		}
		if ev.Delta.Type == "text_delta" {
			chunk.Text = ev.Delta.Text
		}
	case "message_delta":
		if ev.Delta != nil {
			chunk.StopReason = ev.Delta.StopReason
		}
	case "message_stop":
		chunk.Done = true
	case "error":
		msg := "stream error"
		if ev.Error != nil {
			msg = ev.Error.Type + ": " + ev.Error.Message
		}
		return nil, llm.NewUpstreamError("stream", fmt.Errorf("%s", msg))
	case "":
		return nil, llm.MalformedChunk(fmt.Errorf("event without type"))
	}

	return chunk, nil
}

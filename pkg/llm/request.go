package llm

import "encoding/json"

// ChatRequest is the provider-agnostic view of a chat completion request.
// The server only needs enough of it to log, route and persist a turn; the
// raw payload is what actually goes upstream.
type ChatRequest struct {
	// Model name (e.g., "gpt-4o", "claude-sonnet-4-5", "llama3.2")
	Model string `json:"model"`

	// Conversation messages
	Messages []Message `json:"messages"`

	// System prompt for providers that keep it outside of messages
	System string `json:"system,omitempty"`

	// MaxTokens requested, when the provider format carries it
	MaxTokens int `json:"max_tokens,omitempty"`

	// Whether the client asked for a streamed response
	Stream *bool `json:"stream,omitempty"`

	// ConversationID groups persisted messages. Optional; taken from the
	// request metadata when the provider format carries one.
	ConversationID string `json:"conversation_id,omitempty"`

	// RawRequest is the original payload forwarded upstream.
	RawRequest json.RawMessage `json:"raw_request,omitempty"`
}

// LastUserText returns the text of the most recent user message, or "".
func (r *ChatRequest) LastUserText() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == "user" {
			return r.Messages[i].GetText()
		}
	}
	return ""
}

package openai

// openaiRequest is the subset of the Chat Completions request the server reads.
type openaiRequest struct {
	Model    string          `json:"model"`
	Messages []openaiMessage `json:"messages"`
	Stream   *bool           `json:"stream,omitempty"`
	User     string          `json:"user,omitempty"`

	// Metadata is forwarded verbatim; a "conversation_id" entry groups
	// persisted messages.
	Metadata map[string]string `json:"metadata,omitempty"`

	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
}

// openaiMessage is a message in OpenAI's format. Content is a string or a
// list of content parts.
type openaiMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// openaiStreamChunk is one "data:" payload of a streamed completion.
type openaiStreamChunk struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Model   string `json:"model"`
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Role    string  `json:"role,omitempty"`
			Content *string `json:"content,omitempty"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`

	// Error is set when the upstream reports a failure in-band.
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

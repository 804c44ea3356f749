package anthropic

// anthropicRequest is the subset of the Messages API request the server reads.
type anthropicRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	System    any                `json:"system,omitempty"` // string or []block
	MaxTokens int                `json:"max_tokens"`
	Stream    *bool              `json:"stream,omitempty"`
	Metadata  *struct {
		UserID string `json:"user_id,omitempty"`
	} `json:"metadata,omitempty"`
}

// anthropicMessage is a message in Anthropic's format.
type anthropicMessage struct {
	Role string `json:"role"`

	// Union type: string or []content block
	Content any `json:"content"`
}

// anthropicStreamEvent is the "data:" payload of any Messages streaming event.
// Only the fields relevant to text extraction are decoded.
type anthropicStreamEvent struct {
	Type    string `json:"type"`
	Message *struct {
		Model string `json:"model"`
	} `json:"message,omitempty"`
	Delta *struct {
		Type       string `json:"type"`
		Text       string `json:"text,omitempty"`
		StopReason string `json:"stop_reason,omitempty"`
	} `json:"delta,omitempty"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

package chatcmder

import (
	"encoding/json"
	"fmt"

	"github.com/papercomputeco/chatstream/pkg/dotdir"
	"github.com/papercomputeco/chatstream/pkg/llm/provider"
)

// anthropicMaxTokens is sent with Anthropic requests, which require it.
const anthropicMaxTokens = 1024

// chatRequest is the request body in the shape every supported provider
// accepts for plain text turns. Only Anthropic needs max_tokens.
type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
	Stream    bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// buildRequest encodes the conversation for providerName. An empty provider
// leaves the choice to the server and uses the OpenAI/Ollama shape.
func buildRequest(providerName, model string, messages []dotdir.ConversationMessage) ([]byte, error) {
	if providerName != "" {
		if _, err := provider.New(providerName); err != nil {
			return nil, err
		}
	}

	req := chatRequest{
		Model:    model,
		Messages: make([]chatMessage, 0, len(messages)),
		Stream:   true,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, chatMessage{Role: m.Role, Content: m.Content})
	}
	if providerName == provider.Anthropic {
		req.MaxTokens = anthropicMaxTokens
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	return body, nil
}

package server

import (
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/papercomputeco/chatstream/pkg/llm"
)

// defaultMaxTokens is used when the request does not set max_tokens, which
// the Messages API requires.
const defaultMaxTokens = 1024

// anthropicParams builds SDK parameters from a parsed request. Only text
// content is carried over; system messages are folded into the system
// prompt.
func anthropicParams(req *llm.ChatRequest) anthropic.MessageNewParams {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
	}

	system := []string{}
	if req.System != "" {
		system = append(system, req.System)
	}

	for _, msg := range req.Messages {
		text := msg.GetText()
		switch msg.Role {
		case "system":
			system = append(system, text)
		case "assistant":
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(text)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
		}
	}

	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{
			{Text: strings.Join(system, "\n\n")},
		}
	}

	return params
}

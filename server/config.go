package server

import (
	"github.com/papercomputeco/chatstream/pkg/eventstream"
)

// Config is the chat server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// UpstreamURL is the upstream LLM provider URL (e.g., "http://localhost:11434").
	// Empty uses the selected provider's public endpoint.
	UpstreamURL string

	// ProviderType is the default provider for requests without an
	// X-Chatstream-Provider header. Empty detects the provider from the
	// request payload.
	ProviderType string

	// APIKey, when set, authenticates upstream requests. Otherwise the
	// client's own auth headers are forwarded.
	APIKey string

	// AnthropicSDK streams Anthropic requests through anthropic-sdk-go
	// instead of forwarding the raw payload.
	AnthropicSDK bool

	// Publisher announces persisted messages. Nil disables events.
	Publisher eventstream.Publisher

	// NumWorkers is the size of the persistence worker pool.
	NumWorkers uint
}

package provider

import (
	"fmt"
	"net/http"

	"github.com/papercomputeco/chatstream/pkg/llm"
	"github.com/papercomputeco/chatstream/pkg/llm/provider/anthropic"
	"github.com/papercomputeco/chatstream/pkg/llm/provider/ollama"
	"github.com/papercomputeco/chatstream/pkg/llm/provider/openai"
)

// Supported provider type constants
const (
	Anthropic = "anthropic"
	OpenAI    = "openai"
	Ollama    = "ollama"
)

// SupportedProviders returns the list of all supported provider type names.
func SupportedProviders() []string {
	return []string{Anthropic, OpenAI, Ollama}
}

// New creates a new Provider instance for the given provider type.
// Returns an error if the provider type is not recognized.
func New(providerType string) (Provider, error) {
	switch providerType {
	case Anthropic:
		return wrap{anthropic.New(), FormatSSE}, nil
	case OpenAI:
		return wrap{openai.New(), FormatSSE}, nil
	case Ollama:
		return wrap{ollama.New(), FormatNDJSON}, nil
	default:
		return nil, fmt.Errorf("unknown provider type: %q (supported: %v)", providerType, SupportedProviders())
	}
}

// parser is what each provider subpackage implements. The subpackages stay
// free of a dependency on this package; wrap adds the framing.
type parser interface {
	Name() string
	CanHandle(payload []byte) bool
	ParseRequest(payload []byte) (*llm.ChatRequest, error)
	ParseStreamChunk(payload []byte) (*llm.StreamChunk, error)
	ChatPath() string
	DefaultUpstream() string
	SetAuth(req *http.Request, apiKey string)
}

type wrap struct {
	parser
	format StreamFormat
}

func (w wrap) StreamFormat() StreamFormat { return w.format }

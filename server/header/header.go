// Package header provides header filtering for the chatstream server.
//
// The server sits between a chat client and an upstream LLM provider:
//
//	Client <--> Server <--> Upstream LLM Provider
//
// and headers are handled accordingly as each leg negotiates compression,
// hops, encoding, etc. independently.
package header

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	// ProviderHeader selects the upstream provider for one request.
	ProviderHeader = "X-Chatstream-Provider"

	// ConversationHeader carries the conversation a request belongs to. The
	// server echoes it, generating one when the client sent none.
	ConversationHeader = "X-Chatstream-Conversation"

	// MessageIDHeader is set on streamed responses to the ID the assistant
	// message will be persisted under.
	MessageIDHeader = "X-Chatstream-Message-Id"
)

// Handler manages headers between server connections.
type Handler struct{}

// NewHandler creates a new header Handler.
func NewHandler() *Handler {
	return &Handler{}
}

// skipRequest is the set of request headers (client --> server --> upstream)
// that are not forwarded to the upstream LLM provider.
var skipRequest = map[string]struct{}{
	// Hop-by-hop headers: only meaningful for a single transport-level connection.
	"Connection": {},

	// The Host header is rewritten by Go's http.Transport to match the
	// upstream URL.
	"Host": {},

	// Accept-Encoding is stripped so that Go's http.Transport adds its own
	// "Accept-Encoding: gzip" and transparently decompresses the upstream
	// response.
	"Accept-Encoding": {},

	// The forwarded body is rewritten to force streaming, so its length
	// differs from the client's.
	"Content-Length": {},

	// Internal routing headers.
	ProviderHeader:     {},
	ConversationHeader: {},
}

// skipResponse is the set of upstream response headers (client <-- server <-- upstream)
// that are not copied back to the downstream client.
var skipResponse = map[string]struct{}{
	"Connection": {},

	// fasthttp manages chunked transfer encoding for the client-facing
	// response independently.
	"Transfer-Encoding": {},

	// The server always reads a decompressed body, so the upstream encoding
	// and length no longer describe it.
	"Content-Encoding": {},
	"Content-Length":   {},
}

// SetUpstreamRequestHeaders copies request headers from the Fiber context to
// the outgoing http.Request, filtering headers that the server should not
// forward to the upstream API.
func (h *Handler) SetUpstreamRequestHeaders(c *fiber.Ctx, req *http.Request) {
	c.Request().Header.VisitAll(func(key, value []byte) {
		k := string(key)
		if _, skip := skipRequest[k]; !skip {
			req.Header.Set(k, string(value))
		}
	})
}

// SetClientResponseHeaders copies response headers from the upstream API
// http.Response to the Fiber context, filtering headers that the server
// should not forward back down to the client.
func (h *Handler) SetClientResponseHeaders(c *fiber.Ctx, resp *http.Response) {
	for k, v := range resp.Header {
		if _, skip := skipResponse[k]; !skip {
			c.Set(k, strings.Join(v, ", "))
		}
	}
}

package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/chatstream/pkg/llm"
	"github.com/papercomputeco/chatstream/pkg/llm/provider"
	"github.com/papercomputeco/chatstream/pkg/relay"
	"github.com/papercomputeco/chatstream/server/header"
	"github.com/papercomputeco/chatstream/server/worker"
)

// handleChat forwards a provider-format chat request upstream with streaming
// forced on, and relays the generated text to the client as it arrives.
//
// Failures before the first byte are reported with a status code: 400 for a
// request the server cannot read, 502 when the upstream is unreachable, and
// the upstream's own status and body when it rejects the request. Once
// streaming has begun, an upstream failure truncates the chunked body.
func (s *Server) handleChat(c *fiber.Ctx) error {
	startTime := time.Now()

	body := c.Body()
	if len(body) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "request body is required"})
	}

	prov, err := s.resolveProvider(c.Get(header.ProviderHeader), body)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: err.Error()})
	}

	parsedReq, err := prov.ParseRequest(body)
	if err != nil {
		s.logger.Warn("failed to parse request",
			zap.Error(err),
			zap.String("provider", prov.Name()),
		)
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid request: " + err.Error()})
	}

	payload, err := provider.EnableStreaming(body)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: err.Error()})
	}

	conversationID := strings.TrimSpace(c.Get(header.ConversationHeader))
	if conversationID == "" {
		conversationID = parsedReq.ConversationID
	}
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	s.logger.Debug("parsed request",
		zap.String("provider", prov.Name()),
		zap.String("model", parsedReq.Model),
		zap.Int("message_count", len(parsedReq.Messages)),
		zap.String("conversation_id", conversationID),
	)

	// The stream outlives this handler: fasthttp recycles its RequestCtx once
	// the handler returns, while the body is still being written from the
	// relay goroutine. The stream ends when the upstream does or when the
	// client goes away and the body pipe is closed.
	ctx, cancel := context.WithCancel(context.Background())

	var (
		src    relay.Source
		closer io.Closer
	)
	if s.anthropic != nil && prov.Name() == provider.Anthropic {
		sdkSrc := relay.NewAnthropicSource(s.anthropic.Messages.NewStreaming(ctx, anthropicParams(parsedReq)))
		primed, err := prime(ctx, sdkSrc)
		if err != nil {
			_ = sdkSrc.Close()
			cancel()
			s.logger.Error("anthropic stream failed to start", zap.Error(err))
			return c.Status(fiber.StatusBadGateway).JSON(llm.ErrorResponse{Error: "upstream request failed"})
		}
		src, closer = primed, sdkSrc
	} else {
		httpResp, err := s.openUpstream(ctx, c, prov, payload)
		if err != nil {
			cancel()
			s.logger.Error("upstream request failed", zap.Error(err))
			return c.Status(fiber.StatusBadGateway).JSON(llm.ErrorResponse{Error: "upstream request failed"})
		}

		if httpResp.StatusCode != http.StatusOK {
			defer cancel()
			defer httpResp.Body.Close()

			respBody, _ := io.ReadAll(httpResp.Body)
			s.logger.Error("upstream returned error",
				zap.Int("status", httpResp.StatusCode),
				zap.String("body", string(respBody)),
			)
			s.headerHandler.SetClientResponseHeaders(c, httpResp)
			return c.Status(httpResp.StatusCode).Send(respBody)
		}

		src, closer = relay.NewSourceForResponse(httpResp, prov), httpResp.Body
	}

	msgID := uuid.New()
	c.Set(fiber.HeaderContentType, "text/plain; charset=utf-8")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(header.ConversationHeader, conversationID)
	c.Set(header.MessageIDHeader, msgID.String())
	c.Status(fiber.StatusOK)

	r := relay.New(
		relay.WithLogger(s.logger),
		relay.WithProvider(prov.Name()),
	)

	// io.Pipe gives per-fragment backpressure: each write blocks until
	// fasthttp has read it into a chunk and flushed it to the socket.
	pr, results := r.Pipe(ctx, src)

	s.streams.Add(1)
	go s.finishStream(cancel, closer, results, worker.Job{
		Provider:       prov.Name(),
		ConversationID: conversationID,
		MessageID:      msgID,
		Req:            parsedReq,
		StartedAt:      startTime.UTC(),
	})

	// Unknown size (-1) triggers chunked transfer encoding in fasthttp.
	c.Context().Response.SetBodyStream(pr, -1)
	return nil
}

// finishStream waits for the relay to end, releases the upstream and hands
// the result to the worker pool.
func (s *Server) finishStream(cancel context.CancelFunc, closer io.Closer, results <-chan relay.Result, job worker.Job) {
	defer s.streams.Done()
	defer cancel()

	res := <-results
	if err := closer.Close(); err != nil {
		s.logger.Debug("closing upstream", zap.Error(err))
	}

	job.Result = res
	s.workerPool.Enqueue(job)
}

// resolveProvider picks the provider named by the request header, then the
// configured default, then whatever the payload looks like.
func (s *Server) resolveProvider(name string, body []byte) (provider.Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name != "" {
		prov, err := provider.New(name)
		if err != nil {
			return nil, fmt.Errorf("invalid %s header: %w", header.ProviderHeader, err)
		}
		return prov, nil
	}

	if s.defaultProv != nil {
		return s.defaultProv, nil
	}

	return s.detector.Detect(body), nil
}

// upstreamFor returns the base URL for prov. The configured upstream belongs
// to the configured provider; a provider picked per request goes to its
// public endpoint.
func (s *Server) upstreamFor(prov provider.Provider) string {
	if s.config.UpstreamURL != "" && (s.defaultProv == nil || s.defaultProv.Name() == prov.Name()) {
		return s.config.UpstreamURL
	}
	return prov.DefaultUpstream()
}

func (s *Server) openUpstream(ctx context.Context, c *fiber.Ctx, prov provider.Provider, payload []byte) (*http.Response, error) {
	upstreamURL := strings.TrimRight(s.upstreamFor(prov), "/") + prov.ChatPath()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, upstreamURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating upstream request: %w", err)
	}

	s.headerHandler.SetUpstreamRequestHeaders(c, httpReq)
	httpReq.Header.Set("Content-Type", "application/json")
	prov.SetAuth(httpReq, s.config.APIKey)

	s.logger.Debug("forwarding streaming request to upstream",
		zap.String("url", upstreamURL),
		zap.String("provider", prov.Name()),
	)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, llm.NewUpstreamError("request", err)
	}
	return resp, nil
}

// primedSource replays one chunk read ahead of time.
type primedSource struct {
	first *llm.StreamChunk
	err   error
	used  bool
	rest  relay.Source
}

// prime reads the first chunk of src so that a stream which fails before
// producing anything can still be answered with an error status. Malformed
// first chunks and an immediately empty stream are left for the relay.
func prime(ctx context.Context, src relay.Source) (relay.Source, error) {
	first, err := src.Next(ctx)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, llm.ErrMalformedChunk) {
		return nil, err
	}
	return &primedSource{first: first, err: err, rest: src}, nil
}

func (p *primedSource) Next(ctx context.Context) (*llm.StreamChunk, error) {
	if !p.used {
		p.used = true
		return p.first, p.err
	}
	return p.rest.Next(ctx)
}

// Package server provides the chat server: it forwards a chat request to the
// upstream LLM provider and relays the generated text back to the client as
// a chunked text/plain body, persisting each finished turn asynchronously.
package server

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/papercomputeco/chatstream/pkg/llm/provider"
	"github.com/papercomputeco/chatstream/pkg/storage"
	"github.com/papercomputeco/chatstream/server/header"
	"github.com/papercomputeco/chatstream/server/worker"
)

// Server is the chat server.
type Server struct {
	config        Config
	driver        storage.Driver
	workerPool    *worker.Pool
	logger        *zap.Logger
	httpClient    *http.Client
	anthropic     *anthropic.Client
	app           *fiber.App
	defaultProv   provider.Provider
	detector      *provider.Detector
	headerHandler *header.Handler

	// streams tracks relays still writing, so Close can wait for their
	// results to reach the worker pool.
	streams sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// New creates a new Server.
// The driver is injected to handle async persistence of finished turns.
// Returns an error if the configured provider type is not recognized.
func New(config Config, driver storage.Driver, logger *zap.Logger) (*Server, error) {
	if driver == nil {
		return nil, errors.New("storage driver is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	fallback, _ := provider.New(provider.Ollama)
	var defaultProv provider.Provider
	if config.ProviderType != "" {
		var err error
		defaultProv, err = provider.New(config.ProviderType)
		if err != nil {
			return nil, fmt.Errorf("could not create new provider: %w", err)
		}
		fallback = defaultProv
	}

	wp, err := worker.NewPool(&worker.Config{
		Driver:     driver,
		Publisher:  config.Publisher,
		NumWorkers: config.NumWorkers,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create worker pool: %w", err)
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		StreamRequestBody:     true,
	})

	s := &Server{
		config:        config,
		driver:        driver,
		workerPool:    wp,
		logger:        logger,
		app:           app,
		defaultProv:   defaultProv,
		detector:      provider.NewDetector(fallback),
		headerHandler: header.NewHandler(),
		httpClient: &http.Client{
			// LLM requests can be slow, especially with thinking blocks
			Timeout: 5 * time.Minute,
		},
	}

	if config.AnthropicSDK {
		s.anthropic = newAnthropicClient(config)
	}

	app.Get("/healthz", s.handleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Post("/v1/chat", s.handleChat)

	return s, nil
}

func newAnthropicClient(config Config) *anthropic.Client {
	var opts []option.RequestOption
	if config.APIKey != "" {
		opts = append(opts, option.WithAPIKey(config.APIKey))
	}
	if config.UpstreamURL != "" {
		opts = append(opts, option.WithBaseURL(config.UpstreamURL))
	}

	client := anthropic.NewClient(opts...)
	return &client
}

// Run starts the server on the configured listening address.
func (s *Server) Run() error {
	s.logger.Info("starting chat server",
		zap.String("listen", s.config.ListenAddr),
		zap.String("upstream", s.config.UpstreamURL),
		zap.String("provider", s.config.ProviderType),
		zap.Bool("anthropic_sdk", s.config.AnthropicSDK),
	)

	return s.app.Listen(s.config.ListenAddr)
}

// RunWithListener starts the server using the provided listener.
func (s *Server) RunWithListener(listener net.Listener) error {
	s.logger.Info("starting chat server",
		zap.String("listen", listener.Addr().String()),
		zap.String("upstream", s.config.UpstreamURL),
	)

	return s.app.Listener(listener)
}

// Close shuts down the HTTP server, waits for open streams to finish and the
// worker pool to drain. Close is idempotent.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.app.Shutdown()
		s.streams.Wait()
		s.workerPool.Close()
	})
	return s.closeErr
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Package servecmder provides the serve command for running the chat server.
package servecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/papercomputeco/chatstream/pkg/config"
	"github.com/papercomputeco/chatstream/pkg/credentials"
	eventstreamutils "github.com/papercomputeco/chatstream/pkg/eventstream/utils"
	"github.com/papercomputeco/chatstream/pkg/logger"
	storageutils "github.com/papercomputeco/chatstream/pkg/storage/utils"
	"github.com/papercomputeco/chatstream/server"
)

var serveFlags = config.FlagSet{
	config.FlagListen: {
		Name:        "listen",
		Shorthand:   "l",
		ViperKey:    "server.listen",
		Description: "Address for the chat server to listen on",
	},
	config.FlagUpstream: {
		Name:        "upstream",
		Shorthand:   "u",
		ViperKey:    "server.upstream",
		Description: "Upstream LLM provider URL",
	},
	config.FlagProvider: {
		Name:        "provider",
		Shorthand:   "p",
		ViperKey:    "server.provider",
		Description: "Default LLM provider type (anthropic, openai, ollama); empty detects it per request",
	},
	config.FlagAnthropicSDK: {
		Name:        "anthropic-sdk",
		ViperKey:    "server.anthropic_sdk",
		Description: "Stream Anthropic requests through the Anthropic Go SDK",
	},
	config.FlagSQLite: {
		Name:        "sqlite",
		Shorthand:   "s",
		ViperKey:    "storage.sqlite_path",
		Description: "Path to SQLite database (default: in-memory)",
	},
	config.FlagPostgres: {
		Name:        "postgres",
		ViperKey:    "storage.postgres_dsn",
		Description: "PostgreSQL connection string; takes precedence over --sqlite",
	},
	config.FlagKafkaBrokers: {
		Name:        "kafka-brokers",
		ViperKey:    "events.kafka_brokers",
		Description: "Comma separated Kafka brokers for message events (default: disabled)",
	},
	config.FlagKafkaTopic: {
		Name:        "kafka-topic",
		ViperKey:    "events.kafka_topic",
		Description: "Kafka topic for message events",
	},
}

var serveFlagKeys = []string{
	config.FlagListen,
	config.FlagUpstream,
	config.FlagProvider,
	config.FlagAnthropicSDK,
	config.FlagSQLite,
	config.FlagPostgres,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
}

type serveCommander struct {
	listen       string
	upstream     string
	providerType string
	anthropicSDK bool
	sqlitePath   string
	postgresDSN  string
	kafkaBrokers string
	kafkaTopic   string
	apiKey       string
	jsonLogs     bool
	debug        bool

	logger *zap.Logger
}

const serveLongDesc string = `Run the chatstream server.

The server accepts chat requests on POST /v1/chat, forces streaming on the
upstream request and relays the reply to the client as a chunked plain-text
body, one chunk per text fragment. Completed replies are persisted and
announced as message events.

Supported provider types: anthropic, openai, ollama

Upstream credentials come from server.api_key (CHATSTREAM_SERVER_API_KEY),
then keys stored with "chatstream auth", then ANTHROPIC_API_KEY or
OPENAI_API_KEY. Without a key the client's own auth headers are forwarded.

Examples:
  chatstream serve
  chatstream serve --provider anthropic --upstream https://api.anthropic.com
  chatstream serve --sqlite ./chatstream.db --kafka-brokers localhost:9092
  chatstream serve --json-logs`

const serveShortDesc string = "Run the chatstream server"

func NewServeCmd() *cobra.Command {
	return newServeCmd(&serveCommander{})
}

func newServeCmd(cmder *serveCommander) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, serveFlags, serveFlagKeys)
			return cmder.load(v, configDir)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, serveFlags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, serveFlags, config.FlagUpstream, &cmder.upstream)
	config.AddStringFlag(cmd, serveFlags, config.FlagProvider, &cmder.providerType)
	config.AddBoolFlag(cmd, serveFlags, config.FlagAnthropicSDK, &cmder.anthropicSDK)
	config.AddStringFlag(cmd, serveFlags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, serveFlags, config.FlagPostgres, &cmder.postgresDSN)
	config.AddStringFlag(cmd, serveFlags, config.FlagKafkaBrokers, &cmder.kafkaBrokers)
	config.AddStringFlag(cmd, serveFlags, config.FlagKafkaTopic, &cmder.kafkaTopic)
	cmd.Flags().BoolVar(&cmder.jsonLogs, "json-logs", false, "Write logs as JSON lines")

	return cmd
}

func (c *serveCommander) load(v *viper.Viper, configDir string) error {
	c.listen = v.GetString("server.listen")
	c.upstream = v.GetString("server.upstream")
	c.providerType = v.GetString("server.provider")
	c.anthropicSDK = v.GetBool("server.anthropic_sdk")
	c.sqlitePath = v.GetString("storage.sqlite_path")
	c.postgresDSN = v.GetString("storage.postgres_dsn")
	c.kafkaBrokers = v.GetString("events.kafka_brokers")
	c.kafkaTopic = v.GetString("events.kafka_topic")

	c.apiKey = v.GetString("server.api_key")
	if c.apiKey != "" {
		return nil
	}

	creds, err := credentials.NewManager(configDir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}
	c.apiKey, err = creds.ResolveKey(c.providerType)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}
	return nil
}

func (c *serveCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	c.logger = logger.New(logger.WithDebug(c.debug), logger.WithJSON(c.jsonLogs))
	defer func() { _ = c.logger.Sync() }()

	driver, err := storageutils.NewDriver(ctx, &storageutils.NewDriverOpts{
		PostgresDSN: c.postgresDSN,
		SQLitePath:  c.sqlitePath,
		Logger:      c.logger,
	})
	if err != nil {
		return err
	}
	defer driver.Close()

	publisher, err := eventstreamutils.NewPublisher(&eventstreamutils.NewPublisherOpts{
		KafkaBrokers: c.kafkaBrokers,
		KafkaTopic:   c.kafkaTopic,
		Logger:       c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating event publisher: %w", err)
	}
	defer publisher.Close()

	s, err := server.New(server.Config{
		ListenAddr:   c.listen,
		UpstreamURL:  c.upstream,
		ProviderType: c.providerType,
		APIKey:       c.apiKey,
		AnthropicSDK: c.anthropicSDK,
		Publisher:    publisher,
	}, driver, c.logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer s.Close()

	c.logger.Info("starting chat server",
		zap.String("listen", c.listen),
		zap.String("upstream", c.upstream),
		zap.String("provider", c.providerType),
		zap.Bool("anthropic_sdk", c.anthropicSDK),
	)

	errChan := make(chan error, 1)
	go func() {
		if err := s.Run(); err != nil {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		return nil
	}
}

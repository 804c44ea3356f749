package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent chatstream configuration stored as
// config.toml in the .chatstream/ directory. The TOML layout uses sections
// for logical grouping.
type Config struct {
	Version int           `toml:"version"`
	Server  ServerConfig  `toml:"server"`
	Client  ClientConfig  `toml:"client"`
	Pacer   PacerConfig   `toml:"pacer"`
	Storage StorageConfig `toml:"storage"`
	Events  EventsConfig  `toml:"events"`
}

// ServerConfig holds settings for "chatstream serve".
type ServerConfig struct {
	Listen   string `toml:"listen,omitempty"`
	Provider string `toml:"provider,omitempty"`
	Upstream string `toml:"upstream,omitempty"`

	// AnthropicSDK streams from Anthropic through the Go SDK instead of
	// forwarding the raw request upstream.
	AnthropicSDK bool `toml:"anthropic_sdk,omitempty"`
}

// ClientConfig holds settings for "chatstream chat".
// ServerTarget is a full URL (scheme + host + port).
type ClientConfig struct {
	ServerTarget string `toml:"server_target,omitempty"`
	Model        string `toml:"model,omitempty"`
	Provider     string `toml:"provider,omitempty"`
}

// PacerConfig holds the typing cadence. Durations are in milliseconds.
type PacerConfig struct {
	ProseBaseMs     uint `toml:"prose_base_ms,omitempty"`
	ProseVarianceMs uint `toml:"prose_variance_ms,omitempty"`
	CodeBaseMs      uint `toml:"code_base_ms,omitempty"`
	CodeVarianceMs  uint `toml:"code_variance_ms,omitempty"`
	RunesPerTick    uint `toml:"runes_per_tick,omitempty"`
}

// StorageConfig selects where completed messages are persisted. Postgres
// wins over SQLite when both are set; neither means in-memory.
type StorageConfig struct {
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// EventsConfig configures message-completed event publication. Events are
// disabled when no brokers are set.
type EventsConfig struct {
	KafkaBrokers string `toml:"kafka_brokers,omitempty"`
	KafkaTopic   string `toml:"kafka_topic,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func uintKey(key string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			v := *field(c)
			if v == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(v), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", key, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"server.listen": {
		get: func(c *Config) string { return c.Server.Listen },
		set: func(c *Config, v string) error { c.Server.Listen = v; return nil },
	},
	"server.provider": {
		get: func(c *Config) string { return c.Server.Provider },
		set: func(c *Config, v string) error { c.Server.Provider = v; return nil },
	},
	"server.upstream": {
		get: func(c *Config) string { return c.Server.Upstream },
		set: func(c *Config, v string) error { c.Server.Upstream = v; return nil },
	},
	"server.anthropic_sdk": {
		get: func(c *Config) string { return strconv.FormatBool(c.Server.AnthropicSDK) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for server.anthropic_sdk: %w", err)
			}
			c.Server.AnthropicSDK = b
			return nil
		},
	},
	"client.server_target": {
		get: func(c *Config) string { return c.Client.ServerTarget },
		set: func(c *Config, v string) error { c.Client.ServerTarget = v; return nil },
	},
	"client.model": {
		get: func(c *Config) string { return c.Client.Model },
		set: func(c *Config, v string) error { c.Client.Model = v; return nil },
	},
	"client.provider": {
		get: func(c *Config) string { return c.Client.Provider },
		set: func(c *Config, v string) error { c.Client.Provider = v; return nil },
	},
	"pacer.prose_base_ms": uintKey("pacer.prose_base_ms", func(c *Config) *uint { return &c.Pacer.ProseBaseMs }),
	"pacer.prose_variance_ms": uintKey("pacer.prose_variance_ms", func(c *Config) *uint {
		return &c.Pacer.ProseVarianceMs
	}),
	"pacer.code_base_ms":     uintKey("pacer.code_base_ms", func(c *Config) *uint { return &c.Pacer.CodeBaseMs }),
	"pacer.code_variance_ms": uintKey("pacer.code_variance_ms", func(c *Config) *uint { return &c.Pacer.CodeVarianceMs }),
	"pacer.runes_per_tick":   uintKey("pacer.runes_per_tick", func(c *Config) *uint { return &c.Pacer.RunesPerTick }),
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"storage.postgres_dsn": {
		get: func(c *Config) string { return c.Storage.PostgresDSN },
		set: func(c *Config, v string) error { c.Storage.PostgresDSN = v; return nil },
	},
	"events.kafka_brokers": {
		get: func(c *Config) string { return c.Events.KafkaBrokers },
		set: func(c *Config, v string) error { c.Events.KafkaBrokers = v; return nil },
	},
	"events.kafka_topic": {
		get: func(c *Config) string { return c.Events.KafkaTopic },
		set: func(c *Config, v string) error { c.Events.KafkaTopic = v; return nil },
	},
}

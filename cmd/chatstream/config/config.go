// Package configcmder provides the config command for managing persistent
// chatstream configuration stored in the .chatstream/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent chatstream configuration.

Configuration is stored as config.toml in the .chatstream/ directory and
provides default values for command flags. CLI flags and CHATSTREAM_*
environment variables take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  server.listen, server.provider, server.upstream, server.anthropic_sdk,
  client.server_target, client.model, client.provider,
  pacer.prose_base_ms, pacer.prose_variance_ms,
  pacer.code_base_ms, pacer.code_variance_ms, pacer.runes_per_tick,
  storage.sqlite_path, storage.postgres_dsn,
  events.kafka_brokers, events.kafka_topic

Use subcommands to get, set, or list configuration values:
  chatstream config set <key> <value>    Set a configuration value
  chatstream config get <key>            Get a configuration value
  chatstream config list                 List all configuration values

Examples:
  chatstream config set server.provider anthropic
  chatstream config set pacer.prose_base_ms 45
  chatstream config get client.model
  chatstream config list`

const configShortDesc string = "Manage persistent chatstream configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

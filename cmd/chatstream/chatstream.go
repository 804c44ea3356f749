// Package chatstreamcmder
package chatstreamcmder

import (
	"github.com/spf13/cobra"

	authcmder "github.com/papercomputeco/chatstream/cmd/chatstream/auth"
	chatcmder "github.com/papercomputeco/chatstream/cmd/chatstream/chat"
	configcmder "github.com/papercomputeco/chatstream/cmd/chatstream/config"
	historycmder "github.com/papercomputeco/chatstream/cmd/chatstream/history"
	initcmder "github.com/papercomputeco/chatstream/cmd/chatstream/init"
	servecmder "github.com/papercomputeco/chatstream/cmd/chatstream/serve"
	statuscmder "github.com/papercomputeco/chatstream/cmd/chatstream/status"
	versioncmder "github.com/papercomputeco/chatstream/cmd/version"
)

const chatstreamLongDesc string = `chatstream streams LLM chat replies and types them out like a person would.

Run the server and chat with it:
  chatstream serve     Run the chat server
  chatstream chat      Start an interactive chat session
  chatstream history   Show a persisted conversation
  chatstream status    Show the saved chat session

Manage configuration:
  chatstream init      Initialize a local .chatstream/ directory
  chatstream config    Get, set and list configuration values
  chatstream auth      Store upstream API keys`

const chatstreamShortDesc string = "chatstream - paced LLM chat streaming"

func NewChatstreamCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "chatstream",
		Short:        chatstreamShortDesc,
		Long:         chatstreamLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .chatstream/ config directory")

	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(historycmder.NewHistoryCmd())
	cmd.AddCommand(statuscmder.NewStatusCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}

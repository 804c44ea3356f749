// Package statuscmder provides the status command for displaying the saved
// chat session of the local .chatstream directory.
package statuscmder

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatstream/pkg/cliui"
	"github.com/papercomputeco/chatstream/pkg/dotdir"
	"github.com/papercomputeco/chatstream/pkg/utils"
)

const statusLongDesc string = `Show the saved chat session.

Reads the local .chatstream/ directory (or ~/.chatstream/) to display the
conversation "chatstream chat" will resume, including its ID and turns.

If no session exists, indicates that the next chat will start a new
conversation.

Examples:
  chatstream status`

const statusShortDesc string = "Show the saved chat session"

func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: statusShortDesc,
		Long:  statusLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runStatus(cmd.OutOrStdout(), configDir)
		},
	}

	return cmd
}

func runStatus(w io.Writer, configDir string) error {
	conv, err := dotdir.NewManager().LoadConversation(configDir)
	if err != nil {
		return fmt.Errorf("loading conversation: %w", err)
	}

	if conv == nil {
		fmt.Fprintf(w, "  %s No saved session. Next chat will start a new conversation.\n", cliui.DimStyle.Render("●"))
		return nil
	}

	fmt.Fprintf(w, "\n  %s  %s\n", cliui.KeyStyle.Render("Conversation:"), cliui.ValueStyle.Render(conv.ID))
	fmt.Fprintf(w, "  %s  %s\n\n", cliui.KeyStyle.Render("Messages:    "), cliui.NameStyle.Render(strconv.Itoa(len(conv.Messages))))

	for i, msg := range conv.Messages {
		fmt.Fprintf(w, "  %s %s %s\n",
			cliui.DimStyle.Render(fmt.Sprintf("%d.", i+1)),
			cliui.StepStyle.Render("["+msg.Role+"]"),
			utils.Truncate(msg.Content, 72),
		)
	}

	fmt.Fprintln(w)
	return nil
}

// Package historycmder provides the history command for reading persisted
// conversations back out of storage.
package historycmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/chatstream/cmd/chatstream/sqlitepath"
	"github.com/papercomputeco/chatstream/pkg/cliui"
	"github.com/papercomputeco/chatstream/pkg/config"
	"github.com/papercomputeco/chatstream/pkg/dotdir"
	"github.com/papercomputeco/chatstream/pkg/logger"
	"github.com/papercomputeco/chatstream/pkg/storage"
	storageutils "github.com/papercomputeco/chatstream/pkg/storage/utils"
	"github.com/papercomputeco/chatstream/pkg/utils"
)

var historyFlags = config.FlagSet{
	config.FlagSQLite: {
		Name:        "sqlite",
		Shorthand:   "s",
		ViperKey:    "storage.sqlite_path",
		Description: "Path to the server's SQLite database",
	},
	config.FlagPostgres: {
		Name:        "postgres",
		ViperKey:    "storage.postgres_dsn",
		Description: "PostgreSQL connection string of the server's database",
	},
}

var historyFlagKeys = []string{config.FlagSQLite, config.FlagPostgres}

type historyCommander struct {
	sqlitePath  string
	postgresDSN string
	configDir   string
	raw         bool
	debug       bool

	out io.Writer
}

const historyLongDesc string = `Show a persisted conversation.

Reads the messages the server stored for a conversation, oldest first, and
renders them as markdown. Without an argument the conversation of the last
"chatstream chat" session is shown. Replies that were cut off are marked as
failed along with the reason.

History is read from the same SQLite or PostgreSQL database the server
writes to; the in-memory store is not readable from another process. When
neither is configured, CHATSTREAM_SQLITE and the usual chatstream.db
locations are tried.

Examples:
  chatstream history
  chatstream history 3f1c9a2e-0b7d-4c55-9a3e-2f6f1f0c8d11
  chatstream history --sqlite ./chatstream.db --raw`

const historyShortDesc string = "Show a persisted conversation"

func NewHistoryCmd() *cobra.Command {
	return newHistoryCmd(&historyCommander{})
}

func newHistoryCmd(cmder *historyCommander) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [conversation-id]",
		Short: historyShortDesc,
		Long:  historyLongDesc,
		Args:  cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, historyFlags, historyFlagKeys)
			cmder.load(v)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.debug, _ = cmd.Flags().GetBool("debug")
			if cmder.out == nil {
				cmder.out = cmd.OutOrStdout()
			}

			var conversationID string
			if len(args) == 1 {
				conversationID = args[0]
			}
			return cmder.run(cmd.Context(), conversationID)
		},
	}

	config.AddStringFlag(cmd, historyFlags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, historyFlags, config.FlagPostgres, &cmder.postgresDSN)
	cmd.Flags().BoolVar(&cmder.raw, "raw", false, "Print message content without markdown rendering")

	return cmd
}

func (c *historyCommander) load(v *viper.Viper) {
	c.sqlitePath = v.GetString("storage.sqlite_path")
	c.postgresDSN = v.GetString("storage.postgres_dsn")

	if c.sqlitePath == "" && c.postgresDSN == "" {
		if path, err := sqlitepath.ResolveSQLitePath(""); err == nil {
			c.sqlitePath = path
		}
	}
}

func (c *historyCommander) run(ctx context.Context, conversationID string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if conversationID == "" {
		conv, err := dotdir.NewManager().LoadConversation(c.configDir)
		if err != nil {
			return fmt.Errorf("loading conversation: %w", err)
		}
		if conv == nil {
			return errors.New("no conversation given and no saved chat session found")
		}
		conversationID = conv.ID
	}

	opts := &storageutils.NewDriverOpts{
		PostgresDSN: c.postgresDSN,
		SQLitePath:  c.sqlitePath,
		Logger:      logger.NewLoggerWithWriters(c.debug, io.Discard),
	}
	if opts.Backend() == "in-memory" {
		return errors.New("history needs persistent storage: set storage.sqlite_path or storage.postgres_dsn")
	}

	driver, err := storageutils.NewDriver(ctx, opts)
	if err != nil {
		return err
	}
	defer driver.Close()

	messages, err := driver.ListMessages(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("listing messages: %w", err)
	}

	fmt.Fprintf(c.out, "\n  %s %s %s\n\n",
		cliui.KeyStyle.Render("Conversation:"),
		cliui.NameStyle.Render(utils.Truncate(conversationID, 36)),
		cliui.DimStyle.Render(fmt.Sprintf("(%d messages, %s)", len(messages), opts.Backend())),
	)

	if len(messages) == 0 {
		fmt.Fprintf(c.out, "  %s\n\n", cliui.DimStyle.Render("No messages stored for this conversation."))
		return nil
	}

	for _, msg := range messages {
		c.printMessage(msg)
	}
	return nil
}

func (c *historyCommander) printMessage(msg *storage.Message) {
	prompt := cliui.UserPrompt
	if msg.Role == "assistant" {
		prompt = cliui.AssistantPrompt
	}

	meta := msg.CreatedAt.Local().Format("2006-01-02 15:04:05")
	if msg.Model != "" {
		meta += " · " + msg.Model
	}
	fmt.Fprintf(c.out, "%s%s\n", prompt, cliui.DimStyle.Render(meta))

	content := msg.Content
	if !c.raw {
		if rendered, err := cliui.RenderMarkdown(content); err == nil {
			content = strings.TrimRight(rendered, "\n")
		}
	}
	fmt.Fprintln(c.out, content)

	if msg.Status == storage.StatusFailed {
		fmt.Fprintf(c.out, "  %s\n", cliui.Failed(errors.New(msg.Error)))
	}
	fmt.Fprintln(c.out)
}

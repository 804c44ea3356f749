// Package chatcmder provides the chat command: an interactive terminal
// client that reveals streamed replies at a typing cadence.
package chatcmder

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/papercomputeco/chatstream/pkg/cliui"
	"github.com/papercomputeco/chatstream/pkg/config"
	"github.com/papercomputeco/chatstream/pkg/dotdir"
	"github.com/papercomputeco/chatstream/pkg/logger"
	"github.com/papercomputeco/chatstream/pkg/pacer"
	"github.com/papercomputeco/chatstream/server/header"
)

var chatFlags = config.FlagSet{
	config.FlagServerTarget: {
		Name:        "server-target",
		Shorthand:   "t",
		ViperKey:    "client.server_target",
		Description: "chatstream server URL",
	},
	config.FlagModel: {
		Name:        "model",
		Shorthand:   "m",
		ViperKey:    "client.model",
		Description: "Model name (e.g., llama3.2, gpt-4o-mini, claude-sonnet-4-5)",
	},
	config.FlagClientProvider: {
		Name:        "provider",
		Shorthand:   "p",
		ViperKey:    "client.provider",
		Description: "LLM provider type (anthropic, openai, ollama); empty uses the server default",
	},
	config.FlagProseBase: {
		Name:        "prose-base",
		ViperKey:    "pacer.prose_base_ms",
		Description: "Base delay in ms before each prose unit",
	},
	config.FlagProseVariance: {
		Name:        "prose-variance",
		ViperKey:    "pacer.prose_variance_ms",
		Description: "Random +/- variance in ms added to the prose delay",
	},
	config.FlagCodeBase: {
		Name:        "code-base",
		ViperKey:    "pacer.code_base_ms",
		Description: "Base delay in ms before each unit inside a code fence",
	},
	config.FlagCodeVariance: {
		Name:        "code-variance",
		ViperKey:    "pacer.code_variance_ms",
		Description: "Random +/- variance in ms added to the code delay",
	},
	config.FlagRunesPerTick: {
		Name:        "runes-per-tick",
		ViperKey:    "pacer.runes_per_tick",
		Description: "Characters revealed per tick",
	},
}

var chatFlagKeys = []string{
	config.FlagServerTarget,
	config.FlagModel,
	config.FlagClientProvider,
	config.FlagProseBase,
	config.FlagProseVariance,
	config.FlagCodeBase,
	config.FlagCodeVariance,
	config.FlagRunesPerTick,
}

type chatCommander struct {
	serverTarget string
	model        string
	providerName string
	configDir    string
	newConv      bool
	instant      bool
	debug        bool

	proseBase, proseVariance uint
	codeBase, codeVariance   uint
	runesPerTick             uint

	in  io.Reader
	out io.Writer

	// interrupts delivers Ctrl-C while a reply is streaming. Nil installs a
	// signal handler per turn.
	interrupts chan os.Signal

	calc       *pacer.Calculator
	httpClient *http.Client
	logger     *zap.Logger
}

// turn is the result of one request/reply exchange.
type turn struct {
	text    string
	outcome pacer.Outcome
}

const chatLongDesc string = `Start an interactive chat session through the chatstream server.

Replies are revealed at a human typing cadence: prose types at a relaxed,
slightly irregular pace while fenced code blocks stream quickly. Press
Ctrl-C while a reply is typing to stop it; the text shown so far is kept.
When stdout is not a terminal, replies are written without delay.

The conversation is kept in .chatstream/conversation.json and resumed on the
next run. Use --new to start over.

Examples:
  chatstream chat --model llama3.2
  chatstream chat --provider anthropic --model claude-sonnet-4-5
  chatstream chat --prose-base 50 --prose-variance 20 --new`

const chatShortDesc string = "Interactive LLM chat with paced, typed-out replies"

func NewChatCmd() *cobra.Command {
	return newChatCmd(&chatCommander{})
}

func newChatCmd(cmder *chatCommander) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, chatFlags, chatFlagKeys)
			cmder.load(v)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			if cmder.in == nil {
				cmder.in = cmd.InOrStdin()
			}
			if cmder.out == nil {
				cmder.out = cmd.OutOrStdout()
			}
			if !cmder.instant {
				cmder.instant = !isTerminal(cmder.out)
			}

			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, chatFlags, config.FlagServerTarget, &cmder.serverTarget)
	config.AddStringFlag(cmd, chatFlags, config.FlagModel, &cmder.model)
	config.AddStringFlag(cmd, chatFlags, config.FlagClientProvider, &cmder.providerName)
	config.AddUintFlag(cmd, chatFlags, config.FlagProseBase, &cmder.proseBase)
	config.AddUintFlag(cmd, chatFlags, config.FlagProseVariance, &cmder.proseVariance)
	config.AddUintFlag(cmd, chatFlags, config.FlagCodeBase, &cmder.codeBase)
	config.AddUintFlag(cmd, chatFlags, config.FlagCodeVariance, &cmder.codeVariance)
	config.AddUintFlag(cmd, chatFlags, config.FlagRunesPerTick, &cmder.runesPerTick)
	cmd.Flags().BoolVar(&cmder.newConv, "new", false, "Start a new conversation instead of resuming the saved one")
	cmd.Flags().BoolVar(&cmder.instant, "instant", false, "Write replies without typing delay")

	return cmd
}

func (c *chatCommander) load(v *viper.Viper) {
	c.serverTarget = strings.TrimRight(v.GetString("client.server_target"), "/")
	c.model = v.GetString("client.model")
	c.providerName = v.GetString("client.provider")
	c.proseBase = v.GetUint("pacer.prose_base_ms")
	c.proseVariance = v.GetUint("pacer.prose_variance_ms")
	c.codeBase = v.GetUint("pacer.code_base_ms")
	c.codeVariance = v.GetUint("pacer.code_variance_ms")
	c.runesPerTick = v.GetUint("pacer.runes_per_tick")
}

// calculator builds the delay calculator from the pacer settings. A class
// whose base and variance are both zero keeps its default profile.
func (c *chatCommander) calculator() *pacer.Calculator {
	return pacer.NewCalculator(
		pacer.WithProfile(pacer.ClassProse, profile(c.proseBase, c.proseVariance, pacer.ProseProfile)),
		pacer.WithProfile(pacer.ClassCode, profile(c.codeBase, c.codeVariance, pacer.CodeProfile)),
		pacer.WithProfile(pacer.ClassOther, pacer.Profile{}),
	)
}

func profile(baseMs, varianceMs uint, def pacer.Profile) pacer.Profile {
	if baseMs == 0 && varianceMs == 0 {
		return def
	}
	return pacer.Profile{
		Base:     time.Duration(baseMs) * time.Millisecond,
		Variance: time.Duration(varianceMs) * time.Millisecond,
	}
}

func (c *chatCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// stdout carries the conversation, logs go to stderr.
	c.logger = logger.NewLoggerWithWriters(c.debug, os.Stderr)
	defer func() { _ = c.logger.Sync() }()

	if c.model == "" {
		return errors.New("no model configured: pass --model or set client.model")
	}

	c.calc = c.calculator()
	if c.httpClient == nil {
		c.httpClient = &http.Client{
			// LLM responses can be slow
			Timeout: 5 * time.Minute,
		}
	}

	ddm := dotdir.NewManager()
	if c.newConv {
		if err := ddm.ClearConversation(c.configDir); err != nil {
			return fmt.Errorf("clearing conversation: %w", err)
		}
	}

	conv, err := ddm.LoadConversation(c.configDir)
	if err != nil {
		return fmt.Errorf("loading conversation: %w", err)
	}

	fmt.Fprintln(c.out)
	if conv != nil && len(conv.Messages) > 0 {
		fmt.Fprintf(c.out, "  %s Resuming conversation %s %s\n",
			cliui.SuccessMark,
			cliui.NameStyle.Render(conv.ID),
			cliui.DimStyle.Render(fmt.Sprintf("(%d messages)", len(conv.Messages))),
		)
	} else {
		conv = &dotdir.Conversation{ID: uuid.NewString()}
		fmt.Fprintf(c.out, "  %s New conversation\n", cliui.DimStyle.Render("●"))
	}

	fmt.Fprintf(c.out, "  %s %s\n\n",
		cliui.KeyStyle.Render("Model:"),
		cliui.NameStyle.Render(c.model),
	)
	fmt.Fprintf(c.out, "  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. Ctrl-C stops a reply, /exit or Ctrl-D quits."))

	scanner := bufio.NewScanner(c.in)

	for {
		fmt.Fprint(c.out, cliui.UserPrompt)
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/exit" {
			break
		}

		conv.Messages = append(conv.Messages, dotdir.ConversationMessage{Role: "user", Content: input})

		t, err := c.sendAndStream(ctx, conv)
		if err != nil {
			fmt.Fprintf(c.out, "  %s %v\n\n", cliui.FailMark, err)
			// Remove the failed user message so it can be retried.
			conv.Messages = conv.Messages[:len(conv.Messages)-1]
			continue
		}

		fmt.Fprintln(c.out)
		switch t.outcome.Status {
		case pacer.StateCancelled:
			fmt.Fprintf(c.out, "  %s\n", cliui.Stopped())
		case pacer.StateErrored:
			fmt.Fprintf(c.out, "  %s\n", cliui.Failed(t.outcome.Err))
		}
		fmt.Fprintln(c.out)

		// The revealed prefix of a stopped or failed reply stays in the
		// history. A reply that showed nothing is dropped with its prompt.
		if t.text == "" {
			conv.Messages = conv.Messages[:len(conv.Messages)-1]
			continue
		}
		conv.Messages = append(conv.Messages, dotdir.ConversationMessage{Role: "assistant", Content: t.text})

		if err := ddm.SaveConversation(conv, c.configDir); err != nil {
			c.logger.Warn("failed to save conversation", zap.Error(err))
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Fprintln(c.out)
	return nil
}

// sendAndStream posts the conversation to the server and paces the reply
// onto c.out. An error means nothing was revealed.
func (c *chatCommander) sendAndStream(parent context.Context, conv *dotdir.Conversation) (*turn, error) {
	body, err := buildRequest(c.providerName, c.model, conv.Messages)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	c.logger.Debug("sending chat request",
		zap.String("server_target", c.serverTarget),
		zap.String("model", c.model),
		zap.String("conversation_id", conv.ID),
		zap.Int("message_count", len(conv.Messages)),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverTarget+"/v1/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(header.ConversationHeader, conv.ID)
	if c.providerName != "" {
		req.Header.Set(header.ProviderHeader, c.providerName)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	c.logger.Debug("streaming reply",
		zap.String("message_id", resp.Header.Get(header.MessageIDHeader)),
	)

	fmt.Fprint(c.out, cliui.AssistantPrompt)

	renderer := newTerminalRenderer(c.out)
	p := pacer.New(ctx, renderer,
		pacer.WithCalculator(c.calc),
		pacer.WithRunesPerTick(int(c.runesPerTick)),
		pacer.WithInstant(c.instant),
		pacer.WithLogger(c.logger),
	)

	stopWatch := c.watchInterrupts(p, cancel)
	defer stopWatch()

	if err := pacer.Feed(ctx, p, resp.Body); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Debug("reply stream ended early", zap.Error(err))
	}

	// The renderer holds the full reply only once the pacer has finished.
	outcome := p.Wait()
	return &turn{text: renderer.Text(), outcome: outcome}, nil
}

// watchInterrupts stops p and aborts the request on Ctrl-C until the pacer
// finishes. The returned func releases the signal handler.
func (c *chatCommander) watchInterrupts(p *pacer.Pacer, cancel context.CancelFunc) func() {
	sigs := c.interrupts
	release := func() {}
	if sigs == nil {
		sigs = make(chan os.Signal, 1)
		signal.Notify(sigs, os.Interrupt)
		release = func() { signal.Stop(sigs) }
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-sigs:
			p.Stop()
			cancel()
		case <-p.Done():
		}
	}()

	return func() {
		<-done
		release()
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Package chatcmder provides the chat command for interactive LLM chat
// through a streampump server.
package chatcmder

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/papercomputeco/streampump/pkg/cliui"
	"github.com/papercomputeco/streampump/pkg/config"
	"github.com/papercomputeco/streampump/pkg/credentials"
	"github.com/papercomputeco/streampump/pkg/dialect"
	"github.com/papercomputeco/streampump/pkg/dotdir"
	"github.com/papercomputeco/streampump/pkg/llm"
	"github.com/papercomputeco/streampump/pkg/logger"
	"github.com/papercomputeco/streampump/pkg/session"
	"github.com/papercomputeco/streampump/pkg/utils"
)

var (
	userPrompt      = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true).Render("you> ")
	assistantPrompt = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("assistant> ")
)

// natural stop reasons are not worth reporting after a reply.
var naturalStops = map[string]bool{
	"stop":     true,
	"end_turn": true,
	"STOP":     true,
}

type chatCommander struct {
	serverTarget string
	dialect      string
	model        string
	apiKey       string
	system       string
	fresh        bool
	debug        bool
	configDir    string

	client *http.Client
	out    io.Writer
	logger *zap.Logger
}

var chatFlags = config.FlagSet{
	config.FlagServerTarget: {
		Name:        "server-target",
		Shorthand:   "s",
		ViperKey:    "client.server_target",
		Description: "streampump server URL",
	},
	config.FlagDialect: {
		Name:        "dialect",
		Shorthand:   "p",
		ViperKey:    "client.dialect",
		Description: "Upstream dialect (anthropic, gemini, ollama, openai)",
	},
	config.FlagModel: {
		Name:        "model",
		Shorthand:   "m",
		ViperKey:    "client.model",
		Description: "Model name (e.g., llama3.2, gpt-4o-mini)",
	},
}

var chatFlagKeys = []string{config.FlagServerTarget, config.FlagDialect, config.FlagModel}

const chatLongDesc string = `Start an interactive chat session through a streampump server.

Each message is sent with the full conversation history to the server, which
streams the reply from the selected upstream dialect. Retry notices and stop
reasons reported by the server are shown inline.

The conversation is saved to the .streampump/ directory after every reply and
resumed on the next run. Use --new to start fresh.

The API key is read from --api-key, then the vendor's usual environment
variable (OPENAI_API_KEY, ANTHROPIC_API_KEY, GEMINI_API_KEY), then the
credentials stored with "streampump auth".

Examples:
  streampump chat
  streampump chat --dialect anthropic --model claude-sonnet-4-5
  streampump chat --new --system "Answer in one sentence."`

const chatShortDesc string = "Interactive LLM chat through a streampump server"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{
		client: &http.Client{},
		out:    os.Stdout,
	}

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

			return cmder.run(cmd.InOrStdin())
		},
	}

	config.AddStringFlag(cmd, chatFlags, config.FlagServerTarget, &cmder.serverTarget)
	config.AddStringFlag(cmd, chatFlags, config.FlagDialect, &cmder.dialect)
	config.AddStringFlag(cmd, chatFlags, config.FlagModel, &cmder.model)
	cmd.Flags().StringVarP(&cmder.apiKey, "api-key", "k", "", "Upstream API key (default: environment, then stored credentials)")
	cmd.Flags().StringVar(&cmder.system, "system", "", "System prompt for a new conversation")
	cmd.Flags().BoolVar(&cmder.fresh, "new", false, "Discard the saved conversation and start fresh")

	return cmd
}

func (c *chatCommander) load(v *viper.Viper) {
	c.serverTarget = strings.TrimRight(v.GetString("client.server_target"), "/")
	c.dialect = strings.ToLower(strings.TrimSpace(v.GetString("client.dialect")))
	c.model = v.GetString("client.model")
}

// resolveKey fills the API key from the environment or stored credentials
// when --api-key was not given.
func (c *chatCommander) resolveKey() error {
	if c.apiKey != "" {
		return nil
	}

	mgr, err := credentials.NewManager(c.configDir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	c.apiKey, err = mgr.ResolveKey(c.dialect)
	return err
}

func (c *chatCommander) run(in io.Reader) error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	if _, err := dialect.New(c.dialect); err != nil {
		return err
	}
	if err := c.resolveKey(); err != nil {
		return err
	}

	ddm := dotdir.NewManager()
	if c.fresh {
		if err := ddm.ClearConversation(c.configDir); err != nil {
			return fmt.Errorf("clearing conversation: %w", err)
		}
	}

	state, err := ddm.LoadConversation(c.configDir)
	if err != nil {
		return fmt.Errorf("loading conversation: %w", err)
	}

	fmt.Fprintln(c.out)
	if state != nil && len(state.Messages) > 0 {
		fmt.Fprintf(c.out, "  %s Resuming conversation %s\n",
			cliui.SuccessMark,
			cliui.DimStyle.Render(fmt.Sprintf("(%d messages)", len(state.Messages))),
		)
	} else {
		state = &dotdir.ConversationState{}
		if c.system != "" {
			state.Messages = append(state.Messages, llm.NewTextMessage(llm.RoleSystem, c.system))
		}
		fmt.Fprintf(c.out, "  %s New conversation\n", cliui.DimStyle.Render("●"))
	}
	state.Dialect = c.dialect
	state.Model = c.model

	fmt.Fprintf(c.out, "  %s %s %s\n\n",
		cliui.KeyStyle.Render("Model:"),
		cliui.ValueStyle.Render(c.model),
		cliui.DimStyle.Render("via "+c.dialect),
	)
	fmt.Fprintf(c.out, "  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /exit or Ctrl+D to quit, /clear to start over."))

	scanner := bufio.NewScanner(in)

	for {
		fmt.Fprint(c.out, userPrompt)
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
		if input == "/clear" {
			state.Messages = nil
			if err := ddm.ClearConversation(c.configDir); err != nil {
				return fmt.Errorf("clearing conversation: %w", err)
			}
			fmt.Fprintf(c.out, "  %s Conversation cleared\n\n", cliui.SuccessMark)
			continue
		}

		state.Messages = append(state.Messages, llm.NewTextMessage(llm.RoleUser, input))

		reply, err := c.turn(state.Messages)
		if err != nil || reply == "" {
			if err != nil {
				fmt.Fprintf(c.out, "  %s %v\n", cliui.FailMark, err)
			}
			// Drop the unanswered message so it can be retried.
			state.Messages = state.Messages[:len(state.Messages)-1]
			continue
		}

		state.Messages = append(state.Messages, llm.NewTextMessage(llm.RoleAssistant, reply))
		if err := ddm.SaveConversation(state, c.configDir); err != nil {
			c.logger.Warn("could not save conversation", zap.Error(err))
		}

		fmt.Fprintln(c.out)
		fmt.Fprintln(c.out)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Fprintln(c.out)
	return nil
}

// turn streams one reply. Ctrl+C aborts the reply without leaving the chat.
func (c *chatCommander) turn(history []llm.Message) (string, error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	reply, err := c.sendAndStream(ctx, history)
	if errors.Is(err, context.Canceled) {
		fmt.Fprintf(c.out, "\n  %s\n", cliui.WarnStyle.Render("interrupted"))
		return "", nil
	}
	return reply, err
}

// sendAndStream posts the history to the server and renders the event stream.
// Returns the full assistant response text.
func (c *chatCommander) sendAndStream(ctx context.Context, history []llm.Message) (string, error) {
	req := llm.GenerateRequest{
		Access: llm.Access{
			Dialect: c.dialect,
			APIKey:  c.apiKey,
		},
		Model:   llm.Model{ID: c.model},
		History: history,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	c.logger.Debug("sending chat request",
		zap.String("server_target", c.serverTarget),
		zap.String("dialect", c.dialect),
		zap.String("model", c.model),
		zap.Int("message_count", len(history)),
	)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverTarget+"/v1/chat/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("sending request to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("server returned status %d: %s", resp.StatusCode, utils.Truncate(string(respBody), 200))
	}

	r := &renderer{out: c.out, logger: c.logger}
	if err := r.consume(resp.Body); err != nil {
		return r.text.String(), err
	}
	r.finish()

	return r.text.String(), nil
}

// renderer prints downstream events as they arrive.
type renderer struct {
	out    io.Writer
	logger *zap.Logger

	text       strings.Builder
	stopReason string
}

func (r *renderer) consume(body io.Reader) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var ev session.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			r.logger.Debug("failed to parse stream event",
				zap.Error(err),
				zap.String("line", string(line)),
			)
			continue
		}
		r.handle(ev)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stream: %w", err)
	}
	return nil
}

func (r *renderer) handle(ev session.Event) {
	switch {
	case ev.CG == session.ControlStart:
		fmt.Fprint(r.out, assistantPrompt)

	case ev.T != "":
		fmt.Fprint(r.out, ev.T)
		r.text.WriteString(ev.T)

	case ev.Set != nil:
		if reason, ok := ev.Set["stopReason"].(string); ok {
			r.stopReason = reason
		}
		if retry, ok := ev.Set["retry"].(map[string]any); ok {
			fmt.Fprintf(r.out, "%s", cliui.WarnStyle.Render(retryNotice(retry)))
		}
	}
}

func (r *renderer) finish() {
	if r.stopReason != "" && !naturalStops[r.stopReason] {
		fmt.Fprintf(r.out, "\n  %s", cliui.DimStyle.Render("[stopped: "+r.stopReason+"]"))
	}
}

// retryNotice formats a retry set value. JSON numbers decode as float64.
func retryNotice(retry map[string]any) string {
	attempt, _ := retry["attempt"].(float64)
	maxAttempts, _ := retry["maxAttempts"].(float64)
	delayMs, _ := retry["delayMs"].(float64)

	cause := "connection error"
	if status, ok := retry["causeHttp"].(float64); ok {
		cause = fmt.Sprintf("HTTP %d", int(status))
	}

	return fmt.Sprintf("[retrying after %s, attempt %d/%d in %.1fs] ",
		cause, int(attempt), int(maxAttempts), delayMs/1000)
}

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minhyannv/function-call-go/pkg/agent"
	"github.com/minhyannv/function-call-go/pkg/chat"
	loggerpkg "github.com/minhyannv/function-call-go/pkg/logger"
	"github.com/spf13/cobra"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start an interactive conversation",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		a, err := newApp(cfg, nil, out)
		if err != nil {
			return err
		}
		session, err := agent.NewSession(a.driver, cfg.SystemPrompt)
		if err != nil {
			return err
		}
		render, _ := cmd.Flags().GetBool("render")

		ctx, stop := signalContext(cmd.Context())
		defer stop()
		return runREPL(ctx, session, replOptions{
			Streamed: cfg.Stream,
			Render:   newRenderer(render && !cfg.Stream),
			Verbose:  cfg.Verbose,
			Logger:   a.logger,
		}, cmd.InOrStdin(), out)
	},
}

func init() {
	rootCmd.AddCommand(replCmd)
	replCmd.Flags().Bool("render", false, "Render answers as markdown")
}

// replOptions configures REPL behavior.
type replOptions struct {
	Streamed bool
	Render   func(string) string
	Verbose  bool
	Logger   loggerpkg.Logger
}

// runREPL starts an interactive REPL session.
func runREPL(ctx context.Context, session *agent.Session, opts replOptions, in io.Reader, out io.Writer) error {
	if session == nil {
		return fmt.Errorf("session is required")
	}
	if in == nil {
		return fmt.Errorf("input reader is required")
	}
	if out == nil {
		out = io.Discard
	}
	if opts.Render == nil {
		opts.Render = func(s string) string { return s }
	}

	loggerpkg.Debug(opts.Verbose, opts.Logger, "repl start", map[string]any{
		"conversation_id": session.Conversation().ID,
	})

	scanner := bufio.NewScanner(in)
	printWelcome(out)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, _ = fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			handled, shouldQuit := handleCommand(input, session, out)
			if shouldQuit {
				break
			}
			if handled {
				continue
			}
		}

		res, err := session.Ask(ctx, input)
		if err != nil {
			_, _ = fmt.Fprintf(out, "Error: %v\n\n", err)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		if opts.Streamed {
			_, _ = fmt.Fprint(out, "\n\n")
			continue
		}
		_, _ = fmt.Fprintf(out, "%s\n\n", opts.Render(res.Answer))
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}

func printWelcome(out io.Writer) {
	_, _ = fmt.Fprintln(out, "=== function-call - Interactive Mode ===")
	_, _ = fmt.Fprintln(out, "Type your message and press Enter. Commands:")
	printCommands(out)
}

func handleCommand(input string, session *agent.Session, out io.Writer) (bool, bool) {
	cmd := strings.ToLower(input)
	switch cmd {
	case "/help", "/h":
		_, _ = fmt.Fprintln(out, "Commands:")
		printCommands(out)
		return true, false
	case "/clear", "/c":
		if err := session.Reset(); err != nil {
			_, _ = fmt.Fprintf(out, "Error: %v\n\n", err)
			return true, false
		}
		_, _ = fmt.Fprintln(out, "Conversation history cleared.")
		_, _ = fmt.Fprintln(out)
		return true, false
	case "/tools", "/t":
		for _, name := range session.Driver().Registry().Names() {
			_, _ = fmt.Fprintf(out, "  %s\n", name)
		}
		_, _ = fmt.Fprintln(out)
		return true, false
	case "/history":
		for _, msg := range session.Conversation().Messages() {
			_, _ = fmt.Fprintf(out, "[%s] %s\n", msg.Role, summarizeMessage(msg.Content, msg.ToolCalls))
		}
		_, _ = fmt.Fprintln(out)
		return true, false
	case "/quit", "/exit", "/q":
		_, _ = fmt.Fprintln(out, "Goodbye!")
		return true, true
	default:
		_, _ = fmt.Fprintf(out, "Unknown command: %s. Type /help for available commands.\n\n", input)
		return true, false
	}
}

func printCommands(out io.Writer) {
	_, _ = fmt.Fprintln(out, "  /help    - Show this help message")
	_, _ = fmt.Fprintln(out, "  /clear   - Clear conversation history")
	_, _ = fmt.Fprintln(out, "  /tools   - List available tools")
	_, _ = fmt.Fprintln(out, "  /history - Show the conversation so far")
	_, _ = fmt.Fprintln(out, "  /quit    - Exit the program")
	_, _ = fmt.Fprintln(out, "  /exit    - Exit the program")
	_, _ = fmt.Fprintln(out)
}

// summarizeMessage renders one history line.
func summarizeMessage(content string, calls []chat.ToolCall) string {
	if len(calls) > 0 {
		names := make([]string, len(calls))
		for i, c := range calls {
			names[i] = fmt.Sprintf("%s(%s)", c.Name, c.Arguments)
		}
		return "calls " + strings.Join(names, ", ")
	}
	content = strings.ReplaceAll(content, "\n", " ")
	if len(content) > 120 {
		content = content[:117] + "..."
	}
	return content
}

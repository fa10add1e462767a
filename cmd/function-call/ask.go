package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minhyannv/function-call-go/pkg/agent"
	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask one question and print the final answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		a, err := newApp(cfg, nil, out)
		if err != nil {
			return err
		}
		transcriptPath, _ := cmd.Flags().GetString("transcript")
		render, _ := cmd.Flags().GetBool("render")

		ctx, stop := signalContext(cmd.Context())
		defer stop()
		return runAsk(ctx, a, askOptions{
			Question:   strings.Join(args, " "),
			Transcript: transcriptPath,
			Render:     newRenderer(render && !cfg.Stream),
			Streamed:   cfg.Stream,
		}, out)
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().String("transcript", "", "Write the conversation as YAML to this file")
	askCmd.Flags().Bool("render", false, "Render the answer as markdown")
}

type askOptions struct {
	Question   string
	Transcript string
	Render     func(string) string
	// Streamed means the answer was already written while it arrived.
	Streamed bool
}

func runAsk(ctx context.Context, a *app, opts askOptions, out io.Writer) error {
	session, err := agent.NewSession(a.driver, a.cfg.SystemPrompt)
	if err != nil {
		return err
	}
	res, runErr := session.Ask(ctx, opts.Question)

	if opts.Transcript != "" {
		t := newTranscript(a.cfg.Model, opts.Question, session.Conversation(), res, runErr)
		if err := writeTranscript(opts.Transcript, t); err != nil {
			return err
		}
	}
	if runErr != nil {
		return runErr
	}

	if opts.Streamed {
		_, _ = fmt.Fprintln(out)
		return nil
	}
	render := opts.Render
	if render == nil {
		render = func(s string) string { return s }
	}
	_, _ = fmt.Fprintln(out, render(res.Answer))
	return nil
}

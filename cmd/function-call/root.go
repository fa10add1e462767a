package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	configpkg "github.com/minhyannv/function-call-go/pkg/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "function-call",
	Short: "Tool-calling conversations over chat completion APIs",
	Long: `function-call sends a conversation with declared tools to an OpenAI-compatible
model, runs the tools it asks for and feeds the results back until it answers.

Configuration is read from an optional YAML file, FUNCCALL_* and OPENAI_*
environment variables and a .env file in the working directory.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// signalContext is cancelled by SIGINT or SIGTERM so in-flight runs and tool
// handlers stop cooperatively. The first signal restores default handling, so
// a second Ctrl-C exits immediately.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	context.AfterFunc(ctx, stop)
	return ctx, stop
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to a YAML config file")
	flags.String("model", "", "Model name (overrides config)")
	flags.Int("max_rounds", 0, "Max tool rounds per question (overrides config)")
	flags.String("tool_choice", "", "Tool choice: auto, none or a tool name (overrides config)")
	flags.Bool("stream", false, "Stream assistant output")
	flags.Bool("verbose", false, "Verbose tool-call logging")
	flags.String("log_format", "", "Log format: text or json (overrides config)")
}

// loadConfig loads the config file and environment, then applies flags the
// user set explicitly.
func loadConfig(cmd *cobra.Command) (configpkg.Config, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")
	cfg, err := configpkg.Load(path)
	if err != nil {
		return configpkg.Config{}, err
	}

	if flags.Changed("model") {
		cfg.Model, _ = flags.GetString("model")
	}
	if flags.Changed("max_rounds") {
		cfg.MaxRounds, _ = flags.GetInt("max_rounds")
	}
	if flags.Changed("tool_choice") {
		cfg.ToolChoice, _ = flags.GetString("tool_choice")
	}
	if flags.Changed("stream") {
		cfg.Stream, _ = flags.GetBool("stream")
	}
	if flags.Changed("verbose") {
		cfg.Verbose, _ = flags.GetBool("verbose")
	}
	if flags.Changed("log_format") {
		cfg.LogFormat, _ = flags.GetString("log_format")
	}
	return configpkg.Normalize(cfg), nil
}

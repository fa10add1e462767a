package main

import (
	"fmt"
	"io"
	"os"

	"github.com/minhyannv/function-call-go/pkg/agent"
	configpkg "github.com/minhyannv/function-call-go/pkg/config"
	"github.com/minhyannv/function-call-go/pkg/dispatch"
	loggerpkg "github.com/minhyannv/function-call-go/pkg/logger"
	"github.com/minhyannv/function-call-go/pkg/metrics"
	"github.com/minhyannv/function-call-go/pkg/request"
	"github.com/minhyannv/function-call-go/pkg/tools"
	"github.com/minhyannv/function-call-go/pkg/transport"
	"github.com/prometheus/client_golang/prometheus"
)

// app wires the runtime from a config.
type app struct {
	cfg      configpkg.Config
	logger   loggerpkg.Logger
	registry *tools.Registry
	promReg  *prometheus.Registry
	metrics  *metrics.Metrics
	driver   *agent.Driver
}

func newLogger(cfg configpkg.Config, w io.Writer) loggerpkg.Logger {
	if cfg.LogFormat == configpkg.LogFormatJSON {
		return loggerpkg.NewJSONLogger(w)
	}
	return loggerpkg.NewWriterLogger(w)
}

// newApp builds the driver. A nil tr selects the OpenAI transport, which
// streams content to streamOut when cfg.Stream is set.
func newApp(cfg configpkg.Config, tr transport.Transport, streamOut io.Writer) (*app, error) {
	logger := newLogger(cfg, os.Stderr)

	registry := tools.NewRegistry(tools.WithLogger(logger, cfg.Verbose))
	if err := tools.RegisterBuiltins(registry); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}
	if len(cfg.AllowedDirs) > 0 {
		if err := tools.RegisterReadFile(registry, cfg.AllowedDirs, cfg.MaxReadBytes); err != nil {
			return nil, fmt.Errorf("register read_file: %w", err)
		}
	}

	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)

	if tr == nil {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		tr = transport.NewOpenAI(transport.Config{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
			Retry: transport.RetryConfig{
				MaxRetries: cfg.Retry.MaxRetries,
				BaseDelay:  cfg.Retry.BaseDelay,
				MaxDelay:   cfg.Retry.MaxDelay,
			},
			Stream:       cfg.Stream,
			StreamWriter: streamOut,
			OnRetry:      m.ObserveRetry,
			Logger:       logger,
			Verbose:      cfg.Verbose,
		})
	}

	disp := dispatch.New(registry,
		dispatch.WithConcurrency(cfg.Concurrency),
		dispatch.WithMaxResultBytes(cfg.MaxResultBytes),
		dispatch.WithObserver(m.ObserveToolCall),
		dispatch.WithLogger(logger, cfg.Verbose),
	)
	driver, err := agent.New(registry, tr, cfg.Model,
		agent.WithLogger(logger, cfg.Verbose),
		agent.WithMaxRounds(cfg.MaxRounds),
		agent.WithToolChoice(request.ParseToolChoice(cfg.ToolChoice)),
		agent.WithLimits(request.Limits{
			MaxTokens:       cfg.MaxTokens,
			MaxPromptTokens: cfg.MaxPromptTokens,
			MaxMessageBytes: cfg.MaxMessageBytes,
			MaxMessages:     cfg.MaxMessages,
		}),
		agent.WithDispatcher(disp),
		agent.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		promReg:  promReg,
		metrics:  m,
		driver:   driver,
	}, nil
}

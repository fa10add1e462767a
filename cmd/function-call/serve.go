package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	loggerpkg "github.com/minhyannv/function-call-go/pkg/logger"
	"github.com/minhyannv/function-call-go/pkg/server"
	"github.com/minhyannv/function-call-go/pkg/store"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Serves POST /v1/chat, GET /v1/tools, conversation management under
/v1/conversations, GET /metrics and GET /healthz. Conversations are kept in
Redis when redis_addr is configured, otherwise in memory.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("addr") {
			cfg.ListenAddr, _ = cmd.Flags().GetString("addr")
		}
		cfg.Stream = false

		a, err := newApp(cfg, nil, nil)
		if err != nil {
			return err
		}

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		var st store.Store = store.NewMemory()
		if cfg.RedisAddr != "" {
			rs := store.NewRedis(cfg.RedisAddr, "", 0, store.WithTTL(cfg.RedisTTL))
			defer func() { _ = rs.Close() }()
			if err := rs.Ping(ctx); err != nil {
				return fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
			}
			st = rs
		}

		srv := server.New(a.driver, st,
			server.WithLogger(a.logger, cfg.Verbose),
			server.WithGatherer(a.promReg),
			server.WithSystemPrompt(cfg.SystemPrompt),
		)
		return serveHTTP(ctx, &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}, a.logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (overrides listen_addr)")
}

// serveHTTP runs srv until ctx is done, then shuts it down gracefully.
func serveHTTP(ctx context.Context, srv *http.Server, logger loggerpkg.Logger) error {
	serverErrors := make(chan error, 1)
	go func() {
		loggerpkg.Info(logger, "http server listening", map[string]any{"addr": srv.Addr})
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		loggerpkg.Info(logger, "http server shutting down", nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
			return fmt.Errorf("graceful shutdown did not complete in %v: %w", shutdownTimeout, err)
		}
		return nil
	}
}

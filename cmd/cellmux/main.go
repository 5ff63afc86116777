package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"cellmux/internal/coalesce"
	"cellmux/internal/config"
	"cellmux/internal/server"
	"cellmux/internal/upstream"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "cellmux",
		Short:        "Request-coalescing layer for rate-limited sheet backends",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.json", "path to config file")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		// Basic logger for startup errors
		log := zerolog.New(os.Stderr).With().Timestamp().Logger()
		log.Error().Err(err).Msg("failed to load config")
		return err
	}

	logger := setupLogger(cfg.LogLevel)
	logger.Info().
		Str("config", configPath).
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Int("windowMaxWait", cfg.Window.MaxWait).
		Int("windowMaxRequests", cfg.Window.MaxRequests).
		Msg("starting cellmux")

	service, closeService, err := buildService(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect upstream")
		return err
	}

	coalescer, err := coalesce.New(coalesce.Config{
		MaxWait:        cfg.GetWindowMaxWaitDuration(),
		MaxRequests:    cfg.Window.MaxRequests,
		CallTimeout:    cfg.GetRequestTimeoutDuration(),
		WasteFactor:    cfg.Merge.WasteFactor,
		Adjacency:      cfg.Merge.Adjacency,
		ParseCacheSize: cfg.ParseCacheSize,
	}, service, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to create coalescer")
		return err
	}

	srv := server.New(cfg, coalescer, logger)
	if err := srv.Start(); err != nil {
		logger.Error().Err(err).Msg("failed to start server")
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Stop(ctx); err != nil {
		logger.Error().Err(err).Msg("error during shutdown")
	}
	closeService()
	return nil
}

// buildService picks the upstream transport from config: WebSocket when
// preferred and configured, REST otherwise.
func buildService(cfg *config.Config, logger zerolog.Logger) (upstream.SheetService, func(), error) {
	if cfg.Upstream.PreferWS {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		ws, err := upstream.DialWS(ctx, upstream.WSClientConfig{
			URL:            cfg.Upstream.WSURL,
			RequestTimeout: cfg.GetRequestTimeoutDuration(),
			Logger:         logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return ws, func() { ws.Close() }, nil
	}

	client := upstream.NewClient(upstream.ClientConfig{
		BaseURL:        cfg.Upstream.BaseURL,
		RequestTimeout: cfg.GetRequestTimeoutDuration(),
		Logger:         logger,
	})
	return client, func() {}, nil
}

// setupLogger configures the zerolog logger
func setupLogger(level string) zerolog.Logger {
	var logLevel zerolog.Level
	switch level {
	case "debug":
		logLevel = zerolog.DebugLevel
	case "info":
		logLevel = zerolog.InfoLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	default:
		logLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(logLevel)

	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}

	return zerolog.New(output).With().Timestamp().Logger()
}

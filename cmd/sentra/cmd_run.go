package main

// ---------------------------------------------------------------------------
// cmd_run.go — start the engine: pipeline, API server, simulator
// ---------------------------------------------------------------------------

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/sentra-project/sentra/internal/api"
	"github.com/sentra-project/sentra/internal/core"
)

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(args)

	cfg := loadConfigOrDefault(envConfig(*configPath))
	logger := newLogger(cfg.Logging)

	engine, err := core.NewEngine(cfg, logger)
	if err != nil {
		errorf("starting engine: %v", err)
	}

	var server *api.Server
	if cfg.Server.Enabled {
		server = api.NewServer(engine, logger)
		if err := server.Start(); err != nil {
			errorf("starting API server: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		if server != nil {
			_ = server.Stop()
		}
		cancel()
	}()

	if err := engine.Run(ctx); err != nil && err != context.Canceled {
		errorf("engine: %v", err)
	}
}

// newLogger builds the root zerolog logger from config.
func newLogger(cfg core.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/myquery/myquery/internal/agent"
	"github.com/myquery/myquery/internal/cli/myquery"
	"github.com/myquery/myquery/internal/config"
	"github.com/myquery/myquery/internal/observability"
)

func main() {
	cfg, err := config.LoadFromEnv("myquery")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	// stdout belongs to command output and to the stdio tool server
	logger := observability.NewLogger(cfg, os.Stderr)
	agentOpts, err := agent.OptionsFromConfig(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize query translator", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := myquery.Run(ctx, os.Args[1:], myquery.Options{
		Config: cfg,
		Agent:  agentOpts,
		Logger: logger,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	})
	stop()
	os.Exit(code)
}

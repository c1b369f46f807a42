package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/myquery/myquery/internal/agent"
	"github.com/myquery/myquery/internal/api"
	"github.com/myquery/myquery/internal/auth"
	"github.com/myquery/myquery/internal/config"
	"github.com/myquery/myquery/internal/mcp"
	"github.com/myquery/myquery/internal/observability"
	"github.com/myquery/myquery/internal/session"
)

func main() {
	cfg, err := config.LoadFromEnv("myquery-mcp")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	agentOpts, err := agent.OptionsFromConfig(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize query translator", slog.Any("error", err))
		os.Exit(1)
	}

	sessions := session.NewStore[mcp.Agent](session.Config{
		IdleTTL:     cfg.Session.IdleTTL,
		MaxSessions: cfg.Session.MaxSessions,
	}, func() (mcp.Agent, error) {
		return agent.New(agentOpts), nil
	}, logger)
	defer func() { _ = sessions.Close() }()
	dispatcher := mcp.NewDispatcher(sessions, logger)

	deps := api.Dependencies{
		Logger:     logger,
		Dispatcher: dispatcher,
		Readiness: api.CombineReadinessChecks(
			api.CheckObjectStoreConfig(cfg),
			api.CheckSessionCapacity(dispatcher, cfg.Session.MaxSessions),
		),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      api.NewHandler(cfg, deps),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting mcp server", slog.String("addr", cfg.HTTP.Address), slog.String("version", cfg.Service.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("mcp server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down mcp server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

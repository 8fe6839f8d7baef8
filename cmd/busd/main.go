package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/ccheshirecat/msgbus/internal/event"
	"github.com/ccheshirecat/msgbus/internal/msgbus"
	"github.com/ccheshirecat/msgbus/internal/msgbus/loop"
	"github.com/ccheshirecat/msgbus/internal/server/app"
	"github.com/ccheshirecat/msgbus/internal/server/catalog"
	"github.com/ccheshirecat/msgbus/internal/server/catalog/sqlite"
	"github.com/ccheshirecat/msgbus/internal/server/config"
	"github.com/ccheshirecat/msgbus/internal/server/httpapi"
	"github.com/ccheshirecat/msgbus/internal/server/session"
	"github.com/ccheshirecat/msgbus/internal/server/traffic"
	"github.com/ccheshirecat/msgbus/internal/shared/logging"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := logging.New("busd")

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}
	logger = logging.NewWithLevel(os.Stdout, "busd", cfg.LogLevel)

	store, err := sqlite.Open(ctx, cfg.DatabasePath)
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}

	if cfg.TopicsFile != "" {
		topics, err := catalog.LoadSeed(cfg.TopicsFile)
		if err != nil {
			logger.Error("load topics file", "path", cfg.TopicsFile, "error", err)
			os.Exit(1)
		}
		if err := catalog.Seed(ctx, store, topics); err != nil {
			logger.Error("seed topics", "error", err)
			os.Exit(1)
		}
		logger.Info("topics seeded", "count", len(topics))
	}

	bus := msgbus.New(event.NewRegistry(),
		msgbus.WithLogger(logger.With("component", "msgbus")),
		msgbus.WithCapacity(cfg.MaxSubscriptions),
	)
	busLoop := loop.New(bus, logger.With("component", "loop"))

	counter := traffic.NewCounter()
	if err := busLoop.Post(ctx, func(b *msgbus.Bus) {
		if err := counter.Attach(b); err != nil {
			logger.Error("attach traffic counter", "error", err)
		}
	}); err != nil {
		logger.Error("queue traffic counter", "error", err)
		os.Exit(1)
	}

	sessions := session.NewServer(busLoop, catalog.Resolver{Repo: store.Topics()}, logger.With("component", "session"))
	handler := httpapi.New(httpapi.Options{
		Logger:     logger,
		Loop:       busLoop,
		Topics:     store.Topics(),
		Sessions:   sessions,
		Traffic:    counter,
		APIKey:     cfg.APIKey,
		AllowCIDRs: cfg.AllowCIDRs,
	})

	daemon, err := app.New(cfg, logger, busLoop, store, handler)
	if err != nil {
		logger.Error("init app", "error", err)
		os.Exit(1)
	}
	daemon.OnShutdown(sessions.CloseAll)

	if err := daemon.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("daemon exit", "error", err)
		os.Exit(1)
	}
}

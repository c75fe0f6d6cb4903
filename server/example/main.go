// Copyright 2025 The Bolt Events Authors
// SPDX-License-Identifier: Apache-2.0

// Command example runs a bolt-events server with the fake executor. With
// BOLT_REDIS_ADDR set the event log lives in Redis Streams; otherwise it
// runs fully in memory.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/daniprol/bolt-events/agent"
	"github.com/daniprol/bolt-events/config"
	"github.com/daniprol/bolt-events/server"
	"github.com/daniprol/bolt-events/server/task"
	"github.com/daniprol/bolt-events/stream"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfgPath := ""
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	opts := stream.Options{Prefix: cfg.Stream.Prefix, MaxLen: cfg.Stream.MaxLen}
	var log stream.EventLog
	if cfg.Redis.Addr != "" {
		redisLog := stream.NewRedisLog(stream.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB), opts).WithLogger(logger)
		log = redisLog
		logger.Info("using redis event log", "addr", cfg.Redis.Addr, "prefix", cfg.Stream.Prefix)
	} else {
		log = stream.NewMemoryLog(opts).WithLogger(logger)
		logger.Info("using in-memory event log")
	}
	defer log.Close()

	store := task.NewInMemoryTaskStore()
	executor := agent.NewFakeExecutor()

	manager := server.NewTaskManager(log, store, executor).
		WithLogger(logger).
		WithConversationStore(task.NewInMemoryConversationStore()).
		WithPushNotifications(
			task.NewInMemoryPushNotificationConfigStore(),
			server.NewPushNotifier().WithLogger(logger),
		)

	card := &server.AgentCard{
		Name:        cfg.Server.AgentName,
		Description: "Streaming task agent backed by an append-only event log",
		URL:         "http://localhost" + cfg.Server.Addr,
		Version:     "1.0.0",
		Capabilities: server.AgentCapabilities{
			Streaming:         true,
			PushNotifications: true,
		},
	}

	srv, err := server.NewServer(server.Config{
		Addr:        cfg.Server.Addr,
		AgentCard:   card,
		TaskManager: manager,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

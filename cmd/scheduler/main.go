// Package main runs the venuescout Scheduler process (C10).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/venuescout/venuescout/internal/config"
	"github.com/venuescout/venuescout/internal/logging"
	"github.com/venuescout/venuescout/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.AppEnv == "local")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	color.Cyan("venuescout scheduler — env=%s interval=%ds", cfg.AppEnv, cfg.SchedulerSleepSeconds)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := services.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("services init failed", zap.Error(err))
		os.Exit(1)
	}
	defer svc.Close()

	logger.Info("scheduler starting", zap.Int("interval_seconds", cfg.SchedulerSleepSeconds))
	svc.Scheduler.Run(ctx)
	logger.Info("scheduler stopped")
}

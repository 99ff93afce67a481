// Package main runs the venuescout Embedding Producer process (C11) on a
// periodic tick.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

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

	color.Cyan("venuescout embedding producer — env=%s model=%s", cfg.AppEnv, cfg.EmbeddingModel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := services.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("services init failed", zap.Error(err))
		os.Exit(1)
	}
	defer svc.Close()

	if svc.Embedder == nil {
		logger.Error("embedding client unavailable at startup, exiting")
		os.Exit(1)
	}

	// The embedder shares the scheduler's cadence and batch size: both are
	// low-frequency background sweeps over the same venue population.
	interval := time.Duration(cfg.SchedulerSleepSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("embedding producer starting", zap.Duration("interval", interval))
	runOnce(ctx, svc, logger)
	for {
		select {
		case <-ctx.Done():
			logger.Info("embedding producer stopped")
			return
		case <-ticker.C:
			runOnce(ctx, svc, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *services.Services, logger *zap.Logger) {
	n, err := svc.Embedder.RunOnce(ctx, svc.Config.SchedulerBatchSize)
	if err != nil {
		logger.Error("embedding cycle failed", zap.Error(err))
		return
	}
	logger.Info("embedding cycle complete", zap.Int("embedded", n))
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/in004/bookscape/internal/config"
	"github.com/in004/bookscape/internal/logger"
	"github.com/in004/bookscape/internal/server"
)

const sweepBatch = 100

func main() {
	cfg, err := config.Load(config.Dir())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	lg, err := logger.Init(&cfg.Log)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer lg.Sync()

	svcs, cleanup := server.Bootstrap(cfg, lg)
	defer cleanup()

	interval := cfg.Checkout.SweepInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	lg.Info("reconcile sweeper started", zap.Duration("interval", interval))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// 立即执行一次
	sweep(ctx, svcs, lg)
	for {
		select {
		case <-ctx.Done():
			lg.Info("reconcile sweeper stopped")
			return
		case <-ticker.C:
			sweep(ctx, svcs, lg)
		}
	}
}

func sweep(ctx context.Context, svcs *server.Services, lg *zap.Logger) {
	n, err := svcs.Checkout.SweepReview(ctx, sweepBatch)
	if err != nil {
		lg.Error("sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		lg.Info("review orders finalized", zap.Int("count", n))
	}
}

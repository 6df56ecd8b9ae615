package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/athiyenarivalagan/hft-market-making/internal/config"
	"github.com/athiyenarivalagan/hft-market-making/internal/feed"
)

func main() {
	cfg, err := config.LoadSenderFromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.SlogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if _, err := os.Stat(cfg.File); err != nil {
		logger.Error("feed_file_unavailable", "file", cfg.File, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		logger.Error("listen_failed", "addr", cfg.Addr, "error", err)
		os.Exit(1)
	}

	err = feed.NewReplayer(cfg.File, cfg.Rate, logger).Serve(ctx, ln)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("sender_failed", "error", err)
		os.Exit(1)
	}
	logger.Info("sender_stopped")
}

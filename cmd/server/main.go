package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/athiyenarivalagan/hft-market-making/internal/book"
	"github.com/athiyenarivalagan/hft-market-making/internal/config"
	"github.com/athiyenarivalagan/hft-market-making/internal/driver"
	"github.com/athiyenarivalagan/hft-market-making/internal/feed"
	"github.com/athiyenarivalagan/hft-market-making/internal/handlers"
	"github.com/athiyenarivalagan/hft-market-making/internal/instrumentation"
	"github.com/athiyenarivalagan/hft-market-making/internal/ledger"
	"github.com/athiyenarivalagan/hft-market-making/internal/report"
	"github.com/athiyenarivalagan/hft-market-making/internal/strategy"
	"github.com/athiyenarivalagan/hft-market-making/internal/transmit"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.SlogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("mm_engine_failed", "error", err)
		os.Exit(1)
	}
	logger.Info("mm_engine_stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	logger.Info("mm_engine_starting",
		"symbol", cfg.Symbol,
		"feed_source", cfg.FeedSource,
		"order_sink", cfg.OrderSink,
		"report_enabled", cfg.ReportEnabled,
		"max_position", cfg.Strategy.MaxPosition,
		"base_spread", cfg.Strategy.BaseSpread,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := instrumentation.NewMetrics(prometheus.DefaultRegisterer)
	go serveMetrics(cfg.PrometheusPort, logger)

	source, err := openSource(ctx, cfg, feed.Options{
		Framed:      cfg.FeedSource != config.FeedFile,
		LatencyWarn: cfg.LatencyWarn,
		Logger:      logger,
		Metrics:     metrics,
	})
	if err != nil {
		return fmt.Errorf("open feed: %w", err)
	}
	defer source.Close()

	sink, err := openSink(cfg, logger)
	if err != nil {
		return fmt.Errorf("open order sink: %w", err)
	}
	defer sink.Close()

	// The dispatcher outlives the driver so queued ledger events are flushed.
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	dispatcher := transmit.NewDispatcher(sink, cfg.OrderBuffer, logger, metrics)
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		dispatcher.Run(dispatchCtx)
	}()
	defer func() {
		stopDispatch()
		<-dispatchDone
	}()

	drv := driver.New(
		driver.Config{
			Symbol:           cfg.Symbol,
			DepthLevels:      cfg.DepthLevels,
			SnapshotInterval: cfg.SnapshotInterval,
		},
		source,
		book.New(),
		ledger.New(logger),
		strategy.New(cfg.Strategy, logger, metrics),
		dispatcher,
		logger,
		metrics,
	)

	if cfg.ReportEnabled {
		publisher, err := report.NewRedisPublisher(cfg.RedisURL, cfg.RedisPassword, cfg.CacheTTL, logger)
		if err != nil {
			return fmt.Errorf("create report publisher: %w", err)
		}
		defer publisher.Close()

		// Joined before the deferred Close so no publish is in flight on a closed client.
		reportCtx, stopReport := context.WithCancel(ctx)
		reporter := report.NewReporter(drv, publisher, cfg.ReportInterval, logger, metrics)
		reportDone := make(chan struct{})
		go func() {
			defer close(reportDone)
			reporter.Run(reportCtx)
		}()
		defer func() {
			stopReport()
			<-reportDone
		}()
	}

	router, err := handlers.NewRouter(drv, cfg.HTTPTimeout(), logger)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http_server_listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_server_error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http_shutdown_error", "error", err)
		}
	}()

	logger.Info("mm_engine_running", "status", "healthy")

	err = drv.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("shutdown_signal_received")
		return nil
	}
	return err
}

func serveMetrics(port int, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	logger.Info("metrics_server_starting", "port", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics_server_failed", "error", err)
	}
}

func openSource(ctx context.Context, cfg *config.Config, opts feed.Options) (feed.Source, error) {
	switch cfg.FeedSource {
	case config.FeedTCP:
		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		src, err := feed.DialTCP(dialCtx, cfg.FeedAddr, opts)
		if err != nil {
			return nil, err
		}
		return src, nil
	case config.FeedRedis:
		src, err := feed.NewRedisSource(ctx, feed.RedisConfig{
			RedisURL:      cfg.RedisURL,
			RedisPassword: cfg.RedisPassword,
			StreamKey:     cfg.FeedStreamKey,
			ConsumerGroup: cfg.ConsumerGroup,
			ConsumerName:  cfg.ConsumerName,
		}, opts)
		if err != nil {
			return nil, err
		}
		return src, nil
	case config.FeedFile:
		src, err := feed.OpenFile(cfg.FeedFile, opts)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	return nil, fmt.Errorf("unknown feed source %q", cfg.FeedSource)
}

func openSink(cfg *config.Config, logger *slog.Logger) (transmit.Sink, error) {
	switch cfg.OrderSink {
	case config.SinkLog:
		return transmit.NewLogSink(logger), nil
	case config.SinkRedis:
		sink, err := transmit.NewRedisStreamSink(cfg.RedisURL, cfg.RedisPassword, cfg.OrderStreamKey, cfg.OrderStreamLen, logger)
		if err != nil {
			return nil, err
		}
		return sink, nil
	case config.SinkKafka:
		return transmit.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	}
	return nil, fmt.Errorf("unknown order sink %q", cfg.OrderSink)
}

package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"

	"github.com/athiyenarivalagan/hft-market-making/internal/strategy"
)

// Feed sources.
const (
	FeedTCP   = "tcp"
	FeedRedis = "redis"
	FeedFile  = "file"
)

// Order sinks.
const (
	SinkLog   = "log"
	SinkRedis = "redis"
	SinkKafka = "kafka"
)

// Config holds the engine service configuration.
type Config struct {
	Symbol string `env:"SYMBOL" envDefault:"CLX5"`

	// Feed
	FeedSource    string `env:"FEED_SOURCE" envDefault:"tcp"`
	FeedAddr      string `env:"FEED_ADDR" envDefault:"127.0.0.1:9999"`
	FeedFile      string `env:"FEED_FILE" envDefault:"data/processed/CLX5_mbo.txt"`
	FeedStreamKey string `env:"FEED_STREAM_KEY" envDefault:"mbo:feed"`
	ConsumerGroup string `env:"CONSUMER_GROUP" envDefault:"mm-engine"`
	ConsumerName  string `env:"CONSUMER_NAME"`
	LatencyWarnMs int    `env:"LATENCY_WARN_MS" envDefault:"5"`

	// Redis
	RedisURL      string `env:"REDIS_URL" envDefault:"redis://localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	// Order transmission
	OrderSink      string   `env:"ORDER_SINK" envDefault:"log"`
	OrderStreamKey string   `env:"ORDER_STREAM_KEY" envDefault:"mm:orders"`
	OrderStreamLen int64    `env:"ORDER_STREAM_MAXLEN" envDefault:"100000"`
	OrderBuffer    int      `env:"ORDER_BUFFER" envDefault:"4096"`
	KafkaBrokers   []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	KafkaTopic     string   `env:"KAFKA_TOPIC" envDefault:"mm.orders"`

	// Driver
	DepthLevels        int `env:"DEPTH_LEVELS" envDefault:"20"`
	SnapshotIntervalMs int `env:"SNAPSHOT_INTERVAL_MS" envDefault:"10"`

	// State report cache (parsed as milliseconds / seconds)
	ReportEnabled    bool `env:"REPORT_ENABLED" envDefault:"false"`
	ReportIntervalMs int  `env:"REPORT_INTERVAL_MS" envDefault:"1000"`
	CacheTTLSec      int  `env:"CACHE_TTL_SEC" envDefault:"300"`

	// Computed durations (not from env)
	LatencyWarn      time.Duration `env:"-"`
	SnapshotInterval time.Duration `env:"-"`
	ReportInterval   time.Duration `env:"-"`
	CacheTTL         time.Duration `env:"-"`

	// HTTP
	HTTPPort      int `env:"HTTP_PORT" envDefault:"8080"`
	HTTPTimeoutMs int `env:"HTTP_TIMEOUT_MS" envDefault:"500"`

	// Observability
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	PrometheusPort int    `env:"PROMETHEUS_PORT" envDefault:"9091"`

	Strategy strategy.Config `envPrefix:"MM_"`
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	cfg.Symbol = strings.TrimSpace(cfg.Symbol)
	cfg.FeedSource = strings.ToLower(strings.TrimSpace(cfg.FeedSource))
	cfg.OrderSink = strings.ToLower(strings.TrimSpace(cfg.OrderSink))
	for i := range cfg.KafkaBrokers {
		cfg.KafkaBrokers[i] = strings.TrimSpace(cfg.KafkaBrokers[i])
	}
	if cfg.ConsumerName == "" {
		cfg.ConsumerName = cfg.ConsumerGroup + "-" + uuid.NewString()[:8]
	}

	cfg.LatencyWarn = time.Duration(cfg.LatencyWarnMs) * time.Millisecond
	cfg.SnapshotInterval = time.Duration(cfg.SnapshotIntervalMs) * time.Millisecond
	cfg.ReportInterval = time.Duration(cfg.ReportIntervalMs) * time.Millisecond
	cfg.CacheTTL = time.Duration(cfg.CacheTTLSec) * time.Second

	return cfg, nil
}

// HTTPTimeout returns the per-request deadline.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutMs) * time.Millisecond
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("symbol must be configured")
	}

	switch c.FeedSource {
	case FeedTCP:
		if c.FeedAddr == "" {
			return fmt.Errorf("feed address required for tcp source")
		}
	case FeedRedis:
		if c.FeedStreamKey == "" || c.ConsumerGroup == "" {
			return fmt.Errorf("feed stream key and consumer group required for redis source")
		}
	case FeedFile:
		if c.FeedFile == "" {
			return fmt.Errorf("feed file required for file source")
		}
	default:
		return fmt.Errorf("invalid feed source: %s", c.FeedSource)
	}

	switch c.OrderSink {
	case SinkLog, SinkRedis:
	case SinkKafka:
		if len(c.KafkaBrokers) == 0 || c.KafkaTopic == "" {
			return fmt.Errorf("kafka brokers and topic required for kafka sink")
		}
	default:
		return fmt.Errorf("invalid order sink: %s", c.OrderSink)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}

	if c.LatencyWarn <= 0 {
		return fmt.Errorf("latency warning threshold must be positive")
	}
	if c.OrderBuffer <= 0 {
		return fmt.Errorf("order buffer must be positive")
	}
	if c.HTTPTimeoutMs <= 0 {
		return fmt.Errorf("http timeout must be positive")
	}
	if c.ReportEnabled {
		if c.ReportInterval < 10*time.Millisecond {
			return fmt.Errorf("report interval must be at least 10ms")
		}
		if c.CacheTTL < time.Second {
			return fmt.Errorf("cache TTL must be at least 1 second")
		}
	}

	return c.Strategy.Validate()
}

// SenderConfig holds the feed replay server configuration.
type SenderConfig struct {
	Addr     string `env:"SENDER_ADDR" envDefault:"127.0.0.1:9999"`
	File     string `env:"SENDER_FILE" envDefault:"data/processed/CLX5_mbo.txt"`
	Rate     int    `env:"SENDER_RATE" envDefault:"50000"` // lines per second, 0 = unthrottled
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// LoadSenderFromEnv loads and validates the sender configuration.
func LoadSenderFromEnv() (*SenderConfig, error) {
	cfg := &SenderConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}
	if cfg.Addr == "" || cfg.File == "" {
		return nil, fmt.Errorf("sender address and file must be configured")
	}
	if cfg.Rate < 0 {
		return nil, fmt.Errorf("sender rate must not be negative")
	}
	return cfg, nil
}

// SlogLevel maps a LOG_LEVEL value to a slog level, defaulting to info.
func SlogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

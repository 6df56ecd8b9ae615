package transmit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/athiyenarivalagan/hft-market-making/internal/models"
)

// RedisStreamSink appends ledger events to a Redis Stream as {data: <json>},
// the same envelope the feed consumers read.
type RedisStreamSink struct {
	client    *redis.Client
	streamKey string
	maxLen    int64
	logger    *slog.Logger
}

// NewRedisStreamSink connects to Redis. maxLen caps the stream approximately;
// zero leaves it unbounded.
func NewRedisStreamSink(redisURL, redisPassword, streamKey string, maxLen int64, logger *slog.Logger) (*RedisStreamSink, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if redisPassword != "" {
		opt.Password = redisPassword
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisStreamSink{
		client:    client,
		streamKey: streamKey,
		maxLen:    maxLen,
		logger:    logger.With("component", "redis_sink", "stream_key", streamKey),
	}, nil
}

func (s *RedisStreamSink) Name() string { return "redis" }

// Send pipelines one XADD per event so a batch costs a single round trip.
func (s *RedisStreamSink) Send(ctx context.Context, events []models.LedgerEvent) error {
	pipe := s.client.Pipeline()
	for _, ev := range events {
		args, err := xaddArgs(s.streamKey, s.maxLen, ev)
		if err != nil {
			return err
		}
		pipe.XAdd(ctx, args)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis XADD failed: %w", err)
	}

	s.logger.Debug("ledger_events_published", "events", len(events))
	return nil
}

func xaddArgs(streamKey string, maxLen int64, ev models.LedgerEvent) (*redis.XAddArgs, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("json marshal failed: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: streamKey,
		Values: map[string]interface{}{"data": string(data)},
	}
	if maxLen > 0 {
		args.MaxLen = maxLen
		args.Approx = true
	}
	return args, nil
}

// Close closes the Redis connection.
func (s *RedisStreamSink) Close() error {
	return s.client.Close()
}

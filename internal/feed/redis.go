package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/athiyenarivalagan/hft-market-making/internal/models"
)

// Stream message fields. A message carries either a header or a data line,
// each exactly as it would appear on the TCP wire.
const (
	fieldHeader = "header"
	fieldLine   = "line"
)

// RedisConfig holds Redis Streams source configuration.
type RedisConfig struct {
	RedisURL      string
	RedisPassword string
	StreamKey     string        // e.g., "mbo:feed"
	ConsumerGroup string        // e.g., "mm-engine"
	ConsumerName  string        // e.g., "mm-engine-3f2a9c1e"
	BlockTime     time.Duration // How long to block waiting for messages
	BatchSize     int64         // Number of messages to read per batch
}

// RedisSource reads feed lines from a Redis Stream using a consumer group.
// A message is acknowledged when the next record is requested, i.e. once its
// record has been handed to the consumer. The driver reads ahead of what it
// has applied, so up to its intake buffer of acknowledged records can be lost
// if the process dies.
type RedisSource struct {
	client *redis.Client
	cfg    RedisConfig
	dec    *decoder

	buf        []redis.XMessage
	pendingAck string
}

// NewRedisSource connects to Redis and ensures the consumer group exists.
func NewRedisSource(ctx context.Context, cfg RedisConfig, opts Options) (*RedisSource, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if cfg.RedisPassword != "" {
		opt.Password = cfg.RedisPassword
	}
	if cfg.BlockTime <= 0 {
		cfg.BlockTime = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 256
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	// New groups start at the beginning of the stream so the header is seen.
	err = client.XGroupCreateMkStream(pingCtx, cfg.StreamKey, cfg.ConsumerGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		_ = client.Close()
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	if opts.Logger != nil {
		opts.Logger = opts.Logger.With("stream_key", cfg.StreamKey)
	}
	s := &RedisSource{
		client: client,
		cfg:    cfg,
		dec:    newDecoder(opts, "redis_source"),
	}

	s.dec.logger.Info("consumer_initialized",
		"consumer_group", cfg.ConsumerGroup,
		"consumer_name", cfg.ConsumerName,
	)
	return s, nil
}

// Next returns the next record. Read errors are logged and retried after a
// short back-off; only ctx ends the wait.
func (s *RedisSource) Next(ctx context.Context) (models.Record, error) {
	for {
		s.ack(ctx)

		if len(s.buf) == 0 {
			if err := s.fill(ctx); err != nil {
				return models.Record{}, err
			}
			continue
		}

		msg := s.buf[0]
		s.buf = s.buf[1:]
		s.pendingAck = msg.ID

		if rec, ok := s.handle(msg); ok {
			return rec, nil
		}
	}
}

// fill blocks for the next batch. It returns an error only when ctx is done.
func (s *RedisSource) fill(ctx context.Context) error {
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.cfg.ConsumerGroup,
		Consumer: s.cfg.ConsumerName,
		Streams:  []string{s.cfg.StreamKey, ">"},
		Count:    s.cfg.BatchSize,
		Block:    s.cfg.BlockTime,
	}).Result()

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, redis.Nil) {
			return nil
		}
		s.dec.logger.Error("xreadgroup_failed", "error", err)
		if s.dec.opts.Metrics != nil {
			s.dec.opts.Metrics.RecordError("feed", "xreadgroup")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
		return nil
	}

	for _, stream := range streams {
		s.buf = append(s.buf, stream.Messages...)
	}
	return nil
}

// handle decodes one stream message. It reports false when the message
// carried no record.
func (s *RedisSource) handle(msg redis.XMessage) (models.Record, bool) {
	if raw, ok := msg.Values[fieldHeader].(string); ok {
		if err := s.dec.setHeader(raw); err != nil {
			s.dec.logger.Error("header_invalid", "stream_id", msg.ID, "error", err)
		}
		return models.Record{}, false
	}

	line, ok := msg.Values[fieldLine].(string)
	if !ok {
		s.dec.logger.Warn("message_missing_line", "stream_id", msg.ID)
		s.dec.recordDropped("malformed")
		return models.Record{}, false
	}

	if !s.dec.hasHeader() {
		s.dec.logger.Warn("record_before_header", "stream_id", msg.ID)
		s.dec.recordDropped("no_header")
		return models.Record{}, false
	}

	rec, err := s.dec.decode(line)
	if err != nil {
		s.dec.handleSkip(line, err)
		return models.Record{}, false
	}
	return rec, true
}

func (s *RedisSource) ack(ctx context.Context) {
	if s.pendingAck == "" {
		return
	}
	id := s.pendingAck
	s.pendingAck = ""

	if err := s.client.XAck(ctx, s.cfg.StreamKey, s.cfg.ConsumerGroup, id).Err(); err != nil {
		// Redelivered on the next group read after restart.
		s.dec.logger.Error("xack_failed", "stream_id", id, "error", err)
	}
}

// Close closes the Redis connection.
func (s *RedisSource) Close() error {
	s.dec.logger.Info("consumer_closing")
	return s.client.Close()
}

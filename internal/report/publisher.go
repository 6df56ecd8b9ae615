package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/athiyenarivalagan/hft-market-making/internal/models"
)

// RedisPublisher caches the latest state report per symbol, plus a small
// inventory entry for consumers that only track position and working quotes.
// Both keys are written in one MULTI/EXEC so readers never see them disagree.
type RedisPublisher struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisPublisher connects to Redis and verifies the connection.
func NewRedisPublisher(redisURL string, redisPassword string, ttl time.Duration, logger *slog.Logger) (*RedisPublisher, error) {
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

	return &RedisPublisher{
		client: client,
		ttl:    ttl,
		logger: logger.With("component", "report_publisher"),
	}, nil
}

// CacheKey returns the key a symbol's report is stored under.
func CacheKey(symbol string) string {
	return "report:" + symbol
}

// InventoryKey returns the key a symbol's inventory entry is stored under.
func InventoryKey(symbol string) string {
	return "inventory:" + symbol
}

// InventoryEntry is the position, cash and working quotes cut from a report.
type InventoryEntry struct {
	Symbol      string              `json:"symbol"`
	LastEventTs int64               `json:"last_event_ts"`
	Inventory   models.Inventory    `json:"inventory"`
	Quotes      []models.OwnedOrder `json:"quotes"`
}

// cacheEntries encodes everything one report publishes, keyed by cache key.
func cacheEntries(symbol string, report *models.StateReport) (map[string][]byte, error) {
	full, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}

	quotes := report.Quotes
	if quotes == nil {
		quotes = []models.OwnedOrder{}
	}
	inv, err := json.Marshal(InventoryEntry{
		Symbol:      symbol,
		LastEventTs: report.LastEventTs,
		Inventory:   report.Inventory,
		Quotes:      quotes,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal inventory: %w", err)
	}

	return map[string][]byte{
		CacheKey(symbol):     full,
		InventoryKey(symbol): inv,
	}, nil
}

// Publish writes the report and inventory entries with the configured TTL.
func (p *RedisPublisher) Publish(ctx context.Context, symbol string, report *models.StateReport) error {
	start := time.Now()

	entries, err := cacheEntries(symbol, report)
	if err != nil {
		return err
	}

	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for key, val := range entries {
			pipe.Set(ctx, key, val, p.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis SET failed: %w", err)
	}

	p.logger.Debug("report_cached",
		"symbol", symbol,
		"position", report.Inventory.Position,
		"quotes", len(report.Quotes),
		"report_bytes", len(entries[CacheKey(symbol)]),
		"latency_us", time.Since(start).Microseconds(),
	)
	return nil
}

// Close closes the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

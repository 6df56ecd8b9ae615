package transmit

import (
	"context"
	"log/slog"

	"github.com/athiyenarivalagan/hft-market-making/internal/models"
)

// LogSink writes ledger events to the structured log. It is the default when
// no venue is configured.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a sink that logs every event at info level.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With("component", "log_sink")}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Send(ctx context.Context, events []models.LedgerEvent) error {
	for _, ev := range events {
		s.logger.InfoContext(ctx, "ledger_event",
			"event_id", ev.ID,
			"type", string(ev.Type),
			"order_id", ev.Order.OrderID,
			"side", ev.Order.Side.String(),
			"price", ev.Order.Price,
			"size", ev.Order.Size,
			"ts", ev.Order.Ts,
		)
	}
	return nil
}

func (s *LogSink) Close() error { return nil }

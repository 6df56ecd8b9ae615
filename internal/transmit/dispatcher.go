// Package transmit delivers ledger mutation events to an order venue sink
// off the hot path.
package transmit

import (
	"context"
	"log/slog"
	"time"

	"github.com/athiyenarivalagan/hft-market-making/internal/instrumentation"
	"github.com/athiyenarivalagan/hft-market-making/internal/models"
)

// Sink delivers a batch of ledger events in order.
type Sink interface {
	Name() string
	Send(ctx context.Context, events []models.LedgerEvent) error
	Close() error
}

const drainTimeout = 5 * time.Second

// Dispatcher queues batches from the driver and hands them to a sink from its
// own goroutine. A full queue blocks Enqueue, which backs pressure up to the
// feed reader.
type Dispatcher struct {
	queue   chan []models.LedgerEvent
	sink    Sink
	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// NewDispatcher creates a dispatcher with room for buffer pending batches.
func NewDispatcher(sink Sink, buffer int, logger *slog.Logger, m *instrumentation.Metrics) *Dispatcher {
	if buffer <= 0 {
		buffer = 1
	}
	return &Dispatcher{
		queue:   make(chan []models.LedgerEvent, buffer),
		sink:    sink,
		logger:  logger.With("component", "dispatcher", "sink", sink.Name()),
		metrics: m,
	}
}

// Enqueue hands a batch to the dispatcher. It blocks while the queue is full
// and returns ctx.Err() if ctx ends first. Empty batches are ignored.
func (d *Dispatcher) Enqueue(ctx context.Context, events []models.LedgerEvent) error {
	if len(events) == 0 {
		return nil
	}
	select {
	case d.queue <- events:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run delivers batches until ctx is cancelled, then flushes whatever is
// still queued with a bounded timeout.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("dispatcher_starting")

	for {
		select {
		case batch := <-d.queue:
			d.deliver(ctx, batch)
		case <-ctx.Done():
			d.drain()
			d.logger.Info("dispatcher_stopping")
			return ctx.Err()
		}
	}
}

func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	for {
		select {
		case batch := <-d.queue:
			d.deliver(ctx, batch)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, batch []models.LedgerEvent) {
	if err := d.sink.Send(ctx, batch); err != nil {
		d.logger.Error("ledger_delivery_failed", "events", len(batch), "error", err)
		if d.metrics != nil {
			d.metrics.RecordError("dispatcher", "send")
		}
		return
	}

	if d.metrics != nil {
		for _, ev := range batch {
			d.metrics.RecordLedgerDelivered(d.sink.Name(), string(ev.Type))
		}
	}
}

// Package driver runs the single-owner event loop: each record is applied to
// the book, then the engine evaluates quotes, then ledger mutations are handed
// to the order transmission layer, strictly in feed-arrival order.
package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/athiyenarivalagan/hft-market-making/internal/book"
	"github.com/athiyenarivalagan/hft-market-making/internal/instrumentation"
	"github.com/athiyenarivalagan/hft-market-making/internal/ledger"
	"github.com/athiyenarivalagan/hft-market-making/internal/metrics"
	"github.com/athiyenarivalagan/hft-market-making/internal/models"
	"github.com/athiyenarivalagan/hft-market-making/internal/strategy"
)

var (
	// ErrInvalidFill is returned for fills with an unusable side, price or size.
	ErrInvalidFill = errors.New("driver: invalid fill")

	// ErrStopped is returned when a fill is submitted after Run has returned.
	ErrStopped = errors.New("driver: stopped")
)

// RecordSource yields records in arrival order; io.EOF ends the run cleanly.
type RecordSource interface {
	Next(ctx context.Context) (models.Record, error)
}

// Publisher accepts ledger mutation batches for delivery.
type Publisher interface {
	Enqueue(ctx context.Context, events []models.LedgerEvent) error
}

// Config holds driver tuning.
type Config struct {
	Symbol string // records naming another instrument are dropped; empty accepts all

	DepthLevels      int           // levels per side kept in snapshots
	SnapshotInterval time.Duration // minimum wall time between snapshot publications
	StatsInterval    time.Duration // throughput/p99 log period
	IntakeBuffer     int           // records read ahead of the loop
}

func (c *Config) applyDefaults() {
	if c.DepthLevels <= 0 {
		c.DepthLevels = 20
	}
	if c.SnapshotInterval <= 0 {
		c.SnapshotInterval = 10 * time.Millisecond
	}
	if c.StatsInterval <= 0 {
		c.StatsInterval = time.Second
	}
	if c.IntakeBuffer <= 0 {
		c.IntakeBuffer = 1024
	}
}

type fillRequest struct {
	fill models.Fill
	done chan error
}

// Driver owns one instrument's book, ledger and engine.
type Driver struct {
	cfg       Config
	source    RecordSource
	book      *book.Book
	ledger    *ledger.Ledger
	engine    *strategy.Engine
	publisher Publisher

	flow    *metrics.FlowTracker
	latency *metrics.LatencyWindow

	fills   chan fillRequest
	stopped chan struct{}

	snapshot      atomic.Pointer[Snapshot]
	lastPublished time.Time
	flush         *time.Timer // fires when a throttled snapshot is due
	flushArmed    bool
	applied       uint64
	lastTs        int64

	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// New wires a driver. m may be nil.
func New(
	cfg Config,
	source RecordSource,
	bk *book.Book,
	l *ledger.Ledger,
	engine *strategy.Engine,
	publisher Publisher,
	logger *slog.Logger,
	m *instrumentation.Metrics,
) *Driver {
	cfg.applyDefaults()
	d := &Driver{
		cfg:       cfg,
		source:    source,
		book:      bk,
		ledger:    l,
		engine:    engine,
		publisher: publisher,
		flow:      metrics.NewFlowTracker(),
		latency:   metrics.NewLatencyWindow(),
		fills:     make(chan fillRequest),
		stopped:   make(chan struct{}),
		logger:    logger.With("component", "driver", "symbol", cfg.Symbol),
		metrics:   m,
	}
	d.publish(true)
	return d
}

// Snapshot returns the most recently published state. It never returns nil.
func (d *Driver) Snapshot() *Snapshot {
	return d.snapshot.Load()
}

// Flow exposes the rolling activity tracker for reporting.
func (d *Driver) Flow() *metrics.FlowTracker {
	return d.flow
}

// SubmitFill hands a venue-reported execution of an own order to the loop
// and waits until it has been applied.
func (d *Driver) SubmitFill(ctx context.Context, f models.Fill) error {
	if f.Side != models.SideBid && f.Side != models.SideAsk {
		return fmt.Errorf("%w: side %s", ErrInvalidFill, f.Side)
	}
	if f.Price <= 0 || f.Size <= 0 {
		return fmt.Errorf("%w: price=%v size=%v", ErrInvalidFill, f.Price, f.Size)
	}

	req := fillRequest{fill: f, done: make(chan error, 1)}
	select {
	case d.fills <- req:
	case <-d.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes records until the source is exhausted (nil), ctx ends
// (ctx.Err()) or the book reports an invalid side (returned wrapped).
func (d *Driver) Run(ctx context.Context) error {
	defer close(d.stopped)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	records := make(chan models.Record, d.cfg.IntakeBuffer)
	readErr := make(chan error, 1)
	go d.read(ctx, records, readErr)

	ticker := time.NewTicker(d.cfg.StatsInterval)
	defer ticker.Stop()

	d.flush = time.NewTimer(d.cfg.SnapshotInterval)
	d.flush.Stop()
	defer d.flush.Stop()

	d.logger.Info("driver_starting")
	defer d.publish(true)

	for {
		select {
		case rec, ok := <-records:
			if !ok {
				err := <-readErr
				d.logStats()
				d.logger.Info("driver_stopping", "events_applied", d.applied, "error", err)
				return err
			}
			if err := d.process(ctx, rec); err != nil {
				d.logger.Error("driver_failed", "error", err, "ts", rec.Ts, "order_id", rec.OrderID)
				return err
			}

		case req := <-d.fills:
			req.done <- d.applyFill(req.fill)

		case <-d.flush.C:
			d.flushArmed = false
			d.publish(true)

		case <-ticker.C:
			d.logStats()

		case <-ctx.Done():
			d.logger.Info("driver_stopping", "events_applied", d.applied, "reason", "context")
			return ctx.Err()
		}
	}
}

// read is the only suspension point: it blocks on the source and forwards
// records in order. A clean end of stream is reported as nil.
func (d *Driver) read(ctx context.Context, out chan<- models.Record, errc chan<- error) {
	defer close(out)

	for {
		rec, err := d.source.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				d.logger.Info("feed_closed")
				err = nil
			}
			errc <- err
			return
		}

		select {
		case out <- rec:
		case <-ctx.Done():
			errc <- ctx.Err()
			return
		}
	}
}

// process applies one record to the book and runs the engine.
func (d *Driver) process(ctx context.Context, rec models.Record) error {
	start := time.Now()

	if d.cfg.Symbol != "" && rec.Instrument != d.cfg.Symbol && rec.Instrument != models.UnknownInstrument {
		d.logger.Debug("record_dropped", "reason", "other_instrument", "instrument", rec.Instrument)
		if d.metrics != nil {
			d.metrics.RecordDropped("other_instrument")
		}
		return nil
	}

	if err := d.book.Apply(rec); err != nil {
		if d.metrics != nil {
			d.metrics.RecordError("book", "apply")
		}
		return fmt.Errorf("apply %s order %d: %w", rec.Action, rec.OrderID, err)
	}

	if top := d.book.TopOfBook(); top.Crossed() {
		d.logger.Debug("crossed_book", "bid", top.BidPrice, "ask", top.AskPrice, "ts", rec.Ts)
		if d.metrics != nil {
			d.metrics.RecordCrossedBook()
		}
	}

	d.engine.OnBookEvent(d.book, d.ledger, rec.Ts)

	if events := d.ledger.Drain(); len(events) > 0 {
		if err := d.publisher.Enqueue(ctx, events); err != nil {
			return fmt.Errorf("enqueue ledger events: %w", err)
		}
	}

	d.applied++
	d.lastTs = rec.Ts
	d.recordFlow(rec)

	elapsed := time.Since(start)
	d.latency.Record(elapsed)
	if d.metrics != nil {
		d.metrics.RecordEventProcessed(rec.Action.String())
		d.metrics.RecordProcessLatency(float64(elapsed.Nanoseconds()) / 1e6)
	}

	d.publish(false)
	return nil
}

func (d *Driver) recordFlow(rec models.Record) {
	ts := time.Unix(0, rec.Ts)
	d.flow.RecordEvent(ts)

	if rec.Action != models.ActionTrade && rec.Action != models.ActionFill {
		return
	}
	switch rec.Side {
	case models.SideBid:
		d.flow.RecordTrade(ts, rec.Size, true)
	case models.SideAsk:
		d.flow.RecordTrade(ts, rec.Size, false)
	}
}

func (d *Driver) applyFill(f models.Fill) error {
	if err := d.engine.OnOwnTrade(f.Side, f.Price, f.Size); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFill, err)
	}
	d.publish(true)
	return nil
}

// publish stores a fresh snapshot when forced or when the snapshot interval
// has elapsed. A throttled call arms the flush timer so the skipped state is
// published once the interval is up.
func (d *Driver) publish(force bool) {
	now := time.Now()
	if since := now.Sub(d.lastPublished); !force && since < d.cfg.SnapshotInterval {
		if d.flush != nil && !d.flushArmed {
			d.flush.Reset(d.cfg.SnapshotInterval - since)
			d.flushArmed = true
		}
		return
	}
	d.lastPublished = now
	if d.flushArmed {
		d.flush.Stop()
		d.flushArmed = false
	}

	bids, _ := d.book.Levels(models.SideBid, d.cfg.DepthLevels)
	asks, _ := d.book.Levels(models.SideAsk, d.cfg.DepthLevels)

	d.snapshot.Store(&Snapshot{
		Symbol:        d.cfg.Symbol,
		EventsApplied: d.applied,
		LastEventTs:   d.lastTs,
		Top:           d.book.TopOfBook(),
		Bids:          bids,
		Asks:          asks,
		BookOrders:    d.book.Len(),
		Strategy:      d.engine.Snapshot(),
		Orders:        d.ledger.Orders(),
		UpdatedAt:     now,
	})
}

func (d *Driver) logStats() {
	s := d.latency.Flush()
	if s.Count == 0 {
		return
	}
	d.logger.Info("throughput",
		"events", s.Count,
		"events_per_sec", s.ThroughputPerS,
		"p99_ms", s.P99Ms,
		"book_orders", d.book.Len(),
		"position", d.engine.Position(),
	)
}

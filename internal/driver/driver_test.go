package driver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/athiyenarivalagan/hft-market-making/internal/book"
	"github.com/athiyenarivalagan/hft-market-making/internal/instrumentation"
	"github.com/athiyenarivalagan/hft-market-making/internal/ledger"
	"github.com/athiyenarivalagan/hft-market-making/internal/models"
	"github.com/athiyenarivalagan/hft-market-making/internal/strategy"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// chanSource yields records from a channel and reports io.EOF once it is closed.
type chanSource chan models.Record

func (c chanSource) Next(ctx context.Context) (models.Record, error) {
	select {
	case rec, ok := <-c:
		if !ok {
			return models.Record{}, io.EOF
		}
		return rec, nil
	case <-ctx.Done():
		return models.Record{}, ctx.Err()
	}
}

func sliceSource(recs ...models.Record) chanSource {
	c := make(chanSource, len(recs))
	for _, r := range recs {
		c <- r
	}
	close(c)
	return c
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.LedgerEvent
}

func (p *recordingPublisher) Enqueue(_ context.Context, events []models.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) all() []models.LedgerEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.LedgerEvent(nil), p.events...)
}

func newTestDriver(src RecordSource, pub Publisher, m *instrumentation.Metrics) *Driver {
	return New(
		Config{Symbol: "CLX5", SnapshotInterval: time.Hour},
		src,
		book.New(),
		ledger.New(discard),
		strategy.New(strategy.DefaultConfig(), discard, m),
		pub,
		discard,
		m,
	)
}

func add(ts int64, id uint64, side models.Side, price, size float64) models.Record {
	return models.Record{Ts: ts, Action: models.ActionAdd, OrderID: id, Side: side, Price: price, Size: size, Instrument: "CLX5"}
}

func TestRunAppliesRecordsAndQuotes(t *testing.T) {
	pub := &recordingPublisher{}
	m := instrumentation.NewMetrics(prometheus.NewRegistry())
	src := sliceSource(
		add(1, 1, models.SideBid, 100.00, 5),
		add(2, 2, models.SideAsk, 101.00, 3),
		models.Record{Ts: 3, Action: models.ActionModify, OrderID: 1, Price: 100.50, Size: 4, Instrument: "CLX5"},
		models.Record{Ts: 4, Action: models.ActionTrade, OrderID: 1, Side: models.SideAsk, Size: 4, Instrument: "CLX5"},
	)
	d := newTestDriver(src, pub, m)

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	snap := d.Snapshot()
	if snap.EventsApplied != 4 || snap.LastEventTs != 4 {
		t.Fatalf("unexpected progress %+v", snap)
	}
	if snap.Top.HasBid || !snap.Top.HasAsk || snap.Top.AskPrice != 101.00 {
		t.Fatalf("unexpected top of book %+v", snap.Top)
	}
	if snap.BookOrders != 1 {
		t.Fatalf("expected 1 resting order, got %d", snap.BookOrders)
	}

	// The first two-sided event quotes both sides.
	events := pub.all()
	if len(events) != 2 || events[0].Type != models.LedgerRegister || events[1].Type != models.LedgerRegister {
		t.Fatalf("unexpected ledger events %+v", events)
	}
	if len(snap.Orders) != 2 || snap.Strategy.Bid == nil || snap.Strategy.Ask == nil {
		t.Fatalf("snapshot must carry working quotes, got %+v", snap.Strategy)
	}

	if got := testutil.ToFloat64(m.EventsProcessed.WithLabelValues("ADD")); got != 2 {
		t.Fatalf("expected 2 ADD events counted, got %v", got)
	}
}

func TestRunStopsOnInvalidSide(t *testing.T) {
	pub := &recordingPublisher{}
	src := sliceSource(
		add(1, 1, models.SideBid, 100, 5),
		add(2, 2, models.Side('X'), 101, 3),
		add(3, 3, models.SideAsk, 101, 3),
	)
	d := newTestDriver(src, pub, nil)

	err := d.Run(context.Background())
	var sideErr *book.InvalidSideError
	if !errors.As(err, &sideErr) {
		t.Fatalf("expected InvalidSideError, got %v", err)
	}
	if snap := d.Snapshot(); snap.EventsApplied != 1 {
		t.Fatalf("records after the failure must not be applied, got %d", snap.EventsApplied)
	}
}

func TestRunDropsOtherInstruments(t *testing.T) {
	other := add(1, 1, models.SideBid, 100, 5)
	other.Instrument = "CLZ5"
	unknown := add(2, 2, models.SideBid, 99, 1)
	unknown.Instrument = models.UnknownInstrument

	d := newTestDriver(sliceSource(other, unknown), &recordingPublisher{}, nil)
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	snap := d.Snapshot()
	if snap.EventsApplied != 1 || snap.Top.BidPrice != 99 {
		t.Fatalf("expected only the unlabeled record applied, got %+v", snap)
	}
}

func TestSubmitFillUpdatesInventory(t *testing.T) {
	src := make(chanSource)
	d := newTestDriver(src, &recordingPublisher{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	if err := d.SubmitFill(ctx, models.Fill{Side: models.SideBid, Price: 100, Size: 3}); err != nil {
		t.Fatalf("fill: %v", err)
	}
	if err := d.SubmitFill(ctx, models.Fill{Side: models.SideAsk, Price: 101, Size: 1}); err != nil {
		t.Fatalf("fill: %v", err)
	}

	snap := d.Snapshot()
	if snap.Strategy.Position != 2 || snap.Strategy.Cash != -199 {
		t.Fatalf("unexpected inventory %+v", snap.Strategy)
	}

	if err := d.SubmitFill(ctx, models.Fill{Side: models.SideNone, Price: 100, Size: 1}); !errors.Is(err, ErrInvalidFill) {
		t.Fatalf("expected ErrInvalidFill, got %v", err)
	}
	if err := d.SubmitFill(ctx, models.Fill{Side: models.SideBid, Price: 0, Size: 1}); !errors.Is(err, ErrInvalidFill) {
		t.Fatalf("expected ErrInvalidFill for zero price, got %v", err)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := d.SubmitFill(context.Background(), models.Fill{Side: models.SideBid, Price: 1, Size: 1}); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped after run, got %v", err)
	}
}

func TestSnapshotBeforeRun(t *testing.T) {
	d := newTestDriver(sliceSource(), &recordingPublisher{}, nil)
	snap := d.Snapshot()
	if snap == nil || snap.EventsApplied != 0 || snap.Symbol != "CLX5" {
		t.Fatalf("unexpected initial snapshot %+v", snap)
	}
}

func TestThrottledSnapshotIsFlushed(t *testing.T) {
	src := make(chanSource)
	d := New(
		Config{Symbol: "CLX5", SnapshotInterval: 10 * time.Millisecond, StatsInterval: time.Hour},
		src,
		book.New(),
		ledger.New(discard),
		strategy.New(strategy.DefaultConfig(), discard, nil),
		&recordingPublisher{},
		discard,
		nil,
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// The second record falls inside the snapshot interval and the source then
	// stays idle, so only the flush timer can publish it.
	src <- add(1, 1, models.SideBid, 100.00, 5)
	src <- add(2, 2, models.SideAsk, 101.00, 3)

	deadline := time.Now().Add(200 * time.Millisecond)
	for {
		snap := d.Snapshot()
		if snap.EventsApplied == 2 {
			if !snap.Top.TwoSided() || snap.Top.BidPrice != 100.00 || snap.Top.AskPrice != 101.00 {
				t.Fatalf("unexpected top of book %+v", snap.Top)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("events_applied=%d after idle wait, want 2", snap.EventsApplied)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

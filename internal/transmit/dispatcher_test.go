package transmit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/athiyenarivalagan/hft-market-making/internal/instrumentation"
	"github.com/athiyenarivalagan/hft-market-making/internal/models"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeSink struct {
	mu     sync.Mutex
	got    []models.LedgerEvent
	fail   bool
	notify chan struct{}
}

func newFakeSink() *fakeSink {
	return &fakeSink{notify: make(chan struct{}, 16)}
}

func (f *fakeSink) Name() string { return "fake" }

func (f *fakeSink) Send(_ context.Context, events []models.LedgerEvent) error {
	defer func() { f.notify <- struct{}{} }()
	if f.fail {
		return errors.New("venue down")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, events...)
	return nil
}

func (f *fakeSink) Close() error { return nil }

func (f *fakeSink) events() []models.LedgerEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.LedgerEvent(nil), f.got...)
}

func event(id uint64, typ models.LedgerEventType) models.LedgerEvent {
	return models.LedgerEvent{
		ID:    fmt.Sprintf("ev-%s-%d", typ, id),
		Type:  typ,
		Order: models.OwnedOrder{OrderID: id, Side: models.SideBid, Price: 100, Size: 1, Ts: 1},
	}
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	sink := newFakeSink()
	m := instrumentation.NewMetrics(prometheus.NewRegistry())
	d := NewDispatcher(sink, 4, discard, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	if err := d.Enqueue(ctx, []models.LedgerEvent{event(1, models.LedgerRegister), event(2, models.LedgerRegister)}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := d.Enqueue(ctx, []models.LedgerEvent{event(1, models.LedgerCancel)}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := d.Enqueue(ctx, nil); err != nil {
		t.Fatalf("empty enqueue: %v", err)
	}
	waitFor(t, sink.notify)
	waitFor(t, sink.notify)

	got := sink.events()
	if len(got) != 3 || got[2].Type != models.LedgerCancel || got[0].Order.OrderID != 1 {
		t.Fatalf("unexpected delivery %+v", got)
	}
	if n := testutil.ToFloat64(m.LedgerEventsDelivered.WithLabelValues("fake", "register")); n != 2 {
		t.Fatalf("expected 2 delivered registers, got %v", n)
	}
}

func TestDispatcherSinkFailureIsCounted(t *testing.T) {
	sink := newFakeSink()
	sink.fail = true
	m := instrumentation.NewMetrics(prometheus.NewRegistry())
	d := NewDispatcher(sink, 1, discard, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	_ = d.Enqueue(ctx, []models.LedgerEvent{event(1, models.LedgerRegister)})
	waitFor(t, sink.notify)

	// The error counter is bumped right after Send returns.
	deadline := time.Now().Add(2 * time.Second)
	for testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("dispatcher", "send")) != 1 {
		if time.Now().After(deadline) {
			t.Fatal("send failure not counted")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEnqueueRespectsContext(t *testing.T) {
	d := NewDispatcher(newFakeSink(), 1, discard, nil)
	ctx, cancel := context.WithCancel(context.Background())

	if err := d.Enqueue(ctx, []models.LedgerEvent{event(1, models.LedgerRegister)}); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	cancel()
	// Queue is full and nobody is running: only ctx can release the caller.
	if err := d.Enqueue(ctx, []models.LedgerEvent{event(2, models.LedgerRegister)}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunDrainsOnShutdown(t *testing.T) {
	sink := newFakeSink()
	d := NewDispatcher(sink, 8, discard, nil)

	ctx, cancel := context.WithCancel(context.Background())
	for i := uint64(1); i <= 3; i++ {
		_ = d.Enqueue(ctx, []models.LedgerEvent{event(i, models.LedgerRegister)})
	}
	cancel()

	if err := d.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := sink.events(); len(got) != 3 {
		t.Fatalf("expected queued batches flushed, got %d", len(got))
	}
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewJSONHandler(&buf, nil)))

	if err := sink.Send(context.Background(), []models.LedgerEvent{event(7, models.LedgerCancel)}); err != nil {
		t.Fatalf("send: %v", err)
	}

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if line["msg"] != "ledger_event" || line["type"] != "cancel" || line["order_id"] != float64(7) {
		t.Fatalf("unexpected log line %v", line)
	}
}

func TestKafkaMessages(t *testing.T) {
	msgs, err := kafkaMessages([]models.LedgerEvent{event(42, models.LedgerRegister)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 1 || string(msgs[0].Key) != "42" {
		t.Fatalf("unexpected messages %+v", msgs)
	}
	if !strings.Contains(string(msgs[0].Value), `"side":"B"`) {
		t.Fatalf("value must carry the side letter, got %s", msgs[0].Value)
	}
	if string(msgs[0].Headers[0].Value) != "register" {
		t.Fatalf("unexpected type header %q", msgs[0].Headers[0].Value)
	}
}

func TestXAddArgs(t *testing.T) {
	args, err := xaddArgs("mm:orders", 1000, event(3, models.LedgerModify))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if args.Stream != "mm:orders" || args.MaxLen != 1000 || !args.Approx {
		t.Fatalf("unexpected args %+v", args)
	}
	values := args.Values.(map[string]interface{})
	var ev models.LedgerEvent
	if err := json.Unmarshal([]byte(values["data"].(string)), &ev); err != nil {
		t.Fatalf("data is not a ledger event: %v", err)
	}
	if ev.Type != models.LedgerModify || ev.Order.OrderID != 3 {
		t.Fatalf("unexpected payload %+v", ev)
	}
}

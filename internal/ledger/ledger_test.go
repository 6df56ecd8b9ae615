package ledger

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/athiyenarivalagan/hft-market-making/internal/models"
)

func newTestLedger() *Ledger {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegisterRejectsNonPositive(t *testing.T) {
	tests := []struct {
		name        string
		price, size float64
	}{
		{"zero price", 0, 1},
		{"negative price", -1, 1},
		{"zero size", 100, 0},
		{"negative size", 100, -2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLedger()
			err := l.Register(1, models.SideBid, tt.price, tt.size, 1)
			if !errors.Is(err, ErrInvalidOrder) {
				t.Fatalf("expected ErrInvalidOrder, got %v", err)
			}
			if l.Len() != 0 {
				t.Fatalf("rejected registration created an entry")
			}
			if ev := l.Drain(); ev != nil {
				t.Fatalf("rejected registration emitted events: %v", ev)
			}
		})
	}
}

func TestRegisterOverwrites(t *testing.T) {
	l := newTestLedger()
	if err := l.Register(1, models.SideBid, 99.5, 1, 1); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := l.Register(1, models.SideAsk, 100.5, 2, 2); err != nil {
		t.Fatalf("register: %v", err)
	}

	o, ok := l.Get(1)
	if !ok {
		t.Fatal("order missing")
	}
	want := models.OwnedOrder{OrderID: 1, Side: models.SideAsk, Price: 100.5, Size: 2, Ts: 2}
	if o != want {
		t.Fatalf("got %+v, want %+v", o, want)
	}
	if l.Len() != 1 {
		t.Fatalf("expected 1 order, got %d", l.Len())
	}
}

func TestModifyAndCancel(t *testing.T) {
	l := newTestLedger()
	_ = l.Register(3, models.SideBid, 99, 1, 1)

	l.Modify(3, 98.5, 2, 5)
	o, _ := l.Get(3)
	if o.Price != 98.5 || o.Size != 2 || o.Ts != 5 {
		t.Fatalf("modify not applied: %+v", o)
	}

	l.Modify(42, 1, 1, 1)
	l.Cancel(42)
	if l.Len() != 1 {
		t.Fatalf("unknown ids must be ignored, len %d", l.Len())
	}

	l.Cancel(3)
	l.Cancel(3)
	if _, ok := l.Get(3); ok {
		t.Fatal("cancelled order still present")
	}
}

func TestDrainRecordsMutationsInOrder(t *testing.T) {
	l := newTestLedger()
	_ = l.Register(1, models.SideBid, 99, 1, 1)
	_ = l.Register(2, models.SideAsk, 101, 1, 1)
	l.Modify(2, 101.5, 1, 2)
	l.Cancel(1)
	_ = l.Register(3, models.SideBid, 0, 1, 3) // rejected

	events := l.Drain()
	wantTypes := []models.LedgerEventType{
		models.LedgerRegister, models.LedgerRegister, models.LedgerModify, models.LedgerCancel,
	}
	if len(events) != len(wantTypes) {
		t.Fatalf("expected %d events, got %d", len(wantTypes), len(events))
	}
	seen := make(map[string]bool)
	for i, ev := range events {
		if ev.Type != wantTypes[i] {
			t.Fatalf("event %d: got %s, want %s", i, ev.Type, wantTypes[i])
		}
		if ev.ID == "" || seen[ev.ID] {
			t.Fatalf("event %d: missing or duplicate id %q", i, ev.ID)
		}
		seen[ev.ID] = true
	}
	if events[2].Order.Price != 101.5 {
		t.Fatalf("modify event carries stale price %v", events[2].Order.Price)
	}
	if events[3].Order.OrderID != 1 || events[3].Order.Side != models.SideBid {
		t.Fatalf("cancel event must carry full attributes, got %+v", events[3].Order)
	}

	if again := l.Drain(); again != nil {
		t.Fatalf("expected empty outbox, got %v", again)
	}
}

func TestOrdersSortedByID(t *testing.T) {
	l := newTestLedger()
	for _, id := range []uint64{5, 2, 9, 1} {
		_ = l.Register(id, models.SideBid, 100, 1, int64(id))
	}
	orders := l.Orders()
	for i := 1; i < len(orders); i++ {
		if orders[i-1].OrderID >= orders[i].OrderID {
			t.Fatalf("orders not sorted: %v", orders)
		}
	}
	if len(orders) != 4 {
		t.Fatalf("expected 4 orders, got %d", len(orders))
	}
}

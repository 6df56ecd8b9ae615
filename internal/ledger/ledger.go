// Package ledger tracks the engine's own working orders. Order ids live in an
// engine-local space disjoint from exchange ids, and the ledger never touches
// the exchange book.
package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/athiyenarivalagan/hft-market-making/internal/models"
)

// ErrInvalidOrder is returned when a registration carries a non-positive price or size.
var ErrInvalidOrder = errors.New("ledger: invalid order")

// Ledger maps engine-local order ids to owned orders and records every
// mutation in an outbox for the order transmission layer.
//
// Like the book, a Ledger is confined to one goroutine.
type Ledger struct {
	orders map[uint64]*models.OwnedOrder
	outbox []models.LedgerEvent
	logger *slog.Logger
}

// New creates an empty ledger.
func New(logger *slog.Logger) *Ledger {
	return &Ledger{
		orders: make(map[uint64]*models.OwnedOrder),
		logger: logger.With("component", "ledger"),
	}
}

// Register creates or overwrites an owned order. Orders with price <= 0 or
// size <= 0 are rejected with ErrInvalidOrder and leave the ledger unchanged.
func (l *Ledger) Register(id uint64, side models.Side, price, size float64, ts int64) error {
	if price <= 0 || size <= 0 {
		l.logger.Warn("ledger_reject",
			"order_id", id,
			"side", side.String(),
			"price", price,
			"size", size,
		)
		return fmt.Errorf("%w: order %d price=%v size=%v", ErrInvalidOrder, id, price, size)
	}

	o := &models.OwnedOrder{OrderID: id, Side: side, Price: price, Size: size, Ts: ts}
	l.orders[id] = o
	l.emit(models.LedgerRegister, o)

	l.logger.Debug("order_registered",
		"order_id", id,
		"side", side.String(),
		"price", price,
		"size", size,
	)
	return nil
}

// Modify updates price, size and timestamp of a working order in place.
// Unknown ids are ignored.
func (l *Ledger) Modify(id uint64, newPrice, newSize float64, ts int64) {
	o, ok := l.orders[id]
	if !ok {
		return
	}
	o.Price = newPrice
	o.Size = newSize
	o.Ts = ts
	l.emit(models.LedgerModify, o)
}

// Cancel removes a working order. Unknown ids are ignored.
func (l *Ledger) Cancel(id uint64) {
	o, ok := l.orders[id]
	if !ok {
		return
	}
	delete(l.orders, id)
	l.emit(models.LedgerCancel, o)

	l.logger.Debug("order_cancelled", "order_id", id, "side", o.Side.String())
}

// Get returns a copy of the working order with the given id.
func (l *Ledger) Get(id uint64) (models.OwnedOrder, bool) {
	o, ok := l.orders[id]
	if !ok {
		return models.OwnedOrder{}, false
	}
	return *o, true
}

// Len returns the number of working orders.
func (l *Ledger) Len() int {
	return len(l.orders)
}

// Orders returns all working orders sorted by id.
func (l *Ledger) Orders() []models.OwnedOrder {
	out := make([]models.OwnedOrder, 0, len(l.orders))
	for _, o := range l.orders {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out
}

// Drain returns the mutations recorded since the previous call and empties
// the outbox. The returned slice is owned by the caller.
func (l *Ledger) Drain() []models.LedgerEvent {
	if len(l.outbox) == 0 {
		return nil
	}
	events := l.outbox
	l.outbox = nil
	return events
}

func (l *Ledger) emit(typ models.LedgerEventType, o *models.OwnedOrder) {
	l.outbox = append(l.outbox, models.LedgerEvent{
		ID:    uuid.NewString(),
		Type:  typ,
		Order: *o,
	})
}

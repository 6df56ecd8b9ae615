// Package book maintains a price-time priority replica of an exchange order
// book from market-by-order events. It never originates orders.
//
// The book is single-writer: callers must serialize all mutations and queries
// for one instrument.
package book

import (
	"fmt"
	"math"

	"github.com/google/btree"

	"github.com/athiyenarivalagan/hft-market-making/internal/models"
)

const priceLevelsBTreeDegree = 32

// sizeTolerance absorbs float drift between a level's running total and a
// fresh sum of its queue.
const sizeTolerance = 1e-9

// Book is the exchange-side order book for one instrument.
type Book struct {
	bids   *btree.BTreeG[*PriceLevel] // ascending by price, best = max
	asks   *btree.BTreeG[*PriceLevel] // ascending by price, best = min
	orders map[uint64]*Order
}

// New creates an empty book.
func New() *Book {
	return &Book{
		bids:   btree.NewG(priceLevelsBTreeDegree, lessPrice),
		asks:   btree.NewG(priceLevelsBTreeDegree, lessPrice),
		orders: make(map[uint64]*Order),
	}
}

func lessPrice(a, b *PriceLevel) bool {
	return a.Price < b.Price
}

// levels returns the level index for side, or nil for SideNone.
func (b *Book) levels(side models.Side) (*btree.BTreeG[*PriceLevel], error) {
	switch side {
	case models.SideBid:
		return b.bids, nil
	case models.SideAsk:
		return b.asks, nil
	case models.SideNone:
		return nil, nil
	}
	return nil, &InvalidSideError{Side: side}
}

// Apply dispatches a feed record to the matching event handler.
func (b *Book) Apply(rec models.Record) error {
	switch rec.Action {
	case models.ActionAdd:
		return b.OnAdd(rec.OrderID, rec.Side, rec.Price, rec.Size, rec.Ts)
	case models.ActionModify:
		return b.OnModify(rec.OrderID, rec.Price, rec.Size, rec.Ts)
	case models.ActionCancel:
		return b.OnCancel(rec.OrderID)
	case models.ActionTrade:
		return b.OnTrade(rec.OrderID, rec.Size, rec.Ts)
	case models.ActionFill:
		return b.OnFill(rec.OrderID, rec.Size, rec.Ts)
	case models.ActionClear:
		b.OnClear()
		return nil
	}
	return fmt.Errorf("book: unsupported action %s", rec.Action)
}

// OnAdd inserts a new exchange order. A resting order with the same id is
// cancelled first. Orders with SideNone are indexed but belong to no level.
func (b *Book) OnAdd(id uint64, side models.Side, price, size float64, ts int64) error {
	tree, err := b.levels(side)
	if err != nil {
		return err
	}

	if _, exists := b.orders[id]; exists {
		if err := b.OnCancel(id); err != nil {
			return err
		}
	}

	o := &Order{ID: id, Side: side, Price: price, Size: size, Ts: ts}
	b.orders[id] = o
	if tree != nil {
		levelAt(tree, price).Add(o)
	}
	return nil
}

// OnModify changes price, size and timestamp of a resting order. A price
// change moves the order to the tail of the new level and forfeits its queue
// position; a size-only change keeps it. Unknown ids are ignored.
func (b *Book) OnModify(id uint64, newPrice, newSize float64, ts int64) error {
	o, ok := b.orders[id]
	if !ok {
		return nil
	}
	tree, err := b.levels(o.Side)
	if err != nil {
		return err
	}

	o.Ts = ts
	if newPrice == o.Price {
		o.setSize(newSize)
		return nil
	}

	if tree != nil {
		unlink(tree, o)
	}
	o.Price = newPrice
	o.Size = newSize
	if tree != nil {
		levelAt(tree, newPrice).Add(o)
	}
	return nil
}

// OnCancel removes an order from the index and its level. Unknown ids are ignored.
func (b *Book) OnCancel(id uint64) error {
	o, ok := b.orders[id]
	if !ok {
		return nil
	}
	tree, err := b.levels(o.Side)
	if err != nil {
		return err
	}

	delete(b.orders, id)
	if tree != nil {
		unlink(tree, o)
	}
	return nil
}

// OnTrade decrements the resting size of an order by executed. Orders reaching
// zero or less are removed; partially executed orders keep their position.
func (b *Book) OnTrade(id uint64, executed float64, ts int64) error {
	o, ok := b.orders[id]
	if !ok {
		return nil
	}

	o.setSize(o.Size - executed)
	o.Ts = ts
	if o.Size <= 0 {
		return b.OnCancel(id)
	}
	return nil
}

// OnFill has the same semantics as OnTrade.
func (b *Book) OnFill(id uint64, executed float64, ts int64) error {
	return b.OnTrade(id, executed, ts)
}

// OnClear empties the book.
func (b *Book) OnClear() {
	b.orders = make(map[uint64]*Order)
	b.bids.Clear(false)
	b.asks.Clear(false)
}

// BestBid returns the highest occupied bid price.
func (b *Book) BestBid() (float64, bool) {
	lvl, ok := b.bids.Max()
	if !ok {
		return 0, false
	}
	return lvl.Price, true
}

// BestAsk returns the lowest occupied ask price.
func (b *Book) BestAsk() (float64, bool) {
	lvl, ok := b.asks.Min()
	if !ok {
		return 0, false
	}
	return lvl.Price, true
}

// BestBidSize returns the total size at the best bid, or 0 if there are no bids.
func (b *Book) BestBidSize() float64 {
	lvl, ok := b.bids.Max()
	if !ok {
		return 0
	}
	return lvl.TotalSize()
}

// BestAskSize returns the total size at the best ask, or 0 if there are no asks.
func (b *Book) BestAskSize() float64 {
	lvl, ok := b.asks.Min()
	if !ok {
		return 0
	}
	return lvl.TotalSize()
}

// TopOfBook computes the current best prices and sizes.
func (b *Book) TopOfBook() models.TopOfBook {
	var top models.TopOfBook
	if lvl, ok := b.bids.Max(); ok {
		top.HasBid = true
		top.BidPrice = lvl.Price
		top.BidSize = lvl.TotalSize()
	}
	if lvl, ok := b.asks.Min(); ok {
		top.HasAsk = true
		top.AskPrice = lvl.Price
		top.AskSize = lvl.TotalSize()
	}
	return top
}

// Levels returns up to n aggregated levels for side, best first.
func (b *Book) Levels(side models.Side, n int) ([]models.PriceQty, error) {
	tree, err := b.levels(side)
	if err != nil {
		return nil, err
	}
	if tree == nil || n <= 0 {
		return nil, nil
	}

	out := make([]models.PriceQty, 0, min(n, tree.Len()))
	visit := func(lvl *PriceLevel) bool {
		out = append(out, models.PriceQty{Price: lvl.Price, Qty: lvl.TotalSize()})
		return len(out) < n
	}
	if side == models.SideBid {
		tree.Descend(visit)
	} else {
		tree.Ascend(visit)
	}
	return out, nil
}

// Order looks up a resting order by id. The result must be treated as read-only.
func (b *Book) Order(id uint64) (*Order, bool) {
	o, ok := b.orders[id]
	return o, ok
}

// Len returns the number of orders in the identifier index.
func (b *Book) Len() int {
	return len(b.orders)
}

// Check verifies the structural invariants of the book: every indexed order
// sits in exactly one level matching its side and price (neutral orders sit in
// none), every queued order is indexed, and no level is empty.
func (b *Book) Check() error {
	queued := 0
	for _, tree := range []*btree.BTreeG[*PriceLevel]{b.bids, b.asks} {
		var err error
		tree.Ascend(func(lvl *PriceLevel) bool {
			if lvl.Empty() {
				err = fmt.Errorf("empty level at %v", lvl.Price)
				return false
			}
			n := 0
			sum := 0.0
			for o := lvl.head; o != nil; o = o.next {
				n++
				sum += o.Size
				if b.orders[o.ID] != o {
					err = fmt.Errorf("order %d queued at %v but not indexed", o.ID, lvl.Price)
					return false
				}
				if o.Price != lvl.Price || o.level != lvl {
					err = fmt.Errorf("order %d price %v queued at %v", o.ID, o.Price, lvl.Price)
					return false
				}
			}
			if n != lvl.Len() {
				err = fmt.Errorf("level %v queue length %d, index %d", lvl.Price, n, lvl.Len())
				return false
			}
			if math.Abs(sum-lvl.TotalSize()) > sizeTolerance {
				err = fmt.Errorf("level %v total %v, queue sums to %v", lvl.Price, lvl.TotalSize(), sum)
				return false
			}
			queued += n
			return true
		})
		if err != nil {
			return err
		}
	}

	neutral := 0
	for id, o := range b.orders {
		switch o.Side {
		case models.SideNone:
			if o.level != nil {
				return fmt.Errorf("neutral order %d is queued", id)
			}
			neutral++
		case models.SideBid, models.SideAsk:
			tree, _ := b.levels(o.Side)
			lvl, ok := tree.Get(&PriceLevel{Price: o.Price})
			if !ok || lvl.orders[id] != o {
				return fmt.Errorf("order %d not reachable from %s level %v", id, o.Side, o.Price)
			}
		default:
			return &InvalidSideError{Side: o.Side}
		}
	}

	if queued+neutral != len(b.orders) {
		return fmt.Errorf("index holds %d orders, levels hold %d plus %d neutral", len(b.orders), queued, neutral)
	}
	return nil
}

// levelAt returns the level at price, creating it if needed.
func levelAt(tree *btree.BTreeG[*PriceLevel], price float64) *PriceLevel {
	if lvl, ok := tree.Get(&PriceLevel{Price: price}); ok {
		return lvl
	}
	lvl := newPriceLevel(price)
	tree.ReplaceOrInsert(lvl)
	return lvl
}

// unlink removes o from its level and drops the level once empty.
func unlink(tree *btree.BTreeG[*PriceLevel], o *Order) {
	lvl := o.level
	if lvl == nil {
		var ok bool
		if lvl, ok = tree.Get(&PriceLevel{Price: o.Price}); !ok {
			return
		}
	}
	lvl.Remove(o.ID)
	if lvl.Empty() {
		tree.Delete(lvl)
	}
}

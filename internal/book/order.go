package book

import "github.com/athiyenarivalagan/hft-market-making/internal/models"

// Order is a resting exchange order. It is owned by the Book and linked into
// at most one PriceLevel queue.
type Order struct {
	ID    uint64
	Side  models.Side
	Price float64
	Size  float64
	Ts    int64

	level *PriceLevel
	next  *Order
	prev  *Order
}

// setSize updates the resting size and the total of the level holding o.
func (o *Order) setSize(size float64) {
	if o.level != nil {
		o.level.resize(o, size)
		return
	}
	o.Size = size
}

// Next returns the order queued behind o at the same price, or nil.
func (o *Order) Next() *Order {
	return o.next
}

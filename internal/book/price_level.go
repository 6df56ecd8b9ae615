package book

// PriceLevel is a FIFO queue of resting orders at a single price.
// Queue position is arrival order; orders are also indexed by id so removal
// and in-place updates are O(1). The resting total is kept incrementally.
type PriceLevel struct {
	Price float64

	head   *Order
	tail   *Order
	orders map[uint64]*Order
	total  float64
}

func newPriceLevel(price float64) *PriceLevel {
	return &PriceLevel{Price: price, orders: make(map[uint64]*Order)}
}

// Add appends o at the tail. If an order with the same id is already queued
// its attributes are updated and it keeps its queue position.
func (p *PriceLevel) Add(o *Order) {
	if cur, ok := p.orders[o.ID]; ok {
		if cur != o {
			p.total += o.Size - cur.Size
			cur.Side = o.Side
			cur.Price = o.Price
			cur.Size = o.Size
			cur.Ts = o.Ts
		}
		return
	}

	o.level = p
	o.next = nil
	o.prev = p.tail
	if p.tail == nil {
		p.head = o
	} else {
		p.tail.next = o
	}
	p.tail = o
	p.orders[o.ID] = o
	p.total += o.Size
}

// Remove unlinks the order with the given id. Unknown ids are ignored.
func (p *PriceLevel) Remove(id uint64) bool {
	o, ok := p.orders[id]
	if !ok {
		return false
	}
	delete(p.orders, id)
	p.total -= o.Size
	if len(p.orders) == 0 {
		p.total = 0
	}

	if o.prev != nil {
		o.prev.next = o.next
	} else {
		p.head = o.next
	}
	if o.next != nil {
		o.next.prev = o.prev
	} else {
		p.tail = o.prev
	}
	o.next, o.prev, o.level = nil, nil, nil
	return true
}

// TotalSize is the sum of resting sizes at this price.
func (p *PriceLevel) TotalSize() float64 {
	return p.total
}

// resize changes the size of a queued order without touching its position.
func (p *PriceLevel) resize(o *Order, size float64) {
	p.total += size - o.Size
	o.Size = size
}

// Len returns the number of queued orders.
func (p *PriceLevel) Len() int {
	return len(p.orders)
}

// Empty reports whether the level holds no orders.
func (p *PriceLevel) Empty() bool {
	return p.head == nil
}

// Head returns the order with the highest time priority.
func (p *PriceLevel) Head() *Order {
	return p.head
}

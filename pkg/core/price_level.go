package core

import "github.com/nikolaydubina/fpdecimal"

// PriceLevel is a FIFO queue of live orders resting at one price.
// Orders are linked intrusively so a cancel can unlink from the middle in O(1).
type PriceLevel struct {
	price  fpdecimal.Decimal
	head   *Order
	tail   *Order
	volume fpdecimal.Decimal
	count  int
}

// NewPriceLevel creates an empty level at price
func NewPriceLevel(price fpdecimal.Decimal) *PriceLevel {
	return &PriceLevel{
		price:  price,
		volume: fpdecimal.Zero,
	}
}

// Price returns the level price
func (p *PriceLevel) Price() fpdecimal.Decimal {
	return p.price
}

// Volume returns the sum of remaining quantity over the queued orders
func (p *PriceLevel) Volume() fpdecimal.Decimal {
	return p.volume
}

// Len returns the number of queued orders
func (p *PriceLevel) Len() int {
	return p.count
}

// Empty reports whether the level holds no orders
func (p *PriceLevel) Empty() bool {
	return p.head == nil
}

// Front returns the oldest order without removing it
func (p *PriceLevel) Front() *Order {
	return p.head
}

// Enqueue appends o to the tail
func (p *PriceLevel) Enqueue(o *Order) {
	o.level = p
	o.next = nil
	o.prev = p.tail
	if p.tail == nil {
		p.head = o
	} else {
		p.tail.next = o
	}
	p.tail = o
	p.volume = p.volume.Add(o.remaining)
	p.count++
}

// PopFront removes and returns the oldest order, nil when empty
func (p *PriceLevel) PopFront() *Order {
	o := p.head
	if o == nil {
		return nil
	}
	p.Remove(o)
	return o
}

// Remove unlinks o from the level. It returns false if o is not queued here.
func (p *PriceLevel) Remove(o *Order) bool {
	if o == nil || o.level != p {
		return false
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

	p.volume = p.volume.Sub(o.remaining)
	p.count--
	o.level, o.prev, o.next = nil, nil, nil
	return true
}

// Reduce lowers the aggregate after a queued order was partially filled
func (p *PriceLevel) Reduce(quantity fpdecimal.Decimal) {
	p.volume = p.volume.Sub(quantity)
}

// Orders returns the queued orders in arrival order
func (p *PriceLevel) Orders() []*Order {
	orders := make([]*Order, 0, p.count)
	for o := p.head; o != nil; o = o.next {
		orders = append(orders, o)
	}
	return orders
}

package exchange

import "sort"

// OrderBook holds one pair's two sorted order sequences. Sells are
// orders selling the base asset, buys are orders selling the quote
// asset. Both sides sort ascending under orderLess, so the best ask is
// at the head of Sells and the best bid at the tail of Buys.
//
// The *Order values here are shared with the engine's id index: the
// book holds ordered references into a single owned store, not copies.
type OrderBook struct {
	Pair  Pair
	Sells []*Order
	Buys  []*Order
}

func NewOrderBook(p Pair) *OrderBook {
	return &OrderBook{Pair: p}
}

// Insert places the order into its side at sorted position.
func (b *OrderBook) Insert(o *Order) {
	side := &b.Buys
	if o.Sell.Symbol == b.Pair.Base {
		side = &b.Sells
	}
	*side = insertSorted(*side, o)
}

func insertSorted(side []*Order, o *Order) []*Order {
	i := sort.Search(len(side), func(i int) bool { return orderLess(o, side[i]) })
	side = append(side, nil)
	copy(side[i+1:], side[i:])
	side[i] = o
	return side
}

// Remove takes the order with the given id off whichever side holds
// it, returning it, or nil when absent.
func (b *OrderBook) Remove(id uint64) *Order {
	if o, rest, ok := removeByID(b.Sells, id); ok {
		b.Sells = rest
		return o
	}
	if o, rest, ok := removeByID(b.Buys, id); ok {
		b.Buys = rest
		return o
	}
	return nil
}

func removeByID(side []*Order, id uint64) (*Order, []*Order, bool) {
	for i, o := range side {
		if o.ID == id {
			return o, append(side[:i], side[i+1:]...), true
		}
	}
	return nil, side, false
}

// Empty reports whether no orders rest on either side.
func (b *OrderBook) Empty() bool {
	return len(b.Sells) == 0 && len(b.Buys) == 0
}

// All returns every resting order, sells first.
func (b *OrderBook) All() []*Order {
	out := make([]*Order, 0, len(b.Sells)+len(b.Buys))
	out = append(out, b.Sells...)
	out = append(out, b.Buys...)
	return out
}

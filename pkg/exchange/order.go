package exchange

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/glsig/dexchange/pkg/asset"
)

// Order is a resting or in-flight limit order. Identity fields are
// fixed at creation; Received/Paid/Fee/AvgPrice advance only inside
// the matching pass.
type Order struct {
	ID        uint64         `json:"id"`
	Owner     common.Address `json:"owner"`
	CreatedAt int64          `json:"createdAt"` // unix microseconds
	Sell      asset.Asset    `json:"sell"`
	Buy       asset.Asset    `json:"buy"`
	Price     float64        `json:"price"`

	Received asset.Asset `json:"received"` // buy-side credited so far, net of fee
	Paid     asset.Asset `json:"paid"`     // sell-side debited so far
	Fee      asset.Asset `json:"fee"`      // cumulative fee charged
	AvgPrice float64     `json:"avgPrice"`
}

// newOrder fixes the limit price in the pair's canonical unit (quote
// per base): orders selling the base asset price directly, orders
// selling the quote asset invert.
func newOrder(id uint64, owner common.Address, createdAt int64, sell, buy asset.Asset, base asset.Symbol) *Order {
	o := &Order{
		ID:        id,
		Owner:     owner,
		CreatedAt: createdAt,
		Sell:      sell,
		Buy:       buy,
		Received:  buy.Zero(),
		Paid:      sell.Zero(),
		Fee:       asset.New(0, buy.Symbol),
	}
	sellWhole := float64(sell.Amount) / asset.Pow10(sell.Symbol.Precision)
	buyWhole := float64(buy.Amount) / asset.Pow10(buy.Symbol.Precision)
	if base == sell.Symbol {
		o.Price = buyWhole / sellWhole
	} else {
		o.Price = sellWhole / buyWhole
	}
	o.AvgPrice = o.Price
	return o
}

// SellLeft is the unfilled sell-side remainder still reserved in the
// ledger.
func (o *Order) SellLeft() asset.Asset { return o.Sell.Sub(o.Paid) }

// Filled reports whether the order has paid out its full sell amount.
func (o *Order) Filled() bool { return o.Paid.Amount == o.Sell.Amount }

// applyFill advances the fill progress by one trade: credit received,
// debit paid, recompute the running average price (inverted for orders
// selling the quote side), then net the fee out of received.
func (o *Order) applyFill(recv, paid, fee asset.Asset, invert bool) error {
	o.Received = o.Received.Add(recv)
	o.Paid = o.Paid.Add(paid)
	if o.Paid.Amount > o.Sell.Amount {
		return errConsistency("order %d overpaid: sell %s < paid %s", o.ID, o.Sell, o.Paid)
	}
	recvWhole := float64(o.Received.Amount) / asset.Pow10(o.Received.Symbol.Precision)
	paidWhole := float64(o.Paid.Amount) / asset.Pow10(o.Paid.Symbol.Precision)
	o.AvgPrice = recvWhole / paidWhole
	if invert {
		o.AvgPrice = 1 / o.AvgPrice
	}
	o.Received = o.Received.Sub(fee)
	o.Fee = o.Fee.Add(fee)
	return nil
}

// orderLess is the strict total order that keeps each book side
// sorted and, via position, fixes matching priority: price ascending,
// then creation time ascending (price-time priority), then requested
// buy amount descending (larger orders first), then id ascending.
//
// The descending buy-amount tie-break is a deliberate single rule; the
// deployed ledger's comparator had two contradictory branches at this
// position and could not order equal-price, equal-time orders
// consistently.
func orderLess(a, b *Order) bool {
	if a.Price != b.Price {
		return a.Price < b.Price
	}
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt < b.CreatedAt
	}
	if a.Buy.Amount != b.Buy.Amount {
		return a.Buy.Amount > b.Buy.Amount
	}
	return a.ID < b.ID
}

// makerOf picks the resting side of a cross: the earlier order, with
// the lower id breaking an exact time tie. The trade executes at the
// maker's price.
func makerOf(a, b *Order) *Order {
	if a.CreatedAt != b.CreatedAt {
		if a.CreatedAt < b.CreatedAt {
			return a
		}
		return b
	}
	if a.ID < b.ID {
		return a
	}
	return b
}

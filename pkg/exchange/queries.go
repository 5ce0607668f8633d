package exchange

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/glsig/dexchange/pkg/asset"
)

// Read-only accessors for the API layer. All return copies; the
// engine's working set is never handed out.

func (x *Exchange) Pairs() []Pair {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]Pair(nil), x.state.Pairs...)
}

func (x *Exchange) Tokens() []TokenInfo {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make([]TokenInfo, 0, len(x.state.Tokens))
	for _, t := range x.state.Tokens {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol.Code < out[j].Symbol.Code })
	return out
}

// PairByName resolves a "BASE-QUOTE" label to its registered pair.
func (x *Exchange) PairByName(name string) (Pair, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, p := range x.state.Pairs {
		if p.Name() == name {
			return p, true
		}
	}
	return Pair{}, false
}

// Granularities returns the configured candle bucket widths.
func (x *Exchange) Granularities() []int64 {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]int64(nil), x.state.Granularities...)
}

// LookupSymbol resolves a token code to its full symbol.
func (x *Exchange) LookupSymbol(code string) (asset.Symbol, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	tok, ok := x.state.Tokens[code]
	return tok.Symbol, ok
}

func (x *Exchange) FeeFor(sym asset.Symbol) FeeInfo {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.state.FeeFor(sym)
}

// AccountInfo returns a snapshot of one account.
func (x *Exchange) AccountInfo(owner common.Address) (Account, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	acct, ok := x.ledger.Get(owner)
	if !ok {
		return Account{}, false
	}
	cp := Account{
		Owner:    acct.Owner,
		Balances: make(map[string]TokenBalance, len(acct.Balances)),
		PairKeys: make(map[string]uint64, len(acct.PairKeys)),
	}
	for k, v := range acct.Balances {
		cp.Balances[k] = v
	}
	for k, v := range acct.PairKeys {
		cp.PairKeys[k] = v
	}
	return cp, true
}

// OpenOrders returns snapshots of the owner's resting orders, id
// ascending.
func (x *Exchange) OpenOrders(owner common.Address) []Order {
	x.mu.Lock()
	defer x.mu.Unlock()
	var out []Order
	for _, o := range x.ordersOf(owner) {
		out = append(out, *o)
	}
	return out
}

// BookSnapshot returns copies of the two sorted sides for a pair.
func (x *Exchange) BookSnapshot(a, b asset.Symbol) (sells, buys []Order, err error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	pair, ok := x.state.PairPermitted(a, b)
	if !ok {
		return nil, nil, errValidation("pair %s/%s not permitted", a, b)
	}
	book, ok := x.books[pair.Key]
	if !ok {
		return nil, nil, nil
	}
	for _, o := range book.Sells {
		sells = append(sells, *o)
	}
	for _, o := range book.Buys {
		buys = append(buys, *o)
	}
	return sells, buys, nil
}

// Blacklisted reports membership.
func (x *Exchange) Blacklisted(owner common.Address) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.isBlacklisted(owner)
}

// OpenOrderCount is the number of resting orders across all pairs.
func (x *Exchange) OpenOrderCount() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.orders)
}

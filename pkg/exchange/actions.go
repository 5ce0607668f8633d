package exchange

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/glsig/dexchange/pkg/asset"
)

// Deposit credits an inbound custody notification, registering the
// account on first use.
func (x *Exchange) Deposit(owner common.Address, amount asset.Asset) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.ready(); err != nil {
		return err
	}
	x.beginAction()

	if x.isBlacklisted(owner) {
		return errAuthorization("account %s is blacklisted", owner.Hex())
	}
	if amount.Amount <= 0 {
		return errValidation("deposit amount must be positive")
	}
	if !x.state.TokenPermitted(amount.Symbol) {
		return errValidation("token %s not permitted", amount.Symbol)
	}

	b := x.store.Batch()
	acct := x.ledger.Deposit(owner, amount, x.state.Pairs)
	b.PutAccount(acct)
	return x.finishAction(b)
}

// PlaceOrder reserves the sell amount, rests the order at sorted
// position and runs the matching pass for its pair.
func (x *Exchange) PlaceOrder(owner common.Address, sell, buy asset.Asset) (err error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.ready(); err != nil {
		return err
	}
	defer x.rollback(&err)
	x.beginAction()

	if x.isBlacklisted(owner) {
		return errAuthorization("account %s is blacklisted", owner.Hex())
	}
	acct, ok := x.ledger.Get(owner)
	if !ok {
		return errValidation("no account for %s", owner.Hex())
	}
	pair, ok := x.state.PairPermitted(sell.Symbol, buy.Symbol)
	if !ok {
		return errValidation("pair %s/%s not permitted", sell.Symbol, buy.Symbol)
	}
	if sell.Amount == 0 || buy.Amount == 0 {
		return errValidation("zero asset not permitted")
	}
	bal, ok := acct.Balances[sell.Symbol.Code]
	if !ok {
		return errValidation("%s holds no %s", owner.Hex(), sell.Symbol.Code)
	}
	if bal.Available.LT(sell) {
		return errInsufficient("insufficient %s: available %s, need %s",
			sell.Symbol.Code, bal.Available, sell)
	}
	if sell.LT(x.state.FeeFor(sell.Symbol).MinOrder) {
		return errValidation("order below minimum order size %s",
			x.state.FeeFor(sell.Symbol).MinOrder)
	}

	b := x.store.Batch()
	now := x.clock.Now().UnixMicro()

	if err := x.ledger.Reserve(owner, sell); err != nil {
		return err
	}
	b.PutAccount(acct)

	o := newOrder(x.state.NextOrderID(), owner, now, sell, buy, pair.Base)
	b.PutState(x.state)

	book := x.bookFor(pair)
	book.Insert(o)
	x.orders[o.ID] = o
	b.PutOrder(o)

	x.log.Debugw("order placed",
		"id", o.ID, "owner", owner.Hex(), "sell", sell.String(), "buy", buy.String(), "price", o.Price)

	if err := x.match(b, book, now); err != nil {
		return err
	}
	return x.finishAction(b)
}

// CancelOrders cancels the owner's listed orders. Unknown ids and
// orders belonging to someone else are skipped, matching the ledger's
// public behavior.
func (x *Exchange) CancelOrders(owner common.Address, ids []uint64) (err error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.ready(); err != nil {
		return err
	}
	defer x.rollback(&err)
	x.beginAction()

	if x.isBlacklisted(owner) {
		return errAuthorization("account %s is blacklisted", owner.Hex())
	}
	if _, ok := x.ledger.Get(owner); !ok {
		return errValidation("no account for %s", owner.Hex())
	}

	var doomed []*Order
	for _, id := range ids {
		if o, ok := x.orders[id]; ok && o.Owner == owner {
			doomed = append(doomed, o)
		}
	}

	b := x.store.Batch()
	if err := x.cancelOrderSet(b, doomed, ClosedByUser); err != nil {
		return err
	}
	return x.finishAction(b)
}

// CancelAll cancels every open order the owner has, on every pair.
func (x *Exchange) CancelAll(owner common.Address) (err error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.ready(); err != nil {
		return err
	}
	defer x.rollback(&err)
	x.beginAction()

	if x.isBlacklisted(owner) {
		return errAuthorization("account %s is blacklisted", owner.Hex())
	}
	if _, ok := x.ledger.Get(owner); !ok {
		return errValidation("no account for %s", owner.Hex())
	}

	b := x.store.Batch()
	if err := x.cancelOrderSet(b, x.ordersOf(owner), ClosedByUser); err != nil {
		return err
	}
	return x.finishAction(b)
}

// Withdraw dispatches the owner's full available balance of one token
// outbound and zeroes it.
func (x *Exchange) Withdraw(owner common.Address, sym asset.Symbol) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.ready(); err != nil {
		return err
	}
	x.beginAction()

	if x.isBlacklisted(owner) {
		return errAuthorization("account %s is blacklisted", owner.Hex())
	}
	acct, ok := x.ledger.Get(owner)
	if !ok {
		return errValidation("no account for %s", owner.Hex())
	}
	bal, ok := acct.Balances[sym.Code]
	if !ok {
		return errValidation("%s holds no %s", owner.Hex(), sym.Code)
	}
	if bal.Available.Amount == 0 {
		return errValidation("zero %s balance", sym.Code)
	}

	b := x.store.Batch()
	x.queueTransfer(owner, bal.Available, "Token/tokens have been withdrawn")
	bal.Available = bal.Available.Zero()
	acct.Balances[sym.Code] = bal
	b.PutAccount(acct)
	return x.finishAction(b)
}

// ordersOf collects the owner's open orders, sorted by id for
// deterministic processing.
func (x *Exchange) ordersOf(owner common.Address) []*Order {
	var out []*Order
	for _, o := range x.orders {
		if o.Owner == owner {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// cancelOrderSet is the common cancellation primitive: snapshot each
// order to history with the reason, remove it from its book side and
// the id index, then release and refund the unfilled reservations,
// aggregated per owner and symbol into one transfer each.
func (x *Exchange) cancelOrderSet(b Batch, doomed []*Order, reason CloseStatus) error {
	if len(doomed) == 0 {
		return nil
	}
	sort.Slice(doomed, func(i, j int) bool { return doomed[i].ID < doomed[j].ID })
	now := x.clock.Now().UnixMicro()

	type refundKey struct {
		owner common.Address
		code  string
	}
	refunds := make(map[refundKey]asset.Asset)
	var order []refundKey // insertion order keeps dispatch deterministic

	for _, o := range doomed {
		pair, ok := x.state.PairPermitted(o.Sell.Symbol, o.Buy.Symbol)
		if ok {
			if book, exists := x.books[pair.Key]; exists {
				book.Remove(o.ID)
			}
		}
		x.closeToHistory(b, o, reason, now)

		left := o.SellLeft()
		if left.Amount == 0 {
			continue
		}
		k := refundKey{owner: o.Owner, code: left.Symbol.Code}
		if have, ok := refunds[k]; ok {
			refunds[k] = have.Add(left)
		} else {
			refunds[k] = left
			order = append(order, k)
		}
	}

	for _, k := range order {
		amount := refunds[k]
		if err := x.ledger.SettleDebitUsed(k.owner, amount); err != nil {
			return err
		}
		acct, _ := x.ledger.Get(k.owner)
		b.PutAccount(acct)
		x.queueTransfer(k.owner, amount, reason.Memo())
	}
	return nil
}

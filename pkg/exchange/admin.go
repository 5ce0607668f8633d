package exchange

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/glsig/dexchange/pkg/asset"
)

// Admin operations. Authorization is the caller's concern (the API
// layer gates these behind the admin credential); the engine only
// enforces state validity.

// AddToken registers a permitted token with its custody contract and
// fee schedule. The minimum order size derives from the fee rates.
func (x *Exchange) AddToken(contract common.Address, sym asset.Symbol, makerPct, takerPct float64) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.ready(); err != nil {
		return err
	}
	x.beginAction()

	if _, ok := x.state.Tokens[sym.Code]; ok {
		return errValidation("token code %s already registered", sym.Code)
	}
	if makerPct < 0 || makerPct > 100 || takerPct < 0 || takerPct > 100 {
		return errValidation("fee percentage out of range")
	}

	b := x.store.Batch()
	x.state.Tokens[sym.Code] = TokenInfo{Symbol: sym, Contract: contract}
	x.state.Fees[sym.Code] = NewFeeInfo(sym, makerPct, takerPct)

	codes := x.state.Contracts[contract]
	codes = append(codes, sym.Code)
	sort.Strings(codes)
	x.state.Contracts[contract] = codes

	b.PutState(x.state)
	x.log.Infow("token added", "symbol", sym.String(), "contract", contract.Hex(),
		"maker_pct", makerPct, "taker_pct", takerPct,
		"min_order", x.state.Fees[sym.Code].MinOrder.String())
	return x.finishAction(b)
}

// DelToken delists a token: cancels every order touching it, returns
// every account's full balance in it, and removes it from the
// permitted set.
func (x *Exchange) DelToken(contract common.Address, sym asset.Symbol) (err error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.ready(); err != nil {
		return err
	}
	defer x.rollback(&err)
	x.beginAction()

	tok, ok := x.state.Tokens[sym.Code]
	if !ok || tok.Symbol != sym {
		return errValidation("token %s not found", sym)
	}
	if tok.Contract != contract {
		return errValidation("symbol %s does not match contract %s", sym.Code, contract.Hex())
	}

	b := x.store.Batch()
	if err := x.cancelByToken(b, sym, ClosedTokenDeleted); err != nil {
		return err
	}
	x.returnToken(b, sym)

	delete(x.state.Fees, sym.Code)
	delete(x.state.Tokens, sym.Code)
	codes := x.state.Contracts[contract][:0]
	for _, c := range x.state.Contracts[contract] {
		if c != sym.Code {
			codes = append(codes, c)
		}
	}
	if len(codes) == 0 {
		delete(x.state.Contracts, contract)
	} else {
		x.state.Contracts[contract] = codes
	}

	b.PutState(x.state)
	x.log.Infow("token removed", "symbol", sym.String())
	return x.finishAction(b)
}

// AddPair registers a trading pair, fixing the base/quote orientation,
// and re-keys every account's derived pair keys.
func (x *Exchange) AddPair(base, quote asset.Symbol) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.ready(); err != nil {
		return err
	}
	x.beginAction()

	if base == quote {
		return errValidation("pair of identical symbols")
	}
	if !x.state.TokenPermitted(base) {
		return errValidation("token %s not permitted", base)
	}
	if !x.state.TokenPermitted(quote) {
		return errValidation("token %s not permitted", quote)
	}
	if _, ok := x.state.PairPermitted(base, quote); ok {
		return errValidation("pair %s-%s already exists", base.Code, quote.Code)
	}

	b := x.store.Batch()
	pair := Pair{Base: base, Quote: quote, Key: PairKey(base, quote)}
	x.state.Pairs = append(x.state.Pairs, pair)
	b.PutState(x.state)

	for _, owner := range x.ledger.Owners() {
		acct, _ := x.ledger.Get(owner)
		acct.PairKeys[pair.Name()] = pair.Key ^ OwnerKey(owner)
		b.PutAccount(acct)
	}

	x.log.Infow("pair added", "pair", pair.Name())
	return x.finishAction(b)
}

// DelPair deregisters a pair after cancelling every order resting on
// it.
func (x *Exchange) DelPair(a, bSym asset.Symbol) (err error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.ready(); err != nil {
		return err
	}
	defer x.rollback(&err)
	x.beginAction()

	pair, ok := x.state.PairPermitted(a, bSym)
	if !ok {
		return errValidation("pair %s/%s not found", a, bSym)
	}

	b := x.store.Batch()
	if err := x.cancelByPair(b, pair, ClosedTokenPairDeleted); err != nil {
		return err
	}

	pairs := x.state.Pairs[:0]
	for _, p := range x.state.Pairs {
		if p.Key != pair.Key {
			pairs = append(pairs, p)
		}
	}
	x.state.Pairs = pairs
	b.PutState(x.state)

	x.log.Infow("pair removed", "pair", pair.Name())
	return x.finishAction(b)
}

// SetFee replaces a token's fee schedule and immediately dust-prunes
// every open order on that token now below the new minimum.
func (x *Exchange) SetFee(sym asset.Symbol, makerPct, takerPct float64) (err error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.ready(); err != nil {
		return err
	}
	defer x.rollback(&err)
	x.beginAction()

	if _, ok := x.state.Fees[sym.Code]; !ok {
		return errValidation("no such token %s", sym.Code)
	}
	if makerPct < 0 || makerPct > 100 || takerPct < 0 || takerPct > 100 {
		return errValidation("fee percentage out of range")
	}

	b := x.store.Batch()
	x.state.Fees[sym.Code] = NewFeeInfo(sym, makerPct, takerPct)
	b.PutState(x.state)

	if err := x.dropSmallOrders(b, sym); err != nil {
		return err
	}
	x.log.Infow("fee updated", "symbol", sym.String(),
		"maker_pct", makerPct, "taker_pct", takerPct,
		"min_order", x.state.Fees[sym.Code].MinOrder.String())
	return x.finishAction(b)
}

// DropByToken force-cancels every open order touching the token.
func (x *Exchange) DropByToken(sym asset.Symbol) (err error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.ready(); err != nil {
		return err
	}
	defer x.rollback(&err)
	x.beginAction()

	b := x.store.Batch()
	if err := x.cancelByToken(b, sym, ClosedByAdmin); err != nil {
		return err
	}
	return x.finishAction(b)
}

// DropByPair force-cancels every open order on the pair.
func (x *Exchange) DropByPair(a, bSym asset.Symbol) (err error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.ready(); err != nil {
		return err
	}
	defer x.rollback(&err)
	x.beginAction()

	pair, ok := x.state.PairPermitted(a, bSym)
	if !ok {
		return errValidation("pair %s/%s not found", a, bSym)
	}

	b := x.store.Batch()
	if err := x.cancelByPair(b, pair, ClosedByAdmin); err != nil {
		return err
	}
	return x.finishAction(b)
}

// AddBlacklist bars an account from trading. Its open orders close
// with reason ClosedAccountBlacklisted, all balances (reserved
// included) are force-returned in one sweep, and the account record is
// erased. The orders carry no individual refunds; the balance sweep
// already covers the reserved amounts.
func (x *Exchange) AddBlacklist(owner common.Address) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.ready(); err != nil {
		return err
	}
	x.beginAction()

	if x.isBlacklisted(owner) {
		return errValidation("account %s already blacklisted", owner.Hex())
	}

	b := x.store.Batch()
	now := x.clock.Now().UnixMicro()

	if acct, ok := x.ledger.Get(owner); ok {
		for _, o := range x.ordersOf(owner) {
			if pair, ok := x.state.PairPermitted(o.Sell.Symbol, o.Buy.Symbol); ok {
				if book, exists := x.books[pair.Key]; exists {
					book.Remove(o.ID)
				}
			}
			x.closeToHistory(b, o, ClosedAccountBlacklisted, now)
		}

		for _, code := range acct.BalanceCodes() {
			bal := acct.Balances[code]
			total := bal.Available.Add(bal.Used)
			if total.Amount != 0 {
				x.queueTransfer(owner, total, ClosedAccountBlacklisted.Memo())
			}
		}
		x.ledger.Delete(owner)
		b.DeleteAccount(owner)
	}

	x.blacklist[owner] = now
	b.PutBlacklist(owner, now)
	x.log.Infow("account blacklisted", "owner", owner.Hex())
	return x.finishAction(b)
}

// DelBlacklist lifts the bar. Erased balances and orders are not
// restored.
func (x *Exchange) DelBlacklist(owner common.Address) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.ready(); err != nil {
		return err
	}
	x.beginAction()

	if !x.isBlacklisted(owner) {
		return errValidation("account %s is not blacklisted", owner.Hex())
	}

	b := x.store.Batch()
	delete(x.blacklist, owner)
	b.DeleteBlacklist(owner)
	return x.finishAction(b)
}

// cancelByPair cancels everything on one pair's book and drops the
// book; it is lazily recreated on the next order if the pair stays
// permitted.
func (x *Exchange) cancelByPair(b Batch, pair Pair, reason CloseStatus) error {
	book, ok := x.books[pair.Key]
	if !ok {
		return nil
	}
	if err := x.cancelOrderSet(b, book.All(), reason); err != nil {
		return err
	}
	delete(x.books, pair.Key)
	return nil
}

// cancelByToken cancels every book whose pair touches the symbol.
// Walking the registered pair list keeps the transfer dispatch order
// identical across nodes.
func (x *Exchange) cancelByToken(b Batch, sym asset.Symbol, reason CloseStatus) error {
	for _, pair := range x.state.Pairs {
		if pair.Base != sym && pair.Quote != sym {
			continue
		}
		if err := x.cancelByPair(b, pair, reason); err != nil {
			return err
		}
	}
	return nil
}

// returnToken sweeps every account's total balance in the symbol back
// to its owner and erases the balance entries.
func (x *Exchange) returnToken(b Batch, sym asset.Symbol) {
	for _, owner := range x.ledger.Owners() {
		acct, _ := x.ledger.Get(owner)
		bal, ok := acct.Balances[sym.Code]
		if !ok {
			continue
		}
		total := bal.Available.Add(bal.Used)
		if total.Amount != 0 {
			x.queueTransfer(owner, total, ClosedTokenDeleted.Memo())
		}
		delete(acct.Balances, sym.Code)
		b.PutAccount(acct)
	}
}

// dropSmallOrders dust-prunes every open order selling the symbol
// whose remainder no longer meets the minimum order size. Running it
// again immediately is a no-op.
func (x *Exchange) dropSmallOrders(b Batch, sym asset.Symbol) error {
	minOrder := x.state.FeeFor(sym).MinOrder
	var doomed []*Order
	for _, o := range x.orders {
		if o.Sell.Symbol == sym && o.SellLeft().LT(minOrder) {
			doomed = append(doomed, o)
		}
	}
	return x.cancelOrderSet(b, doomed, ClosedByMinimumOrderSize)
}

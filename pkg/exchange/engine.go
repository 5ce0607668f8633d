package exchange

import (
	"math"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/glsig/dexchange/pkg/asset"
	"github.com/glsig/dexchange/pkg/util"
)

// Exchange is the deterministic exchange core: order books, matching,
// and balance accounting over one in-memory working set mirrored to
// the store batch-by-batch. Every external action takes the engine
// mutex, so actions apply strictly one at a time in arrival order;
// given the same action sequence, independent engines converge to the
// same state.
type Exchange struct {
	mu    sync.Mutex
	log   *zap.SugaredLogger
	clock util.Clock

	store    Store
	transfer Transferer

	// Fee-sink accounts: 10% of every fee to the operator account,
	// 90% to the revenue account.
	glAccount  common.Address
	sigAccount common.Address

	state     *GlobalState
	ledger    *Ledger
	blacklist map[common.Address]int64
	books     map[uint64]*OrderBook
	orders    map[uint64]*Order // open-order index by id, shared with book sides
	buckets   map[BucketKey]*Bucket

	pendingTransfers []Transfer
	pendingTrades    []Trade

	// halted is set when the working set could not be rebuilt after an
	// invariant breach. Every further action is refused; the store still
	// holds the last committed state, so a restart recovers.
	halted error

	// OnTrade fires once per executed fill, after the action commits.
	OnTrade func(Trade)
}

// Options wires the engine's collaborators.
type Options struct {
	Store      Store
	Transfer   Transferer
	Clock      util.Clock
	Logger     *zap.SugaredLogger
	GLAccount  common.Address
	SIGAccount common.Address
}

// New loads the working set from the store and rebuilds the books by
// re-inserting every open order; the order relation is total, so the
// rebuilt sides are identical to the pre-shutdown ones.
func New(opts Options) (*Exchange, error) {
	if opts.Clock == nil {
		opts.Clock = util.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Transfer == nil {
		opts.Transfer = TransferFunc(func(Transfer) {})
	}

	x := &Exchange{
		log:        opts.Logger,
		clock:      opts.Clock,
		store:      opts.Store,
		transfer:   opts.Transfer,
		glAccount:  opts.GLAccount,
		sigAccount: opts.SIGAccount,
	}
	if err := x.load(); err != nil {
		return nil, err
	}

	x.log.Infow("exchange loaded",
		"accounts", x.ledger.Len(),
		"open_orders", len(x.orders),
		"pairs", len(x.state.Pairs),
		"next_order_id", x.state.TotalOrderID)
	return x, nil
}

// load (re)builds the in-memory working set from the last committed
// store contents, discarding whatever it held before.
func (x *Exchange) load() error {
	x.ledger = NewLedger()
	x.blacklist = make(map[common.Address]int64)
	x.books = make(map[uint64]*OrderBook)
	x.orders = make(map[uint64]*Order)
	x.buckets = make(map[BucketKey]*Bucket)

	state, err := x.store.LoadState()
	if err != nil {
		return err
	}
	if state == nil {
		state = NewGlobalState()
	}
	x.state = state

	accounts, err := x.store.LoadAccounts()
	if err != nil {
		return err
	}
	for _, a := range accounts {
		x.ledger.Put(a)
	}

	bl, err := x.store.LoadBlacklist()
	if err != nil {
		return err
	}
	if bl != nil {
		x.blacklist = bl
	}

	open, err := x.store.LoadOpenOrders()
	if err != nil {
		return err
	}
	for _, o := range open {
		pair, ok := state.PairPermitted(o.Sell.Symbol, o.Buy.Symbol)
		if !ok {
			x.log.Warnw("dropping stored order on unregistered pair", "order", o.ID)
			continue
		}
		x.bookFor(pair).Insert(o)
		x.orders[o.ID] = o
	}
	return nil
}

// ready refuses actions once the engine has halted.
func (x *Exchange) ready() error {
	if x.halted != nil {
		return errConsistency("engine halted: %v", x.halted)
	}
	return nil
}

// rollback restores the all-or-nothing contract of an action whose
// matching or settlement hit an invariant breach: the batch was never
// committed, so rebuilding the working set from the store discards
// every in-memory mutation of the aborted action. Actions with a
// breach-capable path defer it on their named error return. If the
// rebuild itself fails the engine halts.
func (x *Exchange) rollback(err *error) {
	if *err == nil || !IsConsistency(*err) {
		return
	}
	x.log.Errorw("invariant breach, rolling back action", "err", *err)
	if lerr := x.load(); lerr != nil {
		x.halted = lerr
		x.log.Errorw("working set rebuild failed, engine halted", "err", lerr)
	}
}

func (x *Exchange) bookFor(p Pair) *OrderBook {
	b, ok := x.books[p.Key]
	if !ok {
		b = NewOrderBook(p)
		x.books[p.Key] = b
	}
	return b
}

func (x *Exchange) isBlacklisted(owner common.Address) bool {
	_, ok := x.blacklist[owner]
	return ok
}

// closeToHistory snapshots a closed order, appends it to history and
// drops it from the id index. Removal from the book side is the
// caller's business because the caller usually holds a cursor into it.
func (x *Exchange) closeToHistory(b Batch, o *Order, status CloseStatus, now int64) {
	b.PutHistory(newHistoryRecord(o, status, now))
	b.DeleteOrder(o.ID)
	delete(x.orders, o.ID)
}

// settleAndSend settles one leg of a fill: consume the payer's
// reservation, dispatch the net amount to the receiving owner, and
// split the fee between the two sink accounts. Every failure here is a
// consistency breach because the amounts were derived inside the
// matching pass.
func (x *Exchange) settleAndSend(b Batch, from, to common.Address, quantity, fee asset.Asset) error {
	if err := x.ledger.SettleDebitUsed(from, quantity); err != nil {
		return err
	}
	acct, _ := x.ledger.Get(from)
	b.PutAccount(acct)

	net := quantity.Sub(fee)
	if net.Amount <= 0 {
		return errConsistency("empty order transfer: quantity %s fee %s", quantity, fee)
	}
	x.queueTransfer(to, net, ClosedNormally.Memo())

	if fee.Amount > 0 {
		if fee.Amount < MinFeeAmount {
			return errConsistency("fee %s below minimum fee amount", fee)
		}
		glFee := asset.New(fee.Amount*glPercent/100, fee.Symbol)
		sigFee := asset.New(fee.Amount*sigPercent/100, fee.Symbol)
		// Integer split remainder goes to the first recipient.
		glFee.Amount += fee.Amount - glFee.Amount - sigFee.Amount
		if glFee.Amount+sigFee.Amount != fee.Amount {
			return errConsistency("fee split %s+%s != %s", glFee, sigFee, fee)
		}
		x.queueTransfer(x.sigAccount, sigFee, "Revenue from exchange")
		x.queueTransfer(x.glAccount, glFee, "Revenue from exchange")
	}
	return nil
}

// match runs the crossing algorithm over one pair's book until no
// cross remains. Both sides sort ascending under the order relation;
// the scan walks buys from the cheapest up and, per buy, sells from
// the cheapest up, executing at the maker's price.
//
// Any invariant violation aborts with a ConsistencyError; the caller
// must not commit the action batch after that.
func (x *Exchange) match(b Batch, book *OrderBook, now int64) error {
	sells, buys := book.Sells, book.Buys
	defer func() {
		book.Sells, book.Buys = sells, buys
	}()

	if len(sells) == 0 || len(buys) == 0 {
		return nil
	}

	buyMax := buys[len(buys)-1].Price
	sellMin := sells[0].Price

	bi := 0
buyLoop:
	for bi < len(buys) {
		if len(sells) == 0 {
			break
		}
		if buyMax < sellMin {
			break
		}
		if buys[bi].Price < sells[0].Price {
			bi++
			continue
		}

		si := 0
		for si < len(sells) {
			orderBuy, orderSell := buys[bi], sells[si]
			if orderBuy.Price < orderSell.Price {
				// No resting sell at or above this price can
				// cross this buy order; move to the next buy.
				bi++
				continue buyLoop
			}

			maker := makerOf(orderBuy, orderSell)

			// Fee rates are charged on what each party receives,
			// in that side's buy asset.
			var buyFeePct, sellFeePct float64
			if orderBuy == maker {
				buyFeePct = x.state.FeeFor(orderBuy.Buy.Symbol).MakerPct
				sellFeePct = x.state.FeeFor(orderSell.Buy.Symbol).TakerPct
			} else {
				sellFeePct = x.state.FeeFor(orderSell.Buy.Symbol).MakerPct
				buyFeePct = x.state.FeeFor(orderBuy.Buy.Symbol).TakerPct
			}

			// Tradable quantity in base units: the seller's
			// remainder against the buyer's remainder converted
			// at the execution price.
			sellLeft := orderSell.SellLeft()
			buyMaxBase := float64(orderBuy.Sell.Amount-orderBuy.Paid.Amount) * asset.Pow10(orderBuy.Buy.Symbol.Precision)
			buyMaxBase /= maker.Price * asset.Pow10(orderBuy.Sell.Symbol.Precision)

			dealBase := min(sellLeft.Amount, int64(buyMaxBase))
			baseAmt := asset.New(dealBase, orderBuy.Buy.Symbol)

			// Quote charged to the buyer rounds up so the seller
			// is never under-credited.
			quoteWhole := float64(dealBase) * maker.Price * asset.Pow10(orderBuy.Sell.Symbol.Precision) / asset.Pow10(orderBuy.Buy.Symbol.Precision)
			quoteAmt := asset.New(int64(math.Ceil(quoteWhole)), orderBuy.Sell.Symbol)

			sellFee := asset.New(int64(math.Ceil(float64(quoteAmt.Amount)*sellFeePct/100)), quoteAmt.Symbol)
			buyFee := asset.New(int64(math.Ceil(float64(baseAmt.Amount)*buyFeePct/100)), baseAmt.Symbol)

			if err := orderBuy.applyFill(baseAmt, quoteAmt, buyFee, true); err != nil {
				return err
			}
			if err := orderSell.applyFill(quoteAmt, baseAmt, sellFee, false); err != nil {
				return err
			}

			if err := x.settleAndSend(b, orderBuy.Owner, orderSell.Owner, quoteAmt, sellFee); err != nil {
				return err
			}
			if err := x.settleAndSend(b, orderSell.Owner, orderBuy.Owner, baseAmt, buyFee); err != nil {
				return err
			}

			emptySell, emptyBuy := false, false

			if orderSell.Filled() {
				x.closeToHistory(b, orderSell, ClosedNormally, now)
				sells = append(sells[:si], sells[si+1:]...)
				if si < len(sells) {
					sellMin = sells[si].Price
				}
				emptySell = true
			} else {
				b.PutOrder(orderSell)
			}

			if orderBuy.Filled() {
				x.closeToHistory(b, orderBuy, ClosedNormally, now)
				buys = append(buys[:bi], buys[bi+1:]...)
				emptyBuy = true
			} else {
				b.PutOrder(orderBuy)
			}

			// Every fill must fully close at least one side;
			// anything else means the quantity math drifted.
			if !emptySell && !emptyBuy {
				return errConsistency("fill closed neither order %d nor %d", orderSell.ID, orderBuy.ID)
			}

			// The surviving side may have been left with dust.
			if !emptySell || !emptyBuy {
				survivor := orderSell
				if !emptyBuy {
					survivor = orderBuy
				}
				left := survivor.SellLeft()
				if left.LT(x.state.FeeFor(left.Symbol).MinOrder) {
					x.closeToHistory(b, survivor, ClosedByMinimumOrderSize, now)
					if err := x.ledger.SettleDebitUsed(survivor.Owner, left); err != nil {
						return err
					}
					acct, _ := x.ledger.Get(survivor.Owner)
					b.PutAccount(acct)
					x.queueTransfer(survivor.Owner, left, ClosedByMinimumOrderSize.Memo())

					if !emptySell {
						sells = append(sells[:si], sells[si+1:]...)
						if si < len(sells) {
							sellMin = sells[si].Price
						}
					} else {
						buys = append(buys[:bi], buys[bi+1:]...)
						emptyBuy = true
					}
				}
			}

			tradeTime := now / 1_000_000 // micros -> seconds
			x.updateBuckets(b, book.Pair, baseAmt, quoteAmt, maker.Price, tradeTime)
			x.queueTrade(Trade{
				Pair:      book.Pair.Name(),
				Price:     maker.Price,
				BaseAmt:   baseAmt,
				QuoteAmt:  quoteAmt,
				MakerID:   maker.ID,
				TakerID:   takerID(orderBuy, orderSell, maker),
				Timestamp: tradeTime,
			})

			if emptyBuy {
				// bi already points at the next buy order.
				continue buyLoop
			}
		}
	}
	return nil
}

func takerID(a, b, maker *Order) uint64 {
	if maker == a {
		return b.ID
	}
	return a.ID
}

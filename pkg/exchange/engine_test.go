package exchange

import (
	"testing"
	"time"

	"github.com/glsig/dexchange/pkg/asset"
)

// TestExactCross fills two exactly opposite orders in one pass: both
// close normally, both reservations are consumed, proceeds go outbound
// net of fee and every fee splits 10/90 across the sink accounts.
func TestExactCross(t *testing.T) {
	te := newTestExchange(t)
	te.deposit(t, alice, 100000, abc) // 10.0000 ABC
	te.deposit(t, bob, 200000, sys)   // 20.0000 SYS

	te.place(t, alice, 100000, abc, 200000, sys) // sell 10 ABC at 2.0
	te.resetCaptures()
	te.place(t, bob, 200000, sys, 100000, abc) // sell 20 SYS at 2.0

	if n := te.x.OpenOrderCount(); n != 0 {
		t.Fatalf("open orders = %d, want 0", n)
	}

	// Both reservations fully consumed.
	if bal := te.balance(t, alice, abc); bal.Available.Amount != 0 || bal.Used.Amount != 0 {
		t.Errorf("alice ABC balance = %+v, want zero", bal)
	}
	if bal := te.balance(t, bob, sys); bal.Available.Amount != 0 || bal.Used.Amount != 0 {
		t.Errorf("bob SYS balance = %+v, want zero", bal)
	}

	// 0.1% maker fee on 20 SYS = 200 units; 0.2% taker fee on 10 ABC
	// = 200 units. Net proceeds dispatch outbound.
	wantTransfers := []Transfer{
		{To: alice, Quantity: asset.New(199800, sys), Memo: "Fill order"},
		{To: sigAddr, Quantity: asset.New(180, sys), Memo: "Revenue from exchange"},
		{To: glAddr, Quantity: asset.New(20, sys), Memo: "Revenue from exchange"},
		{To: bob, Quantity: asset.New(99800, abc), Memo: "Fill order"},
		{To: sigAddr, Quantity: asset.New(180, abc), Memo: "Revenue from exchange"},
		{To: glAddr, Quantity: asset.New(20, abc), Memo: "Revenue from exchange"},
	}
	if len(te.transfers) != len(wantTransfers) {
		t.Fatalf("transfers = %d, want %d: %+v", len(te.transfers), len(wantTransfers), te.transfers)
	}
	for i, want := range wantTransfers {
		got := te.transfers[i]
		if got.To != want.To || !got.Quantity.Equal(want.Quantity) || got.Memo != want.Memo {
			t.Errorf("transfer %d = %+v, want %+v", i, got, want)
		}
	}

	// One trade at the maker's price, maker being the earlier order.
	if len(te.trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(te.trades))
	}
	tr := te.trades[0]
	if tr.Price != 2.0 || tr.BaseAmt.Amount != 100000 || tr.QuoteAmt.Amount != 200000 {
		t.Errorf("trade = %+v", tr)
	}
	if tr.MakerID == tr.TakerID {
		t.Error("maker and taker ids must differ")
	}

	// Both orders reached history as normal closes.
	if len(te.store.History) != 2 {
		t.Fatalf("history records = %d, want 2", len(te.store.History))
	}
	for id, h := range te.store.History {
		if h.Status != ClosedNormally {
			t.Errorf("order %d history status = %d, want ClosedNormally", id, h.Status)
		}
	}
}

// TestPartialFill crosses a large resting order with a smaller one: the
// small order closes, the large one stays open with its fill progress
// advanced.
func TestPartialFill(t *testing.T) {
	te := newTestExchange(t)
	te.deposit(t, alice, 100000, abc)
	te.deposit(t, bob, 100000, sys)

	te.place(t, alice, 100000, abc, 200000, sys) // sell 10 ABC at 2.0
	te.place(t, bob, 100000, sys, 50000, abc)    // sell 10 SYS at 2.0

	open := te.x.OpenOrders(alice)
	if len(open) != 1 {
		t.Fatalf("alice open orders = %d, want 1", len(open))
	}
	if open[0].Paid.Amount != 50000 {
		t.Errorf("alice paid = %d, want 50000", open[0].Paid.Amount)
	}
	if got := open[0].SellLeft().Amount; got != 50000 {
		t.Errorf("alice remainder = %d, want 50000", got)
	}
	if len(te.x.OpenOrders(bob)) != 0 {
		t.Error("bob's order should be fully filled")
	}

	// The remainder stays reserved.
	if bal := te.balance(t, alice, abc); bal.Used.Amount != 50000 {
		t.Errorf("alice used = %d, want 50000", bal.Used.Amount)
	}
}

// TestExecutionAtMakerPrice rests an ask at 2.0 and crosses it with a
// bid at 3.0: the trade executes at the maker's 2.0 and the buyer keeps
// the unspent quote reserved on the book.
func TestExecutionAtMakerPrice(t *testing.T) {
	te := newTestExchange(t)
	te.deposit(t, alice, 100000, abc)
	te.deposit(t, bob, 300000, sys)

	te.place(t, alice, 100000, abc, 200000, sys) // ask 2.0
	te.resetCaptures()
	te.place(t, bob, 300000, sys, 100000, abc) // bid 3.0

	if len(te.trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(te.trades))
	}
	if te.trades[0].Price != 2.0 {
		t.Errorf("execution price = %v, want maker price 2.0", te.trades[0].Price)
	}

	// Buyer spent 20 SYS of 30 and rests with the remainder.
	open := te.x.OpenOrders(bob)
	if len(open) != 1 {
		t.Fatalf("bob open orders = %d, want 1", len(open))
	}
	if got := open[0].SellLeft().Amount; got != 100000 {
		t.Errorf("bob unspent quote = %d, want 100000", got)
	}
	if len(te.x.OpenOrders(alice)) != 0 {
		t.Error("alice's ask should be filled")
	}
}

// TestDustClose fills an order down to a remainder below the minimum
// order size: the survivor closes with the minimum-order reason and the
// dust is refunded outbound.
func TestDustClose(t *testing.T) {
	te := newTestExchange(t)
	te.deposit(t, alice, 50000, abc) // 5.0000 ABC
	te.deposit(t, bob, 82000, sys)   // 8.2000 SYS

	te.place(t, alice, 50000, abc, 100000, sys) // sell 5 ABC at 2.0
	te.resetCaptures()
	te.place(t, bob, 82000, sys, 41000, abc) // sell 8.2 SYS at 2.0

	// 4.1 ABC traded, 0.9 ABC remainder < 1.0 minimum.
	if n := te.x.OpenOrderCount(); n != 0 {
		t.Fatalf("open orders = %d, want 0", n)
	}

	var hist *HistoryRecord
	for _, h := range te.store.History {
		if h.Owner == alice {
			hist = h
		}
	}
	if hist == nil || hist.Status != ClosedByMinimumOrderSize {
		t.Fatalf("alice history = %+v, want ClosedByMinimumOrderSize", hist)
	}

	// Dust refund dispatched with the minimum-order memo.
	found := false
	for _, tr := range te.transfersTo(alice) {
		if tr.Quantity.Equal(asset.New(9000, abc)) && tr.Memo == ClosedByMinimumOrderSize.Memo() {
			found = true
		}
	}
	if !found {
		t.Errorf("no dust refund to alice in %+v", te.transfers)
	}

	if bal := te.balance(t, alice, abc); bal.Used.Amount != 0 {
		t.Errorf("alice used = %d, want 0 after dust close", bal.Used.Amount)
	}
}

// TestMultiLevelWalk crosses one large bid through two asks at
// different prices: each fill executes at its own maker's price, best
// ask first.
func TestMultiLevelWalk(t *testing.T) {
	te := newTestExchange(t)
	te.deposit(t, alice, 50000, abc)
	te.deposit(t, carol, 50000, abc)
	te.deposit(t, bob, 225000, sys)

	te.place(t, alice, 50000, abc, 100000, sys) // ask 2.0
	te.place(t, carol, 50000, abc, 125000, sys) // ask 2.5
	te.resetCaptures()
	te.place(t, bob, 225000, sys, 90000, abc) // bid 2.5, funds both

	if n := te.x.OpenOrderCount(); n != 0 {
		t.Fatalf("open orders = %d, want 0", n)
	}
	if len(te.trades) != 2 {
		t.Fatalf("trades = %d, want 2", len(te.trades))
	}
	if te.trades[0].Price != 2.0 || te.trades[0].QuoteAmt.Amount != 100000 {
		t.Errorf("first fill = %+v, want 5 ABC at 2.0", te.trades[0])
	}
	if te.trades[1].Price != 2.5 || te.trades[1].QuoteAmt.Amount != 125000 {
		t.Errorf("second fill = %+v, want 5 ABC at 2.5", te.trades[1])
	}
}

// TestNoCrossRests checks that non-crossing orders rest untouched on
// both sides.
func TestNoCrossRests(t *testing.T) {
	te := newTestExchange(t)
	te.deposit(t, alice, 100000, abc)
	te.deposit(t, bob, 100000, sys)

	te.place(t, alice, 100000, abc, 300000, sys) // ask 3.0
	te.place(t, bob, 100000, sys, 50000, abc)    // bid 2.0

	if n := te.x.OpenOrderCount(); n != 2 {
		t.Fatalf("open orders = %d, want 2", n)
	}
	if len(te.trades) != 0 {
		t.Errorf("trades = %d, want 0", len(te.trades))
	}

	sells, buys, err := te.x.BookSnapshot(abc, sys)
	if err != nil {
		t.Fatalf("book snapshot: %v", err)
	}
	if len(sells) != 1 || len(buys) != 1 {
		t.Errorf("book = %d sells, %d buys, want 1 each", len(sells), len(buys))
	}
}

// TestCandlesRollup checks that a fill lands in every configured
// granularity, aligned to its bucket open, and a second fill in the
// same window updates rather than replaces the bucket.
func TestCandlesRollup(t *testing.T) {
	te := newTestExchange(t)
	te.deposit(t, alice, 100000, abc)
	te.deposit(t, bob, 250000, sys)

	te.place(t, alice, 50000, abc, 100000, sys) // ask 2.0
	te.place(t, bob, 100000, sys, 50000, abc)   // crosses, 5 ABC at 2.0

	if len(te.trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(te.trades))
	}
	ts := te.trades[0].Timestamp

	pair, ok := te.x.PairByName("ABC-SYS")
	if !ok {
		t.Fatal("pair ABC-SYS not registered")
	}
	grans := te.x.Granularities()
	if len(grans) != 7 {
		t.Fatalf("granularities = %d, want 7", len(grans))
	}
	for _, gran := range grans {
		key := BucketKey{PairKey: pair.Key, Granularity: gran, Open: (ts / gran) * gran}
		b := te.store.Buckets[key]
		if b == nil {
			t.Fatalf("no bucket for granularity %d", gran)
		}
		if b.OpenPrice != 2.0 || b.ClosePrice != 2.0 || b.BaseVolume != 5.0 || b.QuoteVolume != 10.0 {
			t.Errorf("granularity %d bucket = %+v", gran, b)
		}
	}

	// Second trade in the same windows at a higher price.
	te.place(t, alice, 50000, abc, 150000, sys) // ask 3.0
	te.place(t, bob, 150000, sys, 50000, abc)   // crosses, 5 ABC at 3.0

	key := BucketKey{PairKey: pair.Key, Granularity: 86400, Open: (ts / 86400) * 86400}
	b := te.store.Buckets[key]
	if b == nil {
		t.Fatal("daily bucket missing after second trade")
	}
	if b.OpenPrice != 2.0 || b.High != 3.0 || b.Low != 2.0 || b.ClosePrice != 3.0 {
		t.Errorf("daily bucket OHLC = %+v", b)
	}
	if b.BaseVolume != 10.0 || b.QuoteVolume != 25.0 {
		t.Errorf("daily bucket volume = %+v", b)
	}
}

// TestRestartRebuild replays the persisted working set into a fresh
// engine and checks the books come back identical.
func TestRestartRebuild(t *testing.T) {
	te := newTestExchange(t)
	te.deposit(t, alice, 100000, abc)
	te.deposit(t, bob, 100000, sys)

	te.place(t, alice, 100000, abc, 300000, sys) // ask 3.0, rests
	te.place(t, bob, 100000, sys, 50000, abc)    // bid 2.0, rests

	rebuilt, err := New(Options{Store: te.store, GLAccount: glAddr, SIGAccount: sigAddr})
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if got, want := rebuilt.OpenOrderCount(), te.x.OpenOrderCount(); got != want {
		t.Fatalf("rebuilt open orders = %d, want %d", got, want)
	}

	wantSells, wantBuys, _ := te.x.BookSnapshot(abc, sys)
	gotSells, gotBuys, _ := rebuilt.BookSnapshot(abc, sys)
	if len(gotSells) != len(wantSells) || len(gotBuys) != len(wantBuys) {
		t.Fatalf("rebuilt book shape differs")
	}
	for i := range wantSells {
		if gotSells[i].ID != wantSells[i].ID {
			t.Errorf("sell %d: id %d, want %d", i, gotSells[i].ID, wantSells[i].ID)
		}
	}
	for i := range wantBuys {
		if gotBuys[i].ID != wantBuys[i].ID {
			t.Errorf("buy %d: id %d, want %d", i, gotBuys[i].ID, wantBuys[i].ID)
		}
	}

	if got, want := rebuilt.Tokens(), te.x.Tokens(); len(got) != len(want) {
		t.Errorf("rebuilt tokens = %d, want %d", len(got), len(want))
	}
}

// TestAbortedMatchRollsBack drives the matching pass into an invariant
// breach and checks the aborted action leaves no trace. Zero-fee tokens
// carry no minimum order size, so a bid can be filled down to a quote
// remainder worth less than one base unit; the next crossing ask then
// derives an empty fill, which settlement rejects. The rejected ask
// must vanish from the books and the ledger, the committed state must
// stay intact, and the engine must keep serving.
func TestAbortedMatchRollsBack(t *testing.T) {
	store := NewMemStore()
	clock := newFakeClock()
	x, err := New(Options{
		Store:      store,
		Transfer:   TransferFunc(func(Transfer) {}),
		Clock:      clock,
		GLAccount:  glAddr,
		SIGAccount: sigAddr,
	})
	if err != nil {
		t.Fatalf("new exchange: %v", err)
	}
	for _, sym := range []asset.Symbol{abc, sys} {
		if err := x.AddToken(custody, sym, 0, 0); err != nil {
			t.Fatalf("add token %s: %v", sym.Code, err)
		}
	}
	if err := x.AddPair(abc, sys); err != nil {
		t.Fatalf("add pair: %v", err)
	}
	if err := x.Deposit(alice, asset.New(25000, sys)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := x.Deposit(bob, asset.New(10000, abc)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// Alice bids 1.0000 ABC at 2.5. Bob's first ask fills all but
	// 0.0002 SYS of her reservation, worth 0.8 base units at her price.
	clock.advance(time.Second)
	if err := x.PlaceOrder(alice, asset.New(25000, sys), asset.New(10000, abc)); err != nil {
		t.Fatalf("place bid: %v", err)
	}
	clock.advance(time.Second)
	if err := x.PlaceOrder(bob, asset.New(9999, abc), asset.New(24997, sys)); err != nil {
		t.Fatalf("place ask: %v", err)
	}
	open := x.OpenOrders(alice)
	if len(open) != 1 || open[0].SellLeft().Amount != 2 {
		t.Fatalf("alice open orders = %+v, want one with 0.0002 SYS left", open)
	}
	restingID := open[0].ID

	clock.advance(time.Second)
	err = x.PlaceOrder(bob, asset.New(1, abc), asset.New(2, sys))
	if !IsConsistency(err) {
		t.Fatalf("dust cross error = %v, want ConsistencyError", err)
	}

	// Nothing of the aborted action survives: no resting ask, no
	// reservation, balance as committed after the first fill.
	if got := x.OpenOrders(bob); len(got) != 0 {
		t.Fatalf("bob open orders = %+v after abort, want none", got)
	}
	acct, ok := x.AccountInfo(bob)
	if !ok {
		t.Fatal("bob's account missing after abort")
	}
	if b := acct.Balances["ABC"]; b.Available.Amount != 1 || b.Used.Amount != 0 {
		t.Errorf("bob ABC = available %d used %d, want 1/0", b.Available.Amount, b.Used.Amount)
	}

	// The resting bid and its reservation are untouched.
	open = x.OpenOrders(alice)
	if len(open) != 1 || open[0].ID != restingID || open[0].SellLeft().Amount != 2 {
		t.Fatalf("alice open orders = %+v after abort, want the resting bid", open)
	}
	if _, ok := store.Orders[restingID]; !ok {
		t.Error("resting bid missing from the store")
	}
	if len(store.Orders) != 1 {
		t.Errorf("stored open orders = %d, want 1", len(store.Orders))
	}

	// The engine keeps serving committed-state actions.
	if err := x.Deposit(bob, asset.New(5000, abc)); err != nil {
		t.Errorf("deposit after abort: %v", err)
	}
}

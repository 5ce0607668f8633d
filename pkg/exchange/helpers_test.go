package exchange

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/glsig/dexchange/pkg/asset"
)

// Shared test fixtures: two 4-decimal tokens on one custody contract,
// one pair ABC-SYS (ABC base), 0.1% maker / 0.2% taker on both tokens.
// That fee schedule derives a minimum order of 1.0000 of either token.

var (
	custody = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	glAddr  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	sigAddr = common.HexToAddress("0x00000000000000000000000000000000000000a2")

	alice = common.HexToAddress("0x0000000000000000000000000000000000000aaa")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000bbb")
	carol = common.HexToAddress("0x0000000000000000000000000000000000000ccc")

	abc = asset.NewSymbol("ABC", 4)
	sys = asset.NewSymbol("SYS", 4)
)

// fakeClock hands out a fixed time, advanced explicitly so every order
// in a test gets a distinct creation time.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- c.now.Add(d)
	return ch
}

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

// testExchange bundles the engine with its fakes for assertions.
type testExchange struct {
	x         *Exchange
	store     *MemStore
	clock     *fakeClock
	transfers []Transfer
	trades    []Trade
}

func newTestExchange(t *testing.T) *testExchange {
	t.Helper()
	te := &testExchange{store: NewMemStore(), clock: newFakeClock()}

	x, err := New(Options{
		Store: te.store,
		Transfer: TransferFunc(func(tr Transfer) {
			te.transfers = append(te.transfers, tr)
		}),
		Clock:      te.clock,
		GLAccount:  glAddr,
		SIGAccount: sigAddr,
	})
	if err != nil {
		t.Fatalf("new exchange: %v", err)
	}
	x.OnTrade = func(tr Trade) { te.trades = append(te.trades, tr) }
	te.x = x

	if err := x.AddToken(custody, abc, 0.1, 0.2); err != nil {
		t.Fatalf("add token ABC: %v", err)
	}
	if err := x.AddToken(custody, sys, 0.1, 0.2); err != nil {
		t.Fatalf("add token SYS: %v", err)
	}
	if err := x.AddPair(abc, sys); err != nil {
		t.Fatalf("add pair: %v", err)
	}
	return te
}

func (te *testExchange) deposit(t *testing.T, owner common.Address, amount int64, sym asset.Symbol) {
	t.Helper()
	if err := te.x.Deposit(owner, asset.New(amount, sym)); err != nil {
		t.Fatalf("deposit %d %s for %s: %v", amount, sym.Code, owner.Hex(), err)
	}
}

// place rests an order after advancing the clock, so order creation
// times are strictly increasing within a test.
func (te *testExchange) place(t *testing.T, owner common.Address, sellAmt int64, sellSym asset.Symbol, buyAmt int64, buySym asset.Symbol) {
	t.Helper()
	te.clock.advance(time.Second)
	err := te.x.PlaceOrder(owner, asset.New(sellAmt, sellSym), asset.New(buyAmt, buySym))
	if err != nil {
		t.Fatalf("place order for %s: %v", owner.Hex(), err)
	}
}

func (te *testExchange) balance(t *testing.T, owner common.Address, sym asset.Symbol) TokenBalance {
	t.Helper()
	acct, ok := te.x.AccountInfo(owner)
	if !ok {
		t.Fatalf("no account for %s", owner.Hex())
	}
	return acct.Balances[sym.Code]
}

// transfersTo filters captured outbound transfers by recipient.
func (te *testExchange) transfersTo(to common.Address) []Transfer {
	var out []Transfer
	for _, tr := range te.transfers {
		if tr.To == to {
			out = append(out, tr)
		}
	}
	return out
}

func (te *testExchange) resetCaptures() {
	te.transfers = nil
	te.trades = nil
}

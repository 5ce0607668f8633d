package exchange

import (
	"testing"

	"github.com/glsig/dexchange/pkg/asset"
)

// TestDepositValidation covers the deposit gate: positive amounts of
// permitted tokens only.
func TestDepositValidation(t *testing.T) {
	te := newTestExchange(t)

	if err := te.x.Deposit(alice, asset.New(0, abc)); !IsValidation(err) {
		t.Errorf("zero deposit error = %v, want ValidationError", err)
	}
	if err := te.x.Deposit(alice, asset.New(-5, abc)); !IsValidation(err) {
		t.Errorf("negative deposit error = %v, want ValidationError", err)
	}
	unknown := asset.NewSymbol("NOPE", 4)
	if err := te.x.Deposit(alice, asset.New(1000, unknown)); !IsValidation(err) {
		t.Errorf("unknown token deposit error = %v, want ValidationError", err)
	}

	te.deposit(t, alice, 5000, abc)
	te.deposit(t, alice, 7000, abc)
	if bal := te.balance(t, alice, abc); bal.Available.Amount != 12000 {
		t.Errorf("available = %d, want 12000", bal.Available.Amount)
	}
}

// TestPlaceOrderValidation covers the rejection paths ahead of any
// state change: no account, bad pair, zero legs, insufficient balance,
// below-minimum size.
func TestPlaceOrderValidation(t *testing.T) {
	te := newTestExchange(t)

	err := te.x.PlaceOrder(alice, asset.New(10000, abc), asset.New(10000, sys))
	if !IsValidation(err) {
		t.Errorf("no-account error = %v, want ValidationError", err)
	}

	te.deposit(t, alice, 100000, abc)

	err = te.x.PlaceOrder(alice, asset.New(10000, abc), asset.New(10000, abc))
	if !IsValidation(err) {
		t.Errorf("same-token pair error = %v, want ValidationError", err)
	}
	err = te.x.PlaceOrder(alice, asset.New(10000, abc), asset.New(0, sys))
	if !IsValidation(err) {
		t.Errorf("zero buy leg error = %v, want ValidationError", err)
	}
	err = te.x.PlaceOrder(alice, asset.New(200000, abc), asset.New(100000, sys))
	if !IsInsufficientBalance(err) {
		t.Errorf("oversize error = %v, want InsufficientBalanceError", err)
	}
	// Minimum order at 0.1%/0.2% is 1.0000 of the sell token.
	err = te.x.PlaceOrder(alice, asset.New(9999, abc), asset.New(10000, sys))
	if !IsValidation(err) {
		t.Errorf("below-minimum error = %v, want ValidationError", err)
	}

	// A failed placement must not leave anything reserved.
	if bal := te.balance(t, alice, abc); bal.Used.Amount != 0 {
		t.Errorf("used = %d after rejected placements, want 0", bal.Used.Amount)
	}
}

// TestCancelRefund cancels a resting order and checks the reservation
// is consumed and the full remainder refunded outbound with the user
// cancel memo.
func TestCancelRefund(t *testing.T) {
	te := newTestExchange(t)
	te.deposit(t, alice, 100000, abc)
	te.place(t, alice, 100000, abc, 200000, sys)
	te.resetCaptures()

	ids := te.x.OpenOrders(alice)
	if len(ids) != 1 {
		t.Fatalf("open orders = %d, want 1", len(ids))
	}
	if err := te.x.CancelOrders(alice, []uint64{ids[0].ID}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if n := te.x.OpenOrderCount(); n != 0 {
		t.Errorf("open orders = %d, want 0", n)
	}
	if bal := te.balance(t, alice, abc); bal.Used.Amount != 0 || bal.Available.Amount != 0 {
		t.Errorf("balance after cancel = %+v, want zero (refund goes outbound)", bal)
	}

	refunds := te.transfersTo(alice)
	if len(refunds) != 1 {
		t.Fatalf("refund transfers = %d, want 1", len(refunds))
	}
	if !refunds[0].Quantity.Equal(asset.New(100000, abc)) || refunds[0].Memo != ClosedByUser.Memo() {
		t.Errorf("refund = %+v", refunds[0])
	}

	h := te.store.History[ids[0].ID]
	if h == nil || h.Status != ClosedByUser {
		t.Errorf("history = %+v, want ClosedByUser", h)
	}
}

// TestCancelAggregatesRefunds cancels several orders on the same token
// in one call and expects a single aggregated refund transfer.
func TestCancelAggregatesRefunds(t *testing.T) {
	te := newTestExchange(t)
	te.deposit(t, alice, 90000, abc)
	te.place(t, alice, 30000, abc, 90000, sys)
	te.place(t, alice, 30000, abc, 120000, sys)
	te.place(t, alice, 30000, abc, 150000, sys)
	te.resetCaptures()

	if err := te.x.CancelAll(alice); err != nil {
		t.Fatalf("cancel all: %v", err)
	}

	refunds := te.transfersTo(alice)
	if len(refunds) != 1 {
		t.Fatalf("refund transfers = %d, want one aggregated", len(refunds))
	}
	if !refunds[0].Quantity.Equal(asset.New(90000, abc)) {
		t.Errorf("aggregated refund = %s, want 9.0000 ABC", refunds[0].Quantity)
	}
	if len(te.store.History) != 3 {
		t.Errorf("history records = %d, want 3", len(te.store.History))
	}
}

// TestCancelSkipsForeignOrders checks unknown ids and other owners'
// orders are silently skipped.
func TestCancelSkipsForeignOrders(t *testing.T) {
	te := newTestExchange(t)
	te.deposit(t, alice, 100000, abc)
	te.deposit(t, bob, 100000, sys)
	te.place(t, alice, 100000, abc, 300000, sys)
	te.resetCaptures()

	aliceOrder := te.x.OpenOrders(alice)[0].ID
	if err := te.x.CancelOrders(bob, []uint64{aliceOrder, 999}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if n := te.x.OpenOrderCount(); n != 1 {
		t.Errorf("open orders = %d, alice's order must survive", n)
	}
	if len(te.transfers) != 0 {
		t.Errorf("transfers = %+v, want none", te.transfers)
	}
}

// TestWithdraw dispatches the full available balance outbound and
// zeroes it, leaving reservations untouched.
func TestWithdraw(t *testing.T) {
	te := newTestExchange(t)
	te.deposit(t, alice, 150000, abc)
	te.place(t, alice, 100000, abc, 200000, sys) // reserves 10 ABC
	te.resetCaptures()

	if err := te.x.Withdraw(alice, abc); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	bal := te.balance(t, alice, abc)
	if bal.Available.Amount != 0 {
		t.Errorf("available = %d, want 0", bal.Available.Amount)
	}
	if bal.Used.Amount != 100000 {
		t.Errorf("used = %d, reservation must survive withdrawal", bal.Used.Amount)
	}

	out := te.transfersTo(alice)
	if len(out) != 1 || !out[0].Quantity.Equal(asset.New(50000, abc)) {
		t.Fatalf("withdrawal transfers = %+v, want 5.0000 ABC", out)
	}
	if out[0].Memo != "Token/tokens have been withdrawn" {
		t.Errorf("withdrawal memo = %q", out[0].Memo)
	}

	// Nothing left to withdraw.
	if err := te.x.Withdraw(alice, abc); !IsValidation(err) {
		t.Errorf("empty withdraw error = %v, want ValidationError", err)
	}
}

package exchange

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/glsig/dexchange/pkg/asset"
)

// TokenBalance splits an account's custodied balance of one token into
// the freely spendable part and the part reserved by open orders.
// available+used is the account's total custodied balance.
type TokenBalance struct {
	Available asset.Asset `json:"available"`
	Used      asset.Asset `json:"used"`
}

// Account is one owner's balances plus the derived per-pair lookup
// keys maintained for admin re-keying.
type Account struct {
	Owner    common.Address          `json:"owner"`
	Balances map[string]TokenBalance `json:"balances"` // symbol code -> balance
	PairKeys map[string]uint64       `json:"pairKeys"` // pair name -> derived key
}

func NewAccount(owner common.Address) *Account {
	return &Account{
		Owner:    owner,
		Balances: make(map[string]TokenBalance),
		PairKeys: make(map[string]uint64),
	}
}

// clone deep-copies the account. Balance and key entries are value
// types, so copying the maps is enough.
func (a *Account) clone() *Account {
	c := &Account{
		Owner:    a.Owner,
		Balances: make(map[string]TokenBalance, len(a.Balances)),
		PairKeys: make(map[string]uint64, len(a.PairKeys)),
	}
	for code, bal := range a.Balances {
		c.Balances[code] = bal
	}
	for name, key := range a.PairKeys {
		c.PairKeys[name] = key
	}
	return c
}

// BalanceCodes returns the account's token codes in sorted order, so
// callers that iterate balances for side effects stay deterministic.
func (a *Account) BalanceCodes() []string {
	codes := make([]string, 0, len(a.Balances))
	for code := range a.Balances {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Ledger is the balance bookkeeping over all accounts. It knows
// nothing about orders; the engine drives it and persists the touched
// accounts in the action batch.
type Ledger struct {
	accounts map[common.Address]*Account
}

func NewLedger() *Ledger {
	return &Ledger{accounts: make(map[common.Address]*Account)}
}

func (l *Ledger) Get(owner common.Address) (*Account, bool) {
	a, ok := l.accounts[owner]
	return a, ok
}

func (l *Ledger) Put(a *Account)               { l.accounts[a.Owner] = a }
func (l *Ledger) Delete(owner common.Address)  { delete(l.accounts, owner) }
func (l *Ledger) Len() int                     { return len(l.accounts) }

// Owners returns all account addresses sorted by byte order.
// Deterministic iteration matters: refund transfers dispatched while
// walking accounts must come out in the same order on every node.
func (l *Ledger) Owners() []common.Address {
	owners := make([]common.Address, 0, len(l.accounts))
	for addr := range l.accounts {
		owners = append(owners, addr)
	}
	sort.Slice(owners, func(i, j int) bool {
		return owners[i].Cmp(owners[j]) < 0
	})
	return owners
}

// Deposit credits available balance, creating the account on first
// use. pairKeys seeds the derived keys for a fresh account.
func (l *Ledger) Deposit(owner common.Address, amount asset.Asset, pairs []Pair) *Account {
	a, ok := l.accounts[owner]
	if !ok {
		a = NewAccount(owner)
		key := OwnerKey(owner)
		for _, p := range pairs {
			a.PairKeys[p.Name()] = p.Key ^ key
		}
		l.accounts[owner] = a
	}
	bal, ok := a.Balances[amount.Symbol.Code]
	if !ok {
		bal = TokenBalance{Available: amount, Used: amount.Zero()}
	} else {
		bal.Available = bal.Available.Add(amount)
	}
	a.Balances[amount.Symbol.Code] = bal
	return a
}

// Reserve moves amount from available to used ahead of resting an
// order.
func (l *Ledger) Reserve(owner common.Address, amount asset.Asset) error {
	a, ok := l.accounts[owner]
	if !ok {
		return errValidation("no account for %s", owner.Hex())
	}
	bal, ok := a.Balances[amount.Symbol.Code]
	if !ok {
		return errValidation("%s holds no %s", owner.Hex(), amount.Symbol.Code)
	}
	if bal.Available.LT(amount) {
		return errInsufficient("insufficient %s: available %s, need %s",
			amount.Symbol.Code, bal.Available, amount)
	}
	bal.Available = bal.Available.Sub(amount)
	bal.Used = bal.Used.Add(amount)
	a.Balances[amount.Symbol.Code] = bal
	return nil
}

// SettleCredit increases available balance.
func (l *Ledger) SettleCredit(owner common.Address, amount asset.Asset) error {
	a, ok := l.accounts[owner]
	if !ok {
		return errConsistency("settle credit for unknown account %s", owner.Hex())
	}
	bal, ok := a.Balances[amount.Symbol.Code]
	if !ok {
		bal = TokenBalance{Available: amount.Zero(), Used: amount.Zero()}
	}
	bal.Available = bal.Available.Add(amount)
	a.Balances[amount.Symbol.Code] = bal
	return nil
}

// SettleDebitUsed consumes a previously reserved amount, either
// because a fill spent it or because a cancellation is about to refund
// it. Used dropping below zero is a consistency breach, never a user
// error.
func (l *Ledger) SettleDebitUsed(owner common.Address, amount asset.Asset) error {
	a, ok := l.accounts[owner]
	if !ok {
		return errConsistency("settle debit for unknown account %s", owner.Hex())
	}
	bal, ok := a.Balances[amount.Symbol.Code]
	if !ok || bal.Used.LT(amount) {
		return errConsistency("used balance underflow: %s %s debit %s",
			owner.Hex(), amount.Symbol.Code, amount)
	}
	bal.Used = bal.Used.Sub(amount)
	a.Balances[amount.Symbol.Code] = bal
	return nil
}

// Validate checks the non-negativity invariants of one account.
func (a *Account) Validate() error {
	for code, bal := range a.Balances {
		if bal.Available.Amount < 0 {
			return fmt.Errorf("negative available %s for %s", code, a.Owner.Hex())
		}
		if bal.Used.Amount < 0 {
			return fmt.Errorf("negative used %s for %s", code, a.Owner.Hex())
		}
	}
	return nil
}

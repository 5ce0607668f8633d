package exchange

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/glsig/dexchange/pkg/asset"
)

// Transfer is one outbound custody movement: tokens leaving the
// exchange toward an owner's wallet or a fee-sink account.
type Transfer struct {
	To       common.Address `json:"to"`
	Quantity asset.Asset    `json:"quantity"`
	Memo     string         `json:"memo"`
}

// Transferer dispatches outbound transfers through the custody
// collaborator. Fire-and-forget: the engine never awaits confirmation.
type Transferer interface {
	Send(t Transfer)
}

// TransferFunc adapts a function to the Transferer interface.
type TransferFunc func(Transfer)

func (f TransferFunc) Send(t Transfer) { f(t) }

// Trade is the executed-fill event handed to the OnTrade hook after a
// successful action commit. Amounts are in the pair's base and quote
// assets.
type Trade struct {
	Pair      string      `json:"pair"`
	Price     float64     `json:"price"`
	BaseAmt   asset.Asset `json:"baseAmount"`
	QuoteAmt  asset.Asset `json:"quoteAmount"`
	MakerID   uint64      `json:"makerId"`
	TakerID   uint64      `json:"takerId"`
	Timestamp int64       `json:"timestamp"` // unix seconds
}

// queueTransfer stages an outbound transfer; staged transfers are
// dispatched only after the action's batch commits, so a rejected
// action never leaks tokens.
func (x *Exchange) queueTransfer(to common.Address, quantity asset.Asset, memo string) {
	x.pendingTransfers = append(x.pendingTransfers, Transfer{To: to, Quantity: quantity, Memo: memo})
}

func (x *Exchange) queueTrade(t Trade) {
	x.pendingTrades = append(x.pendingTrades, t)
}

// beginAction resets the per-action staging areas. The engine mutex is
// already held.
func (x *Exchange) beginAction() {
	x.pendingTransfers = x.pendingTransfers[:0]
	x.pendingTrades = x.pendingTrades[:0]
}

// finishAction commits the batch and, on success, dispatches the
// staged transfers and trade events.
func (x *Exchange) finishAction(b Batch) error {
	if err := b.Commit(); err != nil {
		return err
	}
	for _, t := range x.pendingTransfers {
		x.transfer.Send(t)
	}
	if x.OnTrade != nil {
		for _, tr := range x.pendingTrades {
			x.OnTrade(tr)
		}
	}
	return nil
}

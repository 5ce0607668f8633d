package exchange

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/glsig/dexchange/pkg/asset"
)

// CloseStatus is the stable, numbered reason code recorded when an
// order leaves the book. The codes and memos are part of the ledger's
// public record and must never be renumbered.
type CloseStatus uint8

const (
	ClosedNormally CloseStatus = iota
	ClosedByUser
	ClosedByAdmin
	ClosedTokenDeleted
	ClosedTokenPairDeleted
	ClosedAccountBlacklisted
	ClosedByMinimumOrderSize
)

var closeMemos = [...]string{
	ClosedNormally:           "Fill order",
	ClosedByUser:             "Order/orders have been canceled by user",
	ClosedByAdmin:            "Order/orders have been canceled by admin",
	ClosedTokenDeleted:       "This token has been removed from the exchange",
	ClosedTokenPairDeleted:   "This token pair has been removed from the exchange",
	ClosedAccountBlacklisted: "This account has been blacklisted",
	ClosedByMinimumOrderSize: "The order amount does not meet the requirements of the exchange.",
}

// Memo is the fixed human-readable text attached to refund transfers
// carrying this close reason.
func (s CloseStatus) Memo() string {
	if int(s) < len(closeMemos) {
		return closeMemos[s]
	}
	return "Order closed"
}

// HistoryRecord is the immutable snapshot of a closed order, keyed by
// the order's original id. Append-only; audit and reporting only.
type HistoryRecord struct {
	OrderID   uint64         `json:"orderId"`
	Status    CloseStatus    `json:"status"`
	Owner     common.Address `json:"owner"`
	StartTime int64          `json:"startTime"`
	EndTime   int64          `json:"endTime"`
	Sell      asset.Asset    `json:"sell"`
	Buy       asset.Asset    `json:"buy"`
	Received  asset.Asset    `json:"received"`
	Paid      asset.Asset    `json:"paid"`
	Fee       asset.Asset    `json:"fee"`
	Price     float64        `json:"price"`
	AvgPrice  float64        `json:"avgPrice"`
}

func newHistoryRecord(o *Order, status CloseStatus, closedAt int64) *HistoryRecord {
	return &HistoryRecord{
		OrderID:   o.ID,
		Status:    status,
		Owner:     o.Owner,
		StartTime: o.CreatedAt,
		EndTime:   closedAt,
		Sell:      o.Sell,
		Buy:       o.Buy,
		Received:  o.Received,
		Paid:      o.Paid,
		Fee:       o.Fee,
		Price:     o.Price,
		AvgPrice:  o.AvgPrice,
	}
}

// Package ledger is the append-only record of money movements. Rows are keyed
// by the gateway transaction id; the unique key is the idempotency gate for
// callback processing.
package ledger

import "time"

// Type classifies what a transaction paid for.
type Type string

const (
	TypeDeposit     Type = "deposit"
	TypeService     Type = "service"
	TypeBoostingAds Type = "boosting_ads"
)

// RefundStatus is the terminal outcome of a refund attempt.
type RefundStatus string

const (
	RefundSuccess RefundStatus = "success"
	RefundFailed  RefundStatus = "failed"
)

// Transaction mirrors the transactions table.
type Transaction struct {
	ID            string
	AppTransID    string
	ZPTransID     int64
	AppID         int
	Type          Type
	ContractID    *string
	HousingAreaID *string
	RoomID        *string
	Amount        int64
	Channel       int
	AppTime       int64
	AppUser       string
	CallbackReceived bool

	MRefundID    *string
	RefundAmount *int64
	RefundStatus *RefundStatus

	CreatedAt time.Time
	UpdatedAt time.Time
}

// InsertParams enumerates the columns written when a callback is recorded.
type InsertParams struct {
	AppTransID    string
	ZPTransID     int64
	AppID         int
	Type          Type
	ContractID    *string
	HousingAreaID *string
	RoomID        *string
	Amount        int64
	Channel       int
	AppTime       int64
	AppUser       string
}

// RefundRecord is the write-once refund attachment for a transaction.
type RefundRecord struct {
	TransactionID string
	MRefundID     string
	Amount        int64
	Status        RefundStatus
}

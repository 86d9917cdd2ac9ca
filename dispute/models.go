// Package dispute owns the dispute state machine. Resolution is split into a
// synchronous, authoritative decide step and a best-effort settle step so a
// slow or failed refund can never lose the decision.
package dispute

import "time"

// Status represents the dispute lifecycle.
type Status string

const (
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
	StatusRejected Status = "rejected"
)

// Decision is the admin's ruling.
type Decision string

const (
	DecisionDisputerWins Decision = "disputer_wins"
	DecisionRejected     Decision = "rejected"
)

// Resolution is the write-once outcome record.
type Resolution struct {
	ResolvedBy string
	Decision   Decision
	Reason     string
	ResolvedAt time.Time
}

// Record mirrors the disputes table.
type Record struct {
	ID            string
	ContractID    string
	DisputerID    string
	TransactionID string
	Reason        string
	Evidence      string
	Status        Status
	Resolution    *Resolution
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TopicResolved is published to both parties after any resolution.
const TopicResolved = "dispute.resolved"

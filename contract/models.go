// Package contract owns the rental contract state machine: creation,
// signature consensus, deposit confirmation, the single-slot extension
// negotiation, and expiry/termination.
package contract

import (
	"errors"
	"time"
)

// Status represents the contract lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusActive     Status = "active"
	StatusExpired    Status = "expired"
	StatusTerminated Status = "terminated"
)

var (
	ErrNotFound = errors.New("contract: not found")
	// ErrConflict signals a state guard rejected the transition; the caller's
	// view is stale and should be refetched.
	ErrConflict  = errors.New("contract: state conflict")
	ErrForbidden = errors.New("contract: forbidden")
	// ErrInvalidInput signals malformed or out-of-range caller data.
	ErrInvalidInput = errors.New("contract: invalid input")
	// ErrRoomUnavailable signals the room is not in the state the operation requires.
	ErrRoomUnavailable = errors.New("contract: room unavailable")
)

// PendingUpdate is the single outstanding extension request on an active
// contract. The second signature applies the new end date and clears the
// slot, so a populated slot has exactly one bit set.
type PendingUpdate struct {
	NewEndDate      time.Time
	TenantSignature bool
	OwnerSignature  bool
}

// Contract mirrors the contracts table.
type Contract struct {
	ID              string
	RoomID          string
	TenantID        string
	OwnerID         string
	Status          Status
	StartDate       time.Time
	EndDate         time.Time
	TenantSignature bool
	OwnerSignature  bool
	PendingUpdate   *PendingUpdate
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsParty reports whether the user is the contract's tenant or owner.
func (c Contract) IsParty(userID string) bool {
	return userID == c.TenantID || userID == c.OwnerID
}

// Signed reports whether at least one side has signed.
func (c Contract) Signed() bool {
	return c.TenantSignature || c.OwnerSignature
}

// Audit event types appended to contract_events.
const (
	EventCreated            = "CONTRACT_CREATED"
	EventOwnerSigned        = "OWNER_SIGNED"
	EventActivated          = "DEPOSIT_CONFIRMED"
	EventExtensionRequested = "EXTENSION_REQUESTED"
	EventExtensionConfirmed = "EXTENSION_CONFIRMED"
	EventExtensionApplied   = "EXTENSION_APPLIED"
	EventExpired            = "CONTRACT_EXPIRED"
	EventTerminated         = "CONTRACT_TERMINATED"
)

// Outbox topics published on lifecycle transitions.
const (
	TopicActivated  = "contract.activated"
	TopicExtended   = "contract.extended"
	TopicExpired    = "contract.expired"
	TopicTerminated = "contract.terminated"
)

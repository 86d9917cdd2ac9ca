// Package room is the room store shared by the contract and dispute state
// machines. Status flips use the same guarded-update discipline everywhere so
// a room can never be occupied or released twice.
package room

import "time"

// Status represents room availability.
type Status string

const (
	StatusAvailable Status = "available"
	StatusOccupied  Status = "occupied"
)

// Room mirrors the rooms table.
type Room struct {
	ID            string
	HousingAreaID string
	OwnerID       string
	Name          string
	Price         int64
	Status        Status
	Boosted       bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

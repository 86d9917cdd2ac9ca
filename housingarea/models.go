// Package housingarea exposes the mutation points the payment callback
// dispatcher needs on housing areas.
package housingarea

import "time"

// HousingArea mirrors the housing_areas table.
type HousingArea struct {
	ID        string
	OwnerID   string
	Name      string
	Address   string
	Paid      bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

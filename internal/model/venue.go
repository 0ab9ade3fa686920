// internal/model/venue.go
package model

import "time"

type VenueStatus string

const (
	VenueStatusActive  VenueStatus = "active"
	VenueStatusDraft   VenueStatus = "draft"
	VenueStatusExpired VenueStatus = "expired"
)

// Venue is the directory's read model of a listing that can receive broadcasts.
type Venue struct {
	ID               string      `db:"id" json:"id"`
	Name             string      `db:"name" json:"name"`
	Status           VenueStatus `db:"status" json:"status"`
	Location         string      `db:"location" json:"location"`
	SeatedCapacity   int         `db:"seated_capacity" json:"seated_capacity"`
	StandingCapacity int         `db:"standing_capacity" json:"standing_capacity"`
	VenueType        string      `db:"venue_type" json:"venue_type"`
	ContactEmail     string      `db:"contact_email" json:"contact_email"`
	CreatedAt        time.Time   `db:"created_at" json:"created_at"`
}

// CapacityFor returns the ceiling used for a guest count check.
func (v Venue) CapacityFor(style SeatingStyle) int {
	if style == SeatingSeated {
		return v.SeatedCapacity
	}
	return v.StandingCapacity
}

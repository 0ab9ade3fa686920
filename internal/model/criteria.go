// internal/model/criteria.go
package model

import (
	"time"
)

type EventType string

const (
	EventTypeWedding    EventType = "wedding"
	EventTypeConference EventType = "conference"
	EventTypeCorporate  EventType = "corporate"
	EventTypeParty      EventType = "party"
	EventTypeBirthday   EventType = "birthday"
	EventTypeOther      EventType = "other"
)

type SeatingStyle string

const (
	SeatingSeated   SeatingStyle = "seated"
	SeatingStanding SeatingStyle = "standing"
)

// Criteria describes what a requester is looking for. Every field is optional;
// a zero value (nil pointer, empty string, empty slice) means "no constraint".
type Criteria struct {
	EventType          EventType     `json:"event_type,omitempty" validate:"omitempty,oneof=wedding conference corporate party birthday other"`
	EventDate          *time.Time    `json:"event_date,omitempty"`
	GuestCount         *int          `json:"guest_count,omitempty" validate:"omitempty,min=0"`
	Seating            *SeatingStyle `json:"seating,omitempty" validate:"omitempty,oneof=seated standing"`
	BudgetRange        string        `json:"budget_range,omitempty" validate:"max=120"`
	LocationPreference string        `json:"location_preference,omitempty" validate:"max=200"`
	VenueTypes         []string      `json:"venue_types,omitempty" validate:"omitempty,dive,required"`
	Requirements       string        `json:"requirements,omitempty" validate:"max=4000"`
}

// eventTypeVenues is the static allow-list of venue types per event type.
// Event types missing from the map (other) do not constrain the venue type.
var eventTypeVenues = map[EventType][]string{
	EventTypeWedding:    {"garden", "villa", "ballroom", "restaurant", "castle", "chateau", "barn"},
	EventTypeConference: {"conference-hall", "hotel", "coworking", "auditorium"},
	EventTypeCorporate:  {"hotel", "conference-hall", "restaurant", "loft", "coworking"},
	EventTypeParty:      {"club", "bar", "restaurant", "loft", "garden", "rooftop"},
	EventTypeBirthday:   {"restaurant", "bar", "club", "garden", "loft", "rooftop"},
}

var defaultSeating = map[EventType]SeatingStyle{
	EventTypeWedding:    SeatingSeated,
	EventTypeConference: SeatingSeated,
	EventTypeCorporate:  SeatingSeated,
	EventTypeParty:      SeatingStanding,
	EventTypeBirthday:   SeatingStanding,
}

// AllowedVenueTypes returns the venue types an event type may be hosted in and
// false when the event type does not constrain the venue type.
func (e EventType) AllowedVenueTypes() ([]string, bool) {
	types, ok := eventTypeVenues[e]
	return types, ok
}

// SeatingStyle resolves which capacity column a guest count is checked
// against. Standing capacity is the ceiling when nothing distinguishes.
func (c Criteria) SeatingStyle() SeatingStyle {
	if c.Seating != nil {
		return *c.Seating
	}
	if s, ok := defaultSeating[c.EventType]; ok {
		return s
	}
	return SeatingStanding
}

// HasGuestCount reports whether the capacity filter applies.
func (c Criteria) HasGuestCount() bool {
	return c.GuestCount != nil
}

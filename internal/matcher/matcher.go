// Package matcher selects the venues a broadcast is sent to. It is a pure
// function of a directory snapshot and the requester's criteria.
package matcher

import (
	"sort"
	"strings"

	"github.com/unclebandit/venue-broadcast/internal/model"
)

// Match returns the active venues satisfying every specified criterion,
// ordered by capacity slack ascending, then newest first, then id. At most max
// venues are returned; max <= 0 means no cap.
func Match(venues []model.Venue, c model.Criteria, max int) []model.Venue {
	style := c.SeatingStyle()
	allowed := allowedTypes(c)
	location := strings.ToLower(strings.TrimSpace(c.LocationPreference))

	matched := make([]model.Venue, 0, len(venues))
	for _, v := range venues {
		if !eligible(v, c, style, allowed, location) {
			continue
		}
		matched = append(matched, v)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if ca, cb := a.CapacityFor(style), b.CapacityFor(style); ca != cb {
			return ca < cb
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	if max > 0 && len(matched) > max {
		matched = matched[:max]
	}
	return matched
}

// eligible reports whether a single venue passes every filter.
func eligible(v model.Venue, c model.Criteria, style model.SeatingStyle, allowed []map[string]struct{}, location string) bool {
	if v.Status != model.VenueStatusActive {
		return false
	}
	if c.HasGuestCount() && v.CapacityFor(style) < *c.GuestCount {
		return false
	}
	if location != "" && !strings.Contains(strings.ToLower(v.Location), location) {
		return false
	}
	venueType := strings.ToLower(v.VenueType)
	for _, set := range allowed {
		if _, ok := set[venueType]; !ok {
			return false
		}
	}
	return true
}

// allowedTypes returns one set per active venue-type constraint; a venue must
// be in all of them.
func allowedTypes(c model.Criteria) []map[string]struct{} {
	var sets []map[string]struct{}
	if types, ok := c.EventType.AllowedVenueTypes(); ok {
		sets = append(sets, toSet(types))
	}
	if len(c.VenueTypes) > 0 {
		sets = append(sets, toSet(c.VenueTypes))
	}
	return sets
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[strings.ToLower(strings.TrimSpace(v))] = struct{}{}
	}
	return set
}

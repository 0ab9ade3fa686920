// Package seed loads development venue fixtures into the directory table.
package seed

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/jmoiron/sqlx"
	"gopkg.in/yaml.v3"

	"github.com/unclebandit/venue-broadcast/internal/model"
)

type venueFixture struct {
	ID               string `yaml:"id"`
	Name             string `yaml:"name"`
	Status           string `yaml:"status"`
	Location         string `yaml:"location"`
	SeatedCapacity   int    `yaml:"seated_capacity"`
	StandingCapacity int    `yaml:"standing_capacity"`
	VenueType        string `yaml:"venue_type"`
	ContactEmail     string `yaml:"contact_email"`
	// AgeDays backdates created_at so fixtures have a stable newest-first order.
	AgeDays int `yaml:"age_days"`
}

type fixtureFile struct {
	Venues []venueFixture `yaml:"venues"`
}

// LoadVenues parses a YAML fixture file.
func LoadVenues(path string, now time.Time) ([]model.Venue, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read fixture file: %w", err)
	}
	return ParseVenues(data, now)
}

func ParseVenues(data []byte, now time.Time) ([]model.Venue, error) {
	var file fixtureFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse fixture file: %w", err)
	}

	venues := make([]model.Venue, 0, len(file.Venues))
	seen := map[string]bool{}
	for i, f := range file.Venues {
		if f.ID == "" || f.Name == "" || f.ContactEmail == "" {
			return nil, fmt.Errorf("venue %d: id, name and contact_email are required", i)
		}
		if seen[f.ID] {
			return nil, fmt.Errorf("venue %s: duplicate id", f.ID)
		}
		seen[f.ID] = true

		status := model.VenueStatus(strings.ToLower(f.Status))
		if status == "" {
			status = model.VenueStatusActive
		}
		switch status {
		case model.VenueStatusActive, model.VenueStatusDraft, model.VenueStatusExpired:
		default:
			return nil, fmt.Errorf("venue %s: unknown status %q", f.ID, f.Status)
		}

		venues = append(venues, model.Venue{
			ID:               f.ID,
			Name:             f.Name,
			Status:           status,
			Location:         f.Location,
			SeatedCapacity:   f.SeatedCapacity,
			StandingCapacity: f.StandingCapacity,
			VenueType:        f.VenueType,
			ContactEmail:     f.ContactEmail,
			CreatedAt:        now.AddDate(0, 0, -f.AgeDays),
		})
	}
	return venues, nil
}

// Apply upserts venues by id.
func Apply(ctx context.Context, conn *sqlx.DB, venues []model.Venue) error {
	if len(venues) == 0 {
		return nil
	}
	rows := make([]any, 0, len(venues))
	for _, v := range venues {
		rows = append(rows, goqu.Record{
			"id":                v.ID,
			"name":              v.Name,
			"status":            string(v.Status),
			"location":          v.Location,
			"seated_capacity":   v.SeatedCapacity,
			"standing_capacity": v.StandingCapacity,
			"venue_type":        v.VenueType,
			"contact_email":     v.ContactEmail,
			"created_at":        v.CreatedAt,
		})
	}

	query, args, err := goqu.Dialect("postgres").
		Insert("venues").
		Rows(rows...).
		OnConflict(goqu.DoUpdate("id", goqu.Record{
			"name":              goqu.L("EXCLUDED.name"),
			"status":            goqu.L("EXCLUDED.status"),
			"location":          goqu.L("EXCLUDED.location"),
			"seated_capacity":   goqu.L("EXCLUDED.seated_capacity"),
			"standing_capacity": goqu.L("EXCLUDED.standing_capacity"),
			"venue_type":        goqu.L("EXCLUDED.venue_type"),
			"contact_email":     goqu.L("EXCLUDED.contact_email"),
		})).
		Prepared(true).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build venue upsert: %w", err)
	}
	if _, err := conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert venues: %w", err)
	}
	return nil
}

package repository

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/jmoiron/sqlx"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"github.com/unclebandit/venue-broadcast/internal/model"
)

const (
	dialectPostgres = "postgres"
	tableVenues     = "venues"
)

var venueColumns = []any{
	"id", "name", "status", "location", "seated_capacity",
	"standing_capacity", "venue_type", "contact_email", "created_at",
}

// VenueDirectory is the read-only source of venues eligible for broadcasts.
type VenueDirectory interface {
	ListActiveVenues(ctx context.Context) ([]model.Venue, error)
}

type VenueRepository struct {
	DB *sqlx.DB
}

func (r *VenueRepository) ListActiveVenues(ctx context.Context) ([]model.Venue, error) {
	query, args, err := goqu.Dialect(dialectPostgres).
		From(tableVenues).
		Select(venueColumns...).
		Where(goqu.C("status").Eq(string(model.VenueStatusActive))).
		Order(goqu.C("created_at").Desc(), goqu.C("id").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, errors.Wrap(err, "build venue query")
	}

	venues := []model.Venue{}
	if err := r.DB.SelectContext(ctx, &venues, query, args...); err != nil {
		return nil, errors.Wrap(err, "list active venues")
	}
	return venues, nil
}

const activeVenuesKey = "active"

// CachedDirectory serves one directory snapshot for up to ttl so that bursts
// of match-count previews do not each hit the database. A ttl <= 0 disables
// caching and every call reads through.
type CachedDirectory struct {
	next  VenueDirectory
	cache *cache.Cache
}

func NewCachedDirectory(next VenueDirectory, ttl time.Duration) *CachedDirectory {
	d := &CachedDirectory{next: next}
	// go-cache treats a zero ttl as never expiring
	if ttl > 0 {
		d.cache = cache.New(ttl, 2*ttl)
	}
	return d
}

func (d *CachedDirectory) ListActiveVenues(ctx context.Context) ([]model.Venue, error) {
	if d.cache == nil {
		return d.next.ListActiveVenues(ctx)
	}
	if v, ok := d.cache.Get(activeVenuesKey); ok {
		return v.([]model.Venue), nil
	}
	venues, err := d.next.ListActiveVenues(ctx)
	if err != nil {
		return nil, err
	}
	d.cache.SetDefault(activeVenuesKey, venues)
	return venues, nil
}

// Invalidate drops the cached snapshot.
func (d *CachedDirectory) Invalidate() {
	if d.cache == nil {
		return
	}
	d.cache.Delete(activeVenuesKey)
}

var (
	_ VenueDirectory = (*VenueRepository)(nil)
	_ VenueDirectory = (*CachedDirectory)(nil)
)

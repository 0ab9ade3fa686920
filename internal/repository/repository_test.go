package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/venue-broadcast/internal/errors"
	"github.com/unclebandit/venue-broadcast/internal/model"
	"github.com/unclebandit/venue-broadcast/internal/repository"
)

var now = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		conn.Close()
	})
	return sqlx.NewDb(conn, "postgres"), mock
}

var deliveryCols = []string{
	"id", "request_id", "recipient_id", "recipient_email", "status", "error",
	"error_detail", "sent_at", "delivered_at", "created_at", "updated_at",
}

func TestListActiveVenues(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &repository.VenueRepository{DB: db}

	mock.ExpectQuery(`SELECT .* FROM "venues" WHERE \("status" = \$1\) ORDER BY "created_at" DESC, "id" ASC`).
		WithArgs("active").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "status", "location", "seated_capacity", "standing_capacity", "venue_type", "contact_email", "created_at"}).
			AddRow("v1", "U Fleku", "active", "Prague 1", 80, 120, "restaurant", "events@ufleku.cz", now))

	venues, err := repo.ListActiveVenues(context.Background())

	require.NoError(t, err)
	require.Len(t, venues, 1)
	assert.Equal(t, model.VenueStatusActive, venues[0].Status)
	assert.Equal(t, 80, venues[0].SeatedCapacity)
}

type countingDirectory struct {
	calls int
	err   error
}

func (d *countingDirectory) ListActiveVenues(context.Context) ([]model.Venue, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return []model.Venue{{ID: "v1"}}, nil
}

func TestCachedDirectory(t *testing.T) {
	next := &countingDirectory{}
	dir := repository.NewCachedDirectory(next, time.Minute)

	for i := 0; i < 3; i++ {
		venues, err := dir.ListActiveVenues(context.Background())
		require.NoError(t, err)
		assert.Len(t, venues, 1)
	}
	assert.Equal(t, 1, next.calls)

	dir.Invalidate()
	_, err := dir.ListActiveVenues(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}

// activeSet is a directory whose venues can be deactivated between reads.
type activeSet struct {
	venues []model.Venue
}

func (d *activeSet) ListActiveVenues(context.Context) ([]model.Venue, error) {
	return append([]model.Venue(nil), d.venues...), nil
}

func TestCachedDirectoryWithoutTTLReadsThrough(t *testing.T) {
	for _, ttl := range []time.Duration{0, -time.Second} {
		t.Run(ttl.String(), func(t *testing.T) {
			next := &activeSet{venues: []model.Venue{{ID: "v1", Status: model.VenueStatusActive}}}
			dir := repository.NewCachedDirectory(next, ttl)

			venues, err := dir.ListActiveVenues(context.Background())
			require.NoError(t, err)
			assert.Len(t, venues, 1)

			next.venues = nil
			venues, err = dir.ListActiveVenues(context.Background())
			require.NoError(t, err)
			assert.Empty(t, venues, "a deactivated venue must not be served from cache")

			dir.Invalidate()
		})
	}
}

func TestCachedDirectoryDoesNotCacheErrors(t *testing.T) {
	next := &countingDirectory{err: errors.New("down")}
	dir := repository.NewCachedDirectory(next, time.Minute)

	_, err := dir.ListActiveVenues(context.Background())
	assert.Error(t, err)
	_, err = dir.ListActiveVenues(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestBroadcastCreateDuplicate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &repository.BroadcastRepository{DB: db}

	mock.ExpectExec(`INSERT INTO "broadcast_requests"`).
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &model.BroadcastRequest{ID: "r1", Kind: model.BroadcastKindQuick, CreatedAt: now})

	assert.ErrorIs(t, err, repository.ErrDuplicateBroadcast)
}

func TestBroadcastGetByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &repository.BroadcastRepository{DB: db}

	mock.ExpectQuery(`SELECT .* FROM "broadcast_requests" WHERE \("id" = \$1\)`).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "requester_name", "requester_email", "requester_phone", "criteria", "created_at"}).
			AddRow("r1", "event", "Jana", "jana@example.com", "", []byte(`{"event_type":"wedding","guest_count":80}`), now))

	req, err := repo.GetByID(context.Background(), "r1")

	require.NoError(t, err)
	assert.Equal(t, model.EventTypeWedding, req.Criteria.EventType)
	require.NotNil(t, req.Criteria.GuestCount)
	assert.Equal(t, 80, *req.Criteria.GuestCount)
	assert.Equal(t, "jana@example.com", req.Requester.Email)
}

func TestBroadcastGetByIDMissing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &repository.BroadcastRepository{DB: db}

	mock.ExpectQuery(`SELECT .* FROM "broadcast_requests"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByID(context.Background(), "nope")

	assert.ErrorIs(t, err, appErrors.ErrBroadcastNotFound)
}

func TestInsertIfAbsent(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &repository.DeliveryRepository{DB: db}
	rec := &model.DeliveryRecord{ID: "d1", RequestID: "r1", RecipientID: "v1", RecipientEmail: "a@b.cz", Status: model.DeliveryPending, CreatedAt: now, UpdatedAt: now}

	mock.ExpectExec(`INSERT INTO "delivery_records" .* ON CONFLICT DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "delivery_records" .* ON CONFLICT DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := repo.InsertIfAbsent(context.Background(), rec)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.InsertIfAbsent(context.Background(), rec)
	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestTransitionIsCompareAndSet(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &repository.DeliveryRepository{DB: db}

	mock.ExpectExec(`UPDATE "delivery_records" SET .* WHERE \(\("recipient_id" = \$\d+\) AND \("request_id" = \$\d+\) AND \("status" = \$\d+\)\)`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "delivery_records"`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Transition(context.Background(), "r1", "v1", repository.Transition{From: model.DeliveryPending, To: model.DeliverySent, At: now})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Transition(context.Background(), "r1", "v1", repository.Transition{From: model.DeliverySent, To: model.DeliveryDelivered, At: now})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTransitionRejectsBackwardMoves(t *testing.T) {
	db, _ := newMockDB(t)
	repo := &repository.DeliveryRepository{DB: db}

	_, err := repo.Transition(context.Background(), "r1", "v1", repository.Transition{From: model.DeliveryDelivered, To: model.DeliveryPending, At: now})

	assert.ErrorIs(t, err, appErrors.ErrInvalidTransition)
}

func TestGetDeliveryMissing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &repository.DeliveryRepository{DB: db}

	mock.ExpectQuery(`SELECT .* FROM "delivery_records"`).
		WillReturnRows(sqlmock.NewRows(deliveryCols))

	rec, err := repo.Get(context.Background(), "r1", "v1")

	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestListFailedReturnsRows(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &repository.DeliveryRepository{DB: db}
	reason := "invalid-address"

	mock.ExpectQuery(`SELECT .* FROM "delivery_records" WHERE \(\("request_id" = \$1\) AND \("status" = \$2\)\)`).
		WithArgs("r1", "failed").
		WillReturnRows(sqlmock.NewRows(deliveryCols).
			AddRow("d2", "r1", "v2", "bad", "failed", reason, nil, now, nil, now, now))

	records, err := repo.ListFailed(context.Background(), "r1")

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "v2", records[0].RecipientID)
	assert.Equal(t, model.DeliveryFailed, records[0].Status)
	require.NotNil(t, records[0].Error)
	assert.Equal(t, reason, *records[0].Error)
}

func TestRearmOnlyMovesFailedRecords(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &repository.DeliveryRepository{DB: db}

	mock.ExpectExec(`UPDATE "delivery_records" SET .*"status"=\$\d+.* WHERE \(\("recipient_id" = \$\d+\) AND \("request_id" = \$\d+\) AND \("status" = \$\d+\)\)`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "delivery_records"`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Rearm(context.Background(), "r1", "v2", now)
	require.NoError(t, err)
	assert.True(t, ok)

	// already claimed by another retry
	ok, err = repo.Rearm(context.Background(), "r1", "v2", now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCountByStatus(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &repository.DeliveryRepository{DB: db}
	since := now.Add(-24 * time.Hour)

	mock.ExpectQuery(`SELECT "status", COUNT\(\*\) AS "count" FROM "delivery_records" WHERE \(COALESCE\("sent_at", "created_at"\) >= \$1\) GROUP BY "status"`).
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("sent", 4).
			AddRow("failed", 1))

	counts, err := repo.CountByStatus(context.Background(), &since)

	require.NoError(t, err)
	assert.Equal(t, 4, counts[model.DeliverySent])
	assert.Equal(t, 1, counts[model.DeliveryFailed])
	assert.Zero(t, counts[model.DeliveryPending])
}

func TestCountSentSince(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &repository.DeliveryRepository{DB: db}

	mock.ExpectQuery(`SELECT COUNT\(\*\) FILTER \(WHERE sent_at >= \$1\) AS "today"`).
		WillReturnRows(sqlmock.NewRows([]string{"today", "this_week", "this_month"}).AddRow(2, 5, 9))

	counts, err := repo.CountSentSince(context.Background(), now, now, now)

	require.NoError(t, err)
	assert.Equal(t, repository.PeriodCounts{Today: 2, ThisWeek: 5, ThisMonth: 9}, counts)
}

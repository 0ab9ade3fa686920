package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	appErrors "github.com/unclebandit/venue-broadcast/internal/errors"
	"github.com/unclebandit/venue-broadcast/internal/model"
)

const tableDeliveryRecords = "delivery_records"

var deliveryColumns = []any{
	"id", "request_id", "recipient_id", "recipient_email", "status", "error",
	"error_detail", "sent_at", "delivered_at", "created_at", "updated_at",
}

// Transition describes one compare-and-set move of a delivery record.
type Transition struct {
	From   model.DeliveryStatus
	To     model.DeliveryStatus
	At     time.Time
	Reason *string
	Detail *string
}

// PeriodCounts are the records sent since each calendar boundary.
type PeriodCounts struct {
	Today     int `db:"today"`
	ThisWeek  int `db:"this_week"`
	ThisMonth int `db:"this_month"`
}

// DeliveryRepositoryInterface is the delivery ledger store.
type DeliveryRepositoryInterface interface {
	// InsertIfAbsent creates the record unless one exists for the same
	// (request, recipient) pair. It reports whether a row was inserted.
	InsertIfAbsent(ctx context.Context, rec *model.DeliveryRecord) (bool, error)
	// Transition moves a record from t.From to t.To and reports false when
	// the record was not in t.From.
	Transition(ctx context.Context, requestID, recipientID string, t Transition) (bool, error)
	Get(ctx context.Context, requestID, recipientID string) (*model.DeliveryRecord, error)
	ListByRequest(ctx context.Context, requestID string) ([]model.DeliveryRecord, error)
	ListFailed(ctx context.Context, requestID string) ([]model.DeliveryRecord, error)
	// Rearm moves a failed record back to pending for another attempt and
	// reports false when the record was not failed.
	Rearm(ctx context.Context, requestID, recipientID string, at time.Time) (bool, error)
	CountByStatus(ctx context.Context, since *time.Time) (map[model.DeliveryStatus]int, error)
	CountSentSince(ctx context.Context, today, week, month time.Time) (PeriodCounts, error)
}

type DeliveryRepository struct {
	DB *sqlx.DB
}

func (r *DeliveryRepository) InsertIfAbsent(ctx context.Context, rec *model.DeliveryRecord) (bool, error) {
	query, args, err := goqu.Dialect(dialectPostgres).
		Insert(tableDeliveryRecords).
		Rows(goqu.Record{
			"id":              rec.ID,
			"request_id":      rec.RequestID,
			"recipient_id":    rec.RecipientID,
			"recipient_email": rec.RecipientEmail,
			"status":          string(rec.Status),
			"created_at":      rec.CreatedAt,
			"updated_at":      rec.UpdatedAt,
		}).
		OnConflict(goqu.DoNothing()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return false, errors.Wrap(err, "build delivery insert")
	}

	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, errors.Wrap(err, "insert delivery record")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected")
	}
	return n == 1, nil
}

func (r *DeliveryRepository) Transition(ctx context.Context, requestID, recipientID string, t Transition) (bool, error) {
	if !t.From.CanTransitionTo(t.To) {
		return false, errors.Wrapf(appErrors.ErrInvalidTransition, "%s -> %s", t.From, t.To)
	}

	set := goqu.Record{
		"status":     string(t.To),
		"updated_at": t.At,
	}
	switch t.To {
	case model.DeliverySent, model.DeliveryFailed:
		set["sent_at"] = t.At
	case model.DeliveryDelivered:
		set["delivered_at"] = t.At
	}
	if t.Reason != nil {
		set["error"] = *t.Reason
	}
	if t.Detail != nil {
		set["error_detail"] = *t.Detail
	}

	query, args, err := goqu.Dialect(dialectPostgres).
		Update(tableDeliveryRecords).
		Set(set).
		Where(goqu.Ex{
			"request_id":   requestID,
			"recipient_id": recipientID,
			"status":       string(t.From),
		}).
		Prepared(true).
		ToSQL()
	if err != nil {
		return false, errors.Wrap(err, "build delivery update")
	}

	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, errors.Wrap(err, "update delivery record")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected")
	}
	return n == 1, nil
}

func (r *DeliveryRepository) Get(ctx context.Context, requestID, recipientID string) (*model.DeliveryRecord, error) {
	query, args, err := goqu.Dialect(dialectPostgres).
		From(tableDeliveryRecords).
		Select(deliveryColumns...).
		Where(goqu.Ex{"request_id": requestID, "recipient_id": recipientID}).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, errors.Wrap(err, "build delivery query")
	}

	var rec model.DeliveryRecord
	if err := r.DB.GetContext(ctx, &rec, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "get delivery record")
	}
	return &rec, nil
}

func (r *DeliveryRepository) ListByRequest(ctx context.Context, requestID string) ([]model.DeliveryRecord, error) {
	query, args, err := goqu.Dialect(dialectPostgres).
		From(tableDeliveryRecords).
		Select(deliveryColumns...).
		Where(goqu.C("request_id").Eq(requestID)).
		Order(goqu.C("created_at").Asc(), goqu.C("recipient_id").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, errors.Wrap(err, "build delivery list query")
	}

	records := []model.DeliveryRecord{}
	if err := r.DB.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, errors.Wrap(err, "list delivery records")
	}
	return records, nil
}

func (r *DeliveryRepository) ListFailed(ctx context.Context, requestID string) ([]model.DeliveryRecord, error) {
	query, args, err := goqu.Dialect(dialectPostgres).
		From(tableDeliveryRecords).
		Select(deliveryColumns...).
		Where(goqu.Ex{"request_id": requestID, "status": string(model.DeliveryFailed)}).
		Order(goqu.C("created_at").Asc(), goqu.C("recipient_id").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, errors.Wrap(err, "build failed delivery query")
	}

	records := []model.DeliveryRecord{}
	if err := r.DB.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, errors.Wrap(err, "list failed delivery records")
	}
	return records, nil
}

// Rearm is the one move outside the forward-only edges. The failure stays in
// place until the record is claimed, so an attempt that never starts leaves
// it untouched.
func (r *DeliveryRepository) Rearm(ctx context.Context, requestID, recipientID string, at time.Time) (bool, error) {
	query, args, err := goqu.Dialect(dialectPostgres).
		Update(tableDeliveryRecords).
		Set(goqu.Record{
			"status":       string(model.DeliveryPending),
			"error":        nil,
			"error_detail": nil,
			"sent_at":      nil,
			"updated_at":   at,
		}).
		Where(goqu.Ex{
			"request_id":   requestID,
			"recipient_id": recipientID,
			"status":       string(model.DeliveryFailed),
		}).
		Prepared(true).
		ToSQL()
	if err != nil {
		return false, errors.Wrap(err, "build delivery rearm")
	}

	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, errors.Wrap(err, "rearm delivery record")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected")
	}
	return n == 1, nil
}

func (r *DeliveryRepository) CountByStatus(ctx context.Context, since *time.Time) (map[model.DeliveryStatus]int, error) {
	ds := goqu.Dialect(dialectPostgres).
		From(tableDeliveryRecords).
		Select(goqu.C("status"), goqu.COUNT(goqu.Star()).As("count")).
		GroupBy(goqu.C("status"))
	if since != nil {
		// pending rows have no sent_at yet; they are placed by creation time
		ds = ds.Where(goqu.COALESCE(goqu.C("sent_at"), goqu.C("created_at")).Gte(*since))
	}
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, errors.Wrap(err, "build status count query")
	}

	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	if err := r.DB.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "count delivery records")
	}

	counts := make(map[model.DeliveryStatus]int, len(rows))
	for _, row := range rows {
		counts[model.DeliveryStatus(row.Status)] = row.Count
	}
	return counts, nil
}

func (r *DeliveryRepository) CountSentSince(ctx context.Context, today, week, month time.Time) (PeriodCounts, error) {
	query, args, err := goqu.Dialect(dialectPostgres).
		From(tableDeliveryRecords).
		Select(
			goqu.L("COUNT(*) FILTER (WHERE sent_at >= ?)", today).As("today"),
			goqu.L("COUNT(*) FILTER (WHERE sent_at >= ?)", week).As("this_week"),
			goqu.L("COUNT(*) FILTER (WHERE sent_at >= ?)", month).As("this_month"),
		).
		Prepared(true).
		ToSQL()
	if err != nil {
		return PeriodCounts{}, errors.Wrap(err, "build period count query")
	}

	var counts PeriodCounts
	if err := r.DB.GetContext(ctx, &counts, query, args...); err != nil {
		return PeriodCounts{}, errors.Wrap(err, "count sent delivery records")
	}
	return counts, nil
}

var _ DeliveryRepositoryInterface = (*DeliveryRepository)(nil)

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	appErrors "github.com/unclebandit/venue-broadcast/internal/errors"
	"github.com/unclebandit/venue-broadcast/internal/model"
)

const (
	tableBroadcastRequests = "broadcast_requests"
	pqUniqueViolation      = "23505"
)

var ErrDuplicateBroadcast = errors.New("broadcast request id already exists")

// BroadcastRepositoryInterface stores immutable broadcast requests. There is
// deliberately no update method.
type BroadcastRepositoryInterface interface {
	Create(ctx context.Context, req *model.BroadcastRequest) error
	GetByID(ctx context.Context, id string) (*model.BroadcastRequest, error)
}

type BroadcastRepository struct {
	DB *sqlx.DB
}

type broadcastRow struct {
	ID             string    `db:"id"`
	Kind           string    `db:"kind"`
	RequesterName  string    `db:"requester_name"`
	RequesterEmail string    `db:"requester_email"`
	RequesterPhone string    `db:"requester_phone"`
	Criteria       []byte    `db:"criteria"`
	CreatedAt      time.Time `db:"created_at"`
}

func (r *BroadcastRepository) Create(ctx context.Context, req *model.BroadcastRequest) error {
	criteria, err := json.Marshal(req.Criteria)
	if err != nil {
		return errors.Wrap(err, "encode criteria")
	}

	query, args, err := goqu.Dialect(dialectPostgres).
		Insert(tableBroadcastRequests).
		Rows(goqu.Record{
			"id":              req.ID,
			"kind":            string(req.Kind),
			"requester_name":  req.Requester.Name,
			"requester_email": req.Requester.Email,
			"requester_phone": req.Requester.Phone,
			"criteria":        string(criteria),
			"created_at":      req.CreatedAt,
		}).
		Prepared(true).
		ToSQL()
	if err != nil {
		return errors.Wrap(err, "build broadcast insert")
	}

	if _, err := r.DB.ExecContext(ctx, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return ErrDuplicateBroadcast
		}
		return errors.Wrap(err, "insert broadcast request")
	}
	return nil
}

func (r *BroadcastRepository) GetByID(ctx context.Context, id string) (*model.BroadcastRequest, error) {
	query, args, err := goqu.Dialect(dialectPostgres).
		From(tableBroadcastRequests).
		Select("id", "kind", "requester_name", "requester_email", "requester_phone", "criteria", "created_at").
		Where(goqu.C("id").Eq(id)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, errors.Wrap(err, "build broadcast query")
	}

	var row broadcastRow
	if err := r.DB.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewBroadcastNotFound(id)
		}
		return nil, errors.Wrap(err, "get broadcast request")
	}

	req := &model.BroadcastRequest{
		ID:   row.ID,
		Kind: model.BroadcastKind(row.Kind),
		Requester: model.Requester{
			Name:  row.RequesterName,
			Email: row.RequesterEmail,
			Phone: row.RequesterPhone,
		},
		CreatedAt: row.CreatedAt,
	}
	if err := json.Unmarshal(row.Criteria, &req.Criteria); err != nil {
		return nil, errors.Wrap(err, "decode criteria")
	}
	return req, nil
}

var _ BroadcastRepositoryInterface = (*BroadcastRepository)(nil)

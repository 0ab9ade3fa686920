package service_test

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	appErrors "github.com/unclebandit/venue-broadcast/internal/errors"
	"github.com/unclebandit/venue-broadcast/internal/model"
	"github.com/unclebandit/venue-broadcast/internal/repository"
)

// memLedger is an in-memory delivery ledger with the same uniqueness and
// compare-and-set guarantees as the postgres store.
type memLedger struct {
	mu            sync.Mutex
	rows          map[string]*model.DeliveryRecord
	insertErr     map[string]error
	transitionErr map[string]error
}

func newMemLedger() *memLedger {
	return &memLedger{
		rows:          map[string]*model.DeliveryRecord{},
		insertErr:     map[string]error{},
		transitionErr: map[string]error{},
	}
}

func key(requestID, recipientID string) string { return requestID + "|" + recipientID }

func (l *memLedger) InsertIfAbsent(_ context.Context, rec *model.DeliveryRecord) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.insertErr[rec.RecipientID]; err != nil {
		return false, err
	}
	k := key(rec.RequestID, rec.RecipientID)
	if _, ok := l.rows[k]; ok {
		return false, nil
	}
	cp := *rec
	l.rows[k] = &cp
	return true, nil
}

func (l *memLedger) Transition(_ context.Context, requestID, recipientID string, t repository.Transition) (bool, error) {
	if !t.From.CanTransitionTo(t.To) {
		return false, appErrors.ErrInvalidTransition
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.transitionErr[recipientID]; err != nil {
		return false, err
	}
	rec, ok := l.rows[key(requestID, recipientID)]
	if !ok || rec.Status != t.From {
		return false, nil
	}
	rec.Status = t.To
	rec.UpdatedAt = t.At
	at := t.At
	switch t.To {
	case model.DeliverySent, model.DeliveryFailed:
		rec.SentAt = &at
	case model.DeliveryDelivered:
		rec.DeliveredAt = &at
	}
	if t.Reason != nil {
		rec.Error = t.Reason
	}
	if t.Detail != nil {
		rec.ErrorDetail = t.Detail
	}
	return true, nil
}

func (l *memLedger) Get(_ context.Context, requestID, recipientID string) (*model.DeliveryRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.rows[key(requestID, recipientID)]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (l *memLedger) ListByRequest(_ context.Context, requestID string) ([]model.DeliveryRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := []model.DeliveryRecord{}
	for _, rec := range l.rows {
		if rec.RequestID == requestID {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (l *memLedger) ListFailed(_ context.Context, requestID string) ([]model.DeliveryRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := []model.DeliveryRecord{}
	for _, rec := range l.rows {
		if rec.RequestID == requestID && rec.Status == model.DeliveryFailed {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (l *memLedger) Rearm(_ context.Context, requestID, recipientID string, at time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.transitionErr[recipientID]; err != nil {
		return false, err
	}
	rec, ok := l.rows[key(requestID, recipientID)]
	if !ok || rec.Status != model.DeliveryFailed {
		return false, nil
	}
	rec.Status = model.DeliveryPending
	rec.Error, rec.ErrorDetail, rec.SentAt = nil, nil, nil
	rec.UpdatedAt = at
	return true, nil
}

func (l *memLedger) CountByStatus(_ context.Context, since *time.Time) (map[model.DeliveryStatus]int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	counts := map[model.DeliveryStatus]int{}
	for _, rec := range l.rows {
		at := rec.CreatedAt
		if rec.SentAt != nil {
			at = *rec.SentAt
		}
		if since != nil && at.Before(*since) {
			continue
		}
		counts[rec.Status]++
	}
	return counts, nil
}

func (l *memLedger) CountSentSince(_ context.Context, today, week, month time.Time) (repository.PeriodCounts, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var pc repository.PeriodCounts
	for _, rec := range l.rows {
		if rec.SentAt == nil {
			continue
		}
		if !rec.SentAt.Before(today) {
			pc.Today++
		}
		if !rec.SentAt.Before(week) {
			pc.ThisWeek++
		}
		if !rec.SentAt.Before(month) {
			pc.ThisMonth++
		}
	}
	return pc, nil
}

func (l *memLedger) status(requestID, recipientID string) model.DeliveryStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec, ok := l.rows[key(requestID, recipientID)]; ok {
		return rec.Status
	}
	return ""
}

func (l *memLedger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.rows)
}

var _ repository.DeliveryRepositoryInterface = (*memLedger)(nil)

type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) Send(ctx context.Context, to, subject, body string) error {
	args := m.Called(ctx, to, subject, body)
	return args.Error(0)
}

// funcTransport adapts a function to transport.Transport.
type funcTransport func(ctx context.Context, to, subject, body string) error

func (f funcTransport) Send(ctx context.Context, to, subject, body string) error {
	return f(ctx, to, subject, body)
}

type memRequests struct {
	mu   sync.Mutex
	reqs map[string]model.BroadcastRequest
}

func newMemRequests() *memRequests {
	return &memRequests{reqs: map[string]model.BroadcastRequest{}}
}

func (r *memRequests) Create(_ context.Context, req *model.BroadcastRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reqs[req.ID]; ok {
		return repository.ErrDuplicateBroadcast
	}
	r.reqs[req.ID] = *req
	return nil
}

func (r *memRequests) GetByID(_ context.Context, id string) (*model.BroadcastRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.reqs[id]
	if !ok {
		return nil, appErrors.NewBroadcastNotFound(id)
	}
	return &req, nil
}

type staticDirectory struct {
	venues []model.Venue
	err    error
}

func (d *staticDirectory) ListActiveVenues(context.Context) ([]model.Venue, error) {
	if d.err != nil {
		return nil, d.err
	}
	out := make([]model.Venue, 0, len(d.venues))
	for _, v := range d.venues {
		if v.Status == model.VenueStatusActive {
			out = append(out, v)
		}
	}
	return out, nil
}

var fixedNow = time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func intPtr(i int) *int { return &i }

func venue(id, email string) model.Venue {
	return model.Venue{
		ID:               id,
		Name:             "Venue " + id,
		Status:           model.VenueStatusActive,
		Location:         "Prague 1",
		SeatedCapacity:   100,
		StandingCapacity: 150,
		VenueType:        "restaurant",
		ContactEmail:     email,
		CreatedAt:        fixedNow.Add(-24 * time.Hour),
	}
}

func request(id string) *model.BroadcastRequest {
	return &model.BroadcastRequest{
		ID:   id,
		Kind: model.BroadcastKindEvent,
		Requester: model.Requester{
			Name:  "Jana Novak",
			Email: "jana@example.com",
		},
		Criteria: model.Criteria{
			EventType:          model.EventTypeWedding,
			GuestCount:         intPtr(80),
			LocationPreference: "Prague 1",
		},
		CreatedAt: fixedNow,
	}
}

func transitionToSent() repository.Transition {
	return repository.Transition{From: model.DeliveryPending, To: model.DeliverySent, At: fixedNow}
}

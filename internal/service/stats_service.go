// internal/service/stats_service.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/unclebandit/venue-broadcast/internal/model"
	"github.com/unclebandit/venue-broadcast/internal/repository"
)

type StatsService struct {
	Ledger repository.DeliveryRepositoryInterface
	Now    func() time.Time
}

// Aggregate derives a snapshot of the ledger for the window. Nothing is
// cached; every call reads the current rows.
func (s *StatsService) Aggregate(ctx context.Context, window model.StatsWindow) (*model.StatsSnapshot, error) {
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now()
	}

	var since *time.Time
	if start, bounded := window.Start(now); bounded {
		since = &start
	}
	counts, err := s.Ledger.CountByStatus(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}

	today, _ := model.WindowToday.Start(now)
	week, _ := model.WindowWeek.Start(now)
	month, _ := model.WindowMonth.Start(now)
	periods, err := s.Ledger.CountSentSince(ctx, today, week, month)
	if err != nil {
		return nil, fmt.Errorf("count by period: %w", err)
	}

	snap := &model.StatsSnapshot{
		Window:    window,
		Delivered: counts[model.DeliveryDelivered],
		Bounced:   counts[model.DeliveryBounced],
		Failed:    counts[model.DeliveryFailed],
		Pending:   counts[model.DeliveryPending],
		Today:     periods.Today,
		ThisWeek:  periods.ThisWeek,
		ThisMonth: periods.ThisMonth,
	}
	snap.Sent = counts[model.DeliverySent] + snap.Delivered + snap.Bounced
	snap.Total = snap.Sent + snap.Failed + snap.Pending
	return snap, nil
}

// Rate returns part/total as a percentage rounded to one decimal, 0 when
// total is 0.
func Rate(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(int(float64(part)*1000/float64(total)+0.5)) / 10
}

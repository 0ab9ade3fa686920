// internal/service/dispatcher.go
package service

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	appErrors "github.com/unclebandit/venue-broadcast/internal/errors"
	"github.com/unclebandit/venue-broadcast/internal/logging"
	"github.com/unclebandit/venue-broadcast/internal/model"
	"github.com/unclebandit/venue-broadcast/internal/repository"
	"github.com/unclebandit/venue-broadcast/internal/transport"
)

type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

const (
	SkipDuplicate   = "duplicate"
	SkipCancelled   = "cancelled"
	SkipLedgerError = "ledger-error"

	maxErrorDetail = 500
)

// RecipientResult is the outcome of one recipient of a dispatch.
type RecipientResult struct {
	RecipientID string  `json:"recipientId"`
	Email       string  `json:"email"`
	Outcome     Outcome `json:"outcome"`
	Reason      string  `json:"reason,omitempty"`
}

type DispatchResult struct {
	RequestID string            `json:"requestId"`
	Results   []RecipientResult `json:"recipients"`
	Attempted int               `json:"attemptedCount"`
	Sent      int               `json:"sentCount"`
	Failed    int               `json:"failedCount"`
	Skipped   int               `json:"skippedCount"`
}

func (r *DispatchResult) tally() {
	r.Attempted, r.Sent, r.Failed, r.Skipped = 0, 0, 0, 0
	for _, res := range r.Results {
		switch res.Outcome {
		case OutcomeSent:
			r.Sent++
			r.Attempted++
		case OutcomeFailed:
			r.Failed++
			r.Attempted++
		default:
			r.Skipped++
		}
	}
}

// Dispatcher fans a request out to its recipients, one send per recipient,
// at most Concurrency at a time. Every attempt is recorded in the ledger.
type Dispatcher struct {
	Ledger      repository.DeliveryRepositoryInterface
	Transport   transport.Transport
	Concurrency int
	SendTimeout time.Duration
	Subject     string
	Log         *logrus.Entry
	Now         func() time.Time
}

func (d *Dispatcher) log() *logrus.Entry {
	if d.Log == nil {
		return logging.Nop()
	}
	return d.Log
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}

// Dispatch sends req to every recipient and returns one result per distinct
// recipient in input order. A failed send never stops the others. Ledger write
// failures are returned together, wrapped in ErrLedgerWrite. When ctx is
// cancelled, recipients not yet started are skipped, sends already in flight
// complete, and ctx.Err() is part of the returned error.
func (d *Dispatcher) Dispatch(ctx context.Context, req *model.BroadcastRequest, recipients []model.Venue) (*DispatchResult, error) {
	return d.run(ctx, req, recipients, d.claimNew)
}

// Redispatch retries recipients whose records are failed. Each record is
// re-armed to pending only when its send is about to start; a recipient
// skipped for cancellation keeps its failed record.
func (d *Dispatcher) Redispatch(ctx context.Context, req *model.BroadcastRequest, recipients []model.Venue) (*DispatchResult, error) {
	return d.run(ctx, req, recipients, d.claimFailed)
}

// claimFunc takes ownership of the pending record for one recipient. It
// reports false when another attempt owns the record.
type claimFunc func(ctx context.Context, req *model.BroadcastRequest, venue model.Venue) (bool, error)

func (d *Dispatcher) claimNew(ctx context.Context, req *model.BroadcastRequest, venue model.Venue) (bool, error) {
	now := d.now()
	return d.Ledger.InsertIfAbsent(ctx, &model.DeliveryRecord{
		ID:             uuid.Must(uuid.NewV7()).String(),
		RequestID:      req.ID,
		RecipientID:    venue.ID,
		RecipientEmail: venue.ContactEmail,
		Status:         model.DeliveryPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
}

func (d *Dispatcher) claimFailed(ctx context.Context, req *model.BroadcastRequest, venue model.Venue) (bool, error) {
	return d.Ledger.Rearm(ctx, req.ID, venue.ID, d.now())
}

func (d *Dispatcher) run(ctx context.Context, req *model.BroadcastRequest, recipients []model.Venue, claim claimFunc) (*DispatchResult, error) {
	recipients = dedupe(recipients)
	result := &DispatchResult{
		RequestID: req.ID,
		Results:   make([]RecipientResult, len(recipients)),
	}

	limit := d.Concurrency
	if limit < 1 {
		limit = 1
	}
	var g errgroup.Group
	g.SetLimit(limit)

	var (
		mu        sync.Mutex
		ledgerErr *multierror.Error
	)
	recordErr := func(err error) {
		mu.Lock()
		ledgerErr = multierror.Append(ledgerErr, err)
		mu.Unlock()
	}

	for i, venue := range recipients {
		result.Results[i] = RecipientResult{RecipientID: venue.ID, Email: venue.ContactEmail}
		if ctx.Err() != nil {
			result.Results[i].Outcome = OutcomeSkipped
			result.Results[i].Reason = SkipCancelled
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				result.Results[i].Outcome = OutcomeSkipped
				result.Results[i].Reason = SkipCancelled
				return nil
			}
			// a started recipient runs to its terminal outcome
			result.Results[i] = d.deliver(context.WithoutCancel(ctx), req, venue, claim, recordErr)
			return nil
		})
	}
	_ = g.Wait()
	result.tally()

	var errs *multierror.Error
	if ledgerErr != nil {
		errs = multierror.Append(errs, fmt.Errorf("%w: %w", appErrors.ErrLedgerWrite, ledgerErr.ErrorOrNil()))
	}
	if err := ctx.Err(); err != nil {
		errs = multierror.Append(errs, err)
	}

	d.log().WithFields(logrus.Fields{
		"request_id": req.ID,
		"attempted":  result.Attempted,
		"sent":       result.Sent,
		"failed":     result.Failed,
		"skipped":    result.Skipped,
	}).Info("broadcast dispatched")

	return result, errs.ErrorOrNil()
}

func (d *Dispatcher) deliver(ctx context.Context, req *model.BroadcastRequest, venue model.Venue, claim claimFunc, recordErr func(error)) RecipientResult {
	res := RecipientResult{RecipientID: venue.ID, Email: venue.ContactEmail}
	log := d.log().WithFields(logrus.Fields{"request_id": req.ID, "recipient_id": venue.ID})

	claimed, err := claim(ctx, req, venue)
	if err != nil {
		recordErr(fmt.Errorf("recipient %s: %w", venue.ID, err))
		log.WithError(err).Error("failed to write pending delivery record")
		res.Outcome = OutcomeSkipped
		res.Reason = SkipLedgerError
		return res
	}
	if !claimed {
		log.Debug("delivery already recorded, skipping")
		res.Outcome = OutcomeSkipped
		res.Reason = SkipDuplicate
		return res
	}

	subject, body := RenderMessage(d.Subject, req, venue)
	sendCtx := ctx
	if d.SendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, d.SendTimeout)
		defer cancel()
	}
	sendErr := d.Transport.Send(sendCtx, venue.ContactEmail, subject, body)

	t := repository.Transition{From: model.DeliveryPending, To: model.DeliverySent, At: d.now()}
	if sendErr != nil {
		reason := string(FailureReason(sendErr))
		detail := truncate(sendErr.Error(), maxErrorDetail)
		t.To = model.DeliveryFailed
		t.Reason = &reason
		t.Detail = &detail
		res.Outcome = OutcomeFailed
		res.Reason = reason
		log.WithError(sendErr).WithField("reason", reason).Warn("send failed")
	} else {
		res.Outcome = OutcomeSent
	}

	ok, err := d.Ledger.Transition(ctx, req.ID, venue.ID, t)
	if err != nil {
		recordErr(fmt.Errorf("recipient %s: %w", venue.ID, err))
		log.WithError(err).Error("failed to record send outcome")
	} else if !ok {
		log.WithField("to", t.To).Warn("delivery record changed before send outcome was written")
	}
	return res
}

// FailureReason maps a transport error onto the ledger's failure reasons.
func FailureReason(err error) model.FailureReason {
	switch transport.KindOf(err) {
	case transport.KindInvalidAddress:
		return model.ReasonInvalidAddress
	case transport.KindTimeout:
		return model.ReasonTransportTimeout
	case transport.KindRejected:
		return model.ReasonProviderRejected
	}
	return model.ReasonUnknown
}

func dedupe(venues []model.Venue) []model.Venue {
	seen := make(map[string]struct{}, len(venues))
	out := make([]model.Venue, 0, len(venues))
	for _, v := range venues {
		if _, ok := seen[v.ID]; ok {
			continue
		}
		seen[v.ID] = struct{}{}
		out = append(out, v)
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

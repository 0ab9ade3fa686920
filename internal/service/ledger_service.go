// internal/service/ledger_service.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	appErrors "github.com/unclebandit/venue-broadcast/internal/errors"
	"github.com/unclebandit/venue-broadcast/internal/logging"
	"github.com/unclebandit/venue-broadcast/internal/model"
	"github.com/unclebandit/venue-broadcast/internal/repository"
)

const (
	callbackApplied  = "applied"
	callbackUnknown  = "unknown"
	callbackTerminal = "terminal"
	callbackEarly    = "too-early"
	callbackConflict = "conflict"
)

// CallbackResult tells the sender whether its report changed the ledger.
type CallbackResult struct {
	Applied bool   `json:"applied"`
	Reason  string `json:"reason,omitempty"`
}

// LedgerService applies asynchronous delivery reports to the ledger. Reports
// only ever move a record forward; anything else is acknowledged and dropped.
type LedgerService struct {
	Ledger repository.DeliveryRepositoryInterface
	Log    *logrus.Entry
	Now    func() time.Time

	callbacks *prometheus.CounterVec
}

func NewLedgerService(ledger repository.DeliveryRepositoryInterface, log *logrus.Entry, reg prometheus.Registerer) *LedgerService {
	if log == nil {
		log = logging.Nop()
	}
	s := &LedgerService{
		Ledger: ledger,
		Log:    log,
		Now:    func() time.Time { return time.Now().UTC() },
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "delivery_callbacks_total",
			Help: "Delivery status callbacks by reported status and outcome.",
		}, []string{"status", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(s.callbacks)
	}
	return s
}

// Callbacks exposes the callback counter.
func (s *LedgerService) Callbacks() *prometheus.CounterVec {
	return s.callbacks
}

func (s *LedgerService) observe(status model.DeliveryStatus, outcome string) {
	if s.callbacks != nil {
		s.callbacks.WithLabelValues(string(status), outcome).Inc()
	}
}

// ApplyCallback moves the addressed record from sent to the reported status.
// It returns ErrCallbackTooEarly while the record is still pending so that the
// sender redelivers later.
func (s *LedgerService) ApplyCallback(ctx context.Context, cb model.DeliveryCallback) (CallbackResult, error) {
	if cb.Status != model.DeliveryDelivered && cb.Status != model.DeliveryBounced {
		return CallbackResult{}, appErrors.NewValidationError("status", "must be delivered or bounced")
	}
	log := s.Log.WithFields(logrus.Fields{
		"request_id":   cb.RequestID,
		"recipient_id": cb.RecipientID,
		"status":       cb.Status,
	})

	rec, err := s.Ledger.Get(ctx, cb.RequestID, cb.RecipientID)
	if err != nil {
		return CallbackResult{}, fmt.Errorf("load delivery record: %w", err)
	}
	if rec == nil {
		s.observe(cb.Status, callbackUnknown)
		log.Warn("callback for unknown delivery discarded")
		return CallbackResult{Applied: false, Reason: callbackUnknown}, nil
	}

	switch {
	case rec.Status == model.DeliveryPending:
		s.observe(cb.Status, callbackEarly)
		log.Info("callback arrived before send outcome, asking for redelivery")
		return CallbackResult{}, appErrors.ErrCallbackTooEarly
	case rec.Status.IsTerminal():
		s.observe(cb.Status, callbackTerminal)
		log.WithField("current", rec.Status).Warn("callback for terminal delivery discarded")
		return CallbackResult{Applied: false, Reason: callbackTerminal}, nil
	}

	at := cb.Timestamp.UTC()
	if cb.Timestamp.IsZero() {
		at = s.Now()
	}
	t := repository.Transition{From: rec.Status, To: cb.Status, At: at}
	if cb.Status == model.DeliveryBounced {
		reason := string(model.ReasonBounced)
		t.Reason = &reason
		if cb.Error != "" {
			detail := truncate(cb.Error, maxErrorDetail)
			t.Detail = &detail
		}
	}

	ok, err := s.Ledger.Transition(ctx, cb.RequestID, cb.RecipientID, t)
	if err != nil {
		return CallbackResult{}, fmt.Errorf("apply callback: %w", err)
	}
	if !ok {
		// another report won the race for this record
		s.observe(cb.Status, callbackConflict)
		log.Warn("delivery changed concurrently, callback discarded")
		return CallbackResult{Applied: false, Reason: callbackConflict}, nil
	}

	s.observe(cb.Status, callbackApplied)
	log.Debug("callback applied")
	return CallbackResult{Applied: true}, nil
}

package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/sirupsen/logrus"

	appErrors "github.com/unclebandit/venue-broadcast/internal/errors"
	"github.com/unclebandit/venue-broadcast/internal/logging"
	"github.com/unclebandit/venue-broadcast/internal/model"
	"github.com/unclebandit/venue-broadcast/internal/queue"
)

// CallbackWorker applies delivery callbacks consumed from a queue.
type CallbackWorker struct {
	Ledger *LedgerService
	Queue  queue.Queue
	Topic  string
	Log    *logrus.Entry
}

func NewCallbackWorker(ledger *LedgerService, q queue.Queue, topic string, log *logrus.Entry) *CallbackWorker {
	if log == nil {
		log = logging.Nop()
	}
	return &CallbackWorker{Ledger: ledger, Queue: q, Topic: topic, Log: log}
}

// Start subscribes the worker; messages are handled until ctx is done.
func (w *CallbackWorker) Start(ctx context.Context) error {
	return w.Queue.Subscribe(ctx, w.Topic, w.Handle)
}

// Handle returns an error only for messages worth redelivering: callbacks
// that overtook their send and infrastructure failures. Malformed messages
// are dropped.
func (w *CallbackWorker) Handle(ctx context.Context, body []byte) error {
	var cb model.DeliveryCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		w.Log.WithError(err).Warn("malformed callback dropped")
		return nil
	}
	if cb.RequestID == "" || cb.RecipientID == "" {
		w.Log.WithField("body", string(body)).Warn("callback without delivery key dropped")
		return nil
	}

	res, err := w.Ledger.ApplyCallback(ctx, cb)
	switch {
	case err == nil:
		w.Log.WithFields(logrus.Fields{
			"request_id":   cb.RequestID,
			"recipient_id": cb.RecipientID,
			"applied":      res.Applied,
		}).Debug("callback processed")
		return nil
	case errors.Is(err, appErrors.ErrInvalidCriteria):
		w.Log.WithError(err).Warn("invalid callback dropped")
		return nil
	}
	return err
}

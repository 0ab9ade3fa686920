// internal/controller/delivery_controller.go
package controller

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	appErrors "github.com/unclebandit/venue-broadcast/internal/errors"
	"github.com/unclebandit/venue-broadcast/internal/model"
	"github.com/unclebandit/venue-broadcast/internal/queue"
	"github.com/unclebandit/venue-broadcast/internal/service"
)

type CallbackApplier interface {
	ApplyCallback(ctx context.Context, cb model.DeliveryCallback) (service.CallbackResult, error)
}

// DeliveryController receives provider delivery reports over HTTP.
type DeliveryController struct {
	Ledger CallbackApplier
	// Queue and Topic back EnqueueCallback; both are optional.
	Queue    queue.Queue
	Topic    string
	validate *validator.Validate
}

func NewDeliveryController(ledger CallbackApplier) *DeliveryController {
	return &DeliveryController{Ledger: ledger, validate: validator.New()}
}

func (c *DeliveryController) decodeCallback(w http.ResponseWriter, r *http.Request) (model.DeliveryCallback, bool) {
	var cb model.DeliveryCallback
	if err := decodeBody(w, r, &cb); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return cb, false
	}
	if c.validate == nil {
		c.validate = validator.New()
	}
	if err := c.validate.Struct(cb); err != nil {
		writeError(w, http.StatusBadRequest, appErrors.NewValidationError("body", err.Error()))
		return cb, false
	}
	return cb, true
}

func (c *DeliveryController) Callback(w http.ResponseWriter, r *http.Request) {
	cb, ok := c.decodeCallback(w, r)
	if !ok {
		return
	}

	res, err := c.Ledger.ApplyCallback(r.Context(), cb)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// EnqueueCallback accepts a report for asynchronous processing by the
// callback worker and answers 202 once it is queued.
func (c *DeliveryController) EnqueueCallback(w http.ResponseWriter, r *http.Request) {
	cb, ok := c.decodeCallback(w, r)
	if !ok {
		return
	}
	if c.Queue == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "callback queue not configured"})
		return
	}

	body, err := json.Marshal(cb)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := c.Queue.Publish(r.Context(), c.Topic, body); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "failed to queue callback"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"queued": true})
}

// internal/controller/broadcast_controller.go
package controller

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	appErrors "github.com/unclebandit/venue-broadcast/internal/errors"
	"github.com/unclebandit/venue-broadcast/internal/logging"
	"github.com/unclebandit/venue-broadcast/internal/model"
	"github.com/unclebandit/venue-broadcast/internal/service"
)

// Broadcaster is the broadcast use case as seen by HTTP.
type Broadcaster interface {
	Broadcast(ctx context.Context, req *model.BroadcastRequest) (*service.BroadcastResult, error)
	MatchCount(ctx context.Context, c model.Criteria) (int, error)
	Get(ctx context.Context, id string) (*service.BroadcastDetails, error)
	RetryFailed(ctx context.Context, id string) (*service.DispatchResult, error)
}

type BroadcastController struct {
	Service Broadcaster
	Log     *logrus.Entry
}

func (c *BroadcastController) log() *logrus.Entry {
	if c.Log == nil {
		return logging.Nop()
	}
	return c.Log
}

type broadcastResponse struct {
	RequestID    string                    `json:"requestId"`
	MatchedCount int                       `json:"matchedCount"`
	Recipients   []service.RecipientResult `json:"recipients"`
	Attempted    int                       `json:"attemptedCount"`
	Sent         int                       `json:"sentCount"`
	Failed       int                       `json:"failedCount"`
	Skipped      int                       `json:"skippedCount"`
	Error        string                    `json:"error,omitempty"`
}

func dispatchResponse(requestID string, matched int, d *service.DispatchResult) broadcastResponse {
	resp := broadcastResponse{RequestID: requestID, MatchedCount: matched, Recipients: []service.RecipientResult{}}
	if d != nil {
		resp.Recipients = d.Results
		resp.Attempted = d.Attempted
		resp.Sent = d.Sent
		resp.Failed = d.Failed
		resp.Skipped = d.Skipped
	}
	return resp
}

// statusFor maps service errors that carry no partial result.
func statusFor(err error) int {
	switch {
	case errors.Is(err, appErrors.ErrInvalidCriteria):
		return http.StatusBadRequest
	case errors.Is(err, appErrors.ErrBroadcastNotFound):
		return http.StatusNotFound
	case errors.Is(err, appErrors.ErrDirectoryUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, appErrors.ErrCallbackTooEarly):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (c *BroadcastController) Broadcast(w http.ResponseWriter, r *http.Request) {
	var body model.BroadcastRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := c.Service.Broadcast(r.Context(), &body)
	if result == nil {
		if statusFor(err) == http.StatusInternalServerError {
			c.log().WithError(err).Error("broadcast failed")
		}
		writeError(w, statusFor(err), err)
		return
	}

	resp := dispatchResponse(result.Request.ID, len(result.Matched), result.Dispatch)
	if err != nil {
		// partial result: the counts still tell the caller what went out
		c.log().WithError(err).WithField("request_id", result.Request.ID).Error("broadcast incomplete")
		resp.Error = err.Error()
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// criteriaFromQuery reads the preview criteria. Unknown or empty parameters
// are wildcards; a malformed guest count is rejected.
func criteriaFromQuery(r *http.Request) (model.Criteria, error) {
	q := r.URL.Query()
	c := model.Criteria{
		EventType:          model.EventType(strings.TrimSpace(q.Get("eventType"))),
		LocationPreference: strings.TrimSpace(q.Get("location")),
	}
	if raw := strings.TrimSpace(q.Get("guestCount")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return c, appErrors.NewValidationError("guestCount", "must be an integer")
		}
		c.GuestCount = &n
	}
	if raw := strings.TrimSpace(q.Get("seating")); raw != "" {
		s := model.SeatingStyle(raw)
		c.Seating = &s
	}
	for _, t := range q["venueType"] {
		if t = strings.TrimSpace(t); t != "" {
			c.VenueTypes = append(c.VenueTypes, t)
		}
	}
	return c, nil
}

func (c *BroadcastController) MatchCount(w http.ResponseWriter, r *http.Request) {
	criteria, err := criteriaFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	n, err := c.Service.MatchCount(r.Context(), criteria)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"matchedCount": n})
}

func (c *BroadcastController) GetBroadcast(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	details, err := c.Service.Get(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (c *BroadcastController) RetryFailed(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	result, err := c.Service.RetryFailed(r.Context(), id)
	if result == nil {
		writeError(w, statusFor(err), err)
		return
	}

	resp := dispatchResponse(id, len(result.Results), result)
	if err != nil {
		c.log().WithError(err).WithField("request_id", id).Error("retry incomplete")
		resp.Error = err.Error()
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

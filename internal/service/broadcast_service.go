// internal/service/broadcast_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	appErrors "github.com/unclebandit/venue-broadcast/internal/errors"
	"github.com/unclebandit/venue-broadcast/internal/logging"
	"github.com/unclebandit/venue-broadcast/internal/matcher"
	"github.com/unclebandit/venue-broadcast/internal/model"
	"github.com/unclebandit/venue-broadcast/internal/repository"
)

type BroadcastService struct {
	Requests      repository.BroadcastRepositoryInterface
	Ledger        repository.DeliveryRepositoryInterface
	Directory     repository.VenueDirectory
	Dispatcher    *Dispatcher
	MaxRecipients int
	Log           *logrus.Entry
	Now           func() time.Time

	validate *validator.Validate
}

// BroadcastResult reports what a broadcast matched and how dispatch went.
// Dispatch is never nil, so partial results survive a returned error.
type BroadcastResult struct {
	Request  *model.BroadcastRequest
	Matched  []model.Venue
	Dispatch *DispatchResult
}

type BroadcastDetails struct {
	Request    *model.BroadcastRequest `json:"request"`
	Deliveries []model.DeliveryRecord  `json:"deliveries"`
}

func NewBroadcastService(
	requests repository.BroadcastRepositoryInterface,
	ledger repository.DeliveryRepositoryInterface,
	directory repository.VenueDirectory,
	dispatcher *Dispatcher,
	maxRecipients int,
	log *logrus.Entry,
) *BroadcastService {
	if log == nil {
		log = logging.Nop()
	}
	return &BroadcastService{
		Requests:      requests,
		Ledger:        ledger,
		Directory:     directory,
		Dispatcher:    dispatcher,
		MaxRecipients: maxRecipients,
		Log:           log,
		Now:           func() time.Time { return time.Now().UTC() },
		validate:      newValidator(),
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationError turns the first validator failure into a ValidationError
// naming the offending field by its JSON path.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return appErrors.NewValidationError("body", err.Error())
	}
	fe := fieldErrs[0]
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	reason := fe.Tag()
	if fe.Param() != "" {
		reason += "=" + fe.Param()
	}
	return appErrors.NewValidationError(field, reason)
}

func (s *BroadcastService) validator() *validator.Validate {
	if s.validate == nil {
		s.validate = newValidator()
	}
	return s.validate
}

// ValidateRequest normalizes req in place and rejects it when a field is out
// of range. Negative guest counts are rejected, never coerced.
func (s *BroadcastService) ValidateRequest(req *model.BroadcastRequest) error {
	if req.Kind == "" {
		req.Kind = model.BroadcastKindEvent
	}
	req.Requester.Email = strings.TrimSpace(req.Requester.Email)
	req.Criteria.LocationPreference = strings.TrimSpace(req.Criteria.LocationPreference)

	if err := s.validator().Struct(req); err != nil {
		return validationError(err)
	}
	if req.Kind == model.BroadcastKindQuick && strings.TrimSpace(req.Criteria.Requirements) == "" {
		return appErrors.NewValidationError("criteria.requirements", "required for quick requests")
	}
	return nil
}

func (s *BroadcastService) ValidateCriteria(c model.Criteria) error {
	if err := s.validator().Struct(c); err != nil {
		return validationError(err)
	}
	return nil
}

func (s *BroadcastService) activeVenues(ctx context.Context) ([]model.Venue, error) {
	venues, err := s.Directory.ListActiveVenues(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", appErrors.ErrDirectoryUnavailable, err)
	}
	return venues, nil
}

// Broadcast stores req as a new request, matches it against the directory and
// dispatches it to every match. A directory failure aborts before anything is
// stored, so the caller can retry.
func (s *BroadcastService) Broadcast(ctx context.Context, req *model.BroadcastRequest) (*BroadcastResult, error) {
	if err := s.ValidateRequest(req); err != nil {
		return nil, err
	}

	venues, err := s.activeVenues(ctx)
	if err != nil {
		return nil, err
	}

	req.ID = uuid.Must(uuid.NewV7()).String()
	req.CreatedAt = s.Now()
	if err := s.Requests.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("store broadcast request: %w", err)
	}

	matched := matcher.Match(venues, req.Criteria, s.MaxRecipients)
	s.Log.WithFields(logrus.Fields{
		"request_id": req.ID,
		"kind":       req.Kind,
		"directory":  len(venues),
		"matched":    len(matched),
	}).Info("broadcast matched")

	result := &BroadcastResult{Request: req, Matched: matched}
	if len(matched) == 0 {
		result.Dispatch = &DispatchResult{RequestID: req.ID, Results: []RecipientResult{}}
		return result, nil
	}

	dispatch, err := s.Dispatcher.Dispatch(ctx, req, matched)
	result.Dispatch = dispatch
	return result, err
}

// MatchCount previews how many venues a broadcast with c would reach.
func (s *BroadcastService) MatchCount(ctx context.Context, c model.Criteria) (int, error) {
	if err := s.ValidateCriteria(c); err != nil {
		return 0, err
	}
	venues, err := s.activeVenues(ctx)
	if err != nil {
		return 0, err
	}
	return len(matcher.Match(venues, c, s.MaxRecipients)), nil
}

func (s *BroadcastService) Get(ctx context.Context, id string) (*BroadcastDetails, error) {
	req, err := s.Requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	records, err := s.Ledger.ListByRequest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	return &BroadcastDetails{Request: req, Deliveries: records}, nil
}

// RetryFailed dispatches again to the recipients whose deliveries failed,
// using the email captured at the first attempt. Failed records are re-armed
// one by one as their sends start, never removed.
func (s *BroadcastService) RetryFailed(ctx context.Context, id string) (*DispatchResult, error) {
	req, err := s.Requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	failed, err := s.Ledger.ListFailed(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list failed deliveries: %w", err)
	}
	if len(failed) == 0 {
		return &DispatchResult{RequestID: id, Results: []RecipientResult{}}, nil
	}

	names := map[string]string{}
	if venues, err := s.Directory.ListActiveVenues(ctx); err == nil {
		for _, v := range venues {
			names[v.ID] = v.Name
		}
	} else {
		s.Log.WithError(err).Warn("directory unavailable, retrying without venue names")
	}

	recipients := make([]model.Venue, 0, len(failed))
	for _, rec := range failed {
		recipients = append(recipients, model.Venue{
			ID:           rec.RecipientID,
			Name:         names[rec.RecipientID],
			ContactEmail: rec.RecipientEmail,
		})
	}

	s.Log.WithFields(logrus.Fields{"request_id": id, "recipients": len(recipients)}).Info("retrying failed deliveries")
	return s.Dispatcher.Redispatch(ctx, req, recipients)
}

// internal/model/delivery_record.go
package model

import (
	"time"
)

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliveryBounced   DeliveryStatus = "bounced"
)

// transitions lists the only forward edges of the delivery state machine.
var transitions = map[DeliveryStatus][]DeliveryStatus{
	DeliveryPending: {DeliverySent, DeliveryFailed},
	DeliverySent:    {DeliveryDelivered, DeliveryBounced},
}

func (s DeliveryStatus) IsTerminal() bool {
	return s == DeliveryDelivered || s == DeliveryFailed || s == DeliveryBounced
}

func (s DeliveryStatus) CanTransitionTo(next DeliveryStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryPending, DeliverySent, DeliveryDelivered, DeliveryFailed, DeliveryBounced:
		return true
	}
	return false
}

// FailureReason classifies why a send failed or bounced.
type FailureReason string

const (
	ReasonInvalidAddress   FailureReason = "invalid-address"
	ReasonTransportTimeout FailureReason = "transport-timeout"
	ReasonProviderRejected FailureReason = "provider-rejected"
	ReasonUnknown          FailureReason = "unknown"
	ReasonBounced          FailureReason = "bounced"
)

// DeliveryRecord is the ledger row for one (request, recipient) pair.
type DeliveryRecord struct {
	ID             string         `db:"id" json:"id"`
	RequestID      string         `db:"request_id" json:"request_id"`
	RecipientID    string         `db:"recipient_id" json:"recipient_id"`
	RecipientEmail string         `db:"recipient_email" json:"recipient_email"`
	Status         DeliveryStatus `db:"status" json:"status"`
	Error          *string        `db:"error" json:"error,omitempty"`
	ErrorDetail    *string        `db:"error_detail" json:"error_detail,omitempty"`
	SentAt         *time.Time     `db:"sent_at" json:"sent_at,omitempty"`
	DeliveredAt    *time.Time     `db:"delivered_at" json:"delivered_at,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// DeliveryCallback is an asynchronous status report from the mail provider.
type DeliveryCallback struct {
	RequestID   string         `json:"requestId" validate:"required"`
	RecipientID string         `json:"recipientId" validate:"required"`
	Status      DeliveryStatus `json:"status" validate:"required,oneof=delivered bounced"`
	Timestamp   time.Time      `json:"timestamp"`
	Error       string         `json:"error,omitempty"`
}

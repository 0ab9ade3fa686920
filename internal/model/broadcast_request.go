// internal/model/broadcast_request.go
package model

import "time"

type BroadcastKind string

const (
	BroadcastKindEvent BroadcastKind = "event"
	BroadcastKindQuick BroadcastKind = "quick"
)

type Requester struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone,omitempty" validate:"max=40"`
}

// BroadcastRequest is a snapshot of one submitted requirement set. It is
// written once and never updated; a changed requirement is a new request.
type BroadcastRequest struct {
	ID        string        `db:"id" json:"id"`
	Kind      BroadcastKind `db:"kind" json:"kind" validate:"required,oneof=event quick"`
	Requester Requester     `json:"requester" validate:"required"`
	Criteria  Criteria      `json:"criteria"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
}

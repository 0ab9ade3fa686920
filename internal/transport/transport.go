// internal/transport/transport.go
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/mail"
)

// Transport delivers one message to one address.
type Transport interface {
	Send(ctx context.Context, to, subject, body string) error
}

type ErrorKind string

const (
	KindInvalidAddress ErrorKind = "invalid-address"
	KindTimeout        ErrorKind = "timeout"
	KindRejected       ErrorKind = "rejected"
	KindUnknown        ErrorKind = "unknown"
)

// Error is returned by transports for failures they can classify.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(kind ErrorKind, err error) error {
	return &Error{Kind: kind, Err: err}
}

// KindOf classifies any send error. Context deadlines and network timeouts
// count as timeouts even when the transport did not wrap them.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return KindUnknown
}

// ValidateAddress rejects addresses that cannot be a single mailbox.
func ValidateAddress(to string) error {
	addr, err := mail.ParseAddress(to)
	if err != nil {
		return NewError(KindInvalidAddress, err)
	}
	if addr.Address != to {
		return NewError(KindInvalidAddress, fmt.Errorf("address %q must be a bare mailbox", to))
	}
	return nil
}

// internal/provider/provider.go
package provider

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies delivery failures. The dispatch queue retries transient
// kinds and finalizes permanent ones immediately.
type Kind int

const (
	KindTransport Kind = iota
	KindRateLimited
	KindUnavailable
	KindInvalidRecipient
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindUnavailable:
		return "unavailable"
	case KindInvalidRecipient:
		return "invalid_recipient"
	default:
		return "transport_error"
	}
}

// SendError is a classified delivery failure.
type SendError struct {
	Kind Kind
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

func NewSendError(kind Kind, format string, args ...any) error {
	return &SendError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Permanent reports whether err should not be retried.
func Permanent(err error) bool {
	var se *SendError
	if errors.As(err, &se) {
		return se.Kind == KindInvalidRecipient
	}
	return false
}

// Sender delivers one message to one canonical phone number and returns the
// backend's delivery id. Implementations classify failures as SendError;
// anything else is treated as a transport error by callers.
type Sender interface {
	Send(ctx context.Context, phone, text string) (deliveryID string, err error)
	Name() string
}

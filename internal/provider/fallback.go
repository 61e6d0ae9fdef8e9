// internal/provider/fallback.go
package provider

import (
	"context"

	"github.com/rs/zerolog"
)

// Fallback tries an ordered list of senders until one succeeds. When every
// sender fails, the primary's error is surfaced; the others were only ever
// a recovery path.
type Fallback struct {
	senders []Sender
	log     zerolog.Logger
}

func NewFallback(log zerolog.Logger, senders ...Sender) *Fallback {
	return &Fallback{senders: senders, log: log}
}

func (f *Fallback) Name() string { return "fallback" }

func (f *Fallback) Send(ctx context.Context, phone, text string) (string, error) {
	if len(f.senders) == 0 {
		return "", NewSendError(KindUnavailable, "no providers configured")
	}

	var primaryErr error
	for i, s := range f.senders {
		id, err := s.Send(ctx, phone, text)
		if err == nil {
			return id, nil
		}
		if i == 0 {
			primaryErr = err
		}
		if Permanent(err) {
			// A recipient rejected by one backend is rejected by all.
			return "", err
		}
		if i < len(f.senders)-1 {
			f.log.Warn().
				Str("provider", s.Name()).
				Str("phone", phone).
				Err(err).
				Msg("send failed, trying fallback provider")
		}
	}
	return "", primaryErr
}

package provider

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSender scripts one outcome per call.
type fakeSender struct {
	name  string
	id    string
	err   error
	calls int
}

func (f *fakeSender) Name() string { return f.name }

func (f *fakeSender) Send(ctx context.Context, phone, text string) (string, error) {
	f.calls++
	return f.id, f.err
}

func TestFallbackPrimarySucceeds(t *testing.T) {
	primary := &fakeSender{name: "a", id: "id-a"}
	secondary := &fakeSender{name: "b", id: "id-b"}
	fb := NewFallback(zerolog.Nop(), primary, secondary)

	id, err := fb.Send(context.Background(), "5511999999999", "hi")
	require.NoError(t, err)
	assert.Equal(t, "id-a", id)
	assert.Equal(t, 0, secondary.calls, "secondary must not be tried on success")
}

func TestFallbackUsesSecondary(t *testing.T) {
	primary := &fakeSender{name: "a", err: NewSendError(KindUnavailable, "down")}
	secondary := &fakeSender{name: "b", id: "id-b"}
	fb := NewFallback(zerolog.Nop(), primary, secondary)

	id, err := fb.Send(context.Background(), "5511999999999", "hi")
	require.NoError(t, err)
	assert.Equal(t, "id-b", id)
}

func TestFallbackSurfacesPrimaryError(t *testing.T) {
	primaryErr := NewSendError(KindUnavailable, "primary down")
	primary := &fakeSender{name: "a", err: primaryErr}
	secondary := &fakeSender{name: "b", err: NewSendError(KindTransport, "secondary down")}
	fb := NewFallback(zerolog.Nop(), primary, secondary)

	_, err := fb.Send(context.Background(), "5511999999999", "hi")
	assert.Equal(t, primaryErr, err)
}

func TestFallbackStopsOnPermanentError(t *testing.T) {
	primary := &fakeSender{name: "a", err: NewSendError(KindInvalidRecipient, "bad number")}
	secondary := &fakeSender{name: "b", id: "id-b"}
	fb := NewFallback(zerolog.Nop(), primary, secondary)

	_, err := fb.Send(context.Background(), "123", "hi")
	require.Error(t, err)
	assert.True(t, Permanent(err))
	assert.Equal(t, 0, secondary.calls)
}

func TestFallbackNoProviders(t *testing.T) {
	fb := NewFallback(zerolog.Nop())
	_, err := fb.Send(context.Background(), "5511999999999", "hi")
	assert.Error(t, err)
}

func TestPermanent(t *testing.T) {
	assert.True(t, Permanent(NewSendError(KindInvalidRecipient, "x")))
	assert.False(t, Permanent(NewSendError(KindRateLimited, "x")))
	assert.False(t, Permanent(NewSendError(KindUnavailable, "x")))
	assert.False(t, Permanent(NewSendError(KindTransport, "x")))
	assert.False(t, Permanent(context.DeadlineExceeded))
	assert.False(t, Permanent(nil))
}

// internal/provider/mock.go
package provider

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Mock simulates a delivery backend. It is the default when no real
// provider credentials are configured, and doubles as the test sender.
type Mock struct {
	// FailureRate in [0,1]; failed sends come back as Unavailable.
	FailureRate float64
	// Latency caps the simulated per-send delay. Zero means no delay.
	Latency time.Duration

	// rng is not goroutine-safe; the dispatch queue calls Send from
	// concurrent workers.
	mu  sync.Mutex
	rng *rand.Rand
}

func NewMock(failureRate float64, latency time.Duration) *Mock {
	return &Mock{
		FailureRate: failureRate,
		Latency:     latency,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Send(ctx context.Context, phone, text string) (string, error) {
	m.mu.Lock()
	var delay time.Duration
	if m.Latency > 0 {
		delay = time.Duration(m.rng.Int63n(int64(m.Latency)))
	}
	fail := m.FailureRate > 0 && m.rng.Float64() < m.FailureRate
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", NewSendError(KindTransport, "send interrupted: %v", ctx.Err())
		}
	}

	if fail {
		return "", NewSendError(KindUnavailable, "simulated delivery failure")
	}
	return "demo_" + uuid.NewString(), nil
}

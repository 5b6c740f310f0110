package shopify

import (
	"context"
	"sync"
	"time"
)

// The Admin REST API enforces a leaky-bucket call budget per store: a burst
// capacity that refills at a fixed rate. Exceeding it returns 429s; pacing
// requests locally keeps the retry policy for genuine failures.
const (
	apiBucketCapacity  = 40
	apiRefillPerSecond = 2
)

// throttle is a blocking token bucket. One bucket covers the whole client:
// all calls share the store's budget.
type throttle struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

func newThrottle(capacity int, refillPerSecond float64) *throttle {
	return &throttle{
		tokens:     float64(capacity),
		capacity:   float64(capacity),
		refillRate: refillPerSecond,
		lastRefill: time.Now(),
	}
}

// wait blocks until a token is available or ctx is done. A full bucket lets
// bursts through without pausing.
func (t *throttle) wait(ctx context.Context) error {
	for {
		t.mu.Lock()
		t.refill()
		if t.tokens >= 1 {
			t.tokens--
			t.mu.Unlock()
			return nil
		}
		delay := time.Duration((1 - t.tokens) / t.refillRate * float64(time.Second))
		t.mu.Unlock()

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// refill credits tokens for the time elapsed since the last refill.
// Callers hold t.mu.
func (t *throttle) refill() {
	now := time.Now()
	t.tokens += now.Sub(t.lastRefill).Seconds() * t.refillRate
	if t.tokens > t.capacity {
		t.tokens = t.capacity
	}
	t.lastRefill = now
}

package events

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while a guarded publisher is skipped after repeated failures
var ErrCircuitOpen = errors.New("event publisher circuit open")

type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

// guarded skips the wrapped publisher for a cooldown after threshold consecutive failures.
// After the cooldown one probe is let through; success closes the circuit, failure reopens it.
type guarded struct {
	Publisher

	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	state    circuitState
	failures int
	openedAt time.Time
	probing  bool
}

// Guard wraps p with a circuit breaker. threshold < 1 disables the breaker.
func Guard(p Publisher, threshold int, cooldown time.Duration) Publisher {
	return guard(p, threshold, cooldown, time.Now)
}

func guard(p Publisher, threshold int, cooldown time.Duration, now func() time.Time) Publisher {
	if threshold < 1 {
		return p
	}
	return &guarded{Publisher: p, threshold: threshold, cooldown: cooldown, now: now}
}

func (g *guarded) Publish(ctx context.Context, event Event) error {
	if !g.allow() {
		return ErrCircuitOpen
	}
	err := g.Publisher.Publish(ctx, event)
	g.record(err)
	return err
}

func (g *guarded) allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case circuitOpen:
		if g.now().Sub(g.openedAt) < g.cooldown {
			return false
		}
		g.state = circuitHalfOpen
		g.probing = true
		return true
	case circuitHalfOpen:
		if g.probing {
			return false
		}
		g.probing = true
		return true
	default:
		return true
	}
}

func (g *guarded) record(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.probing = false
	if err == nil {
		g.state = circuitClosed
		g.failures = 0
		return
	}

	g.failures++
	if g.state == circuitHalfOpen || g.failures >= g.threshold {
		g.state = circuitOpen
		g.openedAt = g.now()
	}
}

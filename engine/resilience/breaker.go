// Package resilience holds the protection layer that sits between the chat
// orchestrator and its external dependencies: a windowed circuit breaker, a
// daily quota manager, and a load shedder. The per-tenant rate limiter lives
// in engine/kv.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/northlane/ragvault/engine/domain"
	"github.com/northlane/ragvault/pkg/fn"
)

// Circuit breaker states.
type State int

const (
	StateClosed   State = iota // normal operation
	StateOpen                  // tripping, reject calls
	StateHalfOpen              // allowing probe calls
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned by Call/CallResult while the breaker is open.
var ErrCircuitOpen = domain.NewFailure(domain.KindCircuitOpen, "circuit breaker is open", nil)

// BreakerOpts configures the circuit breaker.
type BreakerOpts struct {
	// FailThreshold is how many failures inside Window trip the breaker.
	FailThreshold int
	// Window is the rolling period over which failures are counted.
	Window time.Duration
	// SuccessThreshold is how many consecutive successes in half-open close the breaker.
	SuccessThreshold int
	// Timeout is how long the breaker stays open before entering half-open.
	Timeout time.Duration
	// HalfOpenMax is the number of probe calls allowed concurrently in half-open state.
	HalfOpenMax int
}

// DefaultBreakerOpts mirrors the defaults of the breaker this package is
// modeled on (5 failures in a 60s window, 2 successes to close, 60s open).
var DefaultBreakerOpts = BreakerOpts{
	FailThreshold:    5,
	Window:           60 * time.Second,
	SuccessThreshold: 2,
	Timeout:          60 * time.Second,
	HalfOpenMax:      1,
}

// Breaker is a circuit breaker that counts failures within a rolling time
// window rather than consecutive failures, so a single stale failure from
// an hour ago can't combine with a fresh one to trip the circuit.
type Breaker struct {
	mu            sync.Mutex
	opts          BreakerOpts
	state         State
	failureTimes  []time.Time
	successCount  int
	openedAt      time.Time
	halfOpenCount int
	now           func() time.Time // for testing
}

// NewBreaker creates a circuit breaker with the given options.
func NewBreaker(opts BreakerOpts) *Breaker {
	if opts.FailThreshold <= 0 {
		opts.FailThreshold = DefaultBreakerOpts.FailThreshold
	}
	if opts.Window <= 0 {
		opts.Window = DefaultBreakerOpts.Window
	}
	if opts.SuccessThreshold <= 0 {
		opts.SuccessThreshold = DefaultBreakerOpts.SuccessThreshold
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultBreakerOpts.Timeout
	}
	if opts.HalfOpenMax <= 0 {
		opts.HalfOpenMax = DefaultBreakerOpts.HalfOpenMax
	}
	return &Breaker{opts: opts, now: time.Now}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState()
}

// currentState returns state, transitioning open→half-open if the timeout
// has elapsed. Must hold mu.
func (b *Breaker) currentState() State {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.opts.Timeout {
		b.state = StateHalfOpen
		b.halfOpenCount = 0
		b.successCount = 0
	}
	return b.state
}

// pruneFailures drops failure timestamps outside the rolling window. Must hold mu.
func (b *Breaker) pruneFailures() {
	cutoff := b.now().Add(-b.opts.Window)
	kept := b.failureTimes[:0]
	for _, t := range b.failureTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.failureTimes = kept
}

// recordFailure applies a failed call outcome. Must hold mu.
func (b *Breaker) recordFailure() {
	now := b.now()
	if b.state == StateHalfOpen {
		b.state = StateOpen
		b.openedAt = now
		b.successCount = 0
		return
	}

	b.failureTimes = append(b.failureTimes, now)
	b.pruneFailures()
	if len(b.failureTimes) >= b.opts.FailThreshold {
		b.state = StateOpen
		b.openedAt = now
		b.failureTimes = nil
	}
}

// recordSuccess applies a successful call outcome. Must hold mu.
func (b *Breaker) recordSuccess() {
	if b.state != StateHalfOpen {
		return
	}
	if b.halfOpenCount > 0 {
		b.halfOpenCount-- // the finished probe frees its half-open slot
	}
	b.successCount++
	if b.successCount >= b.opts.SuccessThreshold {
		b.state = StateClosed
		b.successCount = 0
		b.failureTimes = nil
		b.openedAt = time.Time{}
	}
}

// Call executes f through the circuit breaker.
func (b *Breaker) Call(ctx context.Context, f func(context.Context) error) error {
	b.mu.Lock()
	st := b.currentState()
	switch st {
	case StateOpen:
		b.mu.Unlock()
		return ErrCircuitOpen
	case StateHalfOpen:
		if b.halfOpenCount >= b.opts.HalfOpenMax {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.halfOpenCount++
	}
	b.mu.Unlock()

	err := f(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.recordFailure()
		return err
	}
	b.recordSuccess()
	return nil
}

// CallResult is a generic version of Call that works with fn.Result.
func CallResult[T any](b *Breaker, ctx context.Context, f func(context.Context) fn.Result[T]) fn.Result[T] {
	b.mu.Lock()
	st := b.currentState()
	switch st {
	case StateOpen:
		b.mu.Unlock()
		return fn.Err[T](ErrCircuitOpen)
	case StateHalfOpen:
		if b.halfOpenCount >= b.opts.HalfOpenMax {
			b.mu.Unlock()
			return fn.Err[T](ErrCircuitOpen)
		}
		b.halfOpenCount++
	}
	b.mu.Unlock()

	result := f(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	if result.IsErr() {
		b.recordFailure()
		return result
	}
	b.recordSuccess()
	return result
}

// BreakerStage wraps an fn.Stage with circuit breaker protection.
func BreakerStage[In, Out any](b *Breaker, stage fn.Stage[In, Out]) fn.Stage[In, Out] {
	return func(ctx context.Context, in In) fn.Result[Out] {
		return CallResult(b, ctx, func(ctx context.Context) fn.Result[Out] {
			return stage(ctx, in)
		})
	}
}

// Reset manually returns the breaker to the closed state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failureTimes = nil
	b.successCount = 0
	b.halfOpenCount = 0
	b.openedAt = time.Time{}
}

// TimeUntilHalfOpen reports how long until an open breaker is eligible to
// probe again, or zero if it isn't open.
func (b *Breaker) TimeUntilHalfOpen() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateOpen {
		return 0
	}
	remaining := b.opts.Timeout - b.now().Sub(b.openedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

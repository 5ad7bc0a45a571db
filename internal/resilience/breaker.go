// Package resilience provides reliability patterns for remote lookups.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker is open and rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

func (s state) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithName labels state transition logs.
func WithName(name string) Option {
	return func(b *Breaker) { b.name = name }
}

// WithFailureFilter sets the predicate deciding which errors count as
// failures. Errors it rejects are returned to the caller but leave the
// breaker untouched. By default every non-nil error counts.
func WithFailureFilter(fn func(error) bool) Option {
	return func(b *Breaker) { b.isFailure = fn }
}

// Breaker implements a circuit breaker pattern for protecting external calls.
// It tracks consecutive failures and opens the circuit when a threshold is reached,
// preventing further calls until a timeout elapses.
type Breaker struct {
	mu          sync.Mutex
	name        string
	state       state
	failures    int
	maxFailures int
	timeout     time.Duration
	openedAt    time.Time
	isFailure   func(error) bool
	now         func() time.Time // for testing
}

// NewBreaker creates a circuit breaker that opens after maxFailures consecutive
// failures and stays open for the given timeout before transitioning to half-open.
func NewBreaker(maxFailures int, timeout time.Duration, opts ...Option) *Breaker {
	b := &Breaker{
		name:        "default",
		maxFailures: maxFailures,
		timeout:     timeout,
		isFailure:   func(err error) bool { return err != nil },
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Execute runs fn if the circuit is closed or half-open.
// Returns ErrCircuitOpen if the circuit is open.
func (b *Breaker) Execute(fn func() error) error {
	if !b.allowRequest() {
		return ErrCircuitOpen
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil && b.isFailure(err) {
		b.onFailure()
		return err
	}

	b.onSuccess()
	return err
}

// State returns the current state name: "closed", "open" or "half_open".
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.String()
}

func (b *Breaker) allowRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed:
		return true
	case stateOpen:
		if b.now().Sub(b.openedAt) >= b.timeout {
			b.transition(stateHalfOpen)
			return true
		}
		return false
	case stateHalfOpen:
		return true
	}
	return false
}

// onFailure must be called with b.mu held.
func (b *Breaker) onFailure() {
	b.failures++
	if b.state == stateHalfOpen || b.failures >= b.maxFailures {
		b.openedAt = b.now()
		b.transition(stateOpen)
	}
}

// onSuccess must be called with b.mu held.
func (b *Breaker) onSuccess() {
	b.failures = 0
	b.transition(stateClosed)
}

// transition must be called with b.mu held.
func (b *Breaker) transition(to state) {
	if b.state == to {
		return
	}
	slog.Info("circuit breaker state change", "breaker", b.name, "from", b.state.String(), "to", to.String())
	b.state = to
}

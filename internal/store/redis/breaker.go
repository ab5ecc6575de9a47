package redis

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling Redis while the breaker is open.
var ErrCircuitOpen = errors.New("redis circuit breaker is open")

// BreakerState is the breaker position.
type BreakerState int

const (
	Closed   BreakerState = iota // calls pass through
	Open                         // calls rejected until the cooldown ends
	HalfOpen                     // a single probe call is in flight
)

func (s BreakerState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker opens after maxFailures consecutive failures and rejects calls
// for cooldown. The first call after the cooldown is a probe: it closes the
// breaker on success and reopens it on failure. Other calls made while the
// probe is in flight are rejected.
type Breaker struct {
	mu          sync.Mutex
	state       BreakerState
	failures    int
	openedAt    time.Time
	maxFailures int
	cooldown    time.Duration

	now       func() time.Time
	isFailure func(error) bool
	onChange  func(from, to BreakerState)
}

// NewBreaker creates a closed breaker. isFailure decides which errors count
// against the breaker; nil counts every error.
func NewBreaker(maxFailures int, cooldown time.Duration, isFailure func(error) bool) *Breaker {
	if maxFailures <= 0 {
		maxFailures = 1
	}
	if isFailure == nil {
		isFailure = func(err error) bool { return err != nil }
	}
	return &Breaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		now:         time.Now,
		isFailure:   isFailure,
	}
}

// Do runs fn unless the breaker is open.
func (b *Breaker) Do(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn()
	b.record(err)
	return err
}

// State returns the current position.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return ErrCircuitOpen
		}
		b.setState(HalfOpen)
		return nil
	case HalfOpen:
		return ErrCircuitOpen
	default:
		return nil
	}
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil || !b.isFailure(err) {
		b.failures = 0
		if b.state == HalfOpen {
			b.setState(Closed)
		}
		return
	}

	b.failures++
	if b.state == HalfOpen || b.failures >= b.maxFailures {
		b.openedAt = b.now()
		b.setState(Open)
	}
}

// setState must be called with mu held.
func (b *Breaker) setState(to BreakerState) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if to == Closed {
		b.failures = 0
	}
	if b.onChange != nil {
		b.onChange(from, to)
	}
}

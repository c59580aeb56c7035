package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOpen is returned while the breaker is refusing calls.
var ErrOpen = errors.New("circuit breaker open")

// State is the breaker's position.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
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

// Config controls when the breaker trips and recovers.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	OpenTimeout      time.Duration
	HalfOpenMax      int
}

// DefaultConfig is tuned for a periodic outbound fetch: trip after a
// few consecutive failures, probe again a minute later, and close on
// the first probe that works.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 3,
		SuccessThreshold: 1,
		OpenTimeout:      time.Minute,
		HalfOpenMax:      1,
	}
}

// Breaker fails fast once a dependency has produced a run of errors,
// so a dead endpoint costs one error instead of a timeout per call.
type Breaker struct {
	cfg Config

	mu         sync.Mutex
	state      State
	failures   int
	successes  int
	probes     int
	lastChange time.Time

	now func() time.Time
}

func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg, now: time.Now}
}

// Do runs fn through the breaker. While open it returns ErrOpen without
// calling fn; after OpenTimeout a limited number of probe calls are let
// through to test recovery.
func (b *Breaker) Do(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if !b.allow() {
		return nil, fmt.Errorf("%w, retry later", ErrOpen)
	}

	result, err := fn()
	if err != nil {
		b.recordFailure()
		return nil, err
	}

	b.recordSuccess()
	return result, nil
}

// State reports the breaker's current position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.lastChange) < b.cfg.OpenTimeout {
			return false
		}
		b.transition(StateHalfOpen)
		b.probes++
		return true
	case StateHalfOpen:
		if b.probes >= b.cfg.HalfOpenMax {
			return false
		}
		b.probes++
		return true
	default:
		return true
	}
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.successes = 0

	// Any failed probe reopens; in closed state a run of failures trips.
	if b.state == StateHalfOpen || b.failures >= b.cfg.FailureThreshold {
		b.transition(StateOpen)
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.successes++
	b.failures = 0

	if b.state == StateHalfOpen && b.successes >= b.cfg.SuccessThreshold {
		b.transition(StateClosed)
	}
}

func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	b.state = to
	b.lastChange = b.now()
	b.failures = 0
	b.successes = 0
	b.probes = 0
}

// Package circuitbreaker implements a failure-threshold breaker used to gate
// downstream publishing: once a run of consecutive failures trips it, calls
// are skipped until a recovery timeout elapses and a probe succeeds.
package circuitbreaker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"bitfeed/internal/logger"

	"github.com/sirupsen/logrus"
)

// State of the breaker.
type State int

const (
	StateClosed   State = iota // normal operation, calls allowed
	StateOpen                  // tripped, calls blocked
	StateHalfOpen              // recovery timeout elapsed, probing
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
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrOpen is returned by Execute while the breaker blocks calls.
var ErrOpen = errors.New("circuit breaker is open")

// CircuitBreaker counts consecutive failures and blocks calls once the
// threshold is reached.
type CircuitBreaker struct {
	mu        sync.Mutex
	state     State
	failures  int
	threshold int
	timeout   time.Duration
	openedAt  time.Time
	lastError error
	log       *logrus.Entry
}

// New returns a closed breaker tripping after threshold consecutive
// failures and probing again after timeout.
func New(threshold int, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:     StateClosed,
		threshold: threshold,
		timeout:   timeout,
		log:       logger.WithComponent("circuitbreaker"),
	}
}

// Execute runs fn if the breaker allows it and records the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.allow() {
		return fmt.Errorf("%w: last error: %v", ErrOpen, cb.LastError())
	}
	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return true
	}
	if time.Since(cb.openedAt) > cb.timeout {
		cb.state = StateHalfOpen
		cb.log.Warn("circuit breaker half-open, probing")
		return true
	}
	return false
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.lastError = err
		if cb.failures >= cb.threshold {
			if cb.state != StateOpen {
				cb.log.WithField("failures", cb.failures).Warn("circuit breaker opened")
			}
			cb.state = StateOpen
			cb.openedAt = time.Now()
		}
		return
	}
	if cb.state != StateClosed {
		cb.log.Debug("circuit breaker closed")
	}
	cb.failures = 0
	cb.state = StateClosed
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// LastError returns the most recent recorded failure.
func (cb *CircuitBreaker) LastError() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.lastError
}

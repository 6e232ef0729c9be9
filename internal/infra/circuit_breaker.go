package infra

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Execute while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker open")

// State is the breaker's view of the venue transport.
type State int

const (
	StateClosed   State = iota // venue reachable, calls pass
	StateOpen                  // venue unreachable, calls fail fast
	StateHalfOpen              // cooldown over, probing the venue
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreaker guards REST calls to one venue. After FailureThreshold
// consecutive transport failures it fails calls fast with ErrCircuitOpen
// for Timeout, then lets probe calls through; SuccessThreshold successful
// probes close it again. Safe for concurrent use.
type CircuitBreaker struct {
	name string
	mu   sync.RWMutex

	state        State
	failureCount int
	successCount int
	lastFailure  time.Time

	failureThreshold int
	successThreshold int
	timeout          time.Duration
	isFailure        func(error) bool
}

// CircuitBreakerConfig configures a venue breaker.
type CircuitBreakerConfig struct {
	Name             string
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
	// IsFailure reports whether err means the venue was not reached.
	// Other errors count as answers. nil treats every error as a failure.
	IsFailure func(error) bool
}

// DefaultCircuitBreakerConfig opens after 5 transport failures, cools down
// for 30s and closes after 2 good probes.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		name:             cfg.Name,
		state:            StateClosed,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		timeout:          cfg.Timeout,
		isFailure:        cfg.IsFailure,
	}
}

// Execute runs the venue call fn unless the breaker is open, and records
// whether the transport held up.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.Allow() {
		return fmt.Errorf("%s: %w", cb.name, ErrCircuitOpen)
	}
	err := fn()
	switch {
	case err == nil:
		cb.RecordSuccess()
	case cb.isFailure == nil || cb.isFailure(err):
		cb.RecordFailure()
	default:
		cb.RecordSuccess()
	}
	return err
}

// Allow reports whether a venue call may go out now. An open breaker whose
// cooldown has elapsed moves to half-open and admits the call as a probe.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true

	case StateOpen:
		if time.Since(cb.lastFailure) > cb.timeout {
			cb.state = StateHalfOpen
			cb.successCount = 0
			slog.Info("VENUE_BREAKER_PROBING",
				slog.String("venue", cb.name),
				slog.Duration("cooldown", cb.timeout))
			return true
		}
		return false

	case StateHalfOpen:
		return true

	default:
		return false
	}
}

// RecordSuccess notes a call the venue answered.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failureCount = 0

	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.state = StateClosed
			cb.failureCount = 0
			cb.successCount = 0
			slog.Info("VENUE_BREAKER_CLOSED",
				slog.String("venue", cb.name),
				slog.Int("probes", cb.successThreshold))
		}
	}
}

// RecordFailure notes a call that never got a venue answer.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailure = time.Now()

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.failureThreshold {
			cb.state = StateOpen
			slog.Warn("VENUE_BREAKER_OPEN",
				slog.String("venue", cb.name),
				slog.Int("failures", cb.failureCount),
				slog.Duration("cooldown", cb.timeout))
		}

	case StateHalfOpen:
		cb.state = StateOpen
		cb.successCount = 0
		slog.Warn("VENUE_BREAKER_OPEN",
			slog.String("venue", cb.name),
			slog.String("reason", "probe failed"))
	}
}

// GetState returns the breaker state.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Reset closes the breaker and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failureCount = 0
	cb.successCount = 0
	slog.Info("VENUE_BREAKER_RESET", slog.String("venue", cb.name))
}

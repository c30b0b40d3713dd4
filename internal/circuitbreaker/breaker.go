package circuitbreaker

import (
	"sync"
	"time"
)

type State int

const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Rejecting calls
	StateHalfOpen              // Probing with a bounded number of calls
)

const (
	DefaultFailureThreshold = 5
	DefaultResetTimeout     = 60 * time.Second
	DefaultHalfOpenMaxCalls = 1
)

type CircuitBreaker struct {
	name             string
	failureThreshold int
	resetTimeout     time.Duration
	halfOpenMaxCalls int
	onStateChange    func(name string, from, to State)

	mutex            sync.Mutex
	state            State
	failures         int
	openedAt         time.Time
	halfOpenInFlight int
	generation       uint64
}

// Snapshot is a point-in-time copy of the breaker's internal counters.
type Snapshot struct {
	Name             string
	State            State
	Failures         int
	HalfOpenInFlight int
	OpenedAt         time.Time
}

type Option func(*CircuitBreaker)

// WithFailureThreshold sets how many consecutive failures trip the breaker.
// Values below 1 are ignored.
func WithFailureThreshold(n int) Option {
	return func(cb *CircuitBreaker) {
		if n >= 1 {
			cb.failureThreshold = n
		}
	}
}

// WithResetTimeout sets how long the breaker stays open before a probe
// is permitted. Non-positive durations are ignored.
func WithResetTimeout(d time.Duration) Option {
	return func(cb *CircuitBreaker) {
		if d > 0 {
			cb.resetTimeout = d
		}
	}
}

// WithHalfOpenMaxCalls sets how many probe calls may run concurrently
// while the breaker is half-open. Values below 1 are ignored.
func WithHalfOpenMaxCalls(n int) Option {
	return func(cb *CircuitBreaker) {
		if n >= 1 {
			cb.halfOpenMaxCalls = n
		}
	}
}

// WithOnStateChange registers a hook invoked after every state transition.
// The hook runs outside the breaker's lock, so it may call State or Execute.
func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(cb *CircuitBreaker) {
		cb.onStateChange = fn
	}
}

// New creates a circuit breaker for one named downstream dependency.
// The breaker always starts closed with a failure count of zero.
func New(name string, opts ...Option) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:             name,
		state:            StateClosed,
		failureThreshold: DefaultFailureThreshold,
		resetTimeout:     DefaultResetTimeout,
		halfOpenMaxCalls: DefaultHalfOpenMaxCalls,
	}

	for _, opt := range opts {
		opt(cb)
	}

	return cb
}

// Execute admits op according to the current state, runs it, and applies
// its outcome to the state machine. The operation's own error is always
// propagated unchanged; rejected calls fail with *OpenError or
// *HalfOpenLimitError without op ever being invoked. A panicking op is
// settled as a failure before the panic continues unwinding, so a probe
// slot is never leaked.
func (cb *CircuitBreaker) Execute(op func() error) error {
	if op == nil {
		return ErrNilOperation
	}

	probe, gen, err := cb.admit()
	if err != nil {
		return err
	}

	settled := false
	defer func() {
		if !settled {
			cb.settle(probe, gen, true)
		}
	}()

	err = op()
	settled = true
	cb.settle(probe, gen, err != nil)
	return err
}

// State returns the current mode. Safe to call concurrently with Execute.
func (cb *CircuitBreaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

// Name returns the dependency name this breaker guards.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Snapshot returns a copy of the breaker's counters for diagnostics.
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	return Snapshot{
		Name:             cb.name,
		State:            cb.state,
		Failures:         cb.failures,
		HalfOpenInFlight: cb.halfOpenInFlight,
		OpenedAt:         cb.openedAt,
	}
}

// ResetTimeout returns the configured minimum open duration.
func (cb *CircuitBreaker) ResetTimeout() time.Duration {
	return cb.resetTimeout
}

// admit decides whether the call may run. It reports whether the call was
// admitted as a half-open probe and, if so, under which generation.
func (cb *CircuitBreaker) admit() (probe bool, gen uint64, err error) {
	cb.mutex.Lock()

	var moved *stateChange

	if cb.state == StateOpen {
		if time.Since(cb.openedAt) < cb.resetTimeout {
			cb.mutex.Unlock()
			return false, 0, &OpenError{Breaker: cb.name}
		}
		// Reset timeout elapsed: this call becomes the first probe.
		moved = cb.transition(StateHalfOpen)
	}

	if cb.state == StateHalfOpen {
		if cb.halfOpenInFlight >= cb.halfOpenMaxCalls {
			cb.mutex.Unlock()
			cb.notify(moved)
			return false, 0, &HalfOpenLimitError{Breaker: cb.name}
		}
		cb.halfOpenInFlight++
		gen = cb.generation
		cb.mutex.Unlock()
		cb.notify(moved)
		return true, gen, nil
	}

	cb.mutex.Unlock()
	cb.notify(moved)
	return false, 0, nil
}

// settle applies a completed call's outcome against whatever state is
// current when it finishes. A probe's slot is released only if the breaker
// is still in the half-open window that admitted it.
func (cb *CircuitBreaker) settle(probe bool, gen uint64, failed bool) {
	cb.mutex.Lock()

	if probe && gen == cb.generation {
		cb.halfOpenInFlight--
	}

	var moved *stateChange

	switch cb.state {
	case StateClosed:
		if failed {
			cb.failures++
			if cb.failures >= cb.failureThreshold {
				moved = cb.transition(StateOpen)
			}
		} else {
			cb.failures = 0
		}
	case StateHalfOpen:
		if failed {
			moved = cb.transition(StateOpen)
		} else {
			moved = cb.transition(StateClosed)
		}
	case StateOpen:
		// A call from an earlier window settled after the breaker
		// re-opened; the open timer already reflects the newest failure.
	}

	cb.mutex.Unlock()
	cb.notify(moved)
}

type stateChange struct {
	from State
	to   State
}

// transition moves the state machine. Caller must hold the mutex.
func (cb *CircuitBreaker) transition(to State) *stateChange {
	from := cb.state
	if from == to {
		return nil
	}

	cb.state = to
	cb.generation++
	cb.halfOpenInFlight = 0

	switch to {
	case StateOpen:
		cb.openedAt = time.Now()
	case StateClosed:
		cb.failures = 0
	}

	return &stateChange{from: from, to: to}
}

func (cb *CircuitBreaker) notify(change *stateChange) {
	if change == nil || cb.onStateChange == nil {
		return
	}
	cb.onStateChange(cb.name, change.from, change.to)
}

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

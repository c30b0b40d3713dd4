package circuitbreaker

import (
	"errors"
	"fmt"
)

var (
	// ErrOpen matches rejections issued while the breaker is open.
	ErrOpen = errors.New("circuit breaker is open")

	// ErrHalfOpenLimit matches rejections issued when every half-open
	// probe slot is taken.
	ErrHalfOpenLimit = errors.New("half-open limit reached")

	// ErrNilOperation is returned when Execute is called with a nil operation.
	ErrNilOperation = errors.New("operation cannot be nil")
)

// OpenError is the rejection returned while the breaker is open and the
// reset timeout has not elapsed. It unwraps to ErrOpen.
type OpenError struct {
	Breaker string
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open", e.Breaker)
}

func (e *OpenError) Unwrap() error {
	return ErrOpen
}

// HalfOpenLimitError is the rejection returned when the breaker is half-open
// and all probe slots are in use. It unwraps to ErrHalfOpenLimit.
type HalfOpenLimitError struct {
	Breaker string
}

func (e *HalfOpenLimitError) Error() string {
	return fmt.Sprintf("circuit breaker %q half-open limit reached", e.Breaker)
}

func (e *HalfOpenLimitError) Unwrap() error {
	return ErrHalfOpenLimit
}

// Package circuitbreaker implements the circuit breaker pattern for calls
// to downstream services.
//
// A circuit breaker prevents cascading failures by rejecting calls to a
// dependency that keeps failing. It has three states:
//
//   - CLOSED: normal operation, calls pass through and failures are counted
//   - OPEN: calls are rejected without being attempted
//   - HALF-OPEN: a bounded number of probe calls test whether the
//     dependency recovered
//
// Each breaker guards exactly one named dependency and is owned by the
// client that calls it. There are no background timers: the open timeout is
// checked lazily when a call arrives.
//
// Usage:
//
//	cb := circuitbreaker.New("product-service",
//	    circuitbreaker.WithFailureThreshold(3),
//	    circuitbreaker.WithResetTimeout(30*time.Second))
//
//	err := cb.Execute(func() error {
//	    return callProductService()
//	})
//	if errors.Is(err, circuitbreaker.ErrOpen) {
//	    // Fail fast: dependency presumed down.
//	}
package circuitbreaker

// Package metrics collects circuit breaker activity through a buffered
// event channel: admitted calls, the two rejection kinds, call outcomes,
// state transitions, and upstream health changes. A snapshot of the
// aggregated counters is served as JSON for the /metrics endpoint.
// Events are dropped rather than blocking the caller when the buffer fills.
package metrics

// Package upstream models a downstream service dependency: its base URL,
// reverse proxy, health status, response-time tracking, and the circuit
// breaker that guards outbound calls to it. Each upstream owns exactly one
// breaker instance; there is no shared registry.
package upstream

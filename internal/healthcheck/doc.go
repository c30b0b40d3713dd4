// Package healthcheck monitors upstream availability by polling each
// upstream's /health endpoint at a fixed interval and recording status
// changes. It runs alongside the circuit breakers, not inside them.
package healthcheck

// Package handler implements the gateway's HTTP entry point. The first
// path segment names the target upstream; the rest of the path is proxied
// to it through the upstream's circuit breaker. Breaker rejections are
// mapped to 503 with a Retry-After hint, while real upstream failures pass
// through unchanged and only feed the breaker's failure accounting.
package handler

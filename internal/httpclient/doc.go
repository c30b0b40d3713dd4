// Package httpclient wraps an outbound HTTP client with a circuit breaker.
// Service-to-service callers construct one Client per downstream dependency
// and route every request through it; the breaker's rejections surface as
// errors the caller can distinguish from real dependency failures.
package httpclient

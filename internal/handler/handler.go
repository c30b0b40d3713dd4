package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/commercekit/circuitguard/internal/circuitbreaker"
	"github.com/commercekit/circuitguard/internal/metrics"
	"github.com/commercekit/circuitguard/internal/upstream"
)

type GatewayHandler struct {
	logger           *slog.Logger
	upstreams        map[string]*upstream.Upstream
	metricsCollector *metrics.Collector
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

// upstreamError marks responses the breaker counts as failures.
type upstreamError struct {
	statusCode int
}

func (e *upstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.statusCode)
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (g *GatewayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	clientIP := extractClientIP(r)

	name, rest := splitTarget(r.URL.Path)
	if name == "" {
		http.NotFound(w, r)
		return
	}

	up, ok := g.upstreams[name]
	if !ok {
		g.logger.Warn("Unknown upstream",
			slog.String("request_id", requestID),
			slog.String("upstream", name),
			slog.String("from", clientIP))
		http.Error(w, "unknown upstream", http.StatusNotFound)
		return
	}

	g.logger.Info("Received request",
		slog.String("request_id", requestID),
		slog.String("from", clientIP),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("upstream", name))

	w.Header().Set("X-Request-Id", requestID)
	w.Header().Set("X-Upstream", up.URL().String())

	wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
	proxied := r.Clone(r.Context())
	proxied.URL.Path = rest

	breaker := up.Breaker()
	start := time.Now()

	err := breaker.Execute(func() error {
		g.emitEvent(metrics.MetricEvent{
			Type:      metrics.EventCallAdmitted,
			Timestamp: time.Now(),
			Breaker:   breaker.Name(),
		})

		up.ReverseProxy().ServeHTTP(wrapped, proxied)

		// The proxy's own error handler answers 502 on transport
		// failure, so any 5xx counts against the breaker.
		if wrapped.statusCode >= http.StatusInternalServerError {
			return &upstreamError{statusCode: wrapped.statusCode}
		}
		return nil
	})

	duration := time.Since(start)

	switch {
	case errors.Is(err, circuitbreaker.ErrOpen):
		g.emitEvent(metrics.MetricEvent{
			Type:      metrics.EventRejectedOpen,
			Timestamp: time.Now(),
			Breaker:   breaker.Name(),
		})
		g.logger.Warn("Rejected request, circuit open",
			slog.String("request_id", requestID),
			slog.String("upstream", name))
		w.Header().Set("Retry-After", retryAfterSeconds(breaker.ResetTimeout()))
		http.Error(w, err.Error(), http.StatusServiceUnavailable)

	case errors.Is(err, circuitbreaker.ErrHalfOpenLimit):
		g.emitEvent(metrics.MetricEvent{
			Type:      metrics.EventRejectedHalfOpen,
			Timestamp: time.Now(),
			Breaker:   breaker.Name(),
		})
		g.logger.Warn("Rejected request, probe already in flight",
			slog.String("request_id", requestID),
			slog.String("upstream", name))
		w.Header().Set("Retry-After", "1")
		http.Error(w, err.Error(), http.StatusServiceUnavailable)

	case err != nil:
		// The upstream's response has already been written; the failure
		// only feeds the breaker and the metrics.
		g.emitEvent(metrics.MetricEvent{
			Type:      metrics.EventCallFailed,
			Timestamp: time.Now(),
			Breaker:   breaker.Name(),
			Duration:  duration,
		})
		up.RecordResponse(duration)
		g.logger.Warn("Upstream call failed",
			slog.String("request_id", requestID),
			slog.String("upstream", name),
			slog.String("error", err.Error()))

	default:
		g.emitEvent(metrics.MetricEvent{
			Type:      metrics.EventCallSucceeded,
			Timestamp: time.Now(),
			Breaker:   breaker.Name(),
			Duration:  duration,
		})
		up.RecordResponse(duration)
	}
}

// splitTarget separates the upstream name from the path forwarded to it.
// "/orders/api/v1/items" becomes ("orders", "/api/v1/items").
func splitTarget(path string) (name, rest string) {
	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return "", ""
	}

	name, rest, found := strings.Cut(trimmed, "/")
	if !found || rest == "" {
		return name, "/"
	}
	return name, "/" + rest
}

func retryAfterSeconds(d time.Duration) string {
	return strconv.Itoa(int(math.Ceil(d.Seconds())))
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}

func (g *GatewayHandler) emitEvent(event metrics.MetricEvent) {
	if g.metricsCollector == nil {
		return
	}
	g.metricsCollector.Emit(event)
}

func NewGatewayHandler(logger *slog.Logger, upstreams []*upstream.Upstream, collector *metrics.Collector) *GatewayHandler {
	byName := make(map[string]*upstream.Upstream, len(upstreams))
	for _, up := range upstreams {
		byName[up.Name()] = up
	}

	return &GatewayHandler{
		logger:           logger,
		upstreams:        byName,
		metricsCollector: collector,
	}
}

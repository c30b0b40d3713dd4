package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/commercekit/circuitguard/internal/circuitbreaker"
)

type EventType string

const (
	EventCallAdmitted     EventType = "call_admitted"
	EventRejectedOpen     EventType = "rejected_open"
	EventRejectedHalfOpen EventType = "rejected_half_open"
	EventCallSucceeded    EventType = "call_succeeded"
	EventCallFailed       EventType = "call_failed"
	EventStateChanged     EventType = "state_changed"
	EventHealthChanged    EventType = "health_changed"
)

type MetricEvent struct {
	Type      EventType
	Timestamp time.Time
	Breaker   string
	Duration  time.Duration
	From      circuitbreaker.State
	To        circuitbreaker.State
	Healthy   bool
}

type Collector struct {
	eventCh chan MetricEvent
	metrics *Metrics
	logger  *slog.Logger
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh: make(chan MetricEvent, bufferSize),
		metrics: NewMetrics(),
		logger:  logger,
	}
}

// Emit sends an event without blocking; events are dropped when the
// buffer is full.
func (c *Collector) Emit(event MetricEvent) {
	select {
	case c.eventCh <- event:
	default:
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventCallAdmitted:
		c.metrics.IncrementRequests(event.Breaker)

	case EventRejectedOpen:
		c.metrics.RecordRejection(event.Breaker, false)

	case EventRejectedHalfOpen:
		c.metrics.RecordRejection(event.Breaker, true)

	case EventCallSucceeded:
		c.metrics.RecordOutcome(event.Breaker, event.Duration, false)

	case EventCallFailed:
		c.metrics.RecordOutcome(event.Breaker, event.Duration, true)

	case EventStateChanged:
		c.metrics.RecordStateChange(event.Breaker, event.To)

	case EventHealthChanged:
		c.metrics.UpdateHealthStatus(event.Breaker, event.Healthy)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot() Snapshot {
	return c.metrics.Snapshot()
}

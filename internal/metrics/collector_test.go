package metrics_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/commercekit/circuitguard/internal/circuitbreaker"
	"github.com/commercekit/circuitguard/internal/metrics"
)

func TestMetrics(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Metrics Suite")
}

var _ = Describe("Collector", func() {
	var (
		collector *metrics.Collector
		log       *slog.Logger
		ctx       context.Context
		cancel    context.CancelFunc
	)

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelError, // Suppress logs in tests
		}))
		ctx, cancel = context.WithCancel(context.Background())
		collector = metrics.NewCollector(100, log)
	})

	AfterEach(func() {
		cancel()
		time.Sleep(10 * time.Millisecond) // Allow goroutine to finish
	})

	Describe("NewCollector", func() {
		It("should create a collector with the specified buffer size", func() {
			c := metrics.NewCollector(500, log)
			Expect(c).NotTo(BeNil())
		})
	})

	Describe("Start and event processing", func() {
		It("should count admitted calls", func() {
			collector.Start(ctx)

			collector.Emit(metrics.MetricEvent{
				Type:      metrics.EventCallAdmitted,
				Timestamp: time.Now(),
				Breaker:   "product-service",
			})

			Eventually(func() int64 {
				return collector.Snapshot().Breakers["product-service"].Requests
			}).Should(Equal(int64(1)))
			Expect(collector.Snapshot().TotalRequests).To(Equal(int64(1)))
		})

		It("should count the two rejection kinds separately", func() {
			collector.Start(ctx)

			collector.Emit(metrics.MetricEvent{Type: metrics.EventRejectedOpen, Breaker: "orders"})
			collector.Emit(metrics.MetricEvent{Type: metrics.EventRejectedOpen, Breaker: "orders"})
			collector.Emit(metrics.MetricEvent{Type: metrics.EventRejectedHalfOpen, Breaker: "orders"})

			Eventually(func() metrics.BreakerMetrics {
				return collector.Snapshot().Breakers["orders"]
			}).Should(SatisfyAll(
				HaveField("RejectedOpen", int64(2)),
				HaveField("RejectedHalfOpen", int64(1)),
			))
		})

		It("should record outcomes with response times", func() {
			collector.Start(ctx)

			collector.Emit(metrics.MetricEvent{
				Type:     metrics.EventCallSucceeded,
				Breaker:  "orders",
				Duration: 40 * time.Millisecond,
			})
			collector.Emit(metrics.MetricEvent{
				Type:     metrics.EventCallFailed,
				Breaker:  "orders",
				Duration: 60 * time.Millisecond,
			})

			Eventually(func() metrics.BreakerMetrics {
				return collector.Snapshot().Breakers["orders"]
			}).Should(SatisfyAll(
				HaveField("Successes", int64(1)),
				HaveField("Failures", int64(1)),
				HaveField("AvgResponse", 50*time.Millisecond),
			))
		})

		It("should track the latest breaker state", func() {
			collector.Start(ctx)

			collector.Emit(metrics.MetricEvent{
				Type:    metrics.EventStateChanged,
				Breaker: "orders",
				From:    circuitbreaker.StateClosed,
				To:      circuitbreaker.StateOpen,
			})

			Eventually(func() string {
				return collector.Snapshot().Breakers["orders"].State
			}).Should(Equal("OPEN"))

			collector.Emit(metrics.MetricEvent{
				Type:    metrics.EventStateChanged,
				Breaker: "orders",
				From:    circuitbreaker.StateOpen,
				To:      circuitbreaker.StateHalfOpen,
			})

			Eventually(func() metrics.BreakerMetrics {
				return collector.Snapshot().Breakers["orders"]
			}).Should(SatisfyAll(
				HaveField("State", "HALF-OPEN"),
				HaveField("Transitions", int64(2)),
			))
		})

		It("should track upstream health", func() {
			collector.Start(ctx)

			collector.Emit(metrics.MetricEvent{
				Type:    metrics.EventHealthChanged,
				Breaker: "orders",
				Healthy: true,
			})

			Eventually(func() bool {
				return collector.Snapshot().Breakers["orders"].Healthy
			}).Should(BeTrue())
		})

		It("should default unseen breakers to CLOSED", func() {
			collector.Start(ctx)

			collector.Emit(metrics.MetricEvent{Type: metrics.EventCallAdmitted, Breaker: "orders"})

			Eventually(func() string {
				return collector.Snapshot().Breakers["orders"].State
			}).Should(Equal("CLOSED"))
		})
	})

	Describe("Emit", func() {
		It("should drop events instead of blocking when the buffer is full", func() {
			small := metrics.NewCollector(1, log)
			// Collector not started: channel fills after one event.
			small.Emit(metrics.MetricEvent{Type: metrics.EventCallAdmitted, Breaker: "a"})

			done := make(chan struct{})
			go func() {
				defer close(done)
				small.Emit(metrics.MetricEvent{Type: metrics.EventCallAdmitted, Breaker: "b"})
			}()
			Eventually(done).Should(BeClosed())
		})
	})
})

var _ = Describe("Metrics percentiles", func() {
	It("should compute avg and percentiles from recorded outcomes", func() {
		m := metrics.NewMetrics()
		for i := 1; i <= 100; i++ {
			m.RecordOutcome("orders", time.Duration(i)*time.Millisecond, false)
		}

		bm := m.Snapshot().Breakers["orders"]
		Expect(bm.P50Response).To(BeNumerically("~", 50*time.Millisecond, 2*time.Millisecond))
		Expect(bm.P95Response).To(BeNumerically("~", 95*time.Millisecond, 2*time.Millisecond))
		Expect(bm.P99Response).To(BeNumerically("~", 99*time.Millisecond, 2*time.Millisecond))
		Expect(bm.AvgResponse).To(BeNumerically("~", 50*time.Millisecond, time.Millisecond))
	})
})

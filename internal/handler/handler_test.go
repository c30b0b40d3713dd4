package handler_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/commercekit/circuitguard/internal/circuitbreaker"
	"github.com/commercekit/circuitguard/internal/handler"
	"github.com/commercekit/circuitguard/internal/upstream"
)

func TestHandler(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Handler Suite")
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	Expect(err).NotTo(HaveOccurred())
	return u
}

var _ = Describe("GatewayHandler", func() {
	var (
		log     *slog.Logger
		hits    atomic.Int64
		failing atomic.Bool
		backend *httptest.Server
		gateway *handler.GatewayHandler
		breaker *circuitbreaker.CircuitBreaker
	)

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
		hits.Store(0)
		failing.Store(false)

		backend = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			if failing.Load() {
				http.Error(w, "upstream exploded", http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
			_, _ = io.WriteString(w, "pong:"+r.URL.Path)
		}))

		breaker = circuitbreaker.New("orders",
			circuitbreaker.WithFailureThreshold(2),
			circuitbreaker.WithResetTimeout(100*time.Millisecond))
		up := upstream.New("orders", mustParseURL(backend.URL), breaker)
		gateway = handler.NewGatewayHandler(log, []*upstream.Upstream{up}, nil)
	})

	AfterEach(func() {
		backend.Close()
	})

	send := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		gateway.ServeHTTP(rec, req)
		return rec
	}

	Describe("routing", func() {
		It("should proxy to the upstream named by the first path segment", func() {
			rec := send("/orders/api/v1/items")

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(Equal("pong:/api/v1/items"))
			Expect(rec.Header().Get("X-Request-Id")).NotTo(BeEmpty())
		})

		It("should forward the bare upstream name as the root path", func() {
			rec := send("/orders")

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(Equal("pong:/"))
		})

		It("should answer 404 for an unknown upstream", func() {
			rec := send("/payments/charge")

			Expect(rec.Code).To(Equal(http.StatusNotFound))
			Expect(hits.Load()).To(BeZero())
		})

		It("should answer 404 for the bare root path", func() {
			rec := send("/")
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("failure pass-through", func() {
		It("should relay the upstream's 5xx response unchanged", func() {
			failing.Store(true)

			rec := send("/orders/api/v1/items")

			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
			Expect(rec.Body.String()).To(ContainSubstring("upstream exploded"))
		})

		It("should count 5xx responses against the breaker", func() {
			failing.Store(true)

			send("/orders/a")
			send("/orders/b")

			Expect(breaker.State()).To(Equal(circuitbreaker.StateOpen))
		})

		It("should count transport errors against the breaker", func() {
			dead := upstream.New("dead",
				mustParseURL("http://127.0.0.1:1"),
				circuitbreaker.New("dead", circuitbreaker.WithFailureThreshold(1)))
			gw := handler.NewGatewayHandler(log, []*upstream.Upstream{dead}, nil)

			req := httptest.NewRequest(http.MethodGet, "/dead/x", nil)
			rec := httptest.NewRecorder()
			gw.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusBadGateway))
			Expect(dead.Breaker().State()).To(Equal(circuitbreaker.StateOpen))
		})
	})

	Describe("breaker rejections", func() {
		BeforeEach(func() {
			failing.Store(true)
			send("/orders/a")
			send("/orders/b")
			Expect(breaker.State()).To(Equal(circuitbreaker.StateOpen))
			hits.Store(0)
		})

		It("should answer 503 with Retry-After without touching the upstream", func() {
			rec := send("/orders/c")

			Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
			Expect(rec.Body.String()).To(ContainSubstring(`circuit breaker "orders" is open`))
			Expect(rec.Header().Get("Retry-After")).To(Equal("1"))
			Expect(hits.Load()).To(BeZero())
		})

		It("should admit calls again after the reset timeout", func() {
			failing.Store(false)
			time.Sleep(150 * time.Millisecond)

			rec := send("/orders/c")

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(breaker.State()).To(Equal(circuitbreaker.StateClosed))
		})
	})
})

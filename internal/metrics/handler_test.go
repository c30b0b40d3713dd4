package metrics_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/commercekit/circuitguard/internal/metrics"
)

var _ = Describe("Handler", func() {
	It("should serve the snapshot as JSON", func() {
		log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		collector := metrics.NewCollector(10, log)

		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		rec := httptest.NewRecorder()

		collector.Handler()(rec, req)

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))

		var snap metrics.Snapshot
		Expect(json.Unmarshal(rec.Body.Bytes(), &snap)).To(Succeed())
		Expect(snap.TotalRequests).To(BeZero())
	})
})

package httpserver_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/commercekit/circuitguard/internal/httpserver"
)

func TestHTTPServer(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "HTTPServer Suite")
}

var _ = Describe("Server", func() {
	noop := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	Describe("New", func() {
		It("should accept a host:port address", func() {
			srv, err := httpserver.New("localhost:8080", noop)
			Expect(err).NotTo(HaveOccurred())
			Expect(srv).NotTo(BeNil())
		})

		It("should accept a port-only address", func() {
			srv, err := httpserver.New(":8080", noop)
			Expect(err).NotTo(HaveOccurred())
			Expect(srv).NotTo(BeNil())
		})

		DescribeTable("should reject malformed addresses",
			func(addr string) {
				srv, err := httpserver.New(addr, noop)
				Expect(err).To(HaveOccurred())
				Expect(srv).To(BeNil())
			},
			Entry("missing port", "localhost"),
			Entry("empty string", ""),
			Entry("garbage", "not an address"),
		)

		It("should accept options", func() {
			srv, err := httpserver.New(":8080", noop,
				httpserver.WithTimeouts(time.Second, time.Second),
				httpserver.WithShutdownTimeout(time.Second))
			Expect(err).NotTo(HaveOccurred())
			Expect(srv).NotTo(BeNil())
		})
	})

	Describe("Start and Shutdown", func() {
		It("should serve requests until shut down", func() {
			srv, err := httpserver.New("127.0.0.1:18231", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			}))
			Expect(err).NotTo(HaveOccurred())

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			Eventually(func() error {
				resp, err := http.Get("http://127.0.0.1:18231/")
				if err != nil {
					return err
				}
				resp.Body.Close()
				return nil
			}, "2s", "50ms").Should(Succeed())

			Expect(srv.Shutdown(context.Background())).To(Succeed())
			Eventually(errCh).Should(Receive(BeNil()))
		})
	})
})

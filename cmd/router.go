package main

import (
	"encoding/json"
	"net/http"

	"github.com/commercekit/circuitguard/internal/handler"
	"github.com/commercekit/circuitguard/internal/metrics"
	"github.com/commercekit/circuitguard/internal/upstream"
)

func setupRouter(gateway *handler.GatewayHandler, metricsCollector *metrics.Collector, upstreams []*upstream.Upstream) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/metrics", metricsCollector.Handler())
	mux.HandleFunc("/breakers", breakersHandler(upstreams))
	mux.HandleFunc("/", gateway.ServeHTTP)

	return mux
}

type breakerStatus struct {
	State            string `json:"state"`
	Failures         int    `json:"failures"`
	HalfOpenInFlight int    `json:"half_open_in_flight"`
	Healthy          bool   `json:"healthy"`
}

// breakersHandler reports the live state of every breaker, the integration
// point for external health dashboards.
func breakersHandler(upstreams []*upstream.Upstream) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		statuses := make(map[string]breakerStatus, len(upstreams))
		for _, up := range upstreams {
			snap := up.Breaker().Snapshot()
			statuses[up.Name()] = breakerStatus{
				State:            snap.State.String(),
				Failures:         snap.Failures,
				HalfOpenInFlight: snap.HalfOpenInFlight,
				Healthy:          up.IsHealthy(),
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(statuses); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/commercekit/circuitguard/config"
	"github.com/commercekit/circuitguard/internal/circuitbreaker"
	"github.com/commercekit/circuitguard/internal/handler"
	"github.com/commercekit/circuitguard/internal/healthcheck"
	"github.com/commercekit/circuitguard/internal/httpserver"
	"github.com/commercekit/circuitguard/internal/metrics"
	"github.com/commercekit/circuitguard/internal/upstream"
	"github.com/commercekit/circuitguard/pkg/logger"
)

const defaultHealthInterval = 2 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	collector := metrics.NewCollector(1024, log)
	collector.Start(ctx)

	upstreams, err := initializeUpstreams(ctx, cfg, log, collector)
	if err != nil {
		log.Error("Failed to initialize upstreams", slog.Any("err", err))
		os.Exit(1)
	}

	gateway := handler.NewGatewayHandler(log, upstreams, collector)

	srv, err := httpserver.New(cfg.Server.Address, setupRouter(gateway, collector, upstreams))
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	log.Info("Gateway started",
		slog.String("address", cfg.Server.Address),
		slog.Int("upstreams", len(upstreams)))

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error starting gateway", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

func initializeUpstreams(ctx context.Context, cfg *config.Config, log *slog.Logger, collector *metrics.Collector) ([]*upstream.Upstream, error) {
	var upstreams []*upstream.Upstream

	for _, upCfg := range cfg.Upstreams {
		u, err := url.Parse(upCfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing URL for upstream %q: %w", upCfg.Name, err)
		}

		opts, err := breakerOptions(cfg.Breaker, upCfg)
		if err != nil {
			return nil, err
		}

		opts = append(opts, circuitbreaker.WithOnStateChange(func(name string, from, to circuitbreaker.State) {
			log.Warn("Circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
			collector.Emit(metrics.MetricEvent{
				Type:      metrics.EventStateChanged,
				Timestamp: time.Now(),
				Breaker:   name,
				From:      from,
				To:        to,
			})
		}))

		up := upstream.New(upCfg.Name, u, circuitbreaker.New(upCfg.Name, opts...))
		upstreams = append(upstreams, up)

		interval, err := healthInterval(upCfg)
		if err != nil {
			return nil, err
		}
		go healthcheck.HealthCheck(ctx, up, interval, log, collector)
	}

	if len(upstreams) == 0 {
		return nil, fmt.Errorf("no upstreams configured")
	}

	return upstreams, nil
}

// breakerOptions merges the global breaker defaults with one upstream's
// overrides. Zero values mean "no override".
func breakerOptions(defaults config.BreakerConfig, upCfg config.UpstreamConfig) ([]circuitbreaker.Option, error) {
	threshold := defaults.FailureThreshold
	if upCfg.FailureThreshold > 0 {
		threshold = upCfg.FailureThreshold
	}

	resetStr := defaults.ResetTimeout
	if upCfg.ResetTimeout != "" {
		resetStr = upCfg.ResetTimeout
	}
	reset, err := time.ParseDuration(resetStr)
	if err != nil {
		return nil, err
	}

	maxCalls := defaults.HalfOpenMaxCalls
	if upCfg.HalfOpenMaxCalls > 0 {
		maxCalls = upCfg.HalfOpenMaxCalls
	}

	return []circuitbreaker.Option{
		circuitbreaker.WithFailureThreshold(threshold),
		circuitbreaker.WithResetTimeout(reset),
		circuitbreaker.WithHalfOpenMaxCalls(maxCalls),
	}, nil
}

func healthInterval(upCfg config.UpstreamConfig) (time.Duration, error) {
	if upCfg.HealthInterval == "" {
		return defaultHealthInterval, nil
	}
	return time.ParseDuration(upCfg.HealthInterval)
}

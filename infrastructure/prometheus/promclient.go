package promclient

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var EventsPublished = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "marketbus_events_published_total",
		Help: "events published on the aggregation bus",
	},
	[]string{"exchange", "kind"},
)

var SubscriberLagDropped = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "marketbus_subscriber_lag_dropped_total",
		Help: "events dropped from slow subscriber buffers",
	},
)

var Subscribers = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "marketbus_subscribers",
		Help: "current bus subscribers",
	},
)

var ConnectorsRunning = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "marketbus_connectors_running",
		Help: "connector tasks that are running or waiting to restart",
	},
)

var ConnectorRestarts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "marketbus_connector_restarts_total",
		Help: "connector restarts after the connection ended",
	},
	[]string{"exchange"},
)

var ParseErrors = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "marketbus_parse_errors_total",
		Help: "venue messages dropped because they could not be parsed",
	},
	[]string{"exchange"},
)

var NetworkErrors = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "marketbus_network_errors_total",
		Help: "failed venue connections and requests",
	},
	[]string{"exchange"},
)

var CallbackFailures = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "marketbus_callback_failures_total",
		Help: "subscriber callbacks that returned an error or panicked",
	},
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once
)

func Registry() *prometheus.Registry {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			EventsPublished,
			SubscriberLagDropped,
			Subscribers,
			ConnectorsRunning,
			ConnectorRestarts,
			ParseErrors,
			NetworkErrors,
			CallbackFailures,
			collectors.NewGoCollector(),
		)
	})
	return registry
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry(), promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("prometheus server listening", zap.String("addr", addr))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Package metrics provides Prometheus instrumentation for the trading
// engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OrdersTotal counts executed and rejected orders by side and outcome.
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "papertrade_orders_total",
		Help: "Total orders processed, by side and outcome",
	}, []string{"side", "outcome"})

	// OrderLatency tracks order execution latency.
	OrderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "papertrade_order_latency_seconds",
		Help:    "Order execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"side"})

	// PriceRefreshUpdates counts price-cache entries written by the refresher.
	PriceRefreshUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "papertrade_price_refresh_updates_total",
		Help: "Price cache entries updated from the market-data feed",
	})

	// PriceRefreshFailures counts failed refresh cycles.
	PriceRefreshFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "papertrade_price_refresh_failures_total",
		Help: "Price refresh cycles that failed and left the cache stale",
	})

	// LeaderboardRecomputes counts recomputation cycles by outcome.
	LeaderboardRecomputes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "papertrade_leaderboard_recomputes_total",
		Help: "Leaderboard recomputation cycles",
	}, []string{"outcome"})

	// LeaderboardRecomputeDuration tracks how long a full recompute takes.
	LeaderboardRecomputeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "papertrade_leaderboard_recompute_seconds",
		Help:    "Leaderboard recomputation duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// WebSocketClients tracks connected broadcast observers.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "papertrade_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "papertrade_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "papertrade_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; the route surface is small
		// and bounded, so cardinality stays manageable.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

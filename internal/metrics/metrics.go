// Package metrics provides Prometheus instrumentation for the settlement engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BidsSubmitted counts admitted bids, partitioned by side.
	BidsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_bids_submitted_total",
		Help: "Total number of bids admitted",
	}, []string{"side"})

	// BidRejections counts rejected submissions by reason.
	BidRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_bid_rejections_total",
		Help: "Bid submissions rejected, by reason",
	}, []string{"reason"})

	// ClearingRuns counts clearing passes executed.
	ClearingRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_clearing_runs_total",
		Help: "Total number of clearing passes",
	})

	// ClearingLatency tracks clearing pass duration.
	ClearingLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "settlement_clearing_latency_seconds",
		Help:    "Clearing pass duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// ContractsCreated counts contracts produced by clearing, by side.
	ContractsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_contracts_created_total",
		Help: "Contracts created by market clearing",
	}, []string{"side"})

	// QuotesGenerated counts synthesized price quotes, by kind.
	QuotesGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_quotes_generated_total",
		Help: "Price quotes synthesized",
	}, []string{"kind"})

	// PnLEntriesCalculated counts PnL entries produced by calculation passes.
	PnLEntriesCalculated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_pnl_entries_total",
		Help: "PnL entries produced by calculation passes",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "settlement_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settlement_http_request_duration_seconds",
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

		// Label with the route pattern, not the raw path: ID-bearing
		// routes would otherwise mint a label set per entity.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				path = p
			}
		}
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

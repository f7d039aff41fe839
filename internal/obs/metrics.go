package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ego_http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ego_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ego_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	tokensIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ego_tokens_issued_total",
		Help: "Access tokens and API keys issued.",
	})

	tokensRevoked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ego_tokens_revoked_total",
			Help: "Tokens revoked, by reason.",
		},
		[]string{"reason"},
	)

	reconcileRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ego_reconciliations_total",
		Help: "Owner reconciliations performed by the revocation cascade.",
	})

	reconcileFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ego_reconciliation_failures_total",
		Help: "Owner reconciliations that failed and were logged as consistency risks.",
	})
)

// Revocation reason labels.
const (
	RevokeReasonRequest    = "request"
	RevokeReasonSuperseded = "superseded"
	RevokeReasonCascade    = "cascade"
)

// Init registers all metrics with the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		tokensIssued, tokensRevoked, reconcileRuns, reconcileFailures,
	)
}

// Handler exposes the prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

func TokenIssued()               { tokensIssued.Inc() }
func TokenRevoked(reason string) { tokensRevoked.WithLabelValues(reason).Inc() }
func ReconciliationRun()         { reconcileRuns.Inc() }
func ReconciliationFailed()      { reconcileFailures.Inc() }

// Instrument wraps an HTTP handler with request count/latency/in-flight
// metrics keyed by method, path and status.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		httpInFlight.Dec()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

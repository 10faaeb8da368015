// Package obs holds the Prometheus metrics for the identity service: generic
// HTTP request metrics plus domain counters for token and badge operations.
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
		Name: "bid_http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bid_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bid_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	tokensIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bid_tokens_issued_total",
			Help: "Access tokens issued, by kind (primary or subclient).",
		},
		[]string{"kind"},
	)

	tokenValidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bid_token_validations_total",
			Help: "Token validation attempts, by result.",
		},
		[]string{"result"},
	)

	badgerActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bid_badger_actions_total",
			Help: "Badge grant/revoke calls, by action and result.",
		},
		[]string{"action", "result"},
	)
)

// Init registers all metrics with the default registry. Call once at startup.
func Init() {
	prometheus.MustRegister(
		httpInFlight,
		httpRequestsTotal,
		httpRequestDuration,
		tokensIssued,
		tokenValidations,
		badgerActions,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// CountTokenIssued records an issued token; kind is "primary" or "subclient".
func CountTokenIssued(kind string) {
	tokensIssued.WithLabelValues(kind).Inc()
}

// CountTokenValidation records a validation attempt result
// ("ok", "invalid", "mismatch", "error").
func CountTokenValidation(result string) {
	tokenValidations.WithLabelValues(result).Inc()
}

// CountBadgerAction records a badge engine call result
// ("ok", "no-op", "forbidden", "unknown-target", "error").
func CountBadgerAction(action, result string) {
	badgerActions.WithLabelValues(action, result).Inc()
}

// Instrument wraps a handler with request count/latency/in-flight metrics.
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

package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Shared HTTP metrics.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Trust-layer metrics.
var (
	authAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trust_auth_attempts_total",
			Help: "Authentication attempts by method and outcome.",
		},
		[]string{"method", "outcome"},
	)

	riskBucketTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trust_risk_bucket_total",
			Help: "Per-request risk bucket assignments.",
		},
		[]string{"bucket"},
	)

	rateLimitDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trust_ratelimit_decisions_total",
			Help: "Adaptive rate limiter decisions.",
		},
		[]string{"outcome"},
	)

	reputationRunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "trust_reputation_run_duration_seconds",
		Help:    "Duration of reputation batch recomputation runs.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
	})

	reputationSubjects = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "trust_reputation_subjects",
		Help: "Subjects scored by the last reputation run.",
	})
)

// Init registers all gateway metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		authAttemptsTotal, riskBucketTotal, rateLimitDecisionsTotal,
		reputationRunDuration, reputationSubjects,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// CountAuthAttempt records one authentication attempt outcome.
func CountAuthAttempt(method, outcome string) {
	authAttemptsTotal.WithLabelValues(method, outcome).Inc()
}

// CountRiskBucket records a per-request risk bucket assignment.
func CountRiskBucket(bucket string) {
	riskBucketTotal.WithLabelValues(bucket).Inc()
}

// CountRateLimitDecision records an adaptive limiter decision: allowed,
// throttled or degraded (counter store unreachable).
func CountRateLimitDecision(outcome string) {
	rateLimitDecisionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveReputationRun records the duration and breadth of a batch run.
func ObserveReputationRun(d time.Duration, subjects int) {
	reputationRunDuration.Observe(d.Seconds())
	reputationSubjects.Set(float64(subjects))
}

// Instrument wraps a handler with RPS/latency/in-flight measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code for instrumentation.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Общие HTTP-метрики
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
			Buckets: prometheus.DefBuckets, // [0.005..10]
		},
		[]string{"method", "path", "status"},
	)
)

// Decision and indexer metrics.
var (
	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletauth_decisions_total",
			Help: "Authentication decisions by flow and result kind.",
		},
		[]string{"flow", "result"},
	)

	phaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "walletauth_phase_duration_seconds",
			Help:    "Duration of SSO decision phases in seconds.",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"phase"},
	)

	indexerRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletauth_indexer_requests_total",
			Help: "Chain indexer requests by endpoint and status.",
		},
		[]string{"endpoint", "status"},
	)
)

var initOnce sync.Once

// Init registers metrics in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			decisionsTotal, phaseDuration, indexerRequestsTotal,
		)
	})
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDecision counts one decision. result is "success" or an error kind.
func ObserveDecision(flow, result string) {
	decisionsTotal.WithLabelValues(flow, result).Inc()
}

// ObservePhase records how long one decision phase took.
func ObservePhase(phase string, d time.Duration) {
	phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// ObserveIndexer counts one indexer call. status is the HTTP status code or
// "error" when no response arrived.
func ObserveIndexer(endpoint, status string) {
	indexerRequestsTotal.WithLabelValues(endpoint, status).Inc()
}

// Instrument measures RPS, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
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

// CanonicalPath collapses path parameters so metric labels stay bounded.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) >= 4 && parts[0] == "v1" && parts[1] == "wallets" {
		switch {
		case len(parts) == 4 && parts[3] == "assets":
			return "/v1/wallets/:address/assets"
		case len(parts) == 5 && parts[3] == "assets" && parts[4] == "verify":
			return "/v1/wallets/:address/assets/verify"
		case len(parts) == 5 && parts[3] == "policies":
			return "/v1/wallets/:address/policies/:policy"
		}
	}
	if len(parts) == 4 && parts[0] == "v1" && parts[1] == "assets" && parts[3] == "sso" {
		return "/v1/assets/:unit/sso"
	}
	return p
}

// statusWriter - локальная копия, чтобы знать код ответа.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

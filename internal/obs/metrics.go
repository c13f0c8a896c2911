package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP server metrics.
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

// Media-server and provisioning metrics.
var (
	remoteRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaserver_requests_total",
			Help: "Requests issued against the remote media-server API.",
		},
		[]string{"method", "path", "status"},
	)

	joinsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "joins_total",
			Help: "Join attempts by outcome.",
		},
		[]string{"outcome"},
	)

	syncedUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "synced_users",
		Help: "Local user records after the last directory sync.",
	})
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		remoteRequestsTotal, joinsTotal, syncedUsers,
	)
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRemoteCall records one media-server API call. The path is
// canonicalised so account identifiers do not explode label cardinality.
func ObserveRemoteCall(method, path string, status int) {
	remoteRequestsTotal.WithLabelValues(method, CanonicalPath(path), strconv.Itoa(status)).Inc()
}

// CountJoin records a join attempt outcome ("ok", "rejected", "failed").
func CountJoin(outcome string) {
	joinsTotal.WithLabelValues(outcome).Inc()
}

// SetSyncedUsers records the local directory size after a sync pass.
func SetSyncedUsers(n int) {
	syncedUsers.Set(float64(n))
}

// Instrument wraps a handler with RPS/latency/in-flight measurement.
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

// CanonicalPath collapses per-user path segments (/Users/{id}/...) into a
// fixed label value.
func CanonicalPath(raw string) string {
	if raw == "" {
		return "/"
	}
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	parts := strings.Split(raw, "/")
	if len(parts) >= 3 && parts[1] == "Users" && parts[2] != "" && parts[2] != "New" {
		parts[2] = ":id"
		return strings.Join(parts, "/")
	}
	return raw
}

// statusWriter captures the response code for labelling.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Package metrics exposes Prometheus counters for the moderation flow.
package metrics

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	LoginSuccess = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "login_success_total",
		Help: "Total successful login attempts",
	}, []string{"method"})

	LoginFailure = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "login_failure_total",
		Help: "Total failed login attempts",
	}, []string{"method"})

	MessagesApproved = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "messages_approved_total",
		Help: "Total messages moved to the approved bucket",
	})

	MessagesRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "messages_rejected_total",
		Help: "Total messages moved to the rejected log",
	})

	WriteConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "write_conflicts_total",
		Help: "Total content writes rejected for a stale revision",
	})

	PartialWrites = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "partial_writes_total",
		Help: "Total moderation actions that persisted only the first of two documents",
	})
)

func init() {
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(LoginSuccess)
	prometheus.MustRegister(LoginFailure)
	prometheus.MustRegister(MessagesApproved)
	prometheus.MustRegister(MessagesRejected)
	prometheus.MustRegister(WriteConflicts)
	prometheus.MustRegister(PartialWrites)
}

// Handler serves the scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecordingWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecordingWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// InstrumentHandler records request timing and status codes.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &statusRecordingWriter{ResponseWriter: w, statusCode: 200}
		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		RequestDuration.WithLabelValues(r.Method, RoutePattern(r.URL.Path), fmt.Sprintf("%d", rw.statusCode)).Observe(duration)
	})
}

// RoutePattern collapses message ids and bucket names to placeholders
// so the route label stays bounded.
func RoutePattern(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 3 || parts[0] != "api" || parts[1] != "messages" {
		return path
	}
	switch {
	case len(parts) == 3:
		return "/api/messages/{bucket}"
	case len(parts) == 4 && (parts[3] == "approve" || parts[3] == "reject"):
		return "/api/messages/{id}/" + parts[3]
	case len(parts) == 4:
		return "/api/messages/{bucket}/{id}"
	}
	return "/api/messages/other"
}

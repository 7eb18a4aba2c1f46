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
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "slidecast",
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests received",
	}, []string{"method", "path", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "slidecast",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	connectedRoles = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "slidecast",
		Name:      "hub_connections",
		Help:      "Connected hub clients by role",
	}, []string{"role"})

	hubBroadcasts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "slidecast",
		Name:      "hub_broadcasts_total",
		Help:      "Messages fanned out by the hub, by frame type",
	}, []string{"type"})
)

// SetConnectedRoles records the current hub role-set sizes.
func SetConnectedRoles(displays, presenters, questionListeners int) {
	connectedRoles.WithLabelValues("display").Set(float64(displays))
	connectedRoles.WithLabelValues("presenter").Set(float64(presenters))
	connectedRoles.WithLabelValues("questions").Set(float64(questionListeners))
}

// CountBroadcast records one hub fan-out of the given frame type.
func CountBroadcast(frameType string) {
	hubBroadcasts.WithLabelValues(frameType).Inc()
}

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Middleware records request counts and latency. WebSocket upgrades bypass
// the recorder because the hijacked connection outlives the handler.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Upgrade") == "websocket" {
			next.ServeHTTP(w, r)
			return
		}
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		labels := prometheus.Labels{
			"method": r.Method,
			"path":   r.URL.Path,
			"status": strconv.Itoa(rec.status),
		}
		httpRequests.With(labels).Inc()
		httpLatency.With(labels).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	unmatched = "unmatched"
	// logStreamRoute lives as long as its sweep, so its latency says nothing.
	logStreamRoute = "/v1/sweeps/{id}/logs"
)

// Submission outcomes.
const (
	submitAccepted = "accepted"
	submitRejected = "rejected"
	submitError    = "error"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matk_http_requests_total",
			Help: "HTTP requests by route pattern and status class.",
		},
		[]string{"method", "route", "code"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "matk_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds, excluding log streams.",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"method", "route"},
	)

	sweepSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matk_api_sweep_submissions_total",
			Help: "Sweep submissions by model kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	logStreamsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "matk_api_log_streams_active",
		Help: "Open SSE log streams.",
	})
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, sweepSubmissions, logStreamsActive)
}

// metricsMiddleware counts requests per chi route pattern, so sweep ids never
// become label values.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := routePattern(r)
		httpRequestsTotal.WithLabelValues(r.Method, route, statusClass(ww.Status())).Inc()
		if route != logStreamRoute {
			httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		}
	})
}

func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return unmatched
}

// statusClass returns "2xx", "4xx", ... A handler that never wrote a header answered 200.
func statusClass(status int) string {
	if status == 0 {
		status = http.StatusOK
	}
	return strconv.Itoa(status/100) + "xx"
}

// submissionKind labels a create request by how its model is given.
func submissionKind(req createSweepRequest) string {
	switch {
	case req.Command != nil && req.Model == "":
		return "command"
	case req.Model != "" && req.Command == nil:
		return "registered"
	default:
		return "invalid"
	}
}

func metricsHandler() http.Handler {
	return promhttp.Handler()
}

package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Route labels. Every analysis kind has its own POST route; they share one
// route label and the kind goes in its own label.
const (
	routeUnmatched = "unmatched"
	routeSubmit    = "/api/{kind}"
	routeEvents    = "/api/jobs/{job_id}/events"
)

// Rejected submission reasons.
const (
	rejectInvalidJSON  = "invalid_json"
	rejectShuttingDown = "shutting_down"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthstat_http_requests_total",
			Help: "HTTP requests by route, analysis kind and response status.",
		},
		[]string{"route", "kind", "method", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "healthstat_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds, excluding event streams.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"route", "kind"},
	)

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "healthstat_http_requests_in_flight",
		Help: "HTTP requests being served, including open event streams.",
	})

	httpRejectedSubmits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthstat_http_rejected_submits_total",
			Help: "Job submissions refused before reaching the pool.",
		},
		[]string{"kind", "reason"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, httpInFlight, httpRejectedSubmits)
}

// metricsMiddleware counts every request under its route and analysis kind.
// Event streams stay open until the job finishes, so they are counted but
// kept out of the latency histogram.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route, kind := s.routeLabels(r)
		httpRequestsTotal.WithLabelValues(route, kind, r.Method, strconv.Itoa(status)).Inc()
		if route != routeEvents {
			httpRequestDuration.WithLabelValues(route, kind).Observe(time.Since(start).Seconds())
		}
	})
}

// routeLabels maps the matched chi pattern to metric labels. Only
// registered analysis routes carry a kind.
func (s *Server) routeLabels(r *http.Request) (route, kind string) {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil || rctx.RoutePattern() == "" {
		return routeUnmatched, ""
	}
	pattern := rctx.RoutePattern()
	if k, ok := strings.CutPrefix(pattern, "/api/"); ok && s.registry.Has(k) {
		return routeSubmit, k
	}
	return pattern, ""
}

// metricsHandler serves the default Prometheus registry.
func metricsHandler() http.Handler {
	return promhttp.Handler()
}

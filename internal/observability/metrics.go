package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	jobmetrics "github.com/sisco70/tabacchi/internal/jobs"
)

// Metrics owns the Prometheus registry shared by the HTTP server, the
// scanner bridge and the background jobs.
type Metrics struct {
	registry *prometheus.Registry
	handler  http.Handler

	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	inFlight prometheus.Gauge

	scanners prometheus.Gauge
	scans    *prometheus.CounterVec

	jobs *jobmetrics.Metrics
}

// NewMetrics builds a registry with process, HTTP, scanner and job collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabacchi_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"route", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tabacchi_http_request_duration_seconds",
			Help:    "HTTP request duration per route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tabacchi_http_requests_in_flight",
			Help: "HTTP requests being served.",
		}),
		scanners: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tabacchi_scanner_connections",
			Help: "Barcode scanner bridges currently connected.",
		}),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabacchi_scans_total",
			Help: "Scanned codes by effect.",
		}, []string{"effect"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.latency, m.inFlight, m.scanners, m.scans,
	)
	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	m.jobs = jobmetrics.NewMetrics(reg)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Jobs returns the background job collectors.
func (m *Metrics) Jobs() *jobmetrics.Metrics {
	if m == nil {
		return nil
	}
	return m.jobs
}

// ScannerConnected counts a bridge attaching to a reconciliation.
func (m *Metrics) ScannerConnected() {
	if m != nil {
		m.scanners.Inc()
	}
}

// ScannerDisconnected counts a bridge going away.
func (m *Metrics) ScannerDisconnected() {
	if m != nil {
		m.scanners.Dec()
	}
}

// ScanHandled counts one scanned code by the effect it had.
func (m *Metrics) ScanHandled(effect string) {
	if m != nil {
		m.scans.WithLabelValues(effect).Inc()
	}
}

// Middleware records count, latency and concurrency of every request. The
// route label is the chi pattern so path parameters do not explode it.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := routePattern(r)
		m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		m.latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return "unmatched"
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}
	return "unmatched"
}

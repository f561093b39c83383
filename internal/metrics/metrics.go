// Package metrics exposes Prometheus collectors for the ingestion service.
package metrics

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service level collectors. Tracker and hit collectors
// live with their packages and register on the same registry.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	browserEventsTotal         *prometheus.CounterVec
	navigationsTotal           *prometheus.CounterVec
	activeClients              prometheus.Gauge
	evictedClientsTotal        prometheus.Counter
}

// New creates the collectors on a fresh registry that also carries the Go
// and process collectors.
func New() (*Metrics, error) {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		),
		httpRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "route"},
		),
		browserEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maxscroll_browser_events_total",
				Help: "Browser events applied, labeled by event type.",
			},
			[]string{"type"},
		),
		navigationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maxscroll_navigations_total",
				Help: "Page navigations, labeled by site.",
			},
			[]string{"site"},
		),
		activeClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "maxscroll_active_clients",
				Help: "Clients currently holding a tracker.",
			},
		),
		evictedClientsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "maxscroll_evicted_clients_total",
				Help: "Clients torn down after being idle.",
			},
		),
	}
	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDurationSeconds,
		m.browserEventsTotal,
		m.navigationsTotal,
		m.activeClients,
		m.evictedClientsTotal,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return m, nil
}

// Registry returns the registry other packages register their collectors on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func (m *Metrics) ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveBrowserEvent counts one applied browser event.
func (m *Metrics) ObserveBrowserEvent(eventType string) {
	if m == nil {
		return
	}
	m.browserEventsTotal.WithLabelValues(eventType).Inc()
}

// ObserveNavigation counts a navigation to rawURL by host.
func (m *Metrics) ObserveNavigation(rawURL string) {
	if m == nil {
		return
	}
	m.navigationsTotal.WithLabelValues(SanitizeSite(rawURL)).Inc()
}

// SetActiveClients records the number of live clients.
func (m *Metrics) SetActiveClients(n int) {
	if m == nil {
		return
	}
	m.activeClients.Set(float64(n))
}

// ObserveEviction counts clients removed for inactivity.
func (m *Metrics) ObserveEviction(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.evictedClientsTotal.Add(float64(n))
}

// Middleware is a chi middleware that records HTTP request metrics.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			routePattern = rctx.RoutePattern()
		}
		if routePattern == "" {
			routePattern = "unknown"
		}

		m.ObserveHTTPRequest(r.Method, routePattern, ww.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

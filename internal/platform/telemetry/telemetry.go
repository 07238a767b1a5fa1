// Package telemetry exposes Prometheus metrics for the clinic API: HTTP
// request counts and latencies, authentication outcomes, ownership denials
// and patient data access. Each Metrics value owns its registry so tests and
// multiple servers in one process never collide on registration.
package telemetry

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/middleware"
)

// Config controls metric naming and which runtime collectors are installed.
type Config struct {
	Namespace      string
	ServiceName    string
	RuntimeMetrics bool
}

func (c *Config) applyDefaults() {
	if c.Namespace == "" {
		c.Namespace = "clinic"
	}
	if c.ServiceName == "" {
		c.ServiceName = "clinic-server"
	}
}

// Auth outcomes recorded by RecordAuth.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeInvalid = "invalid"
)

// durationBuckets are the HTTP latency buckets in seconds.
var durationBuckets = []float64{
	0.005, 0.010, 0.025, 0.050, 0.100, 0.250, 0.500, 1.0, 2.5, 5.0,
}

// Metrics holds every collector the server exports.
type Metrics struct {
	cfg      Config
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	activeRequests  prometheus.Gauge
	authAttempts    *prometheus.CounterVec
	accessDenials   *prometheus.CounterVec
	phiAccess       *prometheus.CounterVec
}

// NewMetrics builds a registry and registers all collectors on it.
func NewMetrics(cfg Config) *Metrics {
	cfg.applyDefaults()
	constLabels := prometheus.Labels{"service": cfg.ServiceName}

	m := &Metrics{
		cfg:      cfg,
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests by method, route and status code.",
			ConstLabels: constLabels,
		}, []string{"method", "route", "status_code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Name:        "http_request_duration_seconds",
			Help:        "Duration of HTTP requests in seconds.",
			Buckets:     durationBuckets,
			ConstLabels: constLabels,
		}, []string{"method", "route"}),
		activeRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Name:        "http_active_requests",
			Help:        "Number of HTTP requests currently being served.",
			ConstLabels: constLabels,
		}),
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "auth_attempts_total",
			Help:        "Authentication attempts by operation and outcome.",
			ConstLabels: constLabels,
		}, []string{"operation", "outcome"}),
		accessDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "ownership_denials_total",
			Help:        "Requests rejected because the caller does not own the patient.",
			ConstLabels: constLabels,
		}, []string{"resource", "operation"}),
		phiAccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "phi_access_total",
			Help:        "Audited accesses to patient data by resource, action and status code.",
			ConstLabels: constLabels,
		}, []string{"resource_type", "action", "status_code"}),
	}

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.activeRequests,
		m.authAttempts,
		m.accessDenials,
		m.phiAccess,
	)
	if cfg.RuntimeMetrics {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// Registry returns the registry backing this Metrics value.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterGaugeFunc exports a gauge whose value is read from fn at scrape time.
func (m *Metrics) RegisterGaugeFunc(name, help string, fn func() float64) error {
	return m.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   m.cfg.Namespace,
		Name:        name,
		Help:        help,
		ConstLabels: prometheus.Labels{"service": m.cfg.ServiceName},
	}, fn))
}

// RecordAuth counts one register, login, refresh or logout attempt.
func (m *Metrics) RecordAuth(operation, outcome string) {
	m.authAttempts.WithLabelValues(operation, outcome).Inc()
}

// RecordDenial counts one ownership rejection.
func (m *Metrics) RecordDenial(resource, operation string) {
	m.accessDenials.WithLabelValues(resource, operation).Inc()
}

// RecordAccess implements middleware.AuditRecorder.
func (m *Metrics) RecordAccess(entry middleware.AuditEntry) error {
	m.phiAccess.WithLabelValues(entry.ResourceType, entry.Action, strconv.Itoa(entry.StatusCode)).Inc()
	return nil
}

// Middleware records request count, latency and in-flight requests. Routes
// are labelled by their pattern so ids do not explode cardinality.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.activeRequests.Inc()
			defer m.activeRequests.Dec()

			start := time.Now()
			err := next(c)
			elapsed := time.Since(start).Seconds()

			status := c.Response().Status
			if err != nil && !c.Response().Committed {
				status = statusFromError(err)
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method

			m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			m.requestDuration.WithLabelValues(method, route).Observe(elapsed)
			return err
		}
	}
}

// Handler serves the registry in the Prometheus text exposition format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		Registry: m.registry,
	}))
}

func statusFromError(err error) int {
	if he, ok := err.(*echo.HTTPError); ok {
		return he.Code
	}
	return apperr.StatusFor(apperr.KindOf(err))
}

package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bloodlab/bloodlab/internal/platform/apperr"
)

const namespace = "bloodlab"

// Metrics owns every collector the server exports. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	reportsCreated   prometheus.Counter
	reportsUpdated   prometheus.Counter
	reportsDeleted   prometheus.Counter
	reportTests      prometheus.Counter
	pdfRendered      prometheus.Counter
	pdfDuration      prometheus.Histogram
	authAttempts     *prometheus.CounterVec
	dashboardLookups *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		httpRequestsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		}),
		reportsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_created_total",
			Help:      "Blood reports created",
		}),
		reportsUpdated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_updated_total",
			Help:      "Blood reports updated",
		}),
		reportsDeleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_deleted_total",
			Help:      "Blood reports soft-deleted",
		}),
		reportTests: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_tests_written_total",
			Help:      "Test line items inserted by report create and update",
		}),
		pdfRendered: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_pdf_rendered_total",
			Help:      "Report PDFs rendered",
		}),
		pdfDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_pdf_render_seconds",
			Help:      "Time spent rendering a report PDF",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		}),
		authAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_attempts_total",
			Help:      "Login and registration attempts by outcome",
		}, []string{"action", "outcome"}),
		dashboardLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dashboard_stats_lookups_total",
			Help:      "Dashboard stats lookups by cache result",
		}, []string{"result"}),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RegisterPool exports connection pool gauges read at scrape time.
func (m *Metrics) RegisterPool(pool *pgxpool.Pool) {
	gauge := func(name, help string, fn func(*pgxpool.Stat) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      name,
			Help:      help,
		}, func() float64 { return fn(pool.Stat()) })
	}
	m.registry.MustRegister(
		gauge("connections_total", "Open connections", func(s *pgxpool.Stat) float64 { return float64(s.TotalConns()) }),
		gauge("connections_acquired", "Connections in use", func(s *pgxpool.Stat) float64 { return float64(s.AcquiredConns()) }),
		gauge("connections_idle", "Idle connections", func(s *pgxpool.Stat) float64 { return float64(s.IdleConns()) }),
	)
}

// Middleware records request count and latency labeled by route template,
// so /api/reports/:id is one series regardless of id.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			start := time.Now()
			m.httpRequestsInFlight.Inc()
			defer m.httpRequestsInFlight.Dec()

			err := next(c)

			status := c.Response().Status
			if err != nil && !c.Response().Committed {
				status = statusOf(err)
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}

			m.httpRequestsTotal.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).Inc()
			m.httpRequestDuration.WithLabelValues(c.Request().Method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

func statusOf(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae.HTTPStatus
	}
	return http.StatusInternalServerError
}

func (m *Metrics) ReportCreated(tests int) {
	if m == nil {
		return
	}
	m.reportsCreated.Inc()
	m.reportTests.Add(float64(tests))
}

func (m *Metrics) ReportUpdated(tests int) {
	if m == nil {
		return
	}
	m.reportsUpdated.Inc()
	m.reportTests.Add(float64(tests))
}

func (m *Metrics) ReportsDeleted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.reportsDeleted.Add(float64(n))
}

func (m *Metrics) PDFRendered(d time.Duration) {
	if m == nil {
		return
	}
	m.pdfRendered.Inc()
	m.pdfDuration.Observe(d.Seconds())
}

// AuthAttempt records action ("login", "register") with outcome ("success", "failure").
func (m *Metrics) AuthAttempt(action, outcome string) {
	if m == nil {
		return
	}
	m.authAttempts.WithLabelValues(action, outcome).Inc()
}

// DashboardLookup records result ("hit", "miss", "error") for the stats cache.
func (m *Metrics) DashboardLookup(result string) {
	if m == nil {
		return
	}
	m.dashboardLookups.WithLabelValues(result).Inc()
}

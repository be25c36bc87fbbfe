package telemetry

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ehr/hms-scheduler/internal/platform/apperr"
	"github.com/ehr/hms-scheduler/internal/platform/lock"
)

const namespace = "hms"

// Collector owns the service's Prometheus metrics. A nil *Collector is a
// valid no-op so domain services can run without metrics in tests.
type Collector struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	InFlight        prometheus.Gauge

	AllocationsTotal *prometheus.CounterVec
	CriticalVitals   *prometheus.CounterVec
	Transitions      *prometheus.CounterVec
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "route"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Requests currently being served.",
		}),
		AllocationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "allocations_total",
			Help:      "Allocation commands by command and outcome (ok or error kind).",
		}, []string{"command", "outcome"}),
		CriticalVitals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "nursing",
			Name:      "critical_vitals_total",
			Help:      "Vital readings classified CRITICAL, by vital type.",
		}, []string{"vital"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Lifecycle transitions applied, by entity and target status.",
		}, []string{"entity", "status"}),
	}
	reg.MustRegister(
		c.RequestsTotal, c.RequestDuration, c.InFlight,
		c.AllocationsTotal, c.CriticalVitals, c.Transitions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Outcome labels an allocation result.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, lock.ErrTimeout):
		return "lock_timeout"
	}
	if k := apperr.KindOf(err); k != "" {
		return string(k)
	}
	return "error"
}

// Allocation counts one allocation command.
func (c *Collector) Allocation(command string, err error) {
	if c == nil {
		return
	}
	c.AllocationsTotal.WithLabelValues(command, Outcome(err)).Inc()
}

// CriticalVital counts one critical vital sign.
func (c *Collector) CriticalVital(vital string) {
	if c == nil {
		return
	}
	c.CriticalVitals.WithLabelValues(vital).Inc()
}

// Transition counts one applied lifecycle transition.
func (c *Collector) Transition(entity, status string) {
	if c == nil {
		return
	}
	c.Transitions.WithLabelValues(entity, status).Inc()
}

// Registry exposes the underlying registry for tests and extra collectors.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// HTTPMiddleware records request counts and latency by route pattern.
func (c *Collector) HTTPMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ec echo.Context) error {
			c.InFlight.Inc()
			defer c.InFlight.Dec()

			start := time.Now()
			err := next(ec)

			route := ec.Path()
			if route == "" {
				route = "unmatched"
			}
			status := ec.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			} else if err != nil {
				status = apperr.HTTPStatus(apperr.KindOf(err))
			}
			method := ec.Request().Method
			c.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			c.RequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

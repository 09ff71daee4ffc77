// Package metrics provides Prometheus metrics collection for the dispatcher,
// the patch engine, the transports and the config holder.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics. It implements runtime.Recorder.
type Collector struct {
	// Dispatch metrics
	DispatchTotal    *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec

	// Patch metrics
	PatchOperations *prometheus.CounterVec

	// Transport metrics
	RequestsInFlight prometheus.Gauge
	SocketsOpen      prometheus.Gauge

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New creates a collector registered with the default Prometheus registry.
func New() *Collector {
	return newCollector(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewWithRegistry creates a collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg *prometheus.Registry) *Collector {
	return newCollector(reg, reg)
}

func newCollector(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		DispatchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "urpc",
				Name:      "dispatch_total",
				Help:      "Total number of dispatched operations",
			},
			[]string{"op", "status"},
		),
		DispatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "urpc",
				Name:      "dispatch_duration_seconds",
				Help:      "Dispatch duration in seconds",
				Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"op"},
		),
		PatchOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "urpc",
				Name:      "patch_operations_total",
				Help:      "Total number of applied patch operations",
			},
			[]string{"op"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "urpc",
				Name:      "requests_in_flight",
				Help:      "Number of HTTP requests currently being processed",
			},
		),
		SocketsOpen: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "urpc",
				Name:      "websocket_connections",
				Help:      "Number of open WebSocket connections",
			},
		),
		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "urpc",
				Name:      "config_reloads_total",
				Help:      "Total number of configuration reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "urpc",
				Name:      "config_reload_errors_total",
				Help:      "Total number of failed configuration reloads",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "urpc",
				Name:      "config_last_reload_timestamp",
				Help:      "Unix timestamp of the last successful configuration reload",
			},
		),
		gatherer: gatherer,
	}
}

// ObserveDispatch records one dispatch outcome.
func (c *Collector) ObserveDispatch(op, status string, duration time.Duration) {
	c.DispatchTotal.WithLabelValues(op, status).Inc()
	c.DispatchDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// PatchOperation counts one applied patch operation.
func (c *Collector) PatchOperation(op string) {
	c.PatchOperations.WithLabelValues(op).Inc()
}

// ConfigReloaded records a reload attempt.
func (c *Collector) ConfigReloaded(err error) {
	if err != nil {
		c.ConfigReloadErrors.Inc()
		return
	}
	c.ConfigReloads.Inc()
	c.ConfigLastReload.SetToCurrentTime()
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// InFlight wraps next so RequestsInFlight tracks concurrent requests.
func (c *Collector) InFlight(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.RequestsInFlight.Inc()
		defer c.RequestsInFlight.Dec()
		next.ServeHTTP(w, r)
	})
}

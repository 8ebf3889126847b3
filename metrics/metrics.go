// Package metrics exposes Prometheus metrics for imports, repairs, index
// rebuilds and scheduler ticks.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"beatvault/catalog"
	"beatvault/ingest"
	"beatvault/repair"
	"beatvault/scheduler"
)

// Namespace prefixes every metric.
const Namespace = "beatvault"

// Metrics holds the service's collectors.
type Metrics struct {
	ImportItemsTotal   *prometheus.CounterVec
	RepairObjectsTotal *prometheus.CounterVec
	RebuildsTotal      *prometheus.CounterVec
	IndexTracks        prometheus.Gauge
	TicksTotal         *prometheus.CounterVec
	TickDuration       prometheus.Histogram
	HTTPRequestsTotal  *prometheus.CounterVec
}

// New registers all collectors on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ImportItemsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "ingest",
			Name:      "items_total",
			Help:      "Collection items processed, by result",
		}, []string{"result"}),
		RepairObjectsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "repair",
			Name:      "objects_total",
			Help:      "Metadata objects visited by the URL repair, by result",
		}, []string{"result"}),
		RebuildsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "catalog",
			Name:      "rebuilds_total",
			Help:      "Index rebuilds, by outcome",
		}, []string{"outcome"}),
		IndexTracks: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "catalog",
			Name:      "index_tracks",
			Help:      "Track count written by the last successful rebuild",
		}),
		TicksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "scheduler",
			Name:      "ticks_total",
			Help:      "Scheduler ticks, by outcome",
		}, []string{"outcome"}),
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "scheduler",
			Name:      "tick_duration_seconds",
			Help:      "Duration of ticks that ran",
			Buckets:   []float64{1, 10, 60, 300, 900, 1800, 3600, 7200},
		}),
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests, by route and status",
		}, []string{"method", "route", "status"}),
	}
}

// NewRegistry returns a registry carrying the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler serves reg in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveBatch(res ingest.BatchResult) {
	m.ImportItemsTotal.WithLabelValues("imported").Add(float64(res.Imported))
	m.ImportItemsTotal.WithLabelValues("failed").Add(float64(res.Failed))
	m.ImportItemsTotal.WithLabelValues("skipped").Add(float64(res.Skipped))
}

func (m *Metrics) ObserveRepair(sum repair.Summary) {
	m.RepairObjectsTotal.WithLabelValues("updated").Add(float64(sum.Updated))
	m.RepairObjectsTotal.WithLabelValues("failed").Add(float64(sum.Failed))
	m.RepairObjectsTotal.WithLabelValues("skipped").Add(float64(sum.Skipped))
}

func (m *Metrics) ObserveRebuild(report catalog.RebuildReport, err error) {
	switch {
	case errors.Is(err, catalog.ErrEmptyListing):
		m.RebuildsTotal.WithLabelValues("empty").Inc()
	case err != nil:
		m.RebuildsTotal.WithLabelValues("error").Inc()
	default:
		m.RebuildsTotal.WithLabelValues("ok").Inc()
		m.IndexTracks.Set(float64(report.TrackCount))
	}
}

func (m *Metrics) ObserveTick(report scheduler.TickReport, took time.Duration, err error) {
	switch {
	case err != nil:
		m.TicksTotal.WithLabelValues("error").Inc()
	case !report.Ran:
		m.TicksTotal.WithLabelValues("skipped").Inc()
		return
	default:
		m.TicksTotal.WithLabelValues("ran").Inc()
	}
	m.TickDuration.Observe(took.Seconds())
	m.ImportItemsTotal.WithLabelValues("imported").Add(float64(report.Imported))
	m.ImportItemsTotal.WithLabelValues("failed").Add(float64(report.Failed))
	m.ImportItemsTotal.WithLabelValues("skipped").Add(float64(report.Skipped))
}

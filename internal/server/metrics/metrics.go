// Package metrics holds the Prometheus collectors of the lease server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "leasekeeper"

// Collector is a prometheus.Collector for occupancy, heartbeat, sync and
// HTTP metrics.
type Collector struct {
	occupyOutcomes  *prometheus.CounterVec
	leasesSwept     prometheus.Counter
	heartbeats      *prometheus.CounterVec
	syncWrites      *prometheus.CounterVec
	syncConflicts   prometheus.Counter
	archiveFailures prometheus.Counter
	requestDuration *prometheus.HistogramVec
}

func NewCollector() *Collector {
	return &Collector{
		occupyOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "occupy_total",
				Help:      "Occupy requests by outcome.",
			}, []string{"outcome"},
		),
		leasesSwept: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "leases_swept_total",
				Help:      "Stale leases removed by heartbeat sweeps.",
			},
		),
		heartbeats: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "heartbeats_total",
				Help:      "Heartbeats by caller role.",
			}, []string{"role"},
		),
		syncWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "sync_writes_total",
				Help:      "Successful sync document writes by kind.",
			}, []string{"kind"},
		),
		syncConflicts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "sync_conflicts_total",
				Help:      "Sync writes rejected for a stale base version.",
			},
		),
		archiveFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "archive_failures_total",
				Help:      "Failed uploads of sync snapshots to object storage.",
			},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by route.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method", "code"},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.occupyOutcomes.Describe(ch)
	c.leasesSwept.Describe(ch)
	c.heartbeats.Describe(ch)
	c.syncWrites.Describe(ch)
	c.syncConflicts.Describe(ch)
	c.archiveFailures.Describe(ch)
	c.requestDuration.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.occupyOutcomes.Collect(ch)
	c.leasesSwept.Collect(ch)
	c.heartbeats.Collect(ch)
	c.syncWrites.Collect(ch)
	c.syncConflicts.Collect(ch)
	c.archiveFailures.Collect(ch)
	c.requestDuration.Collect(ch)
}

func (c *Collector) OccupyGranted() { c.occupyOutcomes.WithLabelValues("granted").Inc() }
func (c *Collector) OccupyDenied()  { c.occupyOutcomes.WithLabelValues("denied").Inc() }

func (c *Collector) LeasesSwept(n int64) {
	if n > 0 {
		c.leasesSwept.Add(float64(n))
	}
}

func (c *Collector) Heartbeat(role string) { c.heartbeats.WithLabelValues(role).Inc() }

func (c *Collector) SyncWrite(kind string) { c.syncWrites.WithLabelValues(kind).Inc() }
func (c *Collector) SyncConflict()         { c.syncConflicts.Inc() }
func (c *Collector) ArchiveFailure()       { c.archiveFailures.Inc() }

func (c *Collector) ObserveRequest(route, method, code string, seconds float64) {
	c.requestDuration.WithLabelValues(route, method, code).Observe(seconds)
}

// NewRegistry returns a dedicated registry holding c plus the Go runtime
// and process collectors.
func NewRegistry(c *Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		c,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the registry in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

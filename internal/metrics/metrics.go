// Package metrics exposes the Prometheus collectors served on /metrics:
// one struct of pre-registered collectors, updated through narrow Record*
// and Set* methods rather than handing raw prometheus types to callers.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_model/go"
)

// cacheTypes enumerates the cache_type label values summed into the hit
// ratio.
var cacheTypes = []string{"asset"}

// Registry holds every collector the gateway exports.
type Registry struct {
	reg *prometheus.Registry

	InspectDuration *prometheus.HistogramVec
	InspectTotal    *prometheus.CounterVec

	CacheHitRatio prometheus.Gauge
	CacheHits     *prometheus.CounterVec
	CacheMisses   *prometheus.CounterVec

	QueueDepth prometheus.Gauge
	ReadyBots  prometheus.Gauge
	BusyBots   prometheus.Gauge
}

// NewRegistry builds a fresh prometheus.Registry (never the global default,
// so tests never collide on collector names) and registers every collector
// against it.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		InspectDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "inspectgate_inspect_duration_seconds",
				Help:    "End-to-end inspect request duration in seconds.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
			},
			[]string{"outcome"},
		),
		InspectTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inspectgate_inspect_requests_total",
				Help: "Total inspect requests by outcome.",
			},
			[]string{"outcome"},
		),
		CacheHitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "inspectgate_cache_hit_ratio",
			Help: "Current cache hit ratio (0.0 to 1.0).",
		}),
		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inspectgate_cache_hits_total",
				Help: "Total number of cache hits by cache type.",
			},
			[]string{"cache_type"},
		),
		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inspectgate_cache_misses_total",
				Help: "Total number of cache misses by cache type.",
			},
			[]string{"cache_type"},
		),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "inspectgate_admission_queue_depth",
			Help: "Current number of distinct in-flight admitted asset ids.",
		}),
		ReadyBots: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "inspectgate_bots_ready",
			Help: "Number of bots currently in the READY state.",
		}),
		BusyBots: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "inspectgate_bots_busy",
			Help: "Number of bots currently in the BUSY state.",
		}),
	}

	reg.MustRegister(
		r.InspectDuration, r.InspectTotal,
		r.CacheHitRatio, r.CacheHits, r.CacheMisses,
		r.QueueDepth, r.ReadyBots, r.BusyBots,
	)
	return r
}

// RecordInspect observes one completed (or failed) inspect request.
func (r *Registry) RecordInspect(outcome string, d time.Duration) {
	r.InspectDuration.WithLabelValues(outcome).Observe(d.Seconds())
	r.InspectTotal.WithLabelValues(outcome).Inc()
}

// RecordCacheHit records a cache hit for the specified cache type.
func (r *Registry) RecordCacheHit(cacheType string) {
	r.CacheHits.WithLabelValues(cacheType).Inc()
	r.updateCacheHitRatio()
}

// RecordCacheMiss records a cache miss for the specified cache type.
func (r *Registry) RecordCacheMiss(cacheType string) {
	r.CacheMisses.WithLabelValues(cacheType).Inc()
	r.updateCacheHitRatio()
}

// updateCacheHitRatio recomputes the derived ratio gauge from the hit and
// miss counters' current values.
func (r *Registry) updateCacheHitRatio() {
	hitMetric := &io_prometheus_client.Metric{}
	missMetric := &io_prometheus_client.Metric{}

	totalHits := 0.0
	totalMisses := 0.0
	for _, cacheType := range cacheTypes {
		if hitCounter, err := r.CacheHits.GetMetricWithLabelValues(cacheType); err == nil {
			if err := hitCounter.Write(hitMetric); err == nil {
				totalHits += hitMetric.GetCounter().GetValue()
			}
		}
		if missCounter, err := r.CacheMisses.GetMetricWithLabelValues(cacheType); err == nil {
			if err := missCounter.Write(missMetric); err == nil {
				totalMisses += missMetric.GetCounter().GetValue()
			}
		}
	}

	if total := totalHits + totalMisses; total > 0 {
		r.CacheHitRatio.Set(totalHits / total)
	}
}

// SetPoolGauges refreshes the bot-pool and admission-set gauges from the
// latest aggregate snapshot.
func (r *Registry) SetPoolGauges(ready, busy, queueDepth int) {
	r.ReadyBots.Set(float64(ready))
	r.BusyBots.Set(float64(busy))
	r.QueueDepth.Set(float64(queueDepth))
}

// Handler returns the standard Prometheus scrape handler.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

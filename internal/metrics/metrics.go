// Package metrics exports internal/topictailer.Stats and
// internal/datacache.Stats as Prometheus metrics, one labeled series per
// worker. Grounded on x-stp-rxtls's internal/metrics package
// (promauto-registered Vec metrics against a private registry, a
// promhttp handler exposed over the admin HTTP surface).
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AlexxNica/RocketSpeed/internal/datacache"
	pebblestore "github.com/AlexxNica/RocketSpeed/internal/storage/pebble"
	"github.com/AlexxNica/RocketSpeed/internal/topictailer"
)

// Registry owns the Control Tower's Prometheus collectors. One Registry
// is shared across every worker; callers label updates by worker id.
type Registry struct {
	reg *prometheus.Registry

	recordsDelivered    *prometheus.CounterVec
	gapsDelivered       *prometheus.CounterVec
	bumpsDelivered      *prometheus.CounterVec
	cacheReentries      *prometheus.CounterVec
	backpressureApplied *prometheus.CounterVec
	backpressureLifted  *prometheus.CounterVec

	cacheHits           *prometheus.CounterVec
	cacheMisses         *prometheus.CounterVec
	cacheInserts        *prometheus.CounterVec
	bloomHits           *prometheus.CounterVec
	bloomMisses         *prometheus.CounterVec
	bloomInserts        *prometheus.CounterVec
	bloomFalsePositives *prometheus.CounterVec

	cacheUsageBytes *prometheus.GaugeVec

	pebbleWriteSeconds *prometheus.HistogramVec
	pebbleReadSeconds  *prometheus.HistogramVec
	pebbleBatchSeconds *prometheus.HistogramVec
	pebbleWriteBytes   *prometheus.CounterVec
	pebbleReadBytes    *prometheus.CounterVec
	pebbleBatchBytes   *prometheus.CounterVec
}

// New builds and registers the Control Tower's metric collectors against
// a fresh, private registry (never the global default — avoids collisions
// when a process embeds multiple independently-tested Registries).
func New() *Registry {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Registry{
		reg: reg,
		recordsDelivered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tower_records_delivered_total",
			Help: "Total number of record deliveries sent to subscribers.",
		}, []string{"worker"}),
		gapsDelivered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tower_gaps_delivered_total",
			Help: "Total number of gap notifications sent to subscribers.",
		}, []string{"worker"}),
		bumpsDelivered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tower_bumps_delivered_total",
			Help: "Total number of lagging-topic bump notifications sent.",
		}, []string{"worker"}),
		cacheReentries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tower_cache_reentries_total",
			Help: "Subscriptions that returned to cache-backed reading after being on a live reader.",
		}, []string{"worker"}),
		backpressureApplied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tower_backpressure_applied_total",
			Help: "Number of times a source was paused because a sink reported full.",
		}, []string{"worker"}),
		backpressureLifted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tower_backpressure_lifted_total",
			Help: "Number of times a paused source was resumed.",
		}, []string{"worker"}),
		cacheHits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tower_cache_hits_total",
			Help: "DataCache reads satisfied from a cached block.",
		}, []string{"worker"}),
		cacheMisses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tower_cache_misses_total",
			Help: "DataCache reads that found no cached data.",
		}, []string{"worker"}),
		cacheInserts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tower_cache_inserts_total",
			Help: "Records inserted into the DataCache.",
		}, []string{"worker"}),
		bloomHits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tower_bloom_hits_total",
			Help: "Block Bloom filter checks that reported the topic may be present.",
		}, []string{"worker"}),
		bloomMisses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tower_bloom_misses_total",
			Help: "Block Bloom filter checks that reported the topic is definitely absent.",
		}, []string{"worker"}),
		bloomInserts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tower_bloom_inserts_total",
			Help: "Topics added to a block Bloom filter.",
		}, []string{"worker"}),
		bloomFalsePositives: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tower_bloom_false_positives_total",
			Help: "Bloom filter hits that a block scan then found had no matching record.",
		}, []string{"worker"}),
		cacheUsageBytes: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tower_cache_usage_bytes",
			Help: "Current DataCache byte usage.",
		}, []string{"worker"}),
		pebbleWriteSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name: "tower_pebble_write_seconds",
			Help: "Latency of individual Pebble point writes.",
		}, []string{"db"}),
		pebbleReadSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name: "tower_pebble_read_seconds",
			Help: "Latency of individual Pebble point reads.",
		}, []string{"db"}),
		pebbleBatchSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name: "tower_pebble_batch_commit_seconds",
			Help: "Latency of Pebble batch commits.",
		}, []string{"db"}),
		pebbleWriteBytes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tower_pebble_write_bytes_total",
			Help: "Total bytes written via Pebble point writes.",
		}, []string{"db"}),
		pebbleReadBytes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tower_pebble_read_bytes_total",
			Help: "Total bytes returned via Pebble point reads.",
		}, []string{"db"}),
		pebbleBatchBytes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tower_pebble_batch_commit_bytes_total",
			Help: "Total bytes committed via Pebble batches.",
		}, []string{"db"}),
	}
}

// pebbleHook adapts internal/storage/pebble's MetricsHook interface to this
// registry's Prometheus collectors, labeled by which Pebble instance
// recorded the observation (the namespace metadata store, or a given log
// storage shard).
type pebbleHook struct {
	db string
	r  *Registry
}

// NewPebbleHook returns a pebblestore.MetricsHook that records Open's
// read/write/batch-commit observations against this registry, labeled db.
func (r *Registry) NewPebbleHook(db string) pebblestore.MetricsHook {
	return pebbleHook{db: db, r: r}
}

func (h pebbleHook) ObserveWrite(elapsed time.Duration, bytes int) {
	h.r.pebbleWriteSeconds.WithLabelValues(h.db).Observe(elapsed.Seconds())
	h.r.pebbleWriteBytes.WithLabelValues(h.db).Add(float64(bytes))
}

func (h pebbleHook) ObserveRead(elapsed time.Duration, bytes int) {
	h.r.pebbleReadSeconds.WithLabelValues(h.db).Observe(elapsed.Seconds())
	h.r.pebbleReadBytes.WithLabelValues(h.db).Add(float64(bytes))
}

func (h pebbleHook) ObserveBatchCommit(elapsed time.Duration, numOps, bytes int) {
	h.r.pebbleBatchSeconds.WithLabelValues(h.db).Observe(elapsed.Seconds())
	h.r.pebbleBatchBytes.WithLabelValues(h.db).Add(float64(bytes))
}

// Observe records a Tailer statistics snapshot under the given worker
// label. prev is the snapshot passed as cur on the previous call (the zero
// value on the first call): for each cumulative counter in
// topictailer.Stats/datacache.Stats, Observe adds cur-prev to the matching
// Prometheus counter when cur exceeds prev, and adds nothing otherwise.
func (r *Registry) Observe(worker string, prev, cur topictailer.Stats) {
	addCounter(r.recordsDelivered.WithLabelValues(worker), prev.RecordsDelivered, cur.RecordsDelivered)
	addCounter(r.gapsDelivered.WithLabelValues(worker), prev.GapsDelivered, cur.GapsDelivered)
	addCounter(r.bumpsDelivered.WithLabelValues(worker), prev.BumpsDelivered, cur.BumpsDelivered)
	addCounter(r.cacheReentries.WithLabelValues(worker), prev.CacheReentries, cur.CacheReentries)
	addCounter(r.backpressureApplied.WithLabelValues(worker), prev.BackpressureApplied, cur.BackpressureApplied)
	addCounter(r.backpressureLifted.WithLabelValues(worker), prev.BackpressureLifted, cur.BackpressureLifted)

	r.observeCache(worker, prev.Cache, cur.Cache)
}

func (r *Registry) observeCache(worker string, prev, cur datacache.Stats) {
	addCounter(r.cacheHits.WithLabelValues(worker), prev.CacheHits, cur.CacheHits)
	addCounter(r.cacheMisses.WithLabelValues(worker), prev.CacheMisses, cur.CacheMisses)
	addCounter(r.cacheInserts.WithLabelValues(worker), prev.CacheInserts, cur.CacheInserts)
	addCounter(r.bloomHits.WithLabelValues(worker), prev.BloomHits, cur.BloomHits)
	addCounter(r.bloomMisses.WithLabelValues(worker), prev.BloomMisses, cur.BloomMisses)
	addCounter(r.bloomInserts.WithLabelValues(worker), prev.BloomInserts, cur.BloomInserts)
	addCounter(r.bloomFalsePositives.WithLabelValues(worker), prev.BloomFalsePositives, cur.BloomFalsePositives)
}

// SetCacheUsage records the current cache byte usage for a worker.
func (r *Registry) SetCacheUsage(worker string, bytes int) {
	r.cacheUsageBytes.WithLabelValues(worker).Set(float64(bytes))
}

func addCounter(c prometheus.Counter, prev, cur uint64) {
	if cur > prev {
		c.Add(float64(cur - prev))
	}
}

// Handler returns the promhttp handler serving this registry's metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Package metrics publishes Prometheus metrics for the cache engine and
// the pending operation queue.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Lookup outcomes for cache strategy instrumentation.
const (
	LookupHit   = "hit"
	LookupMiss  = "miss"
	LookupError = "error"
)

// Replay outcomes for queue instrumentation.
const (
	ReplayDelivered = "delivered"
	ReplayFailed    = "failed"
)

// Recorder publishes Prometheus metrics for daemon activity. When reg is
// nil a dedicated registry is created so recorders can coexist in tests.
type Recorder struct {
	gatherer prometheus.Gatherer
	handler  http.Handler

	cacheLookups  *prometheus.CounterVec
	cacheStores   *prometheus.CounterVec
	replayOps     *prometheus.CounterVec
	outboxDepth   prometheus.Gauge
	proxyRequests *prometheus.CounterVec
}

// NewRecorder constructs a Prometheus-backed Recorder.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "satchel",
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Cache lookups by partition kind and outcome.",
	}, []string{"partition", "outcome"})

	cacheStores := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "satchel",
		Subsystem: "cache",
		Name:      "stores_total",
		Help:      "Response snapshots persisted by partition kind.",
	}, []string{"partition"})

	replayOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "satchel",
		Subsystem: "outbox",
		Name:      "replay_operations_total",
		Help:      "Replayed pending operations by outcome.",
	}, []string{"outcome"})

	outboxDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "satchel",
		Subsystem: "outbox",
		Name:      "depth",
		Help:      "Number of pending operations awaiting replay.",
	})

	proxyRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "satchel",
		Subsystem: "proxy",
		Name:      "requests_total",
		Help:      "Intercepted requests by strategy.",
	}, []string{"strategy"})

	reg.MustRegister(cacheLookups, cacheStores, replayOps, outboxDepth, proxyRequests)

	return &Recorder{
		gatherer:      reg,
		handler:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		cacheLookups:  cacheLookups,
		cacheStores:   cacheStores,
		replayOps:     replayOps,
		outboxDepth:   outboxDepth,
		proxyRequests: proxyRequests,
	}
}

// Handler returns the /metrics HTTP handler.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return r.handler
}

// ObserveCacheLookup records a lookup against a partition kind.
func (r *Recorder) ObserveCacheLookup(partition, outcome string) {
	if r == nil {
		return
	}
	r.cacheLookups.WithLabelValues(partition, outcome).Inc()
}

// ObserveCacheStore records a persisted response snapshot.
func (r *Recorder) ObserveCacheStore(partition string) {
	if r == nil {
		return
	}
	r.cacheStores.WithLabelValues(partition).Inc()
}

// ObserveReplay records the outcome of one replayed operation.
func (r *Recorder) ObserveReplay(outcome string) {
	if r == nil {
		return
	}
	r.replayOps.WithLabelValues(outcome).Inc()
}

// SetOutboxDepth records the current queue depth.
func (r *Recorder) SetOutboxDepth(n int) {
	if r == nil {
		return
	}
	r.outboxDepth.Set(float64(n))
}

// ObserveRequest records one intercepted request by strategy name.
func (r *Recorder) ObserveRequest(strategy string) {
	if r == nil {
		return
	}
	r.proxyRequests.WithLabelValues(strategy).Inc()
}

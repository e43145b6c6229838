package coordinator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics bundles the prometheus collectors a Hybrid exposes. A nil
// *metrics (produced when Config.Registry is nil) makes every method a
// no-op, so call sites never need a nil check of their own.
type metrics struct {
	insertsTotal      prometheus.Counter
	swapsTotal        prometheus.Counter
	drainsTotal       prometheus.Counter
	drainDuration     prometheus.Histogram
	flushThreshold    prometheus.Gauge
	lookupMissesTotal prometheus.Counter
}

func newMetrics(reg *prometheus.Registry) *metrics {
	if reg == nil {
		return nil
	}

	m := &metrics{
		insertsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hybrid_inserts_total",
			Help: "Total records inserted into the hybrid index.",
		}),
		swapsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hybrid_swaps_total",
			Help: "Total active/flushing buffer-slot rotations.",
		}),
		drainsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hybrid_drains_total",
			Help: "Total completed drains into the persistent index.",
		}),
		drainDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hybrid_drain_duration_seconds",
			Help:    "Wall-clock duration of draining the flushing slot into the persistent index.",
			Buckets: prometheus.DefBuckets,
		}),
		flushThreshold: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hybrid_flush_threshold",
			Help: "Current adaptive insert_count threshold that triggers a rotation.",
		}),
		lookupMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hybrid_dropped_lookups_total",
			Help: "Total EqualityLookup calls that fell through every layer unanswered.",
		}),
	}

	reg.MustRegister(m.insertsTotal, m.swapsTotal, m.drainsTotal, m.drainDuration, m.flushThreshold, m.lookupMissesTotal)
	return m
}

func (m *metrics) observeInsert() {
	if m == nil {
		return
	}
	m.insertsTotal.Inc()
}

func (m *metrics) observeSwap() {
	if m == nil {
		return
	}
	m.swapsTotal.Inc()
}

func (m *metrics) observeDrain(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.drainsTotal.Inc()
	m.drainDuration.Observe(elapsed.Seconds())
}

func (m *metrics) setFlushThreshold(v uint64) {
	if m == nil {
		return
	}
	m.flushThreshold.Set(float64(v))
}

func (m *metrics) observeLookupMiss() {
	if m == nil {
		return
	}
	m.lookupMissesTotal.Inc()
}

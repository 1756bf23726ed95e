package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CartMetrics records resilience-layer activity. All methods are nil-safe so
// callers can run without a registry wired in.
type CartMetrics struct {
	mutations    *prometheus.CounterVec
	rollbacks    *prometheus.CounterVec
	syncDuration *prometheus.HistogramVec
	backups      *prometheus.CounterVec
	renderFaults prometheus.Counter
	recoveries   prometheus.Counter
}

// NewCartMetrics registers the cart metrics on the provided registerer.
func NewCartMetrics(reg prometheus.Registerer) *CartMetrics {
	if reg == nil {
		return &CartMetrics{}
	}
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_total",
		Help: "Cart mutations by kind and final outcome.",
	}, []string{"kind", "outcome"})
	rollbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_rollbacks_total",
		Help: "Optimistic mutations rolled back after failed confirmation.",
	}, []string{"kind"})
	syncDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cart_sync_duration_seconds",
		Help:    "Wall time from optimistic apply to final confirmation outcome.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	backups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_backup_operations_total",
		Help: "Backup snapshot operations by action and result.",
	}, []string{"action", "result"})
	renderFaults := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cart_render_faults_total",
		Help: "Uncaught faults intercepted by the cart boundary.",
	})
	recoveries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cart_recoveries_total",
		Help: "User-initiated cart recoveries from a backup snapshot.",
	})
	reg.MustRegister(mutations, rollbacks, syncDuration, backups, renderFaults, recoveries)
	return &CartMetrics{
		mutations:    mutations,
		rollbacks:    rollbacks,
		syncDuration: syncDuration,
		backups:      backups,
		renderFaults: renderFaults,
		recoveries:   recoveries,
	}
}

func (c *CartMetrics) IncMutation(kind, outcome string) {
	if c == nil || c.mutations == nil {
		return
	}
	c.mutations.WithLabelValues(normalizeLabel(kind), normalizeLabel(outcome)).Inc()
}

func (c *CartMetrics) IncRollback(kind string) {
	if c == nil || c.rollbacks == nil {
		return
	}
	c.rollbacks.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (c *CartMetrics) ObserveSyncDuration(kind string, duration time.Duration) {
	if c == nil || c.syncDuration == nil {
		return
	}
	c.syncDuration.WithLabelValues(normalizeLabel(kind)).Observe(duration.Seconds())
}

func (c *CartMetrics) IncBackup(action, result string) {
	if c == nil || c.backups == nil {
		return
	}
	c.backups.WithLabelValues(normalizeLabel(action), normalizeLabel(result)).Inc()
}

func (c *CartMetrics) IncRenderFault() {
	if c == nil || c.renderFaults == nil {
		return
	}
	c.renderFaults.Inc()
}

func (c *CartMetrics) IncRecovery() {
	if c == nil || c.recoveries == nil {
		return
	}
	c.recoveries.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

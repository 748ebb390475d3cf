// Package metrics registers the Prometheus collectors shared across the
// bridge's components.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// IDsSynthesized counts B-side ids synthesized by the message store.
	IDsSynthesized = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bridge",
		Subsystem: "store",
		Name:      "ids_synthesized_total",
		Help:      "Number of B-side message ids synthesized from A-side ids.",
	})

	// LiveSurrogates tracks the current size of the surrogate bot pool.
	LiveSurrogates = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "bridge",
		Subsystem: "surrogate",
		Name:      "live_total",
		Help:      "Number of currently active surrogate bot connections.",
	})

	// PendingWatchers tracks actions suspended waiting on a parent id.
	PendingWatchers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "bridge",
		Subsystem: "nexus",
		Name:      "pending_watchers",
		Help:      "Number of drains currently suspended waiting for a parent id translation.",
	})

	// MessagesRelayed counts messages successfully posted to a surrogate.
	MessagesRelayed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bridge",
		Subsystem: "nexus",
		Name:      "messages_relayed_total",
		Help:      "Number of messages relayed, labeled by origin platform.",
	}, []string{"origin"})

	// MessagesDropped counts messages dropped due to a bridge error kind.
	MessagesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bridge",
		Subsystem: "nexus",
		Name:      "messages_dropped_total",
		Help:      "Number of messages dropped, labeled by the error kind that caused the drop.",
	}, []string{"kind"})

	// SchedulerLagSeconds observes how late a scheduled callable ran versus
	// its requested deadline.
	SchedulerLagSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "bridge",
		Subsystem: "scheduler",
		Name:      "lag_seconds",
		Help:      "Delay between a callable's requested deadline and its execution.",
		Buckets:   prometheus.DefBuckets,
	})
)

// Register adds every collector in this package to reg. Safe to call once
// at process startup.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		IDsSynthesized, LiveSurrogates, PendingWatchers, MessagesRelayed,
		MessagesDropped, SchedulerLagSeconds,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Package metrics defines the Prometheus instrumentation of a treecast node.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// NodeMetrics counts the externally observable events of one node. Counters
// are registered against the supplied registerer, so tests and multi-node
// processes can keep per-node registries.
type NodeMetrics struct {
	BroadcastedMessages prometheus.Counter
	DeliveredMessages   prometheus.Counter
	DuplicateGossip     prometheus.Counter
	GraftsSent          prometheus.Counter
	PrunesSent          prometheus.Counter
	IHavesSent          prometheus.Counter
	NeighborsUp         prometheus.Counter
	NeighborsDown       prometheus.Counter
	IsolatedTimes       prometheus.Counter
	SendFailures        prometheus.Counter

	ActivePeers  prometheus.Gauge
	PassivePeers prometheus.Gauge
	CachedMsgs   prometheus.Gauge
}

// NewNodeMetrics creates and registers the node metrics. A nil registerer
// creates unregistered metrics, which is convenient for throwaway nodes in
// tests.
func NewNodeMetrics(reg prometheus.Registerer) *NodeMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace: "treecast",
			Name:      name,
			Help:      help,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "treecast",
			Name:      name,
			Help:      help,
		})
	}

	return &NodeMetrics{
		BroadcastedMessages: counter("broadcasted_messages_total", "Messages published by the local application."),
		DeliveredMessages:   counter("delivered_messages_total", "Messages delivered to the local application."),
		DuplicateGossip:     counter("duplicate_gossip_total", "Redundant Gossip copies received."),
		GraftsSent:          counter("grafts_sent_total", "Graft repair requests sent."),
		PrunesSent:          counter("prunes_sent_total", "Prune requests sent."),
		IHavesSent:          counter("ihaves_sent_total", "IHave announcement batches sent."),
		NeighborsUp:         counter("neighbors_up_total", "Peers added to the active view."),
		NeighborsDown:       counter("neighbors_down_total", "Peers removed from the active view."),
		IsolatedTimes:       counter("isolated_times_total", "Times the active view became empty."),
		SendFailures:        counter("send_failures_total", "Transport sends that failed."),

		ActivePeers:  gauge("active_peers", "Current size of the active view."),
		PassivePeers: gauge("passive_peers", "Current size of the passive view."),
		CachedMsgs:   gauge("cached_messages", "Current size of the message cache."),
	}
}

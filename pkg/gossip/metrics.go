package gossip

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors a running node exposes. It is
// safe to pass a nil *Metrics; every recording method is a no-op in that
// case. A non-nil Metrics must come from NewMetrics.
type Metrics struct {
	broadcastRounds *prometheus.CounterVec
	peersEvicted    prometheus.Counter
	mergeApplied    prometheus.Counter
	knownPeers      prometheus.Gauge
}

// NewMetrics creates and registers the gossip collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		broadcastRounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gossip_broadcast_rounds_total",
			Help: "Broadcast rounds performed, labeled by kind (heartbeat or payload).",
		}, []string{"kind"}),
		peersEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gossip_peers_evicted_total",
			Help: "Peers removed from local state for not replying during a broadcast round; entries aged out by a merge are not counted.",
		}),
		mergeApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gossip_merge_applied_total",
			Help: "Merge invocations performed across broadcasts and inbound connections.",
		}),
		knownPeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gossip_known_peers",
			Help: "Number of peers (including self) in the local network state.",
		}),
	}
	reg.MustRegister(m.broadcastRounds, m.peersEvicted, m.mergeApplied, m.knownPeers)
	return m
}

func (m *Metrics) roundPerformed(kind string) {
	if m == nil {
		return
	}
	m.broadcastRounds.WithLabelValues(kind).Inc()
}

func (m *Metrics) peerEvicted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.peersEvicted.Add(float64(n))
}

func (m *Metrics) mergeRecorded() {
	if m == nil {
		return
	}
	m.mergeApplied.Inc()
}

func (m *Metrics) peersObserved(n int) {
	if m == nil {
		return
	}
	m.knownPeers.Set(float64(n))
}

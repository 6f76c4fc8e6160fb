package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "aero_webrtc_signal_relay"

// Delivery paths for MessageDelivered.
const (
	PathPushed   = "pushed"
	PathQueued   = "queued"
	PathReplayed = "replayed"
)

// Metrics holds the relay's Prometheus collectors on a private registry.
//
// A nil *Metrics is valid and records nothing, which keeps tests and library
// callers free of metrics plumbing.
type Metrics struct {
	registry *prometheus.Registry

	peersConnected   prometheus.Counter
	peersRecovered   prometheus.Counter
	peersExpired     prometheus.Counter
	livePeers        prometheus.Gauge
	boundChannels    prometheus.Gauge
	messages         *prometheus.CounterVec
	queueEvictions   prometheus.Counter
	channelOverflows prometheus.Counter
	authFailures     *prometheus.CounterVec
	rateLimited      *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		peersConnected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peers_connected_total",
			Help:      "Peers issued new credentials via connect.",
		}),
		peersRecovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peers_recovered_total",
			Help:      "Peers re-created from valid credentials after a restart.",
		}),
		peersExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peers_expired_total",
			Help:      "Peers removed by the presence sweep.",
		}),
		livePeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_peers",
			Help:      "Peers currently in the registry.",
		}),
		boundChannels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bound_channels",
			Help:      "Peers with a live push channel.",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Messages handed to peers, by delivery path.",
		}, []string{"path"}),
		queueEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_evictions_total",
			Help:      "Pending messages dropped because a peer queue was full.",
		}),
		channelOverflows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_overflows_total",
			Help:      "Push channels unbound because their outbox could not accept a message.",
		}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Requests rejected because the key did not match the id.",
		}, []string{"op"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-client rate limiter.",
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.peersConnected,
		m.peersRecovered,
		m.peersExpired,
		m.livePeers,
		m.boundChannels,
		m.messages,
		m.queueEvictions,
		m.channelOverflows,
		m.authFailures,
		m.rateLimited,
	)
	return m
}

// Handler exposes the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "metrics not configured", http.StatusInternalServerError)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) PeerConnected() {
	if m != nil {
		m.peersConnected.Inc()
	}
}

func (m *Metrics) PeerRecovered() {
	if m != nil {
		m.peersRecovered.Inc()
	}
}

func (m *Metrics) PeersExpired(n int) {
	if m != nil && n > 0 {
		m.peersExpired.Add(float64(n))
	}
}

func (m *Metrics) SetLivePeers(n int) {
	if m != nil {
		m.livePeers.Set(float64(n))
	}
}

func (m *Metrics) SetBoundChannels(n int) {
	if m != nil {
		m.boundChannels.Set(float64(n))
	}
}

func (m *Metrics) MessageDelivered(path string) {
	if m != nil {
		m.messages.WithLabelValues(path).Inc()
	}
}

func (m *Metrics) QueueEviction() {
	if m != nil {
		m.queueEvictions.Inc()
	}
}

func (m *Metrics) ChannelOverflow() {
	if m != nil {
		m.channelOverflows.Inc()
	}
}

func (m *Metrics) AuthFailure(op string) {
	if m != nil {
		m.authFailures.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) RateLimited(route string) {
	if m != nil {
		m.rateLimited.WithLabelValues(route).Inc()
	}
}

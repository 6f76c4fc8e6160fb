package relay

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/auth"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/metrics"
)

// Manager owns the peer registry and every push channel binding.
//
// It is created once at startup and passed to the transports; entries expire
// on their own so it needs no teardown beyond Close.
type Manager struct {
	cfg     Config
	issuer  *auth.Issuer
	metrics *metrics.Metrics
	clock   clock.Clock
	log     *slog.Logger

	mu    sync.Mutex
	peers map[string]*peer
	// order keeps registry insertion order for LivePeers.
	order []string
	// bindings maps peer id to its live channel. A peer without an entry has
	// no channel.
	bindings map[string]Channel

	timers    map[uint64]*clock.Timer
	nextTimer uint64
	closed    bool
}

// NewManager builds a Manager. issuer is required; m, clk and logger may be
// nil.
func NewManager(cfg Config, issuer *auth.Issuer, m *metrics.Metrics, clk clock.Clock, logger *slog.Logger) *Manager {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:      cfg.WithDefaults(),
		issuer:   issuer,
		metrics:  m,
		clock:    clk,
		log:      logger,
		peers:    make(map[string]*peer),
		bindings: make(map[string]Channel),
		timers:   make(map[uint64]*clock.Timer),
	}
}

func (m *Manager) Config() Config { return m.cfg }

func (m *Manager) Issuer() *auth.Issuer { return m.issuer }

// Close stops pending sweeps and closes every bound channel so long-lived
// transport handlers return.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for id, t := range m.timers {
		t.Stop()
		delete(m.timers, id)
	}
	for id, ch := range m.bindings {
		delete(m.bindings, id)
		ch.Close()
	}
	m.updateGaugesLocked()
}

// Len returns the number of peers in the registry without sweeping.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.peers)
}

// Snapshot sweeps expired peers and describes the survivors in registry
// order.
func (m *Manager) Snapshot() []PeerInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	live := m.livePeersLocked()
	now := m.clock.Now()
	out := make([]PeerInfo, 0, len(live))
	for _, id := range live {
		p := m.peers[id]
		_, bound := m.bindings[id]
		info := PeerInfo{
			ID:     id,
			State:  p.state(now, bound),
			Queued: p.queue.len(),
		}
		if !p.noDeadline {
			deadline := p.deadline
			info.Deadline = &deadline
		}
		out = append(out, info)
	}
	return out
}

func (m *Manager) insertLocked(p *peer) {
	if _, exists := m.peers[p.id]; !exists {
		m.order = append(m.order, p.id)
	}
	m.peers[p.id] = p
	m.updateGaugesLocked()
}

func (m *Manager) unbindLocked(id string) {
	ch, ok := m.bindings[id]
	if !ok {
		return
	}
	delete(m.bindings, id)
	ch.Close()
	m.updateGaugesLocked()
}

// startGraceLocked moves p into its grace period and schedules the sweep that
// will remove it if nothing re-attaches.
func (m *Manager) startGraceLocked(p *peer) {
	p.noDeadline = false
	p.deadline = m.clock.Now().Add(m.cfg.Timeout)
	m.scheduleSweepLocked()
}

func (m *Manager) scheduleSweepLocked() {
	if m.closed {
		return
	}
	id := m.nextTimer
	m.nextTimer++
	m.timers[id] = m.clock.AfterFunc(m.cfg.sweepDelay(), func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.timers, id)
		if m.closed {
			return
		}
		m.livePeersLocked()
	})
}

func (m *Manager) updateGaugesLocked() {
	m.metrics.SetLivePeers(len(m.peers))
	m.metrics.SetBoundChannels(len(m.bindings))
}

func (m *Manager) liveExceptLocked(exclude string) []string {
	live := m.livePeersLocked()
	return slices.DeleteFunc(live, func(id string) bool { return id == exclude })
}

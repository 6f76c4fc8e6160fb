package relay

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/auth"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/metrics"
)

// maxIDAttempts bounds how many fresh ids Connect draws when one is already
// registered.
const maxIDAttempts = 3

// Credentials are the bearer pair handed to a peer on connect.
type Credentials struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// Connect issues a new identity and registers it. The peer has Timeout to
// attach a channel before it becomes eligible for removal.
func (m *Manager) Connect() (Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Credentials{}, ErrManagerClosed
	}

	var id string
	for attempt := 0; ; attempt++ {
		candidate, err := m.issuer.NewID(m.cfg.IDLength)
		if err != nil {
			return Credentials{}, fmt.Errorf("issue peer id: %w", err)
		}
		if _, exists := m.peers[candidate]; !exists {
			id = candidate
			break
		}
		if attempt+1 >= maxIDAttempts {
			return Credentials{}, fmt.Errorf("issue peer id: %d collisions", maxIDAttempts)
		}
	}

	m.insertLocked(newPeer(id, m.clock.Now().Add(m.cfg.Timeout), m.cfg.MaxQueuedMessages))
	m.scheduleSweepLocked()
	m.metrics.PeerConnected()
	m.log.Debug("peer connected", "peer_id", id)

	if m.cfg.Presence {
		m.broadcastRawExceptLocked(id, Message{Connect: []string{id}})
	}
	return Credentials{ID: id, Key: m.issuer.Key(id)}, nil
}

// Authenticate checks that id is registered and key belongs to it.
func (m *Manager) Authenticate(id, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.authenticateLocked(id, key, "authenticate")
	return err
}

func (m *Manager) authenticateLocked(id, key, op string) (*peer, error) {
	p, ok := m.peers[id]
	if !ok {
		return nil, ErrPeerNotFound
	}
	if err := m.issuer.Verify(id, key); err != nil {
		m.metrics.AuthFailure(op)
		m.log.Info("peer authentication failed", "op", op, "peer_id", id)
		return nil, err
	}
	return p, nil
}

// Attach binds ch as the push channel of peer id.
//
// If id is not registered but id and key are still consistent under the
// current secret, the peer is re-created with an empty queue (recovery after
// a restart). Otherwise the pending queue is replayed into ch in order and,
// with presence enabled, ch receives the live peer list.
//
// Any channel previously bound to id is closed. On error ch is left unbound
// and the caller owns it.
func (m *Manager) Attach(id, key string, ch Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrManagerClosed
	}

	p, ok := m.peers[id]
	if !ok {
		if !auth.ValidID(id, m.cfg.IDLength) {
			return ErrInvalidID
		}
		if err := m.issuer.Verify(id, key); err != nil {
			m.metrics.AuthFailure("attach")
			m.log.Info("peer authentication failed", "op", "attach", "peer_id", id)
			return err
		}
		p = newPeer(id, time.Time{}, m.cfg.MaxQueuedMessages)
		// Keep the record alive through the connect broadcast below; it has no
		// channel yet.
		p.noDeadline = true
		m.insertLocked(p)
		m.metrics.PeerRecovered()
		m.log.Debug("peer recovered", "peer_id", id)
		if m.cfg.Presence {
			m.broadcastRawExceptLocked(id, Message{Connect: []string{id}})
		}
	} else if err := m.issuer.Verify(id, key); err != nil {
		m.metrics.AuthFailure("attach")
		m.log.Info("peer authentication failed", "op", "attach", "peer_id", id)
		return err
	}

	if prev, bound := m.bindings[id]; bound {
		delete(m.bindings, id)
		m.requeueLocked(p, prev.Close())
		m.log.Debug("channel displaced", "peer_id", id)
	}

	pending := p.queue.drain()
	if !ch.Replay(pending) {
		// Nothing handed to ch reaches the client; the caller drops it.
		p.queue.restore(pending)
		ch.Close()
		m.updateGaugesLocked()
		m.startGraceLocked(p)
		return ErrChannelClosed
	}
	for range pending {
		m.metrics.MessageDelivered(metrics.PathReplayed)
	}

	p.noDeadline = true
	p.attached = true
	m.bindings[id] = ch
	m.updateGaugesLocked()
	m.log.Debug("channel attached", "peer_id", id, "replayed", len(pending))

	if m.cfg.Presence {
		_ = m.sendRawLocked(id, Message{Presence: m.livePeersLocked()})
	}
	return nil
}

// Detach is called by a transport once ch has stopped. It is a no-op unless
// ch is still the channel bound to id, so a displaced channel can't unbind its
// replacement. Messages ch accepted but never wrote go back on the queue.
func (m *Manager) Detach(id string, ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, bound := m.bindings[id]; !bound || cur != ch {
		return
	}
	delete(m.bindings, id)
	unsent := ch.Close()
	m.updateGaugesLocked()

	if p, ok := m.peers[id]; ok {
		m.requeueLocked(p, unsent)
		m.startGraceLocked(p)
	}
	m.log.Debug("channel detached", "peer_id", id, "grace", m.cfg.Timeout)
}

// Disconnect removes peer id immediately. Its channel, if any, is closed and
// the remaining peers are told about the departure.
func (m *Manager) Disconnect(id, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.authenticateLocked(id, key, "disconnect")
	if err != nil {
		return err
	}
	m.unbindLocked(id)
	p.noDeadline = false
	p.deadline = time.Time{}
	m.livePeersLocked()
	m.log.Debug("peer disconnected", "peer_id", id)
	return nil
}

// SendSignal relays an opaque negotiation payload from peer id to peer to as
// {"from": id, "signal": signal}.
func (m *Manager) SendSignal(id, key, to string, signal json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.authenticateLocked(id, key, "send_signal"); err != nil {
		return err
	}
	if _, ok := m.peers[to]; !ok {
		return ErrTargetNotFound
	}
	return m.sendRawLocked(to, SignalMessage(id, signal))
}

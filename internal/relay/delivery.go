package relay

import (
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/metrics"
)

// SendRaw delivers msg to peer to: straight through its channel when one is
// bound, otherwise onto its pending queue.
func (m *Manager) SendRaw(to string, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sendRawLocked(to, msg)
}

// SendData sends {"data": payload} to peer to.
func (m *Manager) SendData(to string, payload any) error {
	msg, err := DataMessage(payload)
	if err != nil {
		return err
	}
	return m.SendRaw(to, msg)
}

func (m *Manager) sendRawLocked(to string, msg Message) error {
	p, ok := m.peers[to]
	if !ok {
		return ErrPeerNotFound
	}

	if ch, bound := m.bindings[to]; bound {
		if ch.Send(msg) {
			m.metrics.MessageDelivered(metrics.PathPushed)
			return nil
		}
		// The channel can't keep up or has already gone away. Treat it like a
		// detach: what it still buffers goes back on the queue ahead of msg.
		delete(m.bindings, to)
		m.requeueLocked(p, ch.Close())
		m.metrics.ChannelOverflow()
		m.updateGaugesLocked()
		m.startGraceLocked(p)
		m.log.Warn("push channel overflow; unbinding", "peer_id", to)
	}

	if p.queue.push(msg) {
		m.metrics.QueueEviction()
	}
	m.metrics.MessageDelivered(metrics.PathQueued)
	return nil
}

// BroadcastRaw sends msg to every live peer, including whichever peer caused
// the broadcast. It returns the number of recipients.
func (m *Manager) BroadcastRaw(msg Message) int {
	return m.BroadcastRawExcept("", msg)
}

// BroadcastRawExcept is BroadcastRaw with one peer left out. An empty exclude
// excludes nobody.
func (m *Manager) BroadcastRawExcept(exclude string, msg Message) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.broadcastRawExceptLocked(exclude, msg)
}

// BroadcastData sends {"data": payload} to every live peer.
func (m *Manager) BroadcastData(payload any) (int, error) {
	return m.BroadcastDataExcept("", payload)
}

func (m *Manager) BroadcastDataExcept(exclude string, payload any) (int, error) {
	msg, err := DataMessage(payload)
	if err != nil {
		return 0, err
	}
	return m.BroadcastRawExcept(exclude, msg), nil
}

func (m *Manager) broadcastRawExceptLocked(exclude string, msg Message) int {
	n := 0
	for _, id := range m.liveExceptLocked(exclude) {
		if m.sendRawLocked(id, msg) == nil {
			n++
		}
	}
	return n
}

// requeueLocked puts messages a closed channel never wrote back at the front
// of p's queue.
func (m *Manager) requeueLocked(p *peer, msgs []Message) {
	for range p.queue.restore(msgs) {
		m.metrics.QueueEviction()
	}
}

package relay

import "slices"

// LivePeers sweeps the registry and returns the ids still present, in the
// order they were inserted.
//
// A peer is removed once its deadline has passed and it has no bound
// channel. When presence is enabled every survivor is sent one
// {"disconnect": [...]} listing all peers removed by this sweep.
func (m *Manager) LivePeers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.livePeersLocked()
}

func (m *Manager) livePeersLocked() []string {
	now := m.clock.Now()

	var removed []string
	kept := m.order[:0]
	for _, id := range m.order {
		p, ok := m.peers[id]
		if !ok {
			continue
		}
		if _, bound := m.bindings[id]; !bound && p.expired(now) {
			delete(m.peers, id)
			removed = append(removed, id)
			continue
		}
		kept = append(kept, id)
	}
	clear(m.order[len(kept):])
	m.order = kept
	connected := slices.Clone(kept)

	if len(removed) == 0 {
		return connected
	}

	m.metrics.PeersExpired(len(removed))
	m.updateGaugesLocked()
	m.log.Debug("peers expired", "peer_ids", removed, "remaining", len(connected))

	if m.cfg.Presence {
		msg := Message{Disconnect: removed}
		for _, id := range connected {
			_ = m.sendRawLocked(id, msg)
		}
	}
	return connected
}

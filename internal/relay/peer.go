package relay

import "time"

// State is the lifecycle state of a peer session.
type State string

const (
	// StateConnecting: credentials issued, no channel opened yet.
	StateConnecting State = "connecting"
	// StateStreaming: a push channel is bound.
	StateStreaming State = "streaming"
	// StateGrace: the channel closed and the peer may still re-attach.
	StateGrace State = "grace"
	// StateExpired: the deadline passed; the next sweep removes the peer.
	StateExpired State = "expired"
)

// peer is a session record in the registry. Its channel binding lives in
// Manager.bindings, never here, so a record never keeps a channel alive.
type peer struct {
	id    string
	queue pendingQueue

	// deadline is ignored while noDeadline is set (a channel is bound).
	deadline   time.Time
	noDeadline bool

	// attached records whether a channel was ever bound.
	attached bool
}

func newPeer(id string, deadline time.Time, maxQueued int) *peer {
	return &peer{
		id:       id,
		queue:    pendingQueue{max: maxQueued},
		deadline: deadline,
	}
}

func (p *peer) expired(now time.Time) bool {
	return !p.noDeadline && p.deadline.Before(now)
}

func (p *peer) state(now time.Time, bound bool) State {
	switch {
	case bound:
		return StateStreaming
	case p.expired(now):
		return StateExpired
	case p.attached:
		return StateGrace
	default:
		return StateConnecting
	}
}

// PeerInfo is a point-in-time view of a peer for operators.
type PeerInfo struct {
	ID     string `json:"id"`
	State  State  `json:"state"`
	Queued int    `json:"queued"`

	// Deadline is nil while a channel is bound.
	Deadline *time.Time `json:"deadline,omitempty"`
}

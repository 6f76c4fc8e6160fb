package relay

import "encoding/json"

// Message is a single event pushed to a peer. Exactly one group of fields is
// set per message; empty fields are omitted on the wire.
type Message struct {
	Connect    []string        `json:"connect,omitempty"`
	Disconnect []string        `json:"disconnect,omitempty"`
	Presence   []string        `json:"presence,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	From       string          `json:"from,omitempty"`
	Signal     json.RawMessage `json:"signal,omitempty"`
	Error      string          `json:"error,omitempty"`
}

var jsonNull = json.RawMessage("null")

// DataMessage wraps payload as {"data": payload}.
func DataMessage(payload any) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Data: raw}, nil
}

// SignalMessage builds the {"from", "signal"} event relayed between peers.
func SignalMessage(from string, signal json.RawMessage) Message {
	if len(signal) == 0 {
		signal = jsonNull
	}
	return Message{From: from, Signal: signal}
}

// Channel is a one-way push surface to a single connected client.
//
// Implementations must not block and must not call back into the Manager
// from any method, all of which run under the Manager mutex.
type Channel interface {
	// Send enqueues msg for delivery. It returns false once the channel can
	// no longer accept messages (closed or out of buffer space).
	Send(msg Message) bool

	// Replay enqueues a peer's pending backlog in one step, regardless of
	// any buffer budget. It returns false only if the channel is closed.
	Replay(msgs []Message) bool

	// Close stops the channel and returns, oldest first, the messages it
	// accepted but never handed to its transport. Later calls return nil.
	Close() []Message
}

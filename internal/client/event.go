package client

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
)

// Event is one message pushed by the relay on /events or /ws. Exactly one
// group of fields is set per event.
type Event struct {
	Connect    []string        `json:"connect,omitempty"`
	Disconnect []string        `json:"disconnect,omitempty"`
	Presence   []string        `json:"presence,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	From       string          `json:"from,omitempty"`
	Signal     json.RawMessage `json:"signal,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// SessionDescription decodes the signal as an SDP offer or answer.
func (e Event) SessionDescription() (webrtc.SessionDescription, bool) {
	var head struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	}
	if len(e.Signal) == 0 || json.Unmarshal(e.Signal, &head) != nil || head.Type == "" || head.SDP == "" {
		return webrtc.SessionDescription{}, false
	}
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(e.Signal, &desc); err != nil {
		return webrtc.SessionDescription{}, false
	}
	return desc, true
}

// ICECandidate decodes the signal as a trickled ICE candidate.
func (e Event) ICECandidate() (webrtc.ICECandidateInit, bool) {
	var cand webrtc.ICECandidateInit
	if len(e.Signal) == 0 || json.Unmarshal(e.Signal, &cand) != nil || cand.Candidate == "" {
		return webrtc.ICECandidateInit{}, false
	}
	return cand, true
}

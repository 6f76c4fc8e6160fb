// Package webrtcpeer negotiates pion PeerConnections with other relay peers,
// carrying offers, answers and candidates as relay signals.
package webrtcpeer

import (
	"fmt"

	"github.com/pion/webrtc/v4"
)

// Settings tune the local ICE agent.
type Settings struct {
	// UDPPortMin and UDPPortMax restrict the local candidate ports. Both zero
	// means any port.
	UDPPortMin uint16
	UDPPortMax uint16
	// NAT1To1IPs are advertised as host candidates in place of local
	// addresses.
	NAT1To1IPs []string
}

func NewAPI(s Settings) (*webrtc.API, error) {
	se := webrtc.SettingEngine{}
	if err := ApplyNetworkSettings(&se, s); err != nil {
		return nil, err
	}
	return webrtc.NewAPI(webrtc.WithSettingEngine(se)), nil
}

func ApplyNetworkSettings(se *webrtc.SettingEngine, s Settings) error {
	if s.UDPPortMin != 0 || s.UDPPortMax != 0 {
		if err := se.SetEphemeralUDPPortRange(s.UDPPortMin, s.UDPPortMax); err != nil {
			return fmt.Errorf("set ephemeral udp port range: %w", err)
		}
	}
	if len(s.NAT1To1IPs) > 0 {
		se.SetNAT1To1IPs(s.NAT1To1IPs, webrtc.ICECandidateTypeHost)
	}
	return nil
}

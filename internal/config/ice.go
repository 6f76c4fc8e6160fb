package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

const (
	envICEServersJSON = "AERO_ICE_SERVERS_JSON"

	envStunURLs       = "AERO_STUN_URLS"
	envTurnURLs       = "AERO_TURN_URLS"
	envTurnUsername   = "AERO_TURN_USERNAME"
	envTurnCredential = "AERO_TURN_CREDENTIAL"
)

type iceSources struct {
	serversJSON    string
	stunURLs       string
	turnURLs       string
	turnUsername   string
	turnCredential string

	// turnRESTEnabled lets TURN entries omit static credentials; they are
	// filled per peer on /webrtc/ice.
	turnRESTEnabled bool
}

func parseICEServersFromValues(src iceSources) ([]webrtc.ICEServer, error) {
	if raw := strings.TrimSpace(src.serversJSON); raw != "" {
		iceServers, err := ParseICEServersJSON(raw, src.turnRESTEnabled)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", envICEServersJSON, err)
		}
		return iceServers, nil
	}
	return parseICEServersFromConvenience(src)
}

type iceServerJSON struct {
	URLs       stringOrStringSlice `json:"urls"`
	Username   string              `json:"username,omitempty"`
	Credential string              `json:"credential,omitempty"`
}

type stringOrStringSlice []string

func (s *stringOrStringSlice) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		*s = []string{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

// ParseICEServersJSON parses a browser-style RTCIceServer list. TURN entries
// need static credentials unless turnRESTEnabled is set.
func ParseICEServersJSON(raw string, turnRESTEnabled bool) ([]webrtc.ICEServer, error) {
	var servers []iceServerJSON
	if err := json.Unmarshal([]byte(raw), &servers); err != nil {
		return nil, err
	}

	out := make([]webrtc.ICEServer, 0, len(servers))
	for i, server := range servers {
		urls := make([]string, 0, len(server.URLs))
		for _, url := range server.URLs {
			url = strings.TrimSpace(url)
			if url == "" {
				continue
			}
			urls = append(urls, url)
		}

		username := strings.TrimSpace(server.Username)
		credential := strings.TrimSpace(server.Credential)
		if err := validateICEServer(urls, username, credential, turnRESTEnabled); err != nil {
			return nil, fmt.Errorf("iceServers[%d]: %w", i, err)
		}

		pcServer := webrtc.ICEServer{URLs: urls, Username: username}
		if credential != "" {
			pcServer.Credential = server.Credential
		}
		out = append(out, pcServer)
	}
	return out, nil
}

func parseICEServersFromConvenience(src iceSources) ([]webrtc.ICEServer, error) {
	stunList := splitCommaSeparated(src.stunURLs)
	turnList := splitCommaSeparated(src.turnURLs)

	var servers []webrtc.ICEServer
	if len(stunList) > 0 {
		if err := validateICEServer(stunList, "", "", false); err != nil {
			return nil, fmt.Errorf("%s: %w", envStunURLs, err)
		}
		servers = append(servers, webrtc.ICEServer{URLs: stunList})
	}

	if len(turnList) > 0 {
		username := strings.TrimSpace(src.turnUsername)
		credential := strings.TrimSpace(src.turnCredential)
		if !src.turnRESTEnabled && (username == "" || credential == "") {
			return nil, fmt.Errorf("%s/%s: both must be set when %s is set", envTurnUsername, envTurnCredential, envTurnURLs)
		}
		if err := validateICEServer(turnList, username, credential, src.turnRESTEnabled); err != nil {
			return nil, fmt.Errorf("%s: %w", envTurnURLs, err)
		}

		server := webrtc.ICEServer{URLs: turnList, Username: username}
		if credential != "" {
			server.Credential = credential
		}
		servers = append(servers, server)
	}

	return servers, nil
}

func splitCommaSeparated(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func validateICEServer(urls []string, username, credential string, turnRESTEnabled bool) error {
	if len(urls) == 0 {
		return errors.New("missing urls")
	}

	requiresTurnCreds := false
	for _, url := range urls {
		if !isAllowedICEScheme(url) {
			return fmt.Errorf("unsupported url scheme: %q", url)
		}
		if IsTURNURL(url) {
			requiresTurnCreds = true
		}
	}

	if requiresTurnCreds && !turnRESTEnabled {
		if username == "" {
			return errors.New("turn urls require username")
		}
		if credential == "" {
			return errors.New("turn urls require credential")
		}
	}
	return nil
}

// IsTURNURL reports whether url uses the turn: or turns: scheme.
func IsTURNURL(url string) bool {
	url = strings.ToLower(strings.TrimSpace(url))
	return strings.HasPrefix(url, "turn:") || strings.HasPrefix(url, "turns:")
}

func isAllowedICEScheme(url string) bool {
	url = strings.ToLower(url)
	switch {
	case strings.HasPrefix(url, "stun:"),
		strings.HasPrefix(url, "stuns:"),
		strings.HasPrefix(url, "turn:"),
		strings.HasPrefix(url, "turns:"):
		return true
	default:
		return false
	}
}

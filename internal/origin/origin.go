// Package origin decides which browser origins may talk to the relay.
package origin

import (
	"net/url"
	"strconv"
	"strings"
)

// Wildcard allows every origin when present in an allow list.
const Wildcard = "*"

// NormalizeHeader validates and normalizes a browser Origin header.
//
// It returns the normalized origin (scheme://host[:port], default ports
// dropped) and the host[:port] portion for same-host comparisons. The opaque
// origin "null" is returned as-is with an empty host.
func NormalizeHeader(originHeader string) (normalizedOrigin string, host string, ok bool) {
	trimmed := strings.TrimSpace(originHeader)
	if trimmed == "" {
		return "", "", false
	}
	if trimmed == "null" {
		return "null", "", true
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", "", false
	}
	if u.User != nil || u.RawQuery != "" || u.Fragment != "" || u.ForceQuery {
		return "", "", false
	}
	if u.Path != "" && u.Path != "/" {
		return "", "", false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", "", false
	}

	host, ok = normalizeAuthority(u.Host, scheme)
	if !ok {
		return "", "", false
	}
	return scheme + "://" + host, host, true
}

// Policy is an origin allow list. An empty list means same-host only.
type Policy struct {
	allowed  map[string]struct{}
	wildcard bool
}

// NewPolicy builds a Policy from entries that are either Wildcard or already
// normalized origins (see NormalizeHeader).
func NewPolicy(allowed []string) Policy {
	p := Policy{}
	for _, entry := range allowed {
		if entry == Wildcard {
			p.wildcard = true
			continue
		}
		if p.allowed == nil {
			p.allowed = make(map[string]struct{}, len(allowed))
		}
		p.allowed[entry] = struct{}{}
	}
	return p
}

// Wildcard reports whether every origin is accepted.
func (p Policy) Wildcard() bool { return p.wildcard }

func (p Policy) explicit() bool { return p.wildcard || len(p.allowed) > 0 }

// Check validates a raw Origin header against the policy for a request that
// arrived with the given Host header. It returns the normalized origin to echo
// back in CORS responses.
func (p Policy) Check(originHeader, requestHost string) (string, bool) {
	normalized, host, ok := NormalizeHeader(originHeader)
	if !ok {
		return "", false
	}
	return normalized, p.allows(normalized, host, requestHost)
}

func (p Policy) allows(normalizedOrigin, originHost, requestHost string) bool {
	if p.explicit() {
		if p.wildcard {
			return true
		}
		_, ok := p.allowed[normalizedOrigin]
		return ok
	}

	// Same host:port only. Scheme is not compared since the relay usually
	// sits behind a TLS-terminating proxy.
	var scheme string
	switch {
	case strings.HasPrefix(normalizedOrigin, "http://"):
		scheme = "http"
	case strings.HasPrefix(normalizedOrigin, "https://"):
		scheme = "https"
	default:
		return false
	}

	requestAuthority, ok := normalizeAuthority(strings.TrimSpace(requestHost), scheme)
	if !ok {
		return false
	}
	return originHost == requestAuthority
}

// normalizeAuthority lowercases host[:port], brackets IPv6 literals and
// drops the scheme's default port.
func normalizeAuthority(raw, scheme string) (string, bool) {
	hostname, rawPort, ok := splitHostPort(raw)
	if !ok {
		return "", false
	}
	hostname = strings.ToLower(hostname)
	if hostname == "" {
		return "", false
	}

	var port uint64
	if rawPort != "" {
		n, err := strconv.ParseUint(rawPort, 10, 16)
		if err != nil || n == 0 {
			return "", false
		}
		port = n
	}
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		port = 0
	}

	host := hostname
	if strings.Contains(hostname, ":") {
		host = "[" + hostname + "]"
	}
	if port != 0 {
		host += ":" + strconv.FormatUint(port, 10)
	}
	return host, true
}

// splitHostPort splits host[:port]. IPv6 literals come back without
// brackets; the port is not validated.
func splitHostPort(rawHost string) (hostname, port string, ok bool) {
	if rawHost == "" {
		return "", "", false
	}

	if strings.HasPrefix(rawHost, "[") {
		end := strings.IndexByte(rawHost, ']')
		if end < 0 {
			return "", "", false
		}
		hostname = rawHost[1:end]
		rest := rawHost[end+1:]
		if rest == "" {
			return hostname, "", true
		}
		if !strings.HasPrefix(rest, ":") || len(rest) == 1 {
			return "", "", false
		}
		return hostname, rest[1:], true
	}

	hostname, port, found := strings.Cut(rawHost, ":")
	if !found {
		return rawHost, "", true
	}
	if hostname == "" || port == "" || strings.Contains(port, ":") {
		return "", "", false
	}
	return hostname, port, true
}

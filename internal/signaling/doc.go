// Package signaling exposes a relay.Manager over HTTP.
//
// Peers obtain credentials from /connect, keep one push stream open on
// /events (SSE) or /ws (WebSocket), and post negotiation payloads for each
// other to /send-signal/{to}. Operators can inspect and message peers through
// the /admin routes when an API key is configured.
package signaling

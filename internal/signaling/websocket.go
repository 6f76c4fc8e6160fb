package signaling

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/ratelimit"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/relay"
)

// wsSignal is an inbound frame on /ws; it is the socket form of
// POST /send-signal/{to}.
type wsSignal struct {
	To     string          `json:"to"`
	Signal json.RawMessage `json:"signal"`
}

// handleWebSocket serves the WebSocket push stream. Outbound events use the
// same JSON encoding as /events; inbound text frames carry signals.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id, key := q.Get("id"), q.Get("key")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch := newPushChannel(s.cfg.OutboxBytes)
	if err := s.relay.Attach(id, key, ch); err != nil {
		reason := streamError(err)
		if frame, encErr := encodeError(reason); encErr == nil {
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WSWriteWait))
			_ = conn.WriteMessage(websocket.TextMessage, frame)
		}
		s.writeClose(conn, websocket.ClosePolicyViolation, reason)
		return
	}
	defer s.relay.Detach(id, ch)

	idle := 2 * s.cfg.WSPingInterval
	_ = conn.SetReadDeadline(time.Now().Add(idle))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(idle))
	})
	conn.SetReadLimit(s.cfg.MaxSignalBytes)

	clientKey := ratelimit.ClientKey(r, s.cfg.TrustForwardedFor)
	go s.readSignals(conn, ch, id, key, clientKey)

	done := make(chan struct{})
	defer close(done)
	go s.keepaliveLoop(ch, s.cfg.WSPingInterval, done)

	for {
		frame, ok := ch.out.Dequeue()
		if !ok {
			s.writeClose(conn, websocket.CloseNormalClosure, "")
			return
		}
		deadline := time.Now().Add(s.cfg.WSWriteWait)
		if len(frame) == 0 {
			err = conn.WriteControl(websocket.PingMessage, nil, deadline)
		} else {
			_ = conn.SetWriteDeadline(deadline)
			err = conn.WriteMessage(websocket.TextMessage, frame)
		}
		if err != nil {
			ch.stop()
			return
		}
	}
}

// readSignals relays inbound frames until the socket fails, then stops ch so
// the writer loop ends. Problems with a single frame are reported back as an
// {"error"} event without dropping the connection.
func (s *Server) readSignals(conn *websocket.Conn, ch *pushChannel, id, key, clientKey string) {
	defer ch.stop()
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				s.log.Debug("websocket frame too large", "peer_id", id)
			}
			return
		}
		if msgType != websocket.TextMessage {
			ch.reply(relay.Message{Error: "expected text message"})
			continue
		}
		if !s.cfg.SignalLimiter.Allow(clientKey) {
			s.cfg.Metrics.RateLimited("send_signal")
			ch.reply(relay.Message{Error: "rate limited"})
			continue
		}

		var msg wsSignal
		if err := json.Unmarshal(data, &msg); err != nil || msg.To == "" {
			ch.reply(relay.Message{Error: "invalid message"})
			continue
		}
		if err := s.relay.SendSignal(id, key, msg.To, msg.Signal); err != nil {
			_, code := statusForError(err)
			ch.reply(relay.Message{Error: code})
		}
	}
}

func (s *Server) writeClose(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(s.cfg.WSWriteWait))
}

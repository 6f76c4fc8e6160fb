package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/auth"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/relay"
)

// Error strings pushed as {"error": ...} when a stream cannot be attached.
const (
	streamErrIncorrectKey = "incorrect key"
	streamErrInvalidID    = "invalid id"
	streamErrUnavailable  = "unavailable"
)

func streamError(err error) string {
	switch {
	case auth.IsUnauthorized(err):
		return streamErrIncorrectKey
	case errors.Is(err, relay.ErrInvalidID):
		return streamErrInvalidID
	default:
		return streamErrUnavailable
	}
}

// handleEvents serves the SSE push stream. Attach failures are reported in
// the stream itself since EventSource cannot read error statuses.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}

	q := r.URL.Query()
	id, key := q.Get("id"), q.Get("key")

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := newPushChannel(s.cfg.OutboxBytes)
	if err := s.relay.Attach(id, key, ch); err != nil {
		frame, _ := encodeError(streamError(err))
		_, _ = fmt.Fprintf(w, "data: %s\n\n", frame)
		flusher.Flush()
		return
	}
	defer s.relay.Detach(id, ch)

	stop := context.AfterFunc(r.Context(), ch.stop)
	defer stop()

	done := make(chan struct{})
	defer close(done)
	go s.keepaliveLoop(ch, s.cfg.SSEKeepalive, done)

	for {
		frame, ok := ch.out.Dequeue()
		if !ok {
			return
		}
		var err error
		if len(frame) == 0 {
			_, err = fmt.Fprint(w, ":\n\n")
		} else {
			_, err = fmt.Fprintf(w, "data: %s\n\n", frame)
		}
		if err != nil {
			ch.stop()
			return
		}
		flusher.Flush()
	}
}

// keepaliveLoop asks the writer for a keepalive every interval until done or
// the channel stops accepting frames.
func (s *Server) keepaliveLoop(ch *pushChannel, interval time.Duration, done <-chan struct{}) {
	ticker := s.cfg.Clock.Ticker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if !ch.keepalive() {
				return
			}
		}
	}
}

func encodeError(msg string) ([]byte, error) {
	return json.Marshal(relay.Message{Error: msg})
}

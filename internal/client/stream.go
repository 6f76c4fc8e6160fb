package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Stream yields pushed events until the relay closes it.
type Stream interface {
	// Next blocks for the next event. It returns io.EOF once the relay has
	// closed the stream normally.
	Next() (Event, error)
	Close() error
}

// EventStream reads /events (server-sent events).
type EventStream struct {
	body io.ReadCloser
	r    *bufio.Reader
}

var _ Stream = (*EventStream)(nil)

// Events opens the SSE push stream. The stream ends when ctx is done.
func (c *Client) Events(ctx context.Context, creds Credentials) (*EventStream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Base+"/events?"+credsQuery(creds).Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &StatusError{Status: resp.StatusCode}
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		resp.Body.Close()
		return nil, fmt.Errorf("client: unexpected content type %q", ct)
	}
	return &EventStream{body: resp.Body, r: bufio.NewReader(resp.Body)}, nil
}

func (s *EventStream) Next() (Event, error) {
	var data bytes.Buffer
	for {
		line, err := s.r.ReadString('\n')
		if err != nil {
			if err == io.EOF && line == "" && data.Len() == 0 {
				return Event{}, io.EOF
			}
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return Event{}, err
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if data.Len() == 0 {
				continue
			}
			var ev Event
			if err := json.Unmarshal(data.Bytes(), &ev); err != nil {
				return Event{}, fmt.Errorf("client: decode event: %w", err)
			}
			return ev, nil
		case strings.HasPrefix(line, ":"):
			// keepalive
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
}

func (s *EventStream) Close() error {
	return s.body.Close()
}

// Socket is the /ws push stream. Besides receiving events it can send
// signals without a separate HTTP request.
type Socket struct {
	conn *websocket.Conn

	writeMu sync.Mutex
}

var _ Stream = (*Socket)(nil)

const socketWriteWait = 5 * time.Second

func (c *Client) Dial(ctx context.Context, creds Credentials) (*Socket, error) {
	u := c.Base + "/ws?" + credsQuery(creds).Encode()
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil {
			return nil, &StatusError{Status: resp.StatusCode}
		}
		return nil, err
	}
	return &Socket{conn: conn}, nil
}

func (s *Socket) Next() (Event, error) {
	for {
		typ, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return Event{}, io.EOF
			}
			return Event{}, err
		}
		if typ != websocket.TextMessage {
			continue
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return Event{}, fmt.Errorf("client: decode event: %w", err)
		}
		return ev, nil
	}
}

// Signal relays signal to peer to over the socket. Delivery failures come
// back as an Event with Error set.
func (s *Socket) Signal(to string, signal any) error {
	raw, err := encodeSignal(signal)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(struct {
		To     string          `json:"to"`
		Signal json.RawMessage `json:"signal"`
	}{to, raw})
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}

func (s *Socket) Close() error {
	s.writeMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(socketWriteWait))
	s.writeMu.Unlock()
	return s.conn.Close()
}

package signaling

import (
	"net/http"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/origin"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/relay"
)

func (e *testEnv) dialWS(t *testing.T, id, key string, header http.Header) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws?" + credsQuery(id, key)
	c, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func readWS(t *testing.T, c *websocket.Conn) relay.Message {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg relay.Message
	if err := c.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return msg
}

func TestWebSocket_SignalsBothWays(t *testing.T) {
	env := newTestEnv(t)

	a := env.connect(t)
	ca := env.dialWS(t, a.ID, a.Key, nil)
	if msg := readWS(t, ca); !reflect.DeepEqual(msg.Presence, []string{a.ID}) {
		t.Fatalf("event=%+v, want presence [%s]", msg, a.ID)
	}

	b := env.connect(t)
	if msg := readWS(t, ca); !reflect.DeepEqual(msg.Connect, []string{b.ID}) {
		t.Fatalf("event=%+v, want connect [%s]", msg, b.ID)
	}
	cb := env.dialWS(t, b.ID, b.Key, nil)
	if msg := readWS(t, cb); !reflect.DeepEqual(msg.Presence, []string{a.ID, b.ID}) {
		t.Fatalf("event=%+v, want presence [%s %s]", msg, a.ID, b.ID)
	}

	if err := cb.WriteMessage(websocket.TextMessage, []byte(`{"to":"`+a.ID+`","signal":{"candidate":"c1"}}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg := readWS(t, ca)
	if msg.From != b.ID {
		t.Fatalf("from=%q, want %q", msg.From, b.ID)
	}
	jsonEqual(t, msg.Signal, `{"candidate":"c1"}`)

	if err := cb.WriteMessage(websocket.TextMessage, []byte(`{"to":"nobody","signal":1}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := readWS(t, cb); msg.Error != "not_found" {
		t.Fatalf("event=%+v, want error not_found", msg)
	}

	if err := cb.WriteMessage(websocket.TextMessage, []byte(`garbage`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := readWS(t, cb); msg.Error != "invalid message" {
		t.Fatalf("event=%+v, want error invalid message", msg)
	}
}

func TestWebSocket_WrongKeyClosesWithError(t *testing.T) {
	env := newTestEnv(t)
	a := env.connect(t)

	c := env.dialWS(t, a.ID, "wrong", nil)
	if msg := readWS(t, c); msg.Error != "incorrect key" {
		t.Fatalf("event=%+v, want error incorrect key", msg)
	}
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := c.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("err=%v, want close policy violation", err)
	}
}

func TestWebSocket_DisconnectClosesNormally(t *testing.T) {
	env := newTestEnv(t)
	a := env.connect(t)
	c := env.dialWS(t, a.ID, a.Key, nil)
	readWS(t, c)

	resp := env.do(t, http.MethodGet, "/disconnect?"+credsQuery(a.ID, a.Key), "", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status=%d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := c.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("err=%v, want normal closure", err)
	}
}

func TestWebSocket_Ping(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.WSPingInterval = 20 * time.Millisecond })
	a := env.connect(t)
	c := env.dialWS(t, a.ID, a.Key, nil)

	pingSeen := make(chan struct{}, 1)
	c.SetPingHandler(func(data string) error {
		select {
		case pingSeen <- struct{}{}:
		default:
		}
		return c.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	go func() {
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-pingSeen:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for server ping")
	}
}

func TestWebSocket_OriginPolicy(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.Origins = origin.NewPolicy([]string{"https://app.example.com"})
	})
	a := env.connect(t)
	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/ws?" + credsQuery(a.ID, a.Key)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"https://evil.example.com"}})
	if err == nil {
		t.Fatalf("expected dial to fail for disallowed origin")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("resp=%v, want 403", resp)
	}

	c := env.dialWS(t, a.ID, a.Key, http.Header{"Origin": {"https://app.example.com"}})
	if msg := readWS(t, c); !reflect.DeepEqual(msg.Presence, []string{a.ID}) {
		t.Fatalf("event=%+v, want presence", msg)
	}
}

// Package client talks to a signal relay over HTTP, SSE and WebSocket.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pion/webrtc/v4"
)

// Credentials identify a peer. They are returned by Connect and are needed
// for every other call.
type Credentials struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// StatusError is returned when the relay answers with a non-success status.
type StatusError struct {
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("relay returned %d", e.Status)
	}
	return fmt.Sprintf("relay returned %d %s: %s", e.Status, e.Code, e.Message)
}

// IsNotFound reports whether err is a relay 404 (unknown peer or target).
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == http.StatusNotFound
}

type Client struct {
	Base string
	HTTP *http.Client
}

func New(base string) *Client {
	return &Client{
		Base: strings.TrimRight(base, "/"),
		HTTP: http.DefaultClient,
	}
}

func (c *Client) Connect(ctx context.Context) (Credentials, error) {
	var out Credentials
	if err := c.do(ctx, http.MethodGet, "/connect", nil, nil, &out); err != nil {
		return Credentials{}, err
	}
	return out, nil
}

func (c *Client) Disconnect(ctx context.Context, creds Credentials) error {
	return c.do(ctx, http.MethodPost, "/disconnect", credsQuery(creds), nil, nil)
}

// SendSignal relays signal to peer to. signal is encoded as JSON unless it is
// already a json.RawMessage.
func (c *Client) SendSignal(ctx context.Context, creds Credentials, to string, signal any) error {
	raw, err := encodeSignal(signal)
	if err != nil {
		return err
	}
	body := struct {
		ID     string          `json:"id"`
		Key    string          `json:"key"`
		Signal json.RawMessage `json:"signal"`
	}{creds.ID, creds.Key, raw}
	return c.do(ctx, http.MethodPost, "/send-signal/"+url.PathEscape(to), nil, body, nil)
}

// ICEServers fetches the ICE servers the relay hands out to this peer,
// including per-peer TURN credentials when the relay issues them.
func (c *Client) ICEServers(ctx context.Context, creds Credentials) ([]webrtc.ICEServer, error) {
	var out struct {
		ICEServers []webrtc.ICEServer `json:"iceServers"`
	}
	if err := c.do(ctx, http.MethodGet, "/webrtc/ice", credsQuery(creds), nil, &out); err != nil {
		return nil, err
	}
	return out.ICEServers, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.Base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{Status: resp.StatusCode}
		var payload struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&payload) == nil {
			se.Code, se.Message = payload.Code, payload.Message
		}
		return se
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func credsQuery(creds Credentials) url.Values {
	return url.Values{"id": {creds.ID}, "key": {creds.Key}}
}

func encodeSignal(signal any) (json.RawMessage, error) {
	if raw, ok := signal.(json.RawMessage); ok {
		if !json.Valid(raw) {
			return nil, errors.New("client: signal is not valid JSON")
		}
		return raw, nil
	}
	return json.Marshal(signal)
}

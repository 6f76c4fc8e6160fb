package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pion/webrtc/v4"

	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/auth"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/client"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/relay"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/signaling"
)

func startRelay(t *testing.T, iceServers ...webrtc.ICEServer) string {
	t.Helper()
	issuer, err := auth.NewIssuer("test-secret")
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr := relay.NewManager(relay.DefaultConfig(), issuer, nil, clock.NewMock(), logger)
	srv := signaling.NewServer(signaling.Config{
		Relay:      mgr,
		Logger:     logger,
		ICEServers: iceServers,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		mgr.Close()
		ts.CloseClientConnections()
		ts.Close()
	})
	return ts.URL
}

func run(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func connectVia(t *testing.T, relayURL string) client.Credentials {
	t.Helper()
	out, err := run(t, context.Background(), "--relay", relayURL, "connect")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	var creds client.Credentials
	if err := json.Unmarshal([]byte(out), &creds); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	return creds
}

func TestCLI_ConnectSendListen(t *testing.T) {
	relayURL := startRelay(t)

	a := connectVia(t, relayURL)
	b := connectVia(t, relayURL)

	out, err := run(t, context.Background(), "--relay", relayURL, "send", a.ID, `{"type":"offer","sdp":"v=0"}`, "--id", b.ID, "--key", b.Key)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if strings.TrimSpace(out) != "sent" {
		t.Fatalf("send output=%q", out)
	}

	// a was never attached, so its queue replays on listen. The deadline ends
	// the stream.
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	out, err = run(t, ctx, "--relay", relayURL, "listen", "--id", a.ID, "--key", a.Key)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) < 3 {
		t.Fatalf("listen output=%q, want connect, signal and presence events", out)
	}
	var sig client.Event
	if err := json.Unmarshal([]byte(lines[1]), &sig); err != nil {
		t.Fatalf("decode %q: %v", lines[1], err)
	}
	if sig.From != b.ID {
		t.Fatalf("event=%+v, want signal from %s", sig, b.ID)
	}
	if desc, ok := sig.SessionDescription(); !ok || desc.Type != webrtc.SDPTypeOffer {
		t.Fatalf("signal %s is not an offer", sig.Signal)
	}
}

func TestCLI_ICEAndDisconnect(t *testing.T) {
	relayURL := startRelay(t, webrtc.ICEServer{URLs: []string{"stun:stun.example.com:3478"}})
	a := connectVia(t, relayURL)

	out, err := run(t, context.Background(), "--relay", relayURL, "ice", "--id", a.ID, "--key", a.Key)
	if err != nil {
		t.Fatalf("ice: %v", err)
	}
	if !strings.Contains(out, "stun:stun.example.com:3478") {
		t.Fatalf("ice output=%q", out)
	}

	if _, err := run(t, context.Background(), "--relay", relayURL, "disconnect", "--id", a.ID, "--key", a.Key); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if _, err := run(t, context.Background(), "--relay", relayURL, "disconnect", "--id", a.ID, "--key", a.Key); !client.IsNotFound(err) {
		t.Fatalf("second disconnect err=%v, want not found", err)
	}
}

func TestCLI_RequiresCredentials(t *testing.T) {
	if _, err := run(t, context.Background(), "--relay", "http://127.0.0.1:1", "ice"); err == nil || !strings.Contains(err.Error(), "--id and --key") {
		t.Fatalf("err=%v, want missing credentials error", err)
	}
	if _, err := run(t, context.Background(), "send", "only-one-arg"); err == nil {
		t.Fatalf("expected arg count error")
	}
}

func TestCLI_EchoAndPing(t *testing.T) {
	relayURL := startRelay(t)
	a := connectVia(t, relayURL)
	b := connectVia(t, relayURL)

	echoCtx, stopEcho := context.WithCancel(context.Background())
	echoDone := make(chan error, 1)
	go func() {
		_, err := run(t, echoCtx, "--relay", relayURL, "echo", "--id", a.ID, "--key", a.Key)
		echoDone <- err
	}()
	t.Cleanup(func() {
		stopEcho()
		select {
		case <-echoDone:
		case <-time.After(5 * time.Second):
		}
	})

	out, err := run(t, context.Background(), "--relay", relayURL, "ping", a.ID, "--id", b.ID, "--key", b.Key, "--message", "hello", "--timeout", "20s")
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	if !strings.Contains(out, `reply "hello" from `+a.ID) {
		t.Fatalf("ping output=%q", out)
	}

	stopEcho()
	select {
	case err := <-echoDone:
		if err != nil {
			t.Fatalf("echo: %v", err)
		}
		echoDone <- nil
	case <-time.After(5 * time.Second):
		t.Fatalf("echo did not stop after cancel")
	}
}

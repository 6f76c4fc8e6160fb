package main

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/auth"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/config"
)

type recordedLog struct {
	level slog.Level
	msg   string
	attrs map[string]any
}

type recordingHandler struct {
	mu      *sync.Mutex
	records *[]recordedLog
	attrs   []slog.Attr
}

func newRecordingLogger() (*slog.Logger, func() []recordedLog) {
	mu := &sync.Mutex{}
	records := &[]recordedLog{}
	logger := slog.New(&recordingHandler{mu: mu, records: records})
	return logger, func() []recordedLog {
		mu.Lock()
		defer mu.Unlock()
		out := make([]recordedLog, len(*records))
		copy(out, *records)
		return out
	}
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	rec := recordedLog{
		level: r.Level,
		msg:   r.Message,
		attrs: map[string]any{},
	}
	for _, a := range h.attrs {
		rec.attrs[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		rec.attrs[a.Key] = a.Value.Any()
		return true
	})

	h.mu.Lock()
	*h.records = append(*h.records, rec)
	h.mu.Unlock()
	return nil
}

func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &recordingHandler{
		mu:      h.mu,
		records: h.records,
		attrs:   append(append([]slog.Attr(nil), h.attrs...), attrs...),
	}
}

func (h *recordingHandler) WithGroup(string) slog.Handler {
	return h
}

func warningCodes(records []recordedLog) map[string]bool {
	out := map[string]bool{}
	for _, r := range records {
		if r.level != slog.LevelWarn {
			continue
		}
		if code, ok := r.attrs["warning_code"].(string); ok {
			out[code] = true
		}
	}
	return out
}

func TestStartupSecurityWarnings_EphemeralSecret(t *testing.T) {
	logger, records := newRecordingLogger()

	ephemeral, err := auth.NewIssuer("")
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	logStartupSecurityWarnings(logger, config.Config{Mode: config.ModeDev}, ephemeral)
	if !warningCodes(records())["secret_ephemeral"] {
		t.Fatalf("expected warning_code=secret_ephemeral, got %#v", records())
	}

	logger, records = newRecordingLogger()
	configured, err := auth.NewIssuer("configured")
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	logStartupSecurityWarnings(logger, config.Config{Mode: config.ModeDev}, configured)
	if warningCodes(records())["secret_ephemeral"] {
		t.Fatalf("unexpected secret_ephemeral warning for configured secret")
	}
}

func TestStartupSecurityWarnings_AllowedOriginsWildcard(t *testing.T) {
	logger, records := newRecordingLogger()

	cfg := config.Config{
		Mode:           config.ModeDev,
		AllowedOrigins: []string{"https://app.example.com", "*"},
	}
	logStartupSecurityWarnings(logger, cfg, nil)

	if !warningCodes(records())["allowed_origins_wildcard"] {
		t.Fatalf("expected warning_code=allowed_origins_wildcard, got %#v", records())
	}
}

func TestStartupSecurityWarnings_ProdOnly(t *testing.T) {
	cfg := config.Config{
		Mode:              config.ModeDev,
		MaxQueuedMessages: 0,
		ConnectRate:       0,
	}

	logger, records := newRecordingLogger()
	logStartupSecurityWarnings(logger, cfg, nil)
	codes := warningCodes(records())
	if codes["max_queued_messages_unbounded_in_prod"] || codes["connect_rate_unlimited_in_prod"] {
		t.Fatalf("prod-only warnings logged in dev: %#v", records())
	}

	cfg.Mode = config.ModeProd
	logger, records = newRecordingLogger()
	logStartupSecurityWarnings(logger, cfg, nil)
	codes = warningCodes(records())
	if !codes["max_queued_messages_unbounded_in_prod"] {
		t.Fatalf("expected max_queued_messages_unbounded_in_prod, got %#v", records())
	}
	if !codes["connect_rate_unlimited_in_prod"] {
		t.Fatalf("expected connect_rate_unlimited_in_prod, got %#v", records())
	}
}

func TestStartupSecurityWarnings_TURNRESTTTL(t *testing.T) {
	logger, records := newRecordingLogger()

	cfg := config.Config{
		Mode: config.ModeDev,
		TURNREST: config.TurnRESTConfig{
			SharedSecret: "s",
			TTLSeconds:   7 * 24 * 60 * 60,
		},
	}
	logStartupSecurityWarnings(logger, cfg, nil)

	if !warningCodes(records())["turn_rest_ttl_large"] {
		t.Fatalf("expected warning_code=turn_rest_ttl_large, got %#v", records())
	}
}

func TestStartupSecurityWarnings_QuietDefaults(t *testing.T) {
	logger, records := newRecordingLogger()

	issuer, err := auth.NewIssuer("configured")
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	cfg := config.Config{
		Mode:              config.ModeProd,
		MaxQueuedMessages: 100,
		ConnectRate:       config.DefaultConnectRate,
		PeerTimeout:       config.DefaultPeerTimeout,
	}
	logStartupSecurityWarnings(logger, cfg, issuer)

	if codes := warningCodes(records()); len(codes) != 0 {
		t.Fatalf("unexpected warnings: %#v", codes)
	}
}

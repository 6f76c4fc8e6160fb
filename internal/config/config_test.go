package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func lookupMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func noEnv(string) (string, bool) { return "", false }

func TestDefaultsDev(t *testing.T) {
	cfg, err := load(noEnv, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != ModeDev {
		t.Fatalf("mode=%q, want %q", cfg.Mode, ModeDev)
	}
	if cfg.LogFormat != LogFormatText {
		t.Fatalf("logFormat=%q, want %q", cfg.LogFormat, LogFormatText)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("logLevel=%v, want %v", cfg.LogLevel, slog.LevelDebug)
	}
	if cfg.ListenAddr != DefaultListenAddr {
		t.Fatalf("ListenAddr=%q, want %q", cfg.ListenAddr, DefaultListenAddr)
	}
	if cfg.IDLength != DefaultIDLength {
		t.Fatalf("IDLength=%d, want %d", cfg.IDLength, DefaultIDLength)
	}
	if cfg.PeerTimeout != DefaultPeerTimeout {
		t.Fatalf("PeerTimeout=%v, want %v", cfg.PeerTimeout, DefaultPeerTimeout)
	}
	if !cfg.Presence {
		t.Fatalf("Presence=false, want true")
	}
	if cfg.MaxQueuedMessages != 0 {
		t.Fatalf("MaxQueuedMessages=%d, want 0", cfg.MaxQueuedMessages)
	}
	if cfg.OutboxBytes != DefaultOutboxBytes {
		t.Fatalf("OutboxBytes=%d, want %d", cfg.OutboxBytes, DefaultOutboxBytes)
	}
	if cfg.Secret != "" {
		t.Fatalf("Secret=%q, want empty", cfg.Secret)
	}
	if cfg.TURNREST.Enabled() {
		t.Fatalf("TURN REST enabled by default")
	}
	if err := cfg.ICEConfigError(); err != nil {
		t.Fatalf("ICEConfigError=%v, want nil", err)
	}
}

func TestDefaultsProdWhenModeFlagSet(t *testing.T) {
	cfg, err := load(noEnv, []string{"--mode", "prod"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != ModeProd {
		t.Fatalf("mode=%q, want %q", cfg.Mode, ModeProd)
	}
	if cfg.LogFormat != LogFormatJSON {
		t.Fatalf("logFormat=%q, want %q", cfg.LogFormat, LogFormatJSON)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("logLevel=%v, want %v", cfg.LogLevel, slog.LevelInfo)
	}
}

func TestExplicitLogFormatOverridesMode(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		envVarMode:      "prod",
		envVarLogFormat: "text",
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogFormat != LogFormatText {
		t.Fatalf("logFormat=%q, want %q", cfg.LogFormat, LogFormatText)
	}
}

func TestSessionKnobs_EnvAndFlags(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		envVarIDLength:          "24",
		envVarPeerTimeout:       "30s",
		envVarPresence:          "false",
		envVarMaxQueuedMessages: "100",
	}), []string{"--peer-timeout", "45s"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.IDLength != 24 {
		t.Fatalf("IDLength=%d, want 24", cfg.IDLength)
	}
	if cfg.PeerTimeout != 45*time.Second {
		t.Fatalf("PeerTimeout=%v, want 45s (flag wins over env)", cfg.PeerTimeout)
	}
	if cfg.Presence {
		t.Fatalf("Presence=true, want false")
	}
	if cfg.MaxQueuedMessages != 100 {
		t.Fatalf("MaxQueuedMessages=%d, want 100", cfg.MaxQueuedMessages)
	}
}

func TestSecretFromEnv(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{EnvVarSecretFallback: "fallback"}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Secret != "fallback" {
		t.Fatalf("Secret=%q, want fallback", cfg.Secret)
	}

	cfg, err = load(lookupMap(map[string]string{
		EnvVarSecret:         "primary",
		EnvVarSecretFallback: "fallback",
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Secret != "primary" {
		t.Fatalf("Secret=%q, want primary", cfg.Secret)
	}
}

func TestAllowedOriginsNormalized(t *testing.T) {
	cfg, err := load(noEnv, []string{"--allowed-origins", "HTTPS://Example.com:443, *"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[0] != "https://example.com" || cfg.AllowedOrigins[1] != "*" {
		t.Fatalf("AllowedOrigins=%v", cfg.AllowedOrigins)
	}
}

func TestInvalidValues(t *testing.T) {
	cases := []struct {
		name    string
		env     map[string]string
		args    []string
		wantErr string
	}{
		{name: "id length", args: []string{"--id-length", "0"}, wantErr: "--id-length"},
		{name: "peer timeout", args: []string{"--peer-timeout", "0s"}, wantErr: "--peer-timeout"},
		{name: "negative queue", args: []string{"--max-queued-messages", "-1"}, wantErr: "--max-queued-messages"},
		{name: "outbox", args: []string{"--outbox-bytes", "0"}, wantErr: "--outbox-bytes"},
		{name: "signal bytes", args: []string{"--max-signal-bytes", "0"}, wantErr: "--max-signal-bytes"},
		{name: "burst", args: []string{"--rate-burst", "0"}, wantErr: "--rate-burst"},
		{name: "mode", args: []string{"--mode", "staging"}, wantErr: "invalid mode"},
		{name: "log level", args: []string{"--log-level", "loud"}, wantErr: "invalid log level"},
		{name: "origin", args: []string{"--allowed-origins", "example.com"}, wantErr: "--allowed-origins"},
		{name: "env int", env: map[string]string{envVarIDLength: "abc"}, wantErr: envVarIDLength},
		{name: "env bool", env: map[string]string{envVarPresence: "maybe"}, wantErr: envVarPresence},
		{
			name:    "turn rest prefix",
			env:     map[string]string{envVarTURNRESTSharedSecret: "s", envVarTURNRESTUsernamePrefix: "a:b"},
			wantErr: "--turn-rest-username-prefix",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := load(lookupMap(tc.env), tc.args)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err=%q, want it to mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestRateBurstIgnoredWhenLimitingDisabled(t *testing.T) {
	_, err := load(noEnv, []string{"--connect-rate", "0", "--signal-rate", "0", "--rate-burst", "0"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
}

func TestICEConfigErrorDoesNotFailLoad(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{envTurnURLs: "turn:turn.example.com"}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ICEConfigError() == nil {
		t.Fatalf("expected ICE config error for TURN without credentials")
	}

	cfg, err = load(lookupMap(map[string]string{
		envTurnURLs:                "turn:turn.example.com",
		envVarTURNRESTSharedSecret: "shared",
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.ICEConfigError(); err != nil {
		t.Fatalf("ICEConfigError=%v, want nil with TURN REST", err)
	}
	if len(cfg.ICEServers) != 1 {
		t.Fatalf("ICEServers=%v, want one TURN entry", cfg.ICEServers)
	}
}

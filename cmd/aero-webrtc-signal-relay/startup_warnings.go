package main

import (
	"log/slog"
	"slices"
	"time"

	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/auth"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/config"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/origin"
)

func logStartupSecurityWarnings(logger *slog.Logger, cfg config.Config, issuer *auth.Issuer) {
	if logger == nil {
		logger = slog.Default()
	}

	if issuer != nil && issuer.Ephemeral() {
		logger.Warn("startup security warning: "+config.EnvVarSecret+" is unset; using a random secret (peer credentials will not survive a restart)",
			"warning_code", "secret_ephemeral",
			"mode", cfg.Mode,
		)
	}

	if slices.Contains(cfg.AllowedOrigins, origin.Wildcard) {
		logger.Warn("startup security warning: ALLOWED_ORIGINS contains '*' (allows any origin)",
			"warning_code", "allowed_origins_wildcard",
			"allowed_origins", cfg.AllowedOrigins,
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && cfg.MaxQueuedMessages <= 0 {
		logger.Warn("startup security warning: SIGNAL_RELAY_MAX_QUEUED_MESSAGES is unset/0 (unbounded per-peer queues) while --mode=prod",
			"warning_code", "max_queued_messages_unbounded_in_prod",
			"max_queued_messages", cfg.MaxQueuedMessages,
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && cfg.ConnectRate <= 0 {
		logger.Warn("startup security warning: /connect rate limiting is disabled while --mode=prod",
			"warning_code", "connect_rate_unlimited_in_prod",
			"connect_rate", cfg.ConnectRate,
			"mode", cfg.Mode,
		)
	}

	if cfg.TrustForwardedFor {
		logger.Warn("startup security warning: TRUST_X_FORWARDED_FOR=true keys rate limits on a client-supplied header (only safe behind a trusted proxy)",
			"warning_code", "trust_x_forwarded_for",
			"mode", cfg.Mode,
		)
	}

	if cfg.PeerTimeout > 5*time.Minute {
		logger.Warn("startup security warning: SIGNAL_RELAY_PEER_TIMEOUT is very large (detached peers keep their queues for a long time)",
			"warning_code", "peer_timeout_large",
			"peer_timeout", cfg.PeerTimeout,
			"mode", cfg.Mode,
		)
	}

	if cfg.TURNREST.Enabled() && cfg.TURNREST.TTLSeconds > 24*60*60 {
		logger.Warn("startup security warning: TURN_REST_TTL_SECONDS exceeds one day (long-lived TURN credentials)",
			"warning_code", "turn_rest_ttl_large",
			"turn_rest_ttl_seconds", cfg.TURNREST.TTLSeconds,
			"mode", cfg.Mode,
		)
	}
}

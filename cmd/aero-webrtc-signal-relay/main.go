package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/benbjohnson/clock"

	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/auth"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/config"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/httpserver"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/ratelimit"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/relay"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/signaling"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/turnrest"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildCommit = ""
	buildTime   = ""
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	commit, buildTime := resolveBuildInfo(buildCommit, buildTime)

	a, err := newApp(cfg, logger, clock.New(), httpserver.BuildInfo{Commit: commit, BuildTime: buildTime})
	if err != nil {
		logger.Error("failed to configure relay", "err", err)
		os.Exit(2)
	}

	logger.Info("starting aero-webrtc-signal-relay",
		"listen_addr", cfg.ListenAddr,
		"public_base_url", cfg.PublicBaseURL,
		"mode", cfg.Mode,
		"id_length", cfg.IDLength,
		"peer_timeout", cfg.PeerTimeout,
		"presence", cfg.Presence,
		"max_queued_messages", cfg.MaxQueuedMessages,
		"ice_servers", len(cfg.ICEServers),
		"turn_rest_enabled", cfg.TURNREST.Enabled(),
		"admin_enabled", cfg.AdminAPIKey != "",
	)

	logStartupSecurityWarnings(logger, cfg, a.issuer)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("failed to listen", "err", err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.srv.Serve(ln)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		a.relay.Close()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server exited", "err", err)
			os.Exit(1)
		}
		return
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "err", err)
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server exited after shutdown", "err", err)
		os.Exit(1)
	}
}

type app struct {
	issuer  *auth.Issuer
	metrics *metrics.Metrics
	relay   *relay.Manager
	srv     *httpserver.Server
}

// newApp wires the session engine and its HTTP surface. It does not listen.
func newApp(cfg config.Config, logger *slog.Logger, clk clock.Clock, build httpserver.BuildInfo) (*app, error) {
	issuer, err := auth.NewIssuer(cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("credential issuer: %w", err)
	}

	m := metrics.New()

	mgr := relay.NewManager(relay.Config{
		IDLength:          cfg.IDLength,
		Timeout:           cfg.PeerTimeout,
		Presence:          cfg.Presence,
		MaxQueuedMessages: cfg.MaxQueuedMessages,
	}, issuer, m, clk, logger)

	turn, err := turnrest.FromConfig(cfg.TURNREST)
	if err != nil {
		mgr.Close()
		return nil, fmt.Errorf("turn rest: %w", err)
	}

	connectLimiter, err := ratelimit.NewKeyed(cfg.ConnectRate, cfg.RateBurst, cfg.RateLimiterCache, clk)
	if err != nil {
		mgr.Close()
		return nil, fmt.Errorf("connect rate limiter: %w", err)
	}
	signalLimiter, err := ratelimit.NewKeyed(cfg.SignalRate, cfg.RateBurst, cfg.RateLimiterCache, clk)
	if err != nil {
		mgr.Close()
		return nil, fmt.Errorf("signal rate limiter: %w", err)
	}

	var admin auth.Verifier
	if cfg.AdminAPIKey != "" {
		admin = auth.APIKeyVerifier{Expected: cfg.AdminAPIKey}
	}

	srv := httpserver.New(cfg, logger, build, m)
	sig := signaling.NewServer(signaling.Config{
		Relay:             mgr,
		Metrics:           m,
		Logger:            logger,
		Clock:             clk,
		ICEServers:        cfg.ICEServers,
		ICEConfigError:    cfg.ICEConfigError(),
		TURN:              turn,
		Origins:           srv.Origins(),
		Admin:             admin,
		ConnectLimiter:    connectLimiter,
		SignalLimiter:     signalLimiter,
		TrustForwardedFor: cfg.TrustForwardedFor,
		OutboxBytes:       cfg.OutboxBytes,
		SSEKeepalive:      cfg.SSEKeepalive,
		WSPingInterval:    cfg.WSPingInterval,
		WSWriteWait:       cfg.WSWriteWait,
		MaxSignalBytes:    cfg.MaxSignalBytes,
	})
	sig.RegisterRoutes(srv.Mux())

	// Shutdown waits for idle connections; closing the manager ends every
	// /events and /ws stream.
	srv.RegisterOnShutdown(mgr.Close)

	return &app{issuer: issuer, metrics: m, relay: mgr, srv: srv}, nil
}

func resolveBuildInfo(commit, buildTime string) (string, string) {
	// Prefer ldflags-injected values but fall back to the Go build info
	// (useful for `go run` / dev builds).
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if buildTime == "" {
					buildTime = s.Value
				}
			}
		}
	}

	return commit, buildTime
}

package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/origin"
)

const (
	envVarListenAddr      = "AERO_WEBRTC_SIGNAL_RELAY_LISTEN_ADDR"
	envVarPublicBaseURL   = "AERO_WEBRTC_SIGNAL_RELAY_PUBLIC_BASE_URL"
	envVarAllowedOrigins  = "ALLOWED_ORIGINS"
	envVarLogFormat       = "AERO_WEBRTC_SIGNAL_RELAY_LOG_FORMAT"
	envVarLogLevel        = "AERO_WEBRTC_SIGNAL_RELAY_LOG_LEVEL"
	envVarShutdownTimeout = "AERO_WEBRTC_SIGNAL_RELAY_SHUTDOWN_TIMEOUT"
	envVarMode            = "AERO_WEBRTC_SIGNAL_RELAY_MODE"

	// Peer credentials. The secret is only read from the environment so it
	// never shows up in process listings.
	EnvVarSecret         = "SIGNAL_RELAY_SECRET"
	EnvVarSecretFallback = "SECRET"

	// Session engine knobs.
	envVarIDLength          = "SIGNAL_RELAY_ID_LENGTH"
	envVarPeerTimeout       = "SIGNAL_RELAY_PEER_TIMEOUT"
	envVarPresence          = "SIGNAL_RELAY_PRESENCE"
	envVarMaxQueuedMessages = "SIGNAL_RELAY_MAX_QUEUED_MESSAGES"

	// Push transports.
	envVarOutboxBytes       = "SIGNAL_RELAY_OUTBOX_BYTES"
	envVarSSEKeepalive      = "SIGNAL_RELAY_SSE_KEEPALIVE"
	envVarWSPingInterval    = "SIGNAL_RELAY_WS_PING_INTERVAL"
	envVarWSWriteWait       = "SIGNAL_RELAY_WS_WRITE_WAIT"
	envVarMaxSignalBytes    = "MAX_SIGNAL_BYTES"
	envVarConnectRate       = "SIGNAL_RELAY_CONNECT_RATE"
	envVarSignalRate        = "SIGNAL_RELAY_SIGNAL_RATE"
	envVarRateBurst         = "SIGNAL_RELAY_RATE_BURST"
	envVarRateLimiterCache  = "SIGNAL_RELAY_RATE_LIMITER_CACHE"
	envVarAdminAPIKey       = "ADMIN_API_KEY"
	envVarTrustForwardedFor = "TRUST_X_FORWARDED_FOR"

	// coturn TURN REST (ephemeral) credentials.
	envVarTURNRESTSharedSecret   = "TURN_REST_SHARED_SECRET"
	envVarTURNRESTTTLSeconds     = "TURN_REST_TTL_SECONDS"
	envVarTURNRESTUsernamePrefix = "TURN_REST_USERNAME_PREFIX"
	envVarTURNRESTRealm          = "TURN_REST_REALM"

	DefaultListenAddr      = "127.0.0.1:8080"
	DefaultShutdown        = 15 * time.Second
	DefaultMode       Mode = ModeDev

	DefaultIDLength    = 16
	DefaultPeerTimeout = 10 * time.Second

	DefaultOutboxBytes    = 256 * 1024
	DefaultSSEKeepalive   = 15 * time.Second
	DefaultWSPingInterval = 20 * time.Second
	DefaultWSWriteWait    = 5 * time.Second
	DefaultMaxSignalBytes = int64(64 * 1024)

	DefaultConnectRate      = 2.0
	DefaultSignalRate       = 50.0
	DefaultRateBurst        = 20
	DefaultRateLimiterCache = 10000

	DefaultTURNRESTTTLSeconds     int64  = 3600
	DefaultTURNRESTUsernamePrefix string = "aero"
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type TurnRESTConfig struct {
	SharedSecret   string
	TTLSeconds     int64
	UsernamePrefix string
	Realm          string
}

func (c TurnRESTConfig) Enabled() bool {
	return strings.TrimSpace(c.SharedSecret) != ""
}

type Config struct {
	ListenAddr      string
	PublicBaseURL   string
	AllowedOrigins  []string
	LogFormat       LogFormat
	LogLevel        slog.Level
	ShutdownTimeout time.Duration
	Mode            Mode

	// Secret keys every peer credential. Empty means a random secret is
	// generated at startup and credentials do not survive restarts.
	Secret string

	IDLength    int
	PeerTimeout time.Duration
	Presence    bool
	// MaxQueuedMessages bounds each peer's pending queue (0 = unbounded).
	MaxQueuedMessages int

	// OutboxBytes bounds the encoded events buffered per push connection.
	OutboxBytes       int
	SSEKeepalive      time.Duration
	WSPingInterval    time.Duration
	WSWriteWait       time.Duration
	MaxSignalBytes    int64
	TrustForwardedFor bool

	// Per-client request rates (requests/sec). A value <= 0 disables the
	// limiter for that route.
	ConnectRate      float64
	SignalRate       float64
	RateBurst        int
	RateLimiterCache int

	// AdminAPIKey guards the /admin routes. Empty disables them.
	AdminAPIKey string

	ICEServers []webrtc.ICEServer
	TURNREST   TurnRESTConfig

	iceConfigErr error
}

func (c Config) ICEConfigError() error {
	return c.iceConfigErr
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	envMode, _ := lookup(envVarMode)
	modeDefault := string(DefaultMode)
	if envMode != "" {
		modeDefault = envMode
	}

	envLogFormat, envLogFormatOK := lookup(envVarLogFormat)
	envLogFormatSet := envLogFormatOK && envLogFormat != ""
	logFormatDefault := envLogFormat
	if !envLogFormatSet {
		logFormatDefault = defaultLogFormatForMode(modeDefault)
	}

	envLogLevel, envLogLevelOK := lookup(envVarLogLevel)
	envLogLevelSet := envLogLevelOK && envLogLevel != ""
	logLevelDefault := envLogLevel
	if !envLogLevelSet {
		logLevelDefault = defaultLogLevelForMode(modeDefault)
	}

	listenAddr := envOrDefault(lookup, envVarListenAddr, DefaultListenAddr)
	publicBaseURL := envOrDefault(lookup, envVarPublicBaseURL, "")
	allowedOriginsStr := envOrDefault(lookup, envVarAllowedOrigins, "")
	secret := envOrDefault(lookup, EnvVarSecret, envOrDefault(lookup, EnvVarSecretFallback, ""))
	adminAPIKey := envOrDefault(lookup, envVarAdminAPIKey, "")

	iceServersJSON := envOrDefault(lookup, envICEServersJSON, "")
	stunURLs := envOrDefault(lookup, envStunURLs, "")
	turnURLs := envOrDefault(lookup, envTurnURLs, "")
	turnUsername := envOrDefault(lookup, envTurnUsername, "")
	turnCredential := envOrDefault(lookup, envTurnCredential, "")

	turnRESTSharedSecret := envOrDefault(lookup, envVarTURNRESTSharedSecret, "")
	turnRESTUsernamePrefix := envOrDefault(lookup, envVarTURNRESTUsernamePrefix, DefaultTURNRESTUsernamePrefix)
	turnRESTRealm := envOrDefault(lookup, envVarTURNRESTRealm, "")
	turnRESTTTLSeconds, err := envInt64OrDefault(lookup, envVarTURNRESTTTLSeconds, DefaultTURNRESTTTLSeconds)
	if err != nil {
		return Config{}, err
	}

	shutdownTimeout, err := envDurationOrDefault(lookup, envVarShutdownTimeout, DefaultShutdown)
	if err != nil {
		return Config{}, err
	}
	peerTimeout, err := envDurationOrDefault(lookup, envVarPeerTimeout, DefaultPeerTimeout)
	if err != nil {
		return Config{}, err
	}
	sseKeepalive, err := envDurationOrDefault(lookup, envVarSSEKeepalive, DefaultSSEKeepalive)
	if err != nil {
		return Config{}, err
	}
	wsPingInterval, err := envDurationOrDefault(lookup, envVarWSPingInterval, DefaultWSPingInterval)
	if err != nil {
		return Config{}, err
	}
	wsWriteWait, err := envDurationOrDefault(lookup, envVarWSWriteWait, DefaultWSWriteWait)
	if err != nil {
		return Config{}, err
	}

	idLength, err := envIntOrDefault(lookup, envVarIDLength, DefaultIDLength)
	if err != nil {
		return Config{}, err
	}
	maxQueuedMessages, err := envIntOrDefault(lookup, envVarMaxQueuedMessages, 0)
	if err != nil {
		return Config{}, err
	}
	outboxBytes, err := envIntOrDefault(lookup, envVarOutboxBytes, DefaultOutboxBytes)
	if err != nil {
		return Config{}, err
	}
	maxSignalBytes, err := envInt64OrDefault(lookup, envVarMaxSignalBytes, DefaultMaxSignalBytes)
	if err != nil {
		return Config{}, err
	}
	rateBurst, err := envIntOrDefault(lookup, envVarRateBurst, DefaultRateBurst)
	if err != nil {
		return Config{}, err
	}
	rateLimiterCache, err := envIntOrDefault(lookup, envVarRateLimiterCache, DefaultRateLimiterCache)
	if err != nil {
		return Config{}, err
	}
	connectRate, err := envFloatOrDefault(lookup, envVarConnectRate, DefaultConnectRate)
	if err != nil {
		return Config{}, err
	}
	signalRate, err := envFloatOrDefault(lookup, envVarSignalRate, DefaultSignalRate)
	if err != nil {
		return Config{}, err
	}
	presence, err := envBoolOrDefault(lookup, envVarPresence, true)
	if err != nil {
		return Config{}, err
	}
	trustForwardedFor, err := envBoolOrDefault(lookup, envVarTrustForwardedFor, false)
	if err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet("aero-webrtc-signal-relay", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		modeStr      string
		logFormatStr string
		logLevelStr  string
	)

	fs.StringVar(&listenAddr, "listen-addr", listenAddr, "HTTP listen address (host:port)")
	fs.StringVar(&publicBaseURL, "public-base-url", publicBaseURL, "Public base URL (optional; used for logging)")
	fs.StringVar(&allowedOriginsStr, "allowed-origins", allowedOriginsStr, "Comma-separated list of allowed browser origins (env "+envVarAllowedOrigins+")")
	fs.StringVar(&modeStr, "mode", modeDefault, "Run mode: dev or prod")
	fs.StringVar(&logFormatStr, "log-format", logFormatDefault, "Log format: text or json")
	fs.StringVar(&logLevelStr, "log-level", logLevelDefault, "Log level: debug, info, warn, error")
	fs.DurationVar(&shutdownTimeout, "shutdown-timeout", shutdownTimeout, "Graceful shutdown timeout (e.g. 15s)")

	fs.IntVar(&idLength, "id-length", idLength, "Number of symbols in issued peer ids (env "+envVarIDLength+")")
	fs.DurationVar(&peerTimeout, "peer-timeout", peerTimeout, "Grace period before an unattached peer is removed (env "+envVarPeerTimeout+")")
	fs.BoolVar(&presence, "presence", presence, "Broadcast connect/disconnect/presence events (env "+envVarPresence+")")
	fs.IntVar(&maxQueuedMessages, "max-queued-messages", maxQueuedMessages, "Max pending messages per peer; oldest dropped first (0 = unbounded; env "+envVarMaxQueuedMessages+")")

	fs.IntVar(&outboxBytes, "outbox-bytes", outboxBytes, "Max buffered event bytes per push connection before it is dropped (env "+envVarOutboxBytes+")")
	fs.DurationVar(&sseKeepalive, "sse-keepalive", sseKeepalive, "Interval between SSE keepalive comments (env "+envVarSSEKeepalive+")")
	fs.DurationVar(&wsPingInterval, "ws-ping-interval", wsPingInterval, "Interval between WebSocket pings (env "+envVarWSPingInterval+")")
	fs.DurationVar(&wsWriteWait, "ws-write-wait", wsWriteWait, "WebSocket write deadline (env "+envVarWSWriteWait+")")
	fs.Int64Var(&maxSignalBytes, "max-signal-bytes", maxSignalBytes, "Max send-signal request body size (env "+envVarMaxSignalBytes+")")
	fs.BoolVar(&trustForwardedFor, "trust-x-forwarded-for", trustForwardedFor, "Use X-Forwarded-For for per-client rate limiting (env "+envVarTrustForwardedFor+")")

	fs.Float64Var(&connectRate, "connect-rate", connectRate, "Per-client /connect requests/sec (0 = unlimited; env "+envVarConnectRate+")")
	fs.Float64Var(&signalRate, "signal-rate", signalRate, "Per-client /send-signal requests/sec (0 = unlimited; env "+envVarSignalRate+")")
	fs.IntVar(&rateBurst, "rate-burst", rateBurst, "Per-client rate limiter burst (env "+envVarRateBurst+")")
	fs.IntVar(&rateLimiterCache, "rate-limiter-cache", rateLimiterCache, "Max clients tracked by each rate limiter (env "+envVarRateLimiterCache+")")

	fs.StringVar(&iceServersJSON, "ice-servers-json", iceServersJSON, "ICE server JSON config ("+envICEServersJSON+")")
	fs.StringVar(&stunURLs, "stun-urls", stunURLs, "comma-separated STUN URLs ("+envStunURLs+")")
	fs.StringVar(&turnURLs, "turn-urls", turnURLs, "comma-separated TURN URLs ("+envTurnURLs+")")
	fs.StringVar(&turnUsername, "turn-username", turnUsername, "TURN username ("+envTurnUsername+")")
	fs.StringVar(&turnCredential, "turn-credential", turnCredential, "TURN credential ("+envTurnCredential+")")
	fs.StringVar(&turnRESTSharedSecret, "turn-rest-shared-secret", turnRESTSharedSecret, "TURN REST shared secret ("+envVarTURNRESTSharedSecret+")")
	fs.Int64Var(&turnRESTTTLSeconds, "turn-rest-ttl-seconds", turnRESTTTLSeconds, "TURN REST credential TTL seconds ("+envVarTURNRESTTTLSeconds+")")
	fs.StringVar(&turnRESTUsernamePrefix, "turn-rest-username-prefix", turnRESTUsernamePrefix, "TURN REST username prefix ("+envVarTURNRESTUsernamePrefix+")")
	fs.StringVar(&turnRESTRealm, "turn-rest-realm", turnRESTRealm, "TURN realm (coturn config; "+envVarTURNRESTRealm+")")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	setFlags := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	mode, err := parseMode(modeStr)
	if err != nil {
		return Config{}, err
	}

	if !envLogFormatSet && !setFlags["log-format"] {
		logFormatStr = defaultLogFormatForMode(string(mode))
	}
	if !envLogLevelSet && !setFlags["log-level"] {
		logLevelStr = defaultLogLevelForMode(string(mode))
	}

	logFormat, err := parseLogFormat(logFormatStr)
	if err != nil {
		return Config{}, err
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	allowedOrigins, err := parseAllowedOrigins(allowedOriginsStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid %s/--allowed-origins: %w", envVarAllowedOrigins, err)
	}

	if listenAddr == "" {
		return Config{}, fmt.Errorf("listen address must not be empty")
	}
	if shutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("shutdown timeout must be > 0")
	}
	if idLength <= 0 {
		return Config{}, fmt.Errorf("%s/--id-length must be > 0", envVarIDLength)
	}
	if peerTimeout <= 0 {
		return Config{}, fmt.Errorf("%s/--peer-timeout must be > 0", envVarPeerTimeout)
	}
	if maxQueuedMessages < 0 {
		return Config{}, fmt.Errorf("%s/--max-queued-messages must be >= 0", envVarMaxQueuedMessages)
	}
	if outboxBytes <= 0 {
		return Config{}, fmt.Errorf("%s/--outbox-bytes must be > 0", envVarOutboxBytes)
	}
	if sseKeepalive <= 0 {
		return Config{}, fmt.Errorf("%s/--sse-keepalive must be > 0", envVarSSEKeepalive)
	}
	if wsPingInterval <= 0 {
		return Config{}, fmt.Errorf("%s/--ws-ping-interval must be > 0", envVarWSPingInterval)
	}
	if wsWriteWait <= 0 {
		return Config{}, fmt.Errorf("%s/--ws-write-wait must be > 0", envVarWSWriteWait)
	}
	if maxSignalBytes <= 0 {
		return Config{}, fmt.Errorf("%s/--max-signal-bytes must be > 0", envVarMaxSignalBytes)
	}
	if connectRate < 0 || signalRate < 0 {
		return Config{}, fmt.Errorf("--connect-rate and --signal-rate must be >= 0")
	}
	if (connectRate > 0 || signalRate > 0) && rateBurst <= 0 {
		return Config{}, fmt.Errorf("%s/--rate-burst must be > 0 when rate limiting is enabled", envVarRateBurst)
	}
	if rateLimiterCache <= 0 {
		return Config{}, fmt.Errorf("%s/--rate-limiter-cache must be > 0", envVarRateLimiterCache)
	}

	turnREST := TurnRESTConfig{
		SharedSecret:   turnRESTSharedSecret,
		TTLSeconds:     turnRESTTTLSeconds,
		UsernamePrefix: turnRESTUsernamePrefix,
		Realm:          turnRESTRealm,
	}
	if turnREST.Enabled() {
		if turnREST.TTLSeconds <= 0 {
			return Config{}, fmt.Errorf("%s/--turn-rest-ttl-seconds must be > 0", envVarTURNRESTTTLSeconds)
		}
		if turnREST.UsernamePrefix == "" || strings.Contains(turnREST.UsernamePrefix, ":") {
			return Config{}, fmt.Errorf("%s/--turn-rest-username-prefix must be non-empty and must not contain ':'", envVarTURNRESTUsernamePrefix)
		}
	}

	cfg := Config{
		ListenAddr:      listenAddr,
		PublicBaseURL:   publicBaseURL,
		AllowedOrigins:  allowedOrigins,
		LogFormat:       logFormat,
		LogLevel:        level,
		ShutdownTimeout: shutdownTimeout,
		Mode:            mode,

		Secret: secret,

		IDLength:          idLength,
		PeerTimeout:       peerTimeout,
		Presence:          presence,
		MaxQueuedMessages: maxQueuedMessages,

		OutboxBytes:       outboxBytes,
		SSEKeepalive:      sseKeepalive,
		WSPingInterval:    wsPingInterval,
		WSWriteWait:       wsWriteWait,
		MaxSignalBytes:    maxSignalBytes,
		TrustForwardedFor: trustForwardedFor,

		ConnectRate:      connectRate,
		SignalRate:       signalRate,
		RateBurst:        rateBurst,
		RateLimiterCache: rateLimiterCache,

		AdminAPIKey: adminAPIKey,
		TURNREST:    turnREST,
	}

	iceServers, err := parseICEServersFromValues(iceSources{
		serversJSON:     iceServersJSON,
		stunURLs:        stunURLs,
		turnURLs:        turnURLs,
		turnUsername:    turnUsername,
		turnCredential:  turnCredential,
		turnRESTEnabled: turnREST.Enabled(),
	})
	if err != nil {
		// Reported through /readyz rather than failing startup, so the relay can
		// still serve signaling without ICE discovery.
		cfg.iceConfigErr = err
	} else {
		cfg.ICEServers = iceServers
	}

	return cfg, nil
}

func NewLogger(cfg Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatText:
		handler = slog.NewTextHandler(os.Stdout, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	return slog.New(handler), nil
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envInt64OrDefault(lookup func(string) (string, bool), key string, fallback int64) (int64, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envFloatOrDefault(lookup func(string) (string, bool), key string, fallback float64) (float64, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return f, nil
}

func envBoolOrDefault(lookup func(string) (string, bool), key string, fallback bool) (bool, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func defaultLogFormatForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return string(LogFormatJSON)
	default:
		return string(LogFormatText)
	}
}

func defaultLogLevelForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return "info"
	default:
		return "debug"
	}
}

func parseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ModeDev), "development":
		return ModeDev, nil
	case string(ModeProd), "production":
		return ModeProd, nil
	default:
		return "", fmt.Errorf("invalid mode %q (expected dev or prod)", raw)
	}
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(LogFormatText):
		return LogFormatText, nil
	case string(LogFormatJSON):
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format %q (expected text or json)", raw)
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug, info, warn, error)", raw)
	}
}

func parseAllowedOrigins(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var out []string
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if entry == "*" {
			out = append(out, entry)
			continue
		}

		normalizedOrigin, _, ok := origin.NormalizeHeader(entry)
		if !ok {
			return nil, fmt.Errorf("invalid origin %q (expected full origin like https://example.com)", entry)
		}
		out = append(out, normalizedOrigin)
	}

	return out, nil
}

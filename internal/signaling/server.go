package signaling

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/auth"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/origin"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/ratelimit"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/relay"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/turnrest"
)

const (
	defaultOutboxBytes    = 256 * 1024
	defaultSSEKeepalive   = 15 * time.Second
	defaultWSPingInterval = 20 * time.Second
	defaultWSWriteWait    = 5 * time.Second
	defaultMaxSignalBytes = 64 * 1024
)

// Config wires together the runtime dependencies for the signaling service.
type Config struct {
	Relay   *relay.Manager
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	// Clock drives keepalive tickers. Defaults to the wall clock.
	Clock clock.Clock

	// ICEServers is returned from /webrtc/ice. When TURN is set, entries with
	// TURN URLs get per-peer REST credentials.
	ICEServers     []webrtc.ICEServer
	ICEConfigError error
	TURN           *turnrest.Generator

	Origins origin.Policy

	// Admin guards /admin. When nil the admin routes are not registered.
	Admin auth.Verifier

	// Per-client limiters; nil means unlimited.
	ConnectLimiter    *ratelimit.Keyed
	SignalLimiter     *ratelimit.Keyed
	TrustForwardedFor bool

	OutboxBytes    int
	SSEKeepalive   time.Duration
	WSPingInterval time.Duration
	WSWriteWait    time.Duration
	MaxSignalBytes int64
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.OutboxBytes <= 0 {
		c.OutboxBytes = defaultOutboxBytes
	}
	if c.SSEKeepalive <= 0 {
		c.SSEKeepalive = defaultSSEKeepalive
	}
	if c.WSPingInterval <= 0 {
		c.WSPingInterval = defaultWSPingInterval
	}
	if c.WSWriteWait <= 0 {
		c.WSWriteWait = defaultWSWriteWait
	}
	if c.MaxSignalBytes <= 0 {
		c.MaxSignalBytes = defaultMaxSignalBytes
	}
	return c
}

// Server implements the relay's HTTP signaling surface.
//
// Endpoints:
//   - GET      /connect          : issue {id, key}
//   - GET|POST /disconnect       : leave immediately
//   - GET      /events           : SSE push stream
//   - GET      /ws               : WebSocket push stream (also accepts signals)
//   - POST     /send-signal/{to} : relay {from, signal} to another peer
//   - GET      /webrtc/ice       : ICE servers for the calling peer
type Server struct {
	cfg      Config
	relay    *relay.Manager
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewServer(cfg Config) *Server {
	cfg = cfg.withDefaults()
	s := &Server{
		cfg:   cfg,
		relay: cfg.Relay,
		log:   cfg.Logger,
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}
	return s
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /connect", s.handleConnect)
	mux.HandleFunc("GET /disconnect", s.handleDisconnect)
	mux.HandleFunc("POST /disconnect", s.handleDisconnect)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("POST /send-signal/{to}", s.handleSendSignal)
	mux.HandleFunc("GET /webrtc/ice", s.handleICE)

	if s.cfg.Admin != nil {
		mux.Handle("GET /admin/peers", s.requireAdmin(http.HandlerFunc(s.handleAdminPeers)))
		mux.Handle("POST /admin/broadcast", s.requireAdmin(http.HandlerFunc(s.handleAdminBroadcast)))
		mux.Handle("POST /admin/send/{id}", s.requireAdmin(http.HandlerFunc(s.handleAdminSend)))
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

func (s *Server) checkOrigin(r *http.Request) bool {
	originHeader := r.Header.Get("Origin")
	if originHeader == "" {
		return true
	}
	_, ok := s.cfg.Origins.Check(originHeader, r.Host)
	return ok
}

func (s *Server) allow(limiter *ratelimit.Keyed, route string, r *http.Request) bool {
	if limiter.Allow(ratelimit.ClientKey(r, s.cfg.TrustForwardedFor)) {
		return true
	}
	s.cfg.Metrics.RateLimited(route)
	return false
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if !s.allow(s.cfg.ConnectLimiter, "connect", r) {
		writeJSONError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
		return
	}
	creds, err := s.relay.Connect()
	if err != nil {
		s.writeRelayError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, creds)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.relay.Disconnect(r.FormValue("id"), r.FormValue("key")); err != nil {
		s.writeRelayError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sendSignalRequest struct {
	ID     string          `json:"id"`
	Key    string          `json:"key"`
	Signal json.RawMessage `json:"signal"`
}

func (s *Server) handleSendSignal(w http.ResponseWriter, r *http.Request) {
	if !s.allow(s.cfg.SignalLimiter, "send_signal", r) {
		writeJSONError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
		return
	}

	var req sendSignalRequest
	if status, err := decodeBody(w, r, s.cfg.MaxSignalBytes, &req); err != nil {
		writeJSONError(w, status, "bad_message", err.Error())
		return
	}

	if err := s.relay.SendSignal(req.ID, req.Key, r.PathValue("to"), req.Signal); err != nil {
		s.writeRelayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleICE(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id := q.Get("id")
	if err := s.relay.Authenticate(id, q.Get("key")); err != nil {
		s.writeRelayError(w, err)
		return
	}
	if s.cfg.ICEConfigError != nil {
		writeJSONError(w, http.StatusServiceUnavailable, "ice_unavailable", s.cfg.ICEConfigError.Error())
		return
	}

	servers := s.cfg.ICEServers
	if servers == nil {
		servers = []webrtc.ICEServer{}
	}
	if s.cfg.TURN != nil {
		creds, err := s.cfg.TURN.Generate(id)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		servers = turnrest.Apply(servers, creds)
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, map[string]any{"iceServers": servers})
}

// statusForError maps relay and auth errors onto HTTP statuses.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, relay.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case auth.IsUnauthorized(err):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, relay.ErrInvalidID):
		return http.StatusBadRequest, "invalid_id"
	case errors.Is(err, relay.ErrManagerClosed):
		return http.StatusServiceUnavailable, "shutting_down"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (s *Server) writeRelayError(w http.ResponseWriter, err error) {
	status, code := statusForError(err)
	if status == http.StatusInternalServerError {
		s.log.Error("relay operation failed", "err", err)
	}
	writeJSONError(w, status, code, err.Error())
}

// decodeBody decodes a size-limited JSON body into v. On failure it returns
// the status to answer with.
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, v any) (int, error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return http.StatusRequestEntityTooLarge, errors.New("request body too large")
		}
		return http.StatusBadRequest, err
	}
	return 0, nil
}

type httpErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, httpErrorResponse{Code: code, Message: message})
}

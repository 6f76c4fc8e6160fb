package signaling

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/auth"
)

// maxAdminBodyBytes bounds operator payloads.
const maxAdminBodyBytes = 1 << 20

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cred, err := auth.CredentialFromRequest(r)
		if err == nil {
			err = s.cfg.Admin.Verify(cred)
		}
		if err != nil {
			s.cfg.Metrics.AuthFailure("admin")
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleAdminPeers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"peers": s.relay.Snapshot()})
}

type adminDataRequest struct {
	Data json.RawMessage `json:"data"`
	// Except skips one peer on broadcast.
	Except string `json:"except,omitempty"`
}

func (r adminDataRequest) validate() error {
	if len(r.Data) == 0 {
		return errors.New("data is required")
	}
	return nil
}

func (s *Server) handleAdminBroadcast(w http.ResponseWriter, r *http.Request) {
	var req adminDataRequest
	if status, err := decodeBody(w, r, maxAdminBodyBytes, &req); err != nil {
		writeJSONError(w, status, "bad_message", err.Error())
		return
	}
	if err := req.validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad_message", err.Error())
		return
	}

	n, err := s.relay.BroadcastDataExcept(req.Except, req.Data)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad_message", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"delivered": n})
}

func (s *Server) handleAdminSend(w http.ResponseWriter, r *http.Request) {
	var req adminDataRequest
	if status, err := decodeBody(w, r, maxAdminBodyBytes, &req); err != nil {
		writeJSONError(w, status, "bad_message", err.Error())
		return
	}
	if err := req.validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad_message", err.Error())
		return
	}

	if err := s.relay.SendData(r.PathValue("id"), req.Data); err != nil {
		s.writeRelayError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"success": true})
}

package api

import (
	"encoding/json"
	"net/http"
)

// probeRequest is the body for POST /probe. Credentials are optional; they
// are only exercised when the target device requires authentication.
type probeRequest struct {
	Host     string `json:"host"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// handleProbe interrogates a host for a Shelly device. Used during
// commissioning to verify reachability and credentials before a device is
// added to the discovery host list.
//
// POST /api/v1/probe
func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	if s.prober == nil {
		writeUnavailable(w, "probe not configured")
		return
	}

	var req probeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Host == "" {
		writeBadRequest(w, "host is required")
		return
	}

	result, err := s.prober.Probe(r.Context(), req.Host, req.Username, req.Password)
	if err != nil {
		s.logger.Error("probe failed", "host", req.Host, "error", err)
		writeInternalError(w, "probe failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

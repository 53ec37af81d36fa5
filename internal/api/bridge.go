package api

import (
	"net/http"

	"github.com/nerrad567/gray-logic-shelly/internal/bridges/shelly"
)

// bridgeStatusResponse describes the integration lifecycle state and the
// devices currently held by the running adapter.
type bridgeStatusResponse struct {
	State         shelly.ServiceState       `json:"state"`
	DevicesTotal  int                       `json:"devices_total"`
	DevicesOnline int                       `json:"devices_online"`
	Devices       []shelly.RegisteredDevice `json:"devices,omitempty"`
}

// handleBridgeStatus reports the lifecycle state and live device inventory.
//
// GET /api/v1/bridge
func (s *Server) handleBridgeStatus(w http.ResponseWriter, _ *http.Request) {
	if s.bridge == nil {
		writeUnavailable(w, "bridge service not configured")
		return
	}

	resp := bridgeStatusResponse{State: s.bridge.State()}
	if s.inventory != nil {
		resp.Devices = s.inventory.Devices()
		resp.DevicesTotal = len(resp.Devices)
		for _, d := range resp.Devices {
			if d.Online {
				resp.DevicesOnline++
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleBridgeStart brings the integration up if it is not already running.
//
// POST /api/v1/bridge/start
func (s *Server) handleBridgeStart(w http.ResponseWriter, r *http.Request) {
	if s.bridge == nil {
		writeUnavailable(w, "bridge service not configured")
		return
	}

	if err := s.bridge.EnsureStarted(r.Context()); err != nil {
		s.logger.Error("failed to start bridge", "error", err)
		writeInternalError(w, "failed to start bridge")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"state": s.bridge.State()})
}

// handleBridgeStop takes the integration down if it is running.
//
// POST /api/v1/bridge/stop
func (s *Server) handleBridgeStop(w http.ResponseWriter, r *http.Request) {
	if s.bridge == nil {
		writeUnavailable(w, "bridge service not configured")
		return
	}

	if err := s.bridge.EnsureStopped(r.Context()); err != nil {
		s.logger.Error("failed to stop bridge", "error", err)
		writeInternalError(w, "failed to stop bridge")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"state": s.bridge.State()})
}

// handleBridgeRestart stops and starts the integration as one transition.
// Used after configuration changes that the running adapter cannot absorb.
//
// POST /api/v1/bridge/restart
func (s *Server) handleBridgeRestart(w http.ResponseWriter, r *http.Request) {
	if s.bridge == nil {
		writeUnavailable(w, "bridge service not configured")
		return
	}

	if err := s.bridge.Restart(r.Context()); err != nil {
		s.logger.Error("failed to restart bridge", "error", err)
		writeInternalError(w, "failed to restart bridge")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"state": s.bridge.State()})
}

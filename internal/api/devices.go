package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-shelly/internal/bridges/shelly"
	"github.com/nerrad567/gray-logic-shelly/internal/device"
)

// handleListDevices returns all devices in the registry.
//
// GET /api/v1/devices
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.registry.ListDevices(r.Context())
	if err != nil {
		s.logger.Error("failed to list devices", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetDevice returns a single device with its channels and properties.
//
// GET /api/v1/devices/{id}
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.registry.GetDevice(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("failed to get device", "device_id", id, "error", err)
		writeInternalError(w, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// handleDeviceStats returns aggregate registry statistics.
//
// GET /api/v1/devices/stats
func (s *Server) handleDeviceStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.GetStats())
}

// setEnabledRequest is the body for PUT /devices/{id}/enabled.
type setEnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

// handleSetDeviceEnabled enables or disables a device. Disabled devices keep
// their records but receive no events or commands.
//
// PUT /api/v1/devices/{id}/enabled
func (s *Server) handleSetDeviceEnabled(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req setEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Enabled == nil {
		writeBadRequest(w, "enabled is required")
		return
	}

	if err := s.registry.SetEnabled(r.Context(), id, *req.Enabled); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("failed to set device enabled", "device_id", id, "error", err)
		writeInternalError(w, "failed to update device")
		return
	}

	// Tell the running adapter as well, so the change takes effect without
	// a restart. The adapter keys devices by vendor ID.
	if s.inventory != nil {
		if dev, err := s.registry.GetDevice(r.Context(), id); err == nil {
			s.inventory.UpdateDeviceEnabledStatus(dev.VendorID, *req.Enabled)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":      id,
		"enabled": *req.Enabled,
	})
}

// setCredentialsRequest is the body for PUT /devices/{id}/credentials.
type setCredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleSetDeviceCredentials hands HTTP auth credentials to the live device
// handle so subsequent vendor calls authenticate. Credentials are not
// persisted; re-apply after a bridge restart.
//
// PUT /api/v1/devices/{id}/credentials
func (s *Server) handleSetDeviceCredentials(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if s.inventory == nil {
		writeUnavailable(w, "bridge not running")
		return
	}

	var req setCredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Username == "" {
		writeBadRequest(w, "username is required")
		return
	}

	dev, err := s.registry.GetDevice(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("failed to get device", "device_id", id, "error", err)
		writeInternalError(w, "failed to get device")
		return
	}

	if err := s.inventory.SetDeviceAuthCredentials(dev.VendorID, req.Username, req.Password); err != nil {
		switch {
		case errors.Is(err, shelly.ErrDeviceVanished):
			writeConflict(w, "device not currently discoverable")
		case errors.Is(err, shelly.ErrUnsupported):
			writeBadRequest(w, "device does not accept credentials")
		default:
			s.logger.Error("failed to set device credentials", "device_id", id, "error", err)
			writeInternalError(w, "failed to set device credentials")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":       id,
		"username": req.Username,
	})
}

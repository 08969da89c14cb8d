package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	devicedomain "github.com/nexus-iot/server/internal/domain/device"
	"github.com/nexus-iot/server/internal/model"
	"github.com/nexus-iot/server/internal/tools"
)

const defaultTelemetryLimit = 10

// ListDevices returns devices, optionally narrowed by type, status or online flag.
func (a *API) ListDevices(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := devicedomain.ListFilter{
		Type:   model.DeviceType(strings.TrimSpace(query.Get("type"))),
		Status: model.DeviceStatus(strings.TrimSpace(query.Get("status"))),
	}
	var offlineOnly bool
	if raw := strings.TrimSpace(query.Get("online")); raw != "" {
		online, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_online_filter", "online must be true or false")
			return
		}
		if online {
			filter.Status = model.DeviceStatusOnline
		} else {
			offlineOnly = true
		}
	}

	items, err := a.devices.ListDevices(r.Context(), filter)
	if err != nil {
		a.writeDeviceError(w, err, "list_failed")
		return
	}
	if offlineOnly {
		kept := items[:0]
		for _, item := range items {
			if item.Status != model.DeviceStatusOnline {
				kept = append(kept, item)
			}
		}
		items = kept
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// GetDevice returns one device by id.
func (a *API) GetDevice(w http.ResponseWriter, r *http.Request, id string) {
	device, err := a.devices.GetDevice(r.Context(), id)
	if err != nil {
		a.writeDeviceError(w, err, "get_failed")
		return
	}
	writeJSON(w, http.StatusOK, device)
}

// CreateDevice registers a device and starts its simulation.
func (a *API) CreateDevice(w http.ResponseWriter, r *http.Request) {
	var payload devicedomain.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid JSON payload")
		return
	}
	device, err := a.devices.CreateDevice(r.Context(), payload)
	if err != nil {
		a.writeDeviceError(w, err, "create_failed")
		return
	}
	writeJSON(w, http.StatusCreated, device)
}

// PatchDevice partially updates a device.
func (a *API) PatchDevice(w http.ResponseWriter, r *http.Request, id string) {
	var payload devicedomain.Update
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid JSON payload")
		return
	}
	device, err := a.devices.PatchDevice(r.Context(), id, payload)
	if err != nil {
		a.writeDeviceError(w, err, "patch_failed")
		return
	}
	writeJSON(w, http.StatusOK, device)
}

// DeleteDevice stops simulation and removes the device.
func (a *API) DeleteDevice(w http.ResponseWriter, r *http.Request, id string) {
	if err := a.devices.RemoveDevice(r.Context(), id); err != nil {
		a.writeDeviceError(w, err, "delete_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// DeviceTelemetry returns the newest readings for a device, oldest first.
func (a *API) DeviceTelemetry(w http.ResponseWriter, r *http.Request, id string) {
	limit := defaultTelemetryLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		limit = value
	}
	device, err := a.devices.GetDevice(r.Context(), id)
	if err != nil {
		a.writeDeviceError(w, err, "telemetry_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": a.telemetry.Recent(device.ID, limit)})
}

type commandPayload struct {
	Action     model.CommandAction `json:"action"`
	Parameters map[string]any      `json:"parameters,omitempty"`
}

// SendCommand runs the device-control tool for one device.
func (a *API) SendCommand(w http.ResponseWriter, r *http.Request, id string) {
	var payload commandPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid JSON payload")
		return
	}
	result := a.tools.ControlDevice(r.Context(), tools.DeviceControlRequest{
		DeviceID:   id,
		Action:     payload.Action,
		Parameters: payload.Parameters,
	})
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, result)
}

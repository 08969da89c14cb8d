package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	devicedomain "github.com/nexus-iot/server/internal/domain/device"
	"github.com/nexus-iot/server/internal/model"
	"github.com/nexus-iot/server/internal/tools"
)

// Poller triggers an immediate telemetry broadcast.
type Poller interface {
	TriggerRefresh()
}

// Feed is the realtime event channel served at /ws.
type Feed interface {
	Count() int
	ServeWS(w http.ResponseWriter, r *http.Request)
}

// TelemetryReader is the read side of the telemetry store.
type TelemetryReader interface {
	Recent(deviceID string, limit int) []model.Reading
}

// Tools runs agent-style device operations.
type Tools interface {
	Execute(ctx context.Context, tool string, input json.RawMessage) (tools.Result, error)
	ControlDevice(ctx context.Context, req tools.DeviceControlRequest) tools.Result
}

// API groups HTTP handlers and dependencies.
type API struct {
	devices   devicedomain.Service
	telemetry TelemetryReader
	tools     Tools
	feed      Feed
	poller    Poller
	logger    *slog.Logger
	staticDir string
	now       func() time.Time
}

// New creates HTTP handlers with explicit dependencies.
func New(
	devices devicedomain.Service,
	telemetry TelemetryReader,
	toolset Tools,
	feed Feed,
	poller Poller,
	logger *slog.Logger,
	staticDir string,
) *API {
	return &API{
		devices:   devices,
		telemetry: telemetry,
		tools:     toolset,
		feed:      feed,
		poller:    poller,
		logger:    logger,
		staticDir: staticDir,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Logger returns request logger used by HTTP middleware.
func (a *API) Logger() *slog.Logger {
	return a.logger
}

// Health reports liveness and the number of connected viewers.
func (a *API) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": a.now(),
		"clients":   a.feed.Count(),
	})
}

// WebSocket upgrades the request and streams events until the viewer leaves.
func (a *API) WebSocket(w http.ResponseWriter, r *http.Request) {
	a.feed.ServeWS(w, r)
}

// Refresh triggers an immediate telemetry broadcast asynchronously.
func (a *API) Refresh(w http.ResponseWriter, _ *http.Request) {
	a.poller.TriggerRefresh()
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

// Static serves frontend assets and SPA fallback.
func (a *API) Static(w http.ResponseWriter, r *http.Request) {
	if a.staticDir == "" {
		writeError(w, http.StatusNotFound, "frontend_missing", "Frontend dist not found")
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/")
	if path == "" {
		path = "index.html"
	}
	cleanPath := strings.TrimPrefix(filepath.Clean("/"+path), "/")
	fullPath := filepath.Join(a.staticDir, cleanPath)
	if info, err := os.Stat(fullPath); err == nil && !info.IsDir() {
		http.ServeFile(w, r, fullPath)
		return
	}
	http.ServeFile(w, r, filepath.Join(a.staticDir, "index.html"))
}

// writeDeviceError maps device domain errors onto HTTP statuses.
func (a *API) writeDeviceError(w http.ResponseWriter, err error, fallbackCode string) {
	switch {
	case errors.Is(err, devicedomain.ErrDeviceNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Device not found")
	case errors.Is(err, devicedomain.ErrDeviceConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, devicedomain.ErrDeviceInvalid):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, devicedomain.ErrDeviceUnavailable):
		writeError(w, http.StatusConflict, "device_unavailable", err.Error())
	default:
		a.logger.Error("device request failed", "code", fallbackCode, "err", err)
		writeError(w, http.StatusInternalServerError, fallbackCode, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

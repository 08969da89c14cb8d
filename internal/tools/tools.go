// Package tools exposes structured device operations for agent-style callers.
// Every operation returns a Result; failures never escape as errors.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	devicedomain "github.com/nexus-iot/server/internal/domain/device"
	"github.com/nexus-iot/server/internal/model"
	"github.com/nexus-iot/server/internal/telemetry"
)

const (
	DeviceManager = "device-manager"
	Telemetry     = "telemetry"
	DeviceControl = "device-control"

	defaultHistoryLimit = 10
)

var (
	ErrUnknownTool  = errors.New("unknown tool")
	ErrInvalidInput = errors.New("invalid tool input")
)

// Result is the uniform tool response.
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// TelemetryReader is the read side of the telemetry store.
type TelemetryReader interface {
	Recent(deviceID string, limit int) []model.Reading
	Latest(deviceID string) (model.Reading, error)
	Summary(deviceID string) (model.TelemetrySummary, error)
}

type Service struct {
	devices   devicedomain.Service
	telemetry TelemetryReader
	logger    *slog.Logger
}

func New(devices devicedomain.Service, reader TelemetryReader, logger *slog.Logger) *Service {
	return &Service{devices: devices, telemetry: reader, logger: logger}
}

// Names lists the available tools.
func Names() []string {
	names := []string{DeviceManager, Telemetry, DeviceControl}
	sort.Strings(names)
	return names
}

// Execute decodes input for the named tool and runs it.
func (s *Service) Execute(ctx context.Context, tool string, input json.RawMessage) (Result, error) {
	switch strings.TrimSpace(tool) {
	case DeviceManager:
		var req DeviceManagerRequest
		if err := decode(input, &req); err != nil {
			return Result{}, err
		}
		return s.ManageDevices(ctx, req), nil
	case Telemetry:
		var req TelemetryRequest
		if err := decode(input, &req); err != nil {
			return Result{}, err
		}
		return s.ReadTelemetry(ctx, req), nil
	case DeviceControl:
		var req DeviceControlRequest
		if err := decode(input, &req); err != nil {
			return Result{}, err
		}
		return s.ControlDevice(ctx, req), nil
	default:
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownTool, tool)
	}
}

// DeviceData describes a device to add.
type DeviceData struct {
	Name     string           `json:"name"`
	Type     model.DeviceType `json:"type"`
	Location *string          `json:"location,omitempty"`
	Metadata map[string]any   `json:"metadata,omitempty"`
}

type DeviceManagerRequest struct {
	Action     string      `json:"action"`
	DeviceID   string      `json:"deviceId,omitempty"`
	DeviceData *DeviceData `json:"deviceData,omitempty"`
}

// ManageDevices handles add, remove, list and get.
func (s *Service) ManageDevices(ctx context.Context, req DeviceManagerRequest) Result {
	switch req.Action {
	case "add":
		if req.DeviceData == nil {
			return failure("Device data is required for add action")
		}
		device, err := s.devices.CreateDevice(ctx, devicedomain.CreateInput{
			Name:     req.DeviceData.Name,
			Type:     req.DeviceData.Type,
			Status:   model.DeviceStatusOnline,
			Location: req.DeviceData.Location,
			Metadata: req.DeviceData.Metadata,
		})
		if err != nil {
			return s.fail(req.Action, "", err)
		}
		return Result{Success: true, Data: device, Message: fmt.Sprintf("Device %q added successfully", device.Name)}

	case "remove":
		if strings.TrimSpace(req.DeviceID) == "" {
			return failure("Device ID is required for remove action")
		}
		if err := s.devices.RemoveDevice(ctx, req.DeviceID); err != nil {
			return s.fail(req.Action, req.DeviceID, err)
		}
		return Result{Success: true, Message: fmt.Sprintf("Device %s removed successfully", req.DeviceID)}

	case "list":
		devices, err := s.devices.ListDevices(ctx, devicedomain.ListFilter{})
		if err != nil {
			return s.fail(req.Action, "", err)
		}
		return Result{Success: true, Data: devices, Message: fmt.Sprintf("Found %d device(s)", len(devices))}

	case "get":
		if strings.TrimSpace(req.DeviceID) == "" {
			return failure("Device ID is required for get action")
		}
		device, err := s.devices.GetDevice(ctx, req.DeviceID)
		if err != nil {
			return s.fail(req.Action, req.DeviceID, err)
		}
		return Result{Success: true, Data: device}

	default:
		return failure(fmt.Sprintf("Unknown action: %s", req.Action))
	}
}

type TelemetryRequest struct {
	Action   string `json:"action"`
	DeviceID string `json:"deviceId"`
	Limit    int    `json:"limit,omitempty"`
}

// ReadTelemetry handles get_latest, get_history and get_summary.
func (s *Service) ReadTelemetry(ctx context.Context, req TelemetryRequest) Result {
	device, err := s.devices.GetDevice(ctx, req.DeviceID)
	if err != nil {
		return s.fail(req.Action, req.DeviceID, err)
	}

	switch req.Action {
	case "get_latest":
		latest, err := s.telemetry.Latest(device.ID)
		if err != nil {
			return s.fail(req.Action, device.ID, err)
		}
		return Result{Success: true, Data: latest, Message: fmt.Sprintf("Latest telemetry for device %q", device.Name)}

	case "get_history":
		limit := req.Limit
		if limit <= 0 {
			limit = defaultHistoryLimit
		}
		history := s.telemetry.Recent(device.ID, limit)
		return Result{
			Success: true,
			Data:    history,
			Message: fmt.Sprintf("Retrieved %d telemetry record(s) for device %q", len(history), device.Name),
		}

	case "get_summary":
		summary, err := s.telemetry.Summary(device.ID)
		if err != nil {
			return s.fail(req.Action, device.ID, err)
		}
		summary.DeviceName = device.Name
		return Result{Success: true, Data: summary, Message: fmt.Sprintf("Telemetry summary for device %q", device.Name)}

	default:
		return failure(fmt.Sprintf("Unknown action: %s", req.Action))
	}
}

type DeviceControlRequest struct {
	DeviceID   string              `json:"deviceId"`
	Action     model.CommandAction `json:"action"`
	Parameters map[string]any      `json:"parameters,omitempty"`
}

// ControlDevice sends a command to an online device.
func (s *Service) ControlDevice(ctx context.Context, req DeviceControlRequest) Result {
	command, device, err := s.devices.SendCommand(ctx, model.Command{
		DeviceID:   req.DeviceID,
		Action:     req.Action,
		Parameters: req.Parameters,
	})
	if err != nil {
		return s.fail(string(req.Action), req.DeviceID, err)
	}
	return Result{
		Success: true,
		Data:    command,
		Message: fmt.Sprintf("Command %q sent to device %q successfully", command.Action, device.Name),
	}
}

func (s *Service) fail(action, deviceID string, err error) Result {
	switch {
	case errors.Is(err, devicedomain.ErrDeviceNotFound):
		return failure(fmt.Sprintf("Device %s not found", deviceID))
	case errors.Is(err, telemetry.ErrNoTelemetry):
		return failure(fmt.Sprintf("No telemetry data available for device %s", deviceID))
	case errors.Is(err, devicedomain.ErrDeviceConflict),
		errors.Is(err, devicedomain.ErrDeviceInvalid),
		errors.Is(err, devicedomain.ErrDeviceUnavailable):
		return failure(err.Error())
	default:
		s.logger.Error("tool action failed", "action", action, "device_id", deviceID, "err", err)
		return failure(err.Error())
	}
}

func failure(message string) Result {
	return Result{Success: false, Error: message}
}

func decode(input json.RawMessage, target any) error {
	if len(bytes.TrimSpace(input)) == 0 {
		return fmt.Errorf("%w: empty body", ErrInvalidInput)
	}
	decoder := json.NewDecoder(bytes.NewReader(input))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

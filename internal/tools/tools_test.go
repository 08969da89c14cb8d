package tools

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/nexus-iot/server/internal/model"
	"github.com/nexus-iot/server/internal/registry"
	devicesvc "github.com/nexus-iot/server/internal/services/device"
	"github.com/nexus-iot/server/internal/storage"
	"github.com/nexus-iot/server/internal/telemetry"
)

type fixture struct {
	tools *Service
	store *telemetry.Store
	reg   *registry.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.New(storage.NewMemory(), logger)
	store := telemetry.NewStore(50)
	devices := devicesvc.New(reg, nil, nil, time.Second, logger)
	return &fixture{tools: New(devices, store, logger), store: store, reg: reg}
}

func (f *fixture) seed(t *testing.T, device model.Device) {
	t.Helper()
	if _, err := f.reg.Add(context.Background(), device); err != nil {
		t.Fatalf("seed %s: %v", device.ID, err)
	}
}

func TestDeviceManagerLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	added := f.tools.ManageDevices(ctx, DeviceManagerRequest{
		Action:     "add",
		DeviceData: &DeviceData{Name: "Garage Fan", Type: model.DeviceTypeFan, Metadata: map[string]any{"state": "off"}},
	})
	if !added.Success {
		t.Fatalf("add failed: %+v", added)
	}
	device, ok := added.Data.(model.Device)
	if !ok || !strings.HasPrefix(device.ID, "device_") || device.Status != model.DeviceStatusOnline {
		t.Fatalf("unexpected added device: %#v", added.Data)
	}

	listed := f.tools.ManageDevices(ctx, DeviceManagerRequest{Action: "list"})
	if !listed.Success || listed.Message != "Found 1 device(s)" {
		t.Fatalf("unexpected list result: %+v", listed)
	}

	got := f.tools.ManageDevices(ctx, DeviceManagerRequest{Action: "get", DeviceID: device.ID})
	if !got.Success {
		t.Fatalf("get failed: %+v", got)
	}

	removed := f.tools.ManageDevices(ctx, DeviceManagerRequest{Action: "remove", DeviceID: device.ID})
	if !removed.Success {
		t.Fatalf("remove failed: %+v", removed)
	}
	missing := f.tools.ManageDevices(ctx, DeviceManagerRequest{Action: "get", DeviceID: device.ID})
	if missing.Success || missing.Error != "Device "+device.ID+" not found" {
		t.Fatalf("unexpected get-after-remove result: %+v", missing)
	}
}

func TestDeviceManagerValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  DeviceManagerRequest
		want string
	}{
		{name: "add without data", req: DeviceManagerRequest{Action: "add"}, want: "Device data is required for add action"},
		{name: "remove without id", req: DeviceManagerRequest{Action: "remove"}, want: "Device ID is required for remove action"},
		{name: "get without id", req: DeviceManagerRequest{Action: "get"}, want: "Device ID is required for get action"},
		{name: "unknown action", req: DeviceManagerRequest{Action: "rename"}, want: "Unknown action: rename"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			result := f.tools.ManageDevices(ctx, tt.req)
			if result.Success || result.Error != tt.want {
				t.Fatalf("result = %+v, want error %q", result, tt.want)
			}
		})
	}

	invalid := f.tools.ManageDevices(ctx, DeviceManagerRequest{Action: "add", DeviceData: &DeviceData{Name: "Toaster", Type: "toaster"}})
	if invalid.Success || !strings.Contains(invalid.Error, "unknown type") {
		t.Fatalf("invalid type result = %+v", invalid)
	}
}

func TestTelemetryActions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, model.Device{ID: "temp", Name: "Thermo", Type: model.DeviceTypeTemperatureSensor})

	empty := f.tools.ReadTelemetry(ctx, TelemetryRequest{Action: "get_latest", DeviceID: "temp"})
	if empty.Success || empty.Error != "No telemetry data available for device temp" {
		t.Fatalf("latest on empty = %+v", empty)
	}
	if summary := f.tools.ReadTelemetry(ctx, TelemetryRequest{Action: "get_summary", DeviceID: "temp"}); summary.Success {
		t.Fatalf("summary on empty should fail: %+v", summary)
	}

	base := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 15; i++ {
		_ = f.store.Append(model.Reading{DeviceID: "temp", Timestamp: base.Add(time.Duration(i) * time.Second), Data: map[string]any{"temperature": float64(20 + i)}})
	}

	history := f.tools.ReadTelemetry(ctx, TelemetryRequest{Action: "get_history", DeviceID: "temp"})
	readings, ok := history.Data.([]model.Reading)
	if !history.Success || !ok || len(readings) != 10 {
		t.Fatalf("default history = %+v", history)
	}
	if readings[9].Data["temperature"] != 34.0 {
		t.Fatalf("history not ending at newest reading: %+v", readings[9])
	}

	limited := f.tools.ReadTelemetry(ctx, TelemetryRequest{Action: "get_history", DeviceID: "temp", Limit: 3})
	if readings := limited.Data.([]model.Reading); len(readings) != 3 {
		t.Fatalf("limited history length = %d", len(readings))
	}

	summary := f.tools.ReadTelemetry(ctx, TelemetryRequest{Action: "get_summary", DeviceID: "temp"})
	data, ok := summary.Data.(model.TelemetrySummary)
	if !summary.Success || !ok || data.RecordCount != 15 || data.DeviceName != "Thermo" {
		t.Fatalf("summary = %+v", summary)
	}

	unknown := f.tools.ReadTelemetry(ctx, TelemetryRequest{Action: "get_latest", DeviceID: "ghost"})
	if unknown.Success || unknown.Error != "Device ghost not found" {
		t.Fatalf("unknown device = %+v", unknown)
	}
}

func TestDeviceControl(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, model.Device{ID: "light", Name: "Lamp", Type: model.DeviceTypeLight, Metadata: model.Metadata{"state": "off"}})
	f.seed(t, model.Device{ID: "ac", Name: "AC", Type: model.DeviceTypeAC, Status: model.DeviceStatusOffline})

	result := f.tools.ControlDevice(ctx, DeviceControlRequest{DeviceID: "light", Action: model.ActionSetBrightness, Parameters: map[string]any{"brightness": 55}})
	if !result.Success || result.Message != `Command "set_brightness" sent to device "Lamp" successfully` {
		t.Fatalf("control result = %+v", result)
	}
	device, err := f.reg.Get(ctx, "light")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if device.Metadata.Number("brightness", 0) != 55 || device.Metadata.String("state", "") != "off" {
		t.Fatalf("metadata after command = %+v", device.Metadata)
	}

	offline := f.tools.ControlDevice(ctx, DeviceControlRequest{DeviceID: "ac", Action: model.ActionTurnOn})
	if offline.Success || !strings.Contains(offline.Error, "is offline and cannot accept commands") {
		t.Fatalf("offline result = %+v", offline)
	}
}

func TestExecuteDecodesInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, model.Device{ID: "plug", Name: "Plug", Type: model.DeviceTypeSmartPlug})

	result, err := f.tools.Execute(ctx, DeviceControl, json.RawMessage(`{"deviceId":"plug","action":"turn_on"}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.Success {
		t.Fatalf("execute result = %+v", result)
	}

	if _, err := f.tools.Execute(ctx, "weather", json.RawMessage(`{}`)); !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("unknown tool error = %v, want ErrUnknownTool", err)
	}
	if _, err := f.tools.Execute(ctx, Telemetry, json.RawMessage(`{"action":`)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("malformed input error = %v, want ErrInvalidInput", err)
	}
	if _, err := f.tools.Execute(ctx, Telemetry, json.RawMessage(`{"action":"get_latest","deviceId":"plug","extra":1}`)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("unknown field error = %v, want ErrInvalidInput", err)
	}
	if _, err := f.tools.Execute(ctx, DeviceManager, nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty input error = %v, want ErrInvalidInput", err)
	}

	if names := Names(); len(names) != 3 || names[0] != DeviceControl {
		t.Fatalf("names = %v", names)
	}
}

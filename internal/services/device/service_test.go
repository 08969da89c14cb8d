package device

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	devicedomain "github.com/nexus-iot/server/internal/domain/device"
	"github.com/nexus-iot/server/internal/model"
	"github.com/nexus-iot/server/internal/registry"
	"github.com/nexus-iot/server/internal/storage"
)

type fakeSimulation struct {
	mu      sync.Mutex
	started map[string]time.Duration
	stopped []string
}

func (f *fakeSimulation) Start(_ context.Context, device model.Device, interval time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started == nil {
		f.started = map[string]time.Duration{}
	}
	f.started[device.ID] = interval
	return true
}

func (f *fakeSimulation) Stop(deviceID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, deviceID)
	_, ok := f.started[deviceID]
	delete(f.started, deviceID)
	return ok
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.Event
}

func (p *recordingPublisher) Publish(event model.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) types() []model.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.EventType, 0, len(p.events))
	for _, event := range p.events {
		out = append(out, event.Type)
	}
	return out
}

func newTestService(t *testing.T) (*Service, *fakeSimulation, *recordingPublisher) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.New(storage.NewMemory(), logger)
	sim := &fakeSimulation{}
	publisher := &recordingPublisher{}
	return New(reg, sim, publisher, 5*time.Second, logger), sim, publisher
}

func TestCreateDeviceStartsSimulation(t *testing.T) {
	svc, sim, publisher := newTestService(t)
	location := "  Office "

	device, err := svc.CreateDevice(context.Background(), devicedomain.CreateInput{
		Name:     "Desk Lamp",
		Type:     model.DeviceTypeLight,
		Location: &location,
		Metadata: map[string]any{"state": "on", "brightness": 40},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if device.ID == "" || device.Status != model.DeviceStatusOnline {
		t.Fatalf("unexpected device: %+v", device)
	}
	if device.Location == nil || *device.Location != "Office" {
		t.Fatalf("location = %v, want Office", device.Location)
	}
	if interval, ok := sim.started[device.ID]; !ok || interval != 5*time.Second {
		t.Fatalf("simulation not started with service interval: %v", sim.started)
	}
	if types := publisher.types(); len(types) != 1 || types[0] != model.EventDeviceUpdate {
		t.Fatalf("published = %v", types)
	}

	if _, err := svc.CreateDevice(context.Background(), devicedomain.CreateInput{ID: device.ID, Name: "Dup", Type: model.DeviceTypeLight}); !errors.Is(err, devicedomain.ErrDeviceConflict) {
		t.Fatalf("duplicate create error = %v, want ErrDeviceConflict", err)
	}
}

func TestRemoveDeviceStopsSimulation(t *testing.T) {
	svc, sim, _ := newTestService(t)
	ctx := context.Background()
	device, err := svc.CreateDevice(ctx, devicedomain.CreateInput{ID: "fan", Name: "Fan", Type: model.DeviceTypeFan})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.RemoveDevice(ctx, device.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(sim.stopped) != 1 || sim.stopped[0] != "fan" {
		t.Fatalf("stopped = %v", sim.stopped)
	}
	if err := svc.RemoveDevice(ctx, "fan"); !errors.Is(err, devicedomain.ErrDeviceNotFound) {
		t.Fatalf("second remove error = %v, want ErrDeviceNotFound", err)
	}
}

func TestListDevicesFilters(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	inputs := []devicedomain.CreateInput{
		{ID: "a", Name: "A", Type: model.DeviceTypeFan},
		{ID: "b", Name: "B", Type: model.DeviceTypeFan, Status: model.DeviceStatusOffline},
		{ID: "c", Name: "C", Type: model.DeviceTypeLight},
	}
	for _, in := range inputs {
		if _, err := svc.CreateDevice(ctx, in); err != nil {
			t.Fatalf("create %s: %v", in.ID, err)
		}
	}

	tests := []struct {
		name   string
		filter devicedomain.ListFilter
		want   []string
	}{
		{name: "all", filter: devicedomain.ListFilter{}, want: []string{"a", "b", "c"}},
		{name: "by type", filter: devicedomain.ListFilter{Type: model.DeviceTypeFan}, want: []string{"a", "b"}},
		{name: "online", filter: devicedomain.ListFilter{Status: model.DeviceStatusOnline}, want: []string{"a", "c"}},
		{name: "offline fans", filter: devicedomain.ListFilter{Type: model.DeviceTypeFan, Status: model.DeviceStatusOffline}, want: []string{"b"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			items, err := svc.ListDevices(ctx, tt.filter)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(items) != len(tt.want) {
				t.Fatalf("got %d items, want %v", len(items), tt.want)
			}
			for i, id := range tt.want {
				if items[i].ID != id {
					t.Fatalf("items[%d] = %s, want %s", i, items[i].ID, id)
				}
			}
		})
	}

	if _, err := svc.ListDevices(ctx, devicedomain.ListFilter{Type: "toaster"}); !errors.Is(err, devicedomain.ErrDeviceInvalid) {
		t.Fatalf("unknown type error = %v, want ErrDeviceInvalid", err)
	}
}

func TestSendCommandUpdatesMetadataAndPublishes(t *testing.T) {
	svc, _, publisher := newTestService(t)
	ctx := context.Background()
	if _, err := svc.CreateDevice(ctx, devicedomain.CreateInput{
		ID:       "fan",
		Name:     "Ceiling Fan",
		Type:     model.DeviceTypeFan,
		Metadata: map[string]any{"state": "off", "speed": 2},
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	command, device, err := svc.SendCommand(ctx, model.Command{DeviceID: "fan", Action: model.ActionTurnOn})
	if err != nil {
		t.Fatalf("turn on: %v", err)
	}
	if command.Timestamp.IsZero() {
		t.Fatalf("command timestamp not set")
	}
	if device.Metadata.String("state", "") != "on" || device.Metadata.Number("speed", 0) != 2 {
		t.Fatalf("unexpected metadata after turn_on: %+v", device.Metadata)
	}
	last, ok := device.Metadata["lastCommand"].(map[string]any)
	if !ok || last["action"] != "turn_on" {
		t.Fatalf("lastCommand = %#v", device.Metadata["lastCommand"])
	}

	_, device, err = svc.SendCommand(ctx, model.Command{DeviceID: "fan", Action: model.ActionSetSpeed, Parameters: map[string]any{"speed": 3}})
	if err != nil {
		t.Fatalf("set speed: %v", err)
	}
	if device.Metadata.String("state", "") != "on" || device.Metadata.Number("speed", 0) != 3 {
		t.Fatalf("unexpected metadata after set_speed: %+v", device.Metadata)
	}

	types := publisher.types()
	want := []model.EventType{
		model.EventDeviceUpdate,
		model.EventCommand, model.EventCommandResult, model.EventDeviceUpdate,
		model.EventCommand, model.EventCommandResult, model.EventDeviceUpdate,
	}
	if len(types) != len(want) {
		t.Fatalf("published = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("published = %v, want %v", types, want)
		}
	}
}

func TestSendCommandRejectsUnavailableDevices(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.CreateDevice(ctx, devicedomain.CreateInput{ID: "ac", Name: "AC", Type: model.DeviceTypeAC, Status: model.DeviceStatusMaintenance}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, _, err := svc.SendCommand(ctx, model.Command{DeviceID: "ac", Action: model.ActionTurnOn}); !errors.Is(err, devicedomain.ErrDeviceUnavailable) {
		t.Fatalf("maintenance error = %v, want ErrDeviceUnavailable", err)
	}
	if _, _, err := svc.SendCommand(ctx, model.Command{DeviceID: "missing", Action: model.ActionTurnOn}); !errors.Is(err, devicedomain.ErrDeviceNotFound) {
		t.Fatalf("missing error = %v, want ErrDeviceNotFound", err)
	}
	if _, _, err := svc.SendCommand(ctx, model.Command{DeviceID: "ac", Action: "explode"}); !errors.Is(err, devicedomain.ErrDeviceInvalid) {
		t.Fatalf("bad action error = %v, want ErrDeviceInvalid", err)
	}
}

func TestPatchDeviceRequiresChanges(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.CreateDevice(ctx, devicedomain.CreateInput{ID: "p", Name: "Plug", Type: model.DeviceTypeSmartPlug}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.PatchDevice(ctx, "p", devicedomain.Update{}); !errors.Is(err, devicedomain.ErrDeviceInvalid) {
		t.Fatalf("empty patch error = %v, want ErrDeviceInvalid", err)
	}
	name := "Kettle Plug"
	device, err := svc.PatchDevice(ctx, "p", devicedomain.Update{Name: &name})
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	if device.Name != name {
		t.Fatalf("name = %q, want %q", device.Name, name)
	}
}

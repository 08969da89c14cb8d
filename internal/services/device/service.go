package device

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	devicedomain "github.com/nexus-iot/server/internal/domain/device"
	"github.com/nexus-iot/server/internal/model"
	"github.com/nexus-iot/server/internal/pkg/utils"
)

// Simulation starts and stops per-device telemetry generation.
type Simulation interface {
	Start(ctx context.Context, device model.Device, interval time.Duration) bool
	Stop(deviceID string) bool
}

// Publisher fans events out to connected viewers.
type Publisher interface {
	Publish(event model.Event)
}

// Service implements device.Service use-cases.
type Service struct {
	registry  devicedomain.Registry
	sim       Simulation
	publisher Publisher
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// New creates the device service. interval is the simulation cadence for new devices.
func New(
	registry devicedomain.Registry,
	sim Simulation,
	publisher Publisher,
	interval time.Duration,
	logger *slog.Logger,
) *Service {
	return &Service{
		registry:  registry,
		sim:       sim,
		publisher: publisher,
		interval:  interval,
		logger:    logger,
		now:       utils.NowUTC,
	}
}

// ListDevices returns devices matching filter, ordered by id.
func (s *Service) ListDevices(ctx context.Context, filter devicedomain.ListFilter) ([]devicedomain.Device, error) {
	var (
		items []devicedomain.Device
		err   error
	)
	switch {
	case filter.Type != "":
		if !filter.Type.Valid() {
			return nil, fmt.Errorf("%w: unknown type %q", devicedomain.ErrDeviceInvalid, filter.Type)
		}
		items, err = s.registry.ListByType(ctx, filter.Type)
	case filter.Status == model.DeviceStatusOnline:
		items, err = s.registry.ListOnline(ctx)
	default:
		items, err = s.registry.ListAll(ctx)
	}
	if err != nil {
		return nil, err
	}
	if filter.Status == "" {
		return items, nil
	}
	if !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", devicedomain.ErrDeviceInvalid, filter.Status)
	}

	filtered := make([]devicedomain.Device, 0, len(items))
	for _, item := range items {
		if item.Status == filter.Status {
			filtered = append(filtered, item)
		}
	}
	return filtered, nil
}

func (s *Service) GetDevice(ctx context.Context, id string) (devicedomain.Device, error) {
	return s.registry.Get(ctx, id)
}

// CreateDevice registers a device and starts simulating it.
func (s *Service) CreateDevice(ctx context.Context, in devicedomain.CreateInput) (devicedomain.Device, error) {
	device, err := s.registry.Add(ctx, devicedomain.Device{
		ID:       in.ID,
		Name:     in.Name,
		Type:     in.Type,
		Status:   in.Status,
		Location: normalizeLocation(in.Location),
		Metadata: model.Metadata(in.Metadata).Clone(),
	})
	if err != nil {
		return devicedomain.Device{}, err
	}
	if s.sim != nil {
		s.sim.Start(ctx, device, s.interval)
	}
	s.publish(model.EventDeviceUpdate, device)
	s.logger.Info("device added", "device_id", device.ID, "type", device.Type)
	return device, nil
}

// PatchDevice applies a partial update and announces the new record.
func (s *Service) PatchDevice(ctx context.Context, id string, update devicedomain.Update) (devicedomain.Device, error) {
	if update.Empty() {
		return devicedomain.Device{}, fmt.Errorf("%w: no fields to update", devicedomain.ErrDeviceInvalid)
	}
	device, err := s.registry.Update(ctx, id, update)
	if err != nil {
		return devicedomain.Device{}, err
	}
	s.publish(model.EventDeviceUpdate, device)
	return device, nil
}

// RemoveDevice stops the device's simulation and deletes it.
func (s *Service) RemoveDevice(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if s.sim != nil {
		s.sim.Stop(id)
	}
	existed, err := s.registry.Remove(ctx, id)
	if err != nil {
		return err
	}
	if !existed {
		return fmt.Errorf("%w: %s", devicedomain.ErrDeviceNotFound, id)
	}
	s.publish(model.EventDeviceUpdate, map[string]any{"id": id, "removed": true})
	s.logger.Info("device removed", "device_id", id)
	return nil
}

// SendCommand records a control command in device metadata. Only online devices accept commands.
func (s *Service) SendCommand(ctx context.Context, command model.Command) (model.Command, devicedomain.Device, error) {
	command.DeviceID = strings.TrimSpace(command.DeviceID)
	if !command.Action.Valid() {
		return model.Command{}, devicedomain.Device{}, fmt.Errorf("%w: unknown action %q", devicedomain.ErrDeviceInvalid, command.Action)
	}
	device, err := s.registry.Get(ctx, command.DeviceID)
	if err != nil {
		return model.Command{}, devicedomain.Device{}, err
	}
	if device.Status != model.DeviceStatusOnline {
		return model.Command{}, devicedomain.Device{}, fmt.Errorf("%w: device %s is %s and cannot accept commands",
			devicedomain.ErrDeviceUnavailable, device.ID, device.Status)
	}

	now := s.now()
	command.Timestamp = now
	command.Parameters = model.Metadata(command.Parameters).Clone()
	s.publish(model.EventCommand, command)

	metadata := map[string]any{
		"lastCommand": commandRecord(command),
		"state":       nextState(command.Action, device.Metadata),
	}
	for key, value := range command.Parameters {
		metadata[key] = value
	}
	updated, err := s.registry.Update(ctx, device.ID, devicedomain.Update{Metadata: metadata, LastActivity: &now})
	if err != nil {
		s.publish(model.EventCommandResult, map[string]any{
			"deviceId": device.ID,
			"action":   command.Action,
			"success":  false,
			"error":    err.Error(),
		})
		return model.Command{}, devicedomain.Device{}, err
	}

	s.publish(model.EventCommandResult, map[string]any{
		"deviceId": device.ID,
		"action":   command.Action,
		"success":  true,
	})
	s.publish(model.EventDeviceUpdate, updated)
	s.logger.Info("command applied", "device_id", device.ID, "action", command.Action)
	return command, updated, nil
}

func (s *Service) publish(eventType model.EventType, payload any) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(model.NewEvent(eventType, payload))
}

func nextState(action model.CommandAction, metadata model.Metadata) string {
	switch action {
	case model.ActionTurnOn:
		return "on"
	case model.ActionTurnOff:
		return "off"
	default:
		return metadata.String("state", "unknown")
	}
}

// commandRecord is the JSON-shaped form stored under metadata.lastCommand.
func commandRecord(command model.Command) map[string]any {
	record := map[string]any{
		"deviceId":  command.DeviceID,
		"action":    string(command.Action),
		"timestamp": command.Timestamp.Format(time.RFC3339Nano),
	}
	if len(command.Parameters) > 0 {
		record["parameters"] = map[string]any(model.Metadata(command.Parameters).Clone())
	}
	return record
}

func normalizeLocation(location *string) *string {
	if location == nil {
		return nil
	}
	value := strings.TrimSpace(*location)
	if value == "" {
		return nil
	}
	return &value
}

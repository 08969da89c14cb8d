// Package registry owns device records: identity, status and metadata.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	devicedomain "github.com/nexus-iot/server/internal/domain/device"
	"github.com/nexus-iot/server/internal/model"
	"github.com/nexus-iot/server/internal/pkg/utils"
)

// Registry implements device.Registry over a Repository.
type Registry struct {
	repo   devicedomain.Repository
	logger *slog.Logger
	now    func() time.Time

	// serializes read-modify-write cycles
	mu sync.Mutex
}

func New(repo devicedomain.Repository, logger *slog.Logger) *Registry {
	return &Registry{repo: repo, logger: logger, now: utils.NowUTC}
}

// NewID returns a fresh device id.
func NewID() string {
	return "device_" + uuid.NewString()
}

// Add registers device. Duplicate ids are rejected with ErrDeviceConflict.
func (r *Registry) Add(ctx context.Context, device model.Device) (model.Device, error) {
	device = device.Clone()
	device.ID = strings.TrimSpace(device.ID)
	if device.ID == "" {
		device.ID = NewID()
	}
	device.Name = strings.TrimSpace(device.Name)
	if device.Name == "" {
		return model.Device{}, fmt.Errorf("%w: name is required", devicedomain.ErrDeviceInvalid)
	}
	if !device.Type.Valid() {
		return model.Device{}, fmt.Errorf("%w: unknown type %q", devicedomain.ErrDeviceInvalid, device.Type)
	}
	if device.Status == "" {
		device.Status = model.DeviceStatusOnline
	}
	if !device.Status.Valid() {
		return model.Device{}, fmt.Errorf("%w: unknown status %q", devicedomain.ErrDeviceInvalid, device.Status)
	}

	now := r.now()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	if device.UpdatedAt.Before(device.CreatedAt) {
		device.UpdatedAt = device.CreatedAt
	}
	if device.LastActivity.IsZero() {
		device.LastActivity = device.CreatedAt
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.repo.Insert(ctx, device); err != nil {
		return model.Device{}, err
	}
	r.logger.Debug("device registered", "device_id", device.ID, "type", device.Type)
	return device.Clone(), nil
}

func (r *Registry) Get(ctx context.Context, id string) (model.Device, error) {
	return r.repo.Get(ctx, strings.TrimSpace(id))
}

// Update merges update into the stored record and refreshes updatedAt.
func (r *Registry) Update(ctx context.Context, id string, update devicedomain.Update) (model.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, err := r.repo.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return model.Device{}, err
	}
	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return model.Device{}, fmt.Errorf("%w: name must not be empty", devicedomain.ErrDeviceInvalid)
		}
		device.Name = name
	}
	if update.Status != nil {
		if !update.Status.Valid() {
			return model.Device{}, fmt.Errorf("%w: unknown status %q", devicedomain.ErrDeviceInvalid, *update.Status)
		}
		device.Status = *update.Status
	}
	if update.Location != nil {
		location := strings.TrimSpace(*update.Location)
		if location == "" {
			device.Location = nil
		} else {
			device.Location = &location
		}
	}
	if len(update.Metadata) > 0 {
		if device.Metadata == nil {
			device.Metadata = model.Metadata{}
		}
		for key, value := range model.Metadata(update.Metadata).Clone() {
			device.Metadata[key] = value
		}
	}
	if update.LastActivity != nil {
		device.LastActivity = utils.MaxTime(device.LastActivity, update.LastActivity.UTC())
	}
	device.UpdatedAt = utils.MaxTime(device.CreatedAt, r.now())

	if err := r.repo.Save(ctx, device); err != nil {
		return model.Device{}, err
	}
	return device, nil
}

// Touch records activity at the given instant; lastActivity never moves backwards.
func (r *Registry) Touch(ctx context.Context, id string, at time.Time) error {
	_, err := r.Update(ctx, id, devicedomain.Update{LastActivity: &at})
	return err
}

// SetStatus changes device status and records activity.
func (r *Registry) SetStatus(ctx context.Context, id string, status model.DeviceStatus) (model.Device, error) {
	now := r.now()
	return r.Update(ctx, id, devicedomain.Update{Status: &status, LastActivity: &now})
}

// Remove deletes the record and reports whether it existed.
func (r *Registry) Remove(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.repo.Delete(ctx, strings.TrimSpace(id))
}

func (r *Registry) ListAll(ctx context.Context) ([]model.Device, error) {
	return r.repo.List(ctx, devicedomain.ListFilter{})
}

func (r *Registry) ListByType(ctx context.Context, deviceType model.DeviceType) ([]model.Device, error) {
	return r.repo.List(ctx, devicedomain.ListFilter{Type: deviceType})
}

func (r *Registry) ListOnline(ctx context.Context) ([]model.Device, error) {
	return r.repo.List(ctx, devicedomain.ListFilter{Status: model.DeviceStatusOnline})
}

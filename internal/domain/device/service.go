package device

import (
	"context"
	"time"

	"github.com/nexus-iot/server/internal/model"
)

// Registry exposes device records consumed by the simulator, HTTP and tool layers.
type Registry interface {
	Add(ctx context.Context, device Device) (Device, error)
	Get(ctx context.Context, id string) (Device, error)
	Update(ctx context.Context, id string, update Update) (Device, error)
	Touch(ctx context.Context, id string, at time.Time) error
	Remove(ctx context.Context, id string) (bool, error)
	ListAll(ctx context.Context) ([]Device, error)
	ListByType(ctx context.Context, deviceType Type) ([]Device, error)
	ListOnline(ctx context.Context) ([]Device, error)
}

// Service defines device use-cases that combine the registry with simulation and events.
type Service interface {
	ListDevices(ctx context.Context, filter ListFilter) ([]Device, error)
	GetDevice(ctx context.Context, id string) (Device, error)
	CreateDevice(ctx context.Context, input CreateInput) (Device, error)
	PatchDevice(ctx context.Context, id string, update Update) (Device, error)
	RemoveDevice(ctx context.Context, id string) error
	SendCommand(ctx context.Context, command model.Command) (model.Command, Device, error)
}

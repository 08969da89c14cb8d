package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	devicedomain "github.com/nexus-iot/server/internal/domain/device"
	"github.com/nexus-iot/server/internal/model"
)

// MemoryRepository is a map-backed device repository.
type MemoryRepository struct {
	mu      sync.RWMutex
	devices map[string]model.Device
}

func NewMemory() *MemoryRepository {
	return &MemoryRepository{devices: map[string]model.Device{}}
}

func (r *MemoryRepository) Insert(_ context.Context, device model.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[device.ID]; ok {
		return fmt.Errorf("%w: %s", devicedomain.ErrDeviceConflict, device.ID)
	}
	r.devices[device.ID] = device.Clone()
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (model.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	device, ok := r.devices[id]
	if !ok {
		return model.Device{}, fmt.Errorf("%w: %s", devicedomain.ErrDeviceNotFound, id)
	}
	return device.Clone(), nil
}

func (r *MemoryRepository) Save(_ context.Context, device model.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[device.ID]; !ok {
		return fmt.Errorf("%w: %s", devicedomain.ErrDeviceNotFound, device.ID)
	}
	r.devices[device.ID] = device.Clone()
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.devices[id]
	delete(r.devices, id)
	return ok, nil
}

func (r *MemoryRepository) List(_ context.Context, filter devicedomain.ListFilter) ([]model.Device, error) {
	r.mu.RLock()
	result := make([]model.Device, 0, len(r.devices))
	for _, device := range r.devices {
		if filter.Type != "" && device.Type != filter.Type {
			continue
		}
		if filter.Status != "" && device.Status != filter.Status {
			continue
		}
		result = append(result, device.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *MemoryRepository) Close() error {
	return nil
}

package device

import "context"

// Repository defines storage operations for device records.
// Implementations must return copies that do not alias stored state.
type Repository interface {
	Insert(ctx context.Context, device Device) error
	Get(ctx context.Context, id string) (Device, error)
	Save(ctx context.Context, device Device) error
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, filter ListFilter) ([]Device, error)
	Close() error
}

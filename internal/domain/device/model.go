package device

import (
	"time"

	"github.com/nexus-iot/server/internal/model"
)

// Device is the registry record shared with HTTP and tool layers.
type Device = model.Device

// Type enumerates supported device kinds.
type Type = model.DeviceType

// Status is device availability.
type Status = model.DeviceStatus

// Metadata stores device-type specific settings.
type Metadata = model.Metadata

// Update carries a partial device change. Nil fields are left untouched;
// metadata keys are merged into the existing metadata.
type Update struct {
	Name         *string        `json:"name,omitempty"`
	Status       *Status        `json:"status,omitempty"`
	Location     *string        `json:"location,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	LastActivity *time.Time     `json:"lastActivity,omitempty"`
}

// Empty reports whether the update carries no changes.
func (u Update) Empty() bool {
	return u.Name == nil && u.Status == nil && u.Location == nil && len(u.Metadata) == 0 && u.LastActivity == nil
}

// ListFilter narrows registry listings.
type ListFilter struct {
	Type   Type
	Status Status
}

// CreateInput describes a device to register. An empty ID is generated.
type CreateInput struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Type     Type           `json:"type"`
	Status   Status         `json:"status,omitempty"`
	Location *string        `json:"location,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

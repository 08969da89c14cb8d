package model

import (
	"strings"
	"time"
)

type DeviceType string

const (
	DeviceTypeSmartPlug         DeviceType = "smart_plug"
	DeviceTypeTemperatureSensor DeviceType = "temperature_sensor"
	DeviceTypeHumiditySensor    DeviceType = "humidity_sensor"
	DeviceTypeFan               DeviceType = "fan"
	DeviceTypeAC                DeviceType = "ac"
	DeviceTypeLight             DeviceType = "light"
	DeviceTypeMotionSensor      DeviceType = "motion_sensor"
	DeviceTypePowerMonitor      DeviceType = "power_monitor"
)

var deviceTypes = []DeviceType{
	DeviceTypeSmartPlug,
	DeviceTypeTemperatureSensor,
	DeviceTypeHumiditySensor,
	DeviceTypeFan,
	DeviceTypeAC,
	DeviceTypeLight,
	DeviceTypeMotionSensor,
	DeviceTypePowerMonitor,
}

// DeviceTypes returns every supported device kind.
func DeviceTypes() []DeviceType {
	out := make([]DeviceType, len(deviceTypes))
	copy(out, deviceTypes)
	return out
}

func (t DeviceType) Valid() bool {
	for _, known := range deviceTypes {
		if t == known {
			return true
		}
	}
	return false
}

type DeviceStatus string

const (
	DeviceStatusOnline      DeviceStatus = "online"
	DeviceStatusOffline     DeviceStatus = "offline"
	DeviceStatusError       DeviceStatus = "error"
	DeviceStatusMaintenance DeviceStatus = "maintenance"
)

func (s DeviceStatus) Valid() bool {
	switch s {
	case DeviceStatusOnline, DeviceStatusOffline, DeviceStatusError, DeviceStatusMaintenance:
		return true
	default:
		return false
	}
}

// Metadata holds device-type specific settings such as state, speed or brightness.
type Metadata map[string]any

// Device is the registry record for one simulated device.
type Device struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Type         DeviceType   `json:"type"`
	Status       DeviceStatus `json:"status"`
	Location     *string      `json:"location,omitempty"`
	Metadata     Metadata     `json:"metadata,omitempty"`
	LastActivity time.Time    `json:"lastActivity"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// Clone returns a deep copy so callers never share metadata with the registry.
func (d Device) Clone() Device {
	out := d
	if d.Location != nil {
		location := *d.Location
		out.Location = &location
	}
	out.Metadata = d.Metadata.Clone()
	return out
}

// IsOn reports whether metadata state is "on".
func (d Device) IsOn() bool {
	state, _ := d.Metadata["state"].(string)
	return strings.EqualFold(strings.TrimSpace(state), "on")
}

func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for key, value := range m {
		out[key] = cloneValue(value)
	}
	return out
}

// String returns the string value for key or fallback.
func (m Metadata) String(key, fallback string) string {
	if value, ok := m[key].(string); ok && strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

// Number returns a numeric metadata value. Zero and missing values yield fallback.
func (m Metadata) Number(key string, fallback float64) float64 {
	var value float64
	switch v := m[key].(type) {
	case float64:
		value = v
	case float32:
		value = float64(v)
	case int:
		value = float64(v)
	case int64:
		value = float64(v)
	case int32:
		value = float64(v)
	case uint:
		value = float64(v)
	case uint64:
		value = float64(v)
	default:
		return fallback
	}
	if value == 0 {
		return fallback
	}
	return value
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return map[string]any(Metadata(v).Clone())
	case Metadata:
		return v.Clone()
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

package model

import "time"

// Reading is one timestamped telemetry sample. Data values are numbers, booleans or short strings.
type Reading struct {
	DeviceID  string         `json:"deviceId"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

func (r Reading) Clone() Reading {
	out := r
	if r.Data != nil {
		out.Data = make(map[string]any, len(r.Data))
		for key, value := range r.Data {
			out.Data[key] = value
		}
	}
	return out
}

// TelemetrySummary describes the retained history of one device.
type TelemetrySummary struct {
	DeviceID     string         `json:"deviceId"`
	DeviceName   string         `json:"deviceName,omitempty"`
	RecordCount  int            `json:"recordCount"`
	FirstReading time.Time      `json:"firstReading"`
	LastReading  time.Time      `json:"lastReading"`
	LatestData   map[string]any `json:"latestData"`
}

type CommandAction string

const (
	ActionTurnOn         CommandAction = "turn_on"
	ActionTurnOff        CommandAction = "turn_off"
	ActionSetTemperature CommandAction = "set_temperature"
	ActionSetSpeed       CommandAction = "set_speed"
	ActionSetBrightness  CommandAction = "set_brightness"
)

func (a CommandAction) Valid() bool {
	switch a {
	case ActionTurnOn, ActionTurnOff, ActionSetTemperature, ActionSetSpeed, ActionSetBrightness:
		return true
	default:
		return false
	}
}

// Command is a control instruction recorded against a device.
type Command struct {
	DeviceID   string         `json:"deviceId"`
	Action     CommandAction  `json:"action"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

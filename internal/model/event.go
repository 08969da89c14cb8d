package model

import "time"

type EventType string

const (
	EventDeviceUpdate        EventType = "device_update"
	EventTelemetry           EventType = "telemetry"
	EventCommand             EventType = "command"
	EventCommandResult       EventType = "command_result"
	EventAutomationTriggered EventType = "automation_triggered"
	EventError               EventType = "error"
	// EventConnectionStatus is only understood by consumers; the server never emits it.
	EventConnectionStatus EventType = "connection_status"
)

func (t EventType) Valid() bool {
	switch t {
	case EventDeviceUpdate, EventTelemetry, EventCommand, EventCommandResult,
		EventAutomationTriggered, EventError, EventConnectionStatus:
		return true
	default:
		return false
	}
}

// Event is the broadcast envelope sent to every subscriber.
type Event struct {
	Type      EventType `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent stamps payload with the current UTC time.
func NewEvent(eventType EventType, payload any) Event {
	return Event{Type: eventType, Payload: payload, Timestamp: time.Now().UTC()}
}

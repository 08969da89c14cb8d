package device

import "errors"

var (
	// ErrDeviceNotFound indicates an unknown device id.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrDeviceConflict indicates a device with the same id is already registered.
	ErrDeviceConflict = errors.New("device already exists")
	// ErrDeviceInvalid indicates a payload that failed validation.
	ErrDeviceInvalid = errors.New("device invalid")
	// ErrDeviceUnavailable indicates a device that cannot accept commands in its current status.
	ErrDeviceUnavailable = errors.New("device unavailable")
)

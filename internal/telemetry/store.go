// Package telemetry keeps a bounded, ordered history of readings per device.
package telemetry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/nexus-iot/server/internal/model"
)

const DefaultCapacity = 1000

var (
	// ErrNoTelemetry means the device has no stored readings.
	ErrNoTelemetry = errors.New("no telemetry data available")
	// ErrInvalidReading means a reading without a device id.
	ErrInvalidReading = errors.New("invalid telemetry reading")
)

// Store maps device ids to their reading history.
type Store struct {
	mu        sync.RWMutex
	histories map[string]*history
	capacity  int
}

// NewStore creates a store retaining at most capacity readings per device.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{histories: map[string]*history{}, capacity: capacity}
}

func (s *Store) Capacity() int {
	return s.capacity
}

// Append stores reading at the tail of its device history, evicting the oldest when full.
func (s *Store) Append(reading model.Reading) error {
	reading.DeviceID = strings.TrimSpace(reading.DeviceID)
	if reading.DeviceID == "" {
		return fmt.Errorf("%w: device id is required", ErrInvalidReading)
	}
	if reading.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is required", ErrInvalidReading)
	}
	reading = reading.Clone()
	reading.Timestamp = reading.Timestamp.UTC()
	s.historyFor(reading.DeviceID, true).push(reading)
	return nil
}

// Recent returns the last limit readings in chronological order; limit <= 0 returns all.
// Unknown devices yield an empty slice.
func (s *Store) Recent(deviceID string, limit int) []model.Reading {
	h := s.historyFor(deviceID, false)
	if h == nil {
		return []model.Reading{}
	}
	return h.last(limit)
}

func (s *Store) Latest(deviceID string) (model.Reading, error) {
	h := s.historyFor(deviceID, false)
	if h == nil {
		return model.Reading{}, fmt.Errorf("%w: %s", ErrNoTelemetry, deviceID)
	}
	reading, ok := h.latest()
	if !ok {
		return model.Reading{}, fmt.Errorf("%w: %s", ErrNoTelemetry, deviceID)
	}
	return reading, nil
}

func (s *Store) Summary(deviceID string) (model.TelemetrySummary, error) {
	h := s.historyFor(deviceID, false)
	if h == nil {
		return model.TelemetrySummary{}, fmt.Errorf("%w: %s", ErrNoTelemetry, deviceID)
	}
	first, last, count := h.bounds()
	if count == 0 {
		return model.TelemetrySummary{}, fmt.Errorf("%w: %s", ErrNoTelemetry, deviceID)
	}
	return model.TelemetrySummary{
		DeviceID:     deviceID,
		RecordCount:  count,
		FirstReading: first.Timestamp,
		LastReading:  last.Timestamp,
		LatestData:   last.Data,
	}, nil
}

// Len returns the number of readings retained for deviceID.
func (s *Store) Len(deviceID string) int {
	h := s.historyFor(deviceID, false)
	if h == nil {
		return 0
	}
	return h.len()
}

// LatestAll returns the newest reading of every device, ordered by device id.
func (s *Store) LatestAll() []model.Reading {
	s.mu.RLock()
	ids := make([]string, 0, len(s.histories))
	for id := range s.histories {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)

	out := make([]model.Reading, 0, len(ids))
	for _, id := range ids {
		if reading, err := s.Latest(id); err == nil {
			out = append(out, reading)
		}
	}
	return out
}

func (s *Store) historyFor(deviceID string, create bool) *history {
	s.mu.RLock()
	h, ok := s.histories[deviceID]
	s.mu.RUnlock()
	if ok || !create {
		return h
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.histories[deviceID]; ok {
		return h
	}
	h = newHistory(s.capacity)
	s.histories[deviceID] = h
	return h
}

// Package simulator produces periodic synthetic telemetry for registered devices.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	devicedomain "github.com/nexus-iot/server/internal/domain/device"
	"github.com/nexus-iot/server/internal/model"
	"github.com/nexus-iot/server/internal/pkg/utils"
	"github.com/nexus-iot/server/internal/telemetry"
)

const DefaultInterval = 5 * time.Second

// DeviceSource is the registry subset the simulator needs.
type DeviceSource interface {
	Get(ctx context.Context, id string) (model.Device, error)
	Touch(ctx context.Context, id string, at time.Time) error
}

// Publisher receives every generated reading as a telemetry event.
type Publisher interface {
	Publish(event model.Event)
}

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

type Simulator struct {
	devices   DeviceSource
	store     *telemetry.Store
	publisher Publisher
	generator *Generator
	logger    *slog.Logger
	interval  time.Duration
	now       func() time.Time

	mu    sync.Mutex
	tasks map[string]*task
}

func New(devices DeviceSource, store *telemetry.Store, publisher Publisher, generator *Generator, interval time.Duration, logger *slog.Logger) *Simulator {
	if generator == nil {
		generator = NewGenerator(nil)
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Simulator{
		devices:   devices,
		store:     store,
		publisher: publisher,
		generator: generator,
		logger:    logger,
		interval:  interval,
		now:       utils.NowUTC,
		tasks:     map[string]*task{},
	}
}

func (s *Simulator) Generator() *Generator {
	return s.generator
}

// Start begins simulating device every interval (the simulator default when <= 0).
// The first reading is produced before Start returns. Starting a running device is a no-op
// and reports false.
func (s *Simulator) Start(ctx context.Context, device model.Device, interval time.Duration) bool {
	if interval <= 0 {
		interval = s.interval
	}

	s.mu.Lock()
	if _, running := s.tasks[device.ID]; running {
		s.mu.Unlock()
		s.logger.Info("simulation already running", "device_id", device.ID)
		return false
	}
	taskCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t := &task{cancel: cancel, done: make(chan struct{})}
	s.tasks[device.ID] = t
	s.mu.Unlock()

	if _, err := s.Tick(ctx, device.ID); err != nil {
		s.logger.Warn("initial telemetry failed", "device_id", device.ID, "err", err)
	}
	go s.run(taskCtx, device.ID, interval, t.done)

	s.logger.Info("simulation started", "device_id", device.ID, "name", device.Name, "interval", interval.String())
	return true
}

// Stop cancels the device's simulation and waits for its goroutine to exit.
// No reading for the device is produced after Stop returns.
func (s *Simulator) Stop(deviceID string) bool {
	s.mu.Lock()
	t, ok := s.tasks[deviceID]
	delete(s.tasks, deviceID)
	s.mu.Unlock()
	if !ok {
		return false
	}

	t.cancel()
	<-t.done
	s.logger.Info("simulation stopped", "device_id", deviceID)
	return true
}

// StopAll stops every running simulation and returns how many were stopped.
func (s *Simulator) StopAll() int {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = map[string]*task{}
	s.mu.Unlock()

	for _, t := range tasks {
		t.cancel()
	}
	for deviceID, t := range tasks {
		<-t.done
		s.logger.Info("simulation stopped", "device_id", deviceID)
	}
	return len(tasks)
}

func (s *Simulator) Running(deviceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[deviceID]
	return ok
}

// Active returns the ids of running simulations, sorted.
func (s *Simulator) Active() []string {
	s.mu.Lock()
	ids := make([]string, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Tick generates and stores one reading for deviceID using its current registry state.
func (s *Simulator) Tick(ctx context.Context, deviceID string) (model.Reading, error) {
	device, err := s.devices.Get(ctx, deviceID)
	if err != nil {
		return model.Reading{}, err
	}

	at := s.now()
	reading := model.Reading{
		DeviceID:  device.ID,
		Timestamp: at,
		Data:      s.generator.Generate(device, at),
	}
	if err := s.store.Append(reading); err != nil {
		return model.Reading{}, fmt.Errorf("store reading: %w", err)
	}
	if err := s.devices.Touch(ctx, device.ID, at); err != nil && !errors.Is(err, devicedomain.ErrDeviceNotFound) {
		s.logger.Warn("touch device failed", "device_id", device.ID, "err", err)
	}
	if s.publisher != nil {
		s.publisher.Publish(model.NewEvent(model.EventTelemetry, reading.Clone()))
	}
	return reading, nil
}

func (s *Simulator) run(ctx context.Context, deviceID string, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			return
		}
		if _, err := s.Tick(ctx, deviceID); err != nil && ctx.Err() == nil {
			s.logger.Warn("telemetry generation failed", "device_id", deviceID, "err", err)
		}
	}
}

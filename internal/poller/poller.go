// Package poller runs the server-wide broadcast tick, independent of per-device simulation.
package poller

import (
	"context"
	"log/slog"
	"time"

	"github.com/nexus-iot/server/internal/model"
)

const DefaultInterval = 5 * time.Second

// Source supplies the newest reading of every device.
type Source interface {
	LatestAll() []model.Reading
}

type Publisher interface {
	Publish(event model.Event)
}

// TelemetrySnapshot is the payload of a periodic telemetry tick.
type TelemetrySnapshot struct {
	Readings []model.Reading `json:"readings"`
}

type Poller struct {
	source    Source
	publisher Publisher
	interval  time.Duration
	refreshCh chan struct{}
	logger    *slog.Logger
}

func New(source Source, publisher Publisher, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		source:    source,
		publisher: publisher,
		interval:  interval,
		refreshCh: make(chan struct{}, 1),
		logger:    logger,
	}
}

// TriggerRefresh requests an immediate tick. Requests coalesce while one is pending.
func (p *Poller) TriggerRefresh() {
	select {
	case p.refreshCh <- struct{}{}:
	default:
	}
}

func (p *Poller) Run(ctx context.Context) {
	for {
		timer := time.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-p.refreshCh:
			timer.Stop()
		case <-timer.C:
		}
		p.BroadcastOnce()
	}
}

// BroadcastOnce publishes one telemetry snapshot. Ticks with no readings are skipped.
func (p *Poller) BroadcastOnce() int {
	readings := p.source.LatestAll()
	if len(readings) == 0 {
		p.logger.Debug("broadcast tick skipped; no telemetry yet")
		return 0
	}
	p.publisher.Publish(model.NewEvent(model.EventTelemetry, TelemetrySnapshot{Readings: readings}))
	return len(readings)
}

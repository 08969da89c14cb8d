// Package client keeps one logical event-feed connection alive across transport failures.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nexus-iot/server/internal/model"
)

const (
	DefaultBaseDelay = time.Second
	DefaultMaxDelay  = 30 * time.Second
)

// ErrNotConnected is returned by Send while no transport session is open.
var ErrNotConnected = errors.New("channel not connected")

type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateWaiting    State = "waiting"
	StateClosed     State = "closed"
)

type Options struct {
	URL       string
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Dialer    Dialer
	// OnEvent receives every accepted inbound event.
	OnEvent func(model.Event)
	// OnState receives every state transition.
	OnState func(State)
}

// Channel is a reconnecting event-feed consumer. A single run goroutine owns dialing and
// the retry timer, so at most one reconnect is ever pending.
type Channel struct {
	opts   Options
	logger *slog.Logger

	mu      sync.RWMutex
	state   State
	attempt int
	conn    Conn
	latest  *model.Event

	cancel    context.CancelFunc
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
}

func New(opts Options, logger *slog.Logger) *Channel {
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = DefaultMaxDelay
	}
	if opts.MaxDelay < opts.BaseDelay {
		opts.MaxDelay = opts.BaseDelay
	}
	if opts.Dialer == nil {
		opts.Dialer = WebsocketDialer{}
	}
	return &Channel{opts: opts, logger: logger, state: StateIdle, done: make(chan struct{})}
}

// Delay returns min(base*2^attempt, maxDelay).
func Delay(attempt int, base, maxDelay time.Duration) time.Duration {
	delay := base
	for i := 0; i < attempt && delay < maxDelay; i++ {
		delay *= 2
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

// Start launches the connection loop. It is a no-op after the first call.
func (c *Channel) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		c.mu.Lock()
		c.cancel = cancel
		c.mu.Unlock()
		go c.run(runCtx)
	})
}

// Close cancels any pending reconnect, closes the transport and waits for the loop to exit.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		// blocks a later Start
		c.startOnce.Do(func() {})

		c.mu.Lock()
		cancel := c.cancel
		conn := c.conn
		c.mu.Unlock()

		if cancel == nil {
			close(c.done)
		} else {
			cancel()
			if conn != nil {
				_ = conn.Close()
			}
			<-c.done
		}
		c.setState(StateClosed)
	})
	return nil
}

func (c *Channel) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Attempt returns the number of consecutive failed or closed sessions.
func (c *Channel) Attempt() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.attempt
}

// Latest returns the most recent accepted event.
func (c *Channel) Latest() (model.Event, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.latest == nil {
		return model.Event{}, false
	}
	return *c.latest, true
}

// Send writes v as JSON over the open session.
func (c *Channel) Send(v any) error {
	c.mu.RLock()
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.RUnlock()
	if !connected || conn == nil {
		return ErrNotConnected
	}
	msg, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(msg)
}

func (c *Channel) run(ctx context.Context) {
	defer close(c.done)
	for {
		if ctx.Err() != nil {
			return
		}
		c.setState(StateConnecting)
		err := c.session(ctx)
		if ctx.Err() != nil {
			return
		}

		c.mu.Lock()
		delay := Delay(c.attempt, c.opts.BaseDelay, c.opts.MaxDelay)
		c.attempt++
		attempt := c.attempt
		c.mu.Unlock()
		c.setState(StateWaiting)
		c.logger.Warn("event channel disconnected", "err", err, "attempt", attempt, "retry_in", delay.String())

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (c *Channel) session(ctx context.Context) error {
	conn, err := c.opts.Dialer.Dial(ctx, c.opts.URL)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		_ = conn.Close()
		return ctx.Err()
	}
	c.conn = conn
	c.attempt = 0
	c.mu.Unlock()
	c.setState(StateConnected)
	c.logger.Info("event channel connected", "url", c.opts.URL)

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		msg, err := conn.Read()
		if err != nil {
			return err
		}
		c.handle(msg)
	}
}

func (c *Channel) handle(raw []byte) {
	var event model.Event
	if err := json.Unmarshal(raw, &event); err != nil {
		c.logger.Warn("parse event failed", "err", err)
		return
	}
	switch event.Type {
	case model.EventTelemetry, model.EventDeviceUpdate, model.EventConnectionStatus:
	default:
		c.logger.Debug("event ignored", "type", event.Type)
		return
	}

	c.mu.Lock()
	c.latest = &event
	c.mu.Unlock()
	if c.opts.OnEvent != nil {
		c.opts.OnEvent(event)
	}
}

func (c *Channel) setState(state State) {
	c.mu.Lock()
	if c.state == state || c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = state
	c.mu.Unlock()
	if c.opts.OnState != nil {
		c.opts.OnState(state)
	}
}

// Package broadcast fans out events to every connected subscriber.
package broadcast

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nexus-iot/server/internal/model"
	"github.com/nexus-iot/server/internal/pkg/utils"
)

const WelcomeMessage = "Connected to NEXUS IoT server"

var (
	// ErrInvalidMessage is reported for inbound frames that are not an event envelope.
	ErrInvalidMessage = errors.New("invalid message format")
	// ErrHubClosed is returned by Subscribe after Close.
	ErrHubClosed = errors.New("broadcast hub closed")
)

// Sink is one subscriber channel. Send must not block.
type Sink interface {
	ID() string
	Open() bool
	Send(msg []byte) error
	Close() error
}

// Hub keeps the subscriber set. Delivery is best-effort: sinks that are not open are skipped
// and nothing is redelivered.
type Hub struct {
	mu     sync.RWMutex
	sinks  map[string]Sink
	closed bool

	upgrader   websocket.Upgrader
	sendBuffer int
	logger     *slog.Logger
	now        func() time.Time
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		sinks: map[string]Sink{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		sendBuffer: defaultSendBuffer,
		logger:     logger,
		now:        utils.NowUTC,
	}
}

// Subscribe registers sink after sending it the connection acknowledgement.
func (h *Hub) Subscribe(sink Sink) error {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		return ErrHubClosed
	}

	ack, err := h.encode(model.Event{
		Type:    model.EventDeviceUpdate,
		Payload: map[string]any{"message": WelcomeMessage},
	})
	if err != nil {
		return err
	}
	if err := sink.Send(ack); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	h.sinks[sink.ID()] = sink
	return nil
}

// Unsubscribe removes sink and reports whether it was registered.
func (h *Hub) Unsubscribe(sink Sink) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sinks[sink.ID()]; !ok {
		return false
	}
	delete(h.sinks, sink.ID())
	return true
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sinks)
}

// Publish serializes event once and hands it to every open sink.
func (h *Hub) Publish(event model.Event) {
	msg, err := h.encode(event)
	if err != nil {
		h.logger.Error("encode broadcast event failed", "type", event.Type, "err", err)
		return
	}

	h.mu.RLock()
	sinks := make([]Sink, 0, len(h.sinks))
	for _, sink := range h.sinks {
		sinks = append(sinks, sink)
	}
	h.mu.RUnlock()

	for _, sink := range sinks {
		if !sink.Open() {
			continue
		}
		if err := sink.Send(msg); err != nil {
			h.logger.Debug("broadcast dropped", "client_id", sink.ID(), "type", event.Type, "err", err)
		}
	}
}

// HandleInbound validates a frame received from sink. Malformed frames are answered with an
// error event sent to that sink only.
func (h *Hub) HandleInbound(sink Sink, raw []byte) error {
	var envelope struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || strings.TrimSpace(envelope.Type) == "" {
		h.logger.Warn("invalid inbound message", "client_id", sink.ID())
		h.sendError(sink, "Invalid message format")
		return ErrInvalidMessage
	}
	h.logger.Debug("inbound message", "client_id", sink.ID(), "type", envelope.Type)
	return nil
}

// Close disconnects every sink and rejects further subscriptions.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	sinks := h.sinks
	h.sinks = map[string]Sink{}
	h.mu.Unlock()

	for _, sink := range sinks {
		if err := sink.Close(); err != nil {
			h.logger.Debug("close subscriber failed", "client_id", sink.ID(), "err", err)
		}
	}
}

func (h *Hub) sendError(sink Sink, message string) {
	msg, err := h.encode(model.Event{Type: model.EventError, Payload: map[string]any{"error": message}})
	if err != nil {
		return
	}
	if err := sink.Send(msg); err != nil {
		h.logger.Debug("error event dropped", "client_id", sink.ID(), "err", err)
	}
}

func (h *Hub) encode(event model.Event) ([]byte, error) {
	if event.Timestamp.IsZero() {
		event.Timestamp = h.now()
	}
	return json.Marshal(event)
}

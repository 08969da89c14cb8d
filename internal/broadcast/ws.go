package broadcast

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	defaultSendBuffer = 64

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var (
	ErrSinkClosed    = errors.New("subscriber closed")
	ErrSinkSaturated = errors.New("subscriber send buffer full")
)

// ServeWS upgrades the request and keeps the connection subscribed until it closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	sink := newWSSink(conn, h.sendBuffer)
	go sink.writePump(h.logger)

	if err := h.Subscribe(sink); err != nil {
		h.logger.Warn("websocket subscribe failed", "client_id", sink.ID(), "err", err)
		_ = sink.Close()
		return
	}
	h.logger.Info("websocket client connected", "client_id", sink.ID(), "clients", h.Count())

	err = sink.readPump(func(raw []byte) {
		_ = h.HandleInbound(sink, raw)
	})
	h.Unsubscribe(sink)
	_ = sink.Close()

	if err != nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
		h.logger.Warn("websocket client error", "client_id", sink.ID(), "err", err)
	}
	h.logger.Info("websocket client disconnected", "client_id", sink.ID(), "clients", h.Count())
}

// wsSink queues outbound frames for a single writer goroutine.
type wsSink struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func newWSSink(conn *websocket.Conn, buffer int) *wsSink {
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	return &wsSink{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

func (s *wsSink) ID() string {
	return s.id
}

func (s *wsSink) Open() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Send enqueues msg without blocking; a full queue drops it.
func (s *wsSink) Send(msg []byte) error {
	if !s.Open() {
		return ErrSinkClosed
	}
	select {
	case s.send <- msg:
		return nil
	default:
		return ErrSinkSaturated
	}
}

func (s *wsSink) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	return nil
}

func (s *wsSink) writePump(logger *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.Close()
		_ = s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			s.drain()
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case msg := <-s.send:
			if err := s.write(websocket.TextMessage, msg); err != nil {
				logger.Debug("websocket write failed", "client_id", s.id, "err", err)
				return
			}
		case <-ticker.C:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				logger.Debug("websocket ping failed", "client_id", s.id, "err", err)
				return
			}
		}
	}
}

// drain flushes frames queued before Close.
func (s *wsSink) drain() {
	for {
		select {
		case msg := <-s.send:
			if err := s.write(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *wsSink) write(messageType int, msg []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, msg)
}

func (s *wsSink) readPump(handle func([]byte)) error {
	s.conn.SetReadLimit(maxMessageSize)
	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return err
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			return err
		}
		handle(msg)
	}
}

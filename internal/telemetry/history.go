package telemetry

import (
	"sync"

	"github.com/nexus-iot/server/internal/model"
)

// history is a fixed-capacity ring of readings for one device.
// Once full, each push overwrites the oldest slot.
type history struct {
	mu       sync.RWMutex
	items    []model.Reading
	start    int
	size     int
	capacity int
}

func newHistory(capacity int) *history {
	initial := capacity
	if initial > 64 {
		initial = 64
	}
	return &history{items: make([]model.Reading, 0, initial), capacity: capacity}
}

func (h *history) push(reading model.Reading) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.size < h.capacity {
		h.items = append(h.items, reading)
		h.size++
		return
	}
	h.items[h.start] = reading
	h.start = (h.start + 1) % h.capacity
}

func (h *history) at(i int) model.Reading {
	return h.items[(h.start+i)%len(h.items)]
}

// last returns up to limit newest readings, oldest first. limit <= 0 means all.
func (h *history) last(limit int) []model.Reading {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := h.size
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.Reading, 0, n)
	for i := h.size - n; i < h.size; i++ {
		out = append(out, h.at(i).Clone())
	}
	return out
}

func (h *history) latest() (model.Reading, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.size == 0 {
		return model.Reading{}, false
	}
	return h.at(h.size - 1).Clone(), true
}

func (h *history) bounds() (first, last model.Reading, count int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.size == 0 {
		return model.Reading{}, model.Reading{}, 0
	}
	return h.at(0), h.at(h.size - 1).Clone(), h.size
}

func (h *history) len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}

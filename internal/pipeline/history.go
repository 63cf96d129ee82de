package pipeline

import (
	"sync"

	"github.com/quantrel/lixifeed/internal/market"
)

// History is a bounded in-memory store of the most recent completed
// windows, oldest first. Windows are immutable after emission, so readers
// receive shared pointers; only the slice itself is copied.
type History struct {
	mu      sync.RWMutex
	windows []*market.TickWindow
	cap     int
}

// NewHistory creates a history retaining at most capacity windows.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{
		windows: make([]*market.TickWindow, 0, capacity),
		cap:     capacity,
	}
}

// Add appends a completed window, evicting the oldest when full.
func (h *History) Add(w *market.TickWindow) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.windows) == h.cap {
		copy(h.windows, h.windows[1:])
		h.windows = h.windows[:len(h.windows)-1]
	}
	h.windows = append(h.windows, w)
}

// Recent returns up to n of the most recent windows, oldest first.
func (h *History) Recent(n int) []*market.TickWindow {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n > len(h.windows) {
		n = len(h.windows)
	}

	out := make([]*market.TickWindow, n)
	copy(out, h.windows[len(h.windows)-n:])
	return out
}

// Latest returns the most recent window, or nil when empty.
func (h *History) Latest() *market.TickWindow {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.windows) == 0 {
		return nil
	}
	return h.windows[len(h.windows)-1]
}

// Len returns the number of retained windows.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.windows)
}

// Clear drops all retained windows. Called on instrument switch.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.windows = h.windows[:0]
}

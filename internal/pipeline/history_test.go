package pipeline

import (
	"fmt"
	"testing"

	"github.com/quantrel/lixifeed/internal/market"
)

func windowWithID(id string) *market.TickWindow {
	return &market.TickWindow{ID: id}
}

func TestHistoryBounded(t *testing.T) {
	h := NewHistory(3)

	for i := 0; i < 5; i++ {
		h.Add(windowWithID(fmt.Sprintf("w%d", i)))
	}

	if h.Len() != 3 {
		t.Fatalf("Len = %d, want 3", h.Len())
	}

	recent := h.Recent(3)
	want := []string{"w2", "w3", "w4"}
	for i, w := range recent {
		if w.ID != want[i] {
			t.Errorf("Recent[%d] = %s, want %s", i, w.ID, want[i])
		}
	}
}

func TestHistoryRecentClampsRequest(t *testing.T) {
	h := NewHistory(10)
	h.Add(windowWithID("w0"))
	h.Add(windowWithID("w1"))

	recent := h.Recent(5)
	if len(recent) != 2 {
		t.Errorf("Recent(5) returned %d windows, want 2", len(recent))
	}
}

func TestHistoryLatest(t *testing.T) {
	h := NewHistory(4)

	if h.Latest() != nil {
		t.Error("Latest on empty history should be nil")
	}

	h.Add(windowWithID("w0"))
	h.Add(windowWithID("w1"))

	if got := h.Latest(); got == nil || got.ID != "w1" {
		t.Errorf("Latest = %v, want w1", got)
	}
}

func TestHistoryClear(t *testing.T) {
	h := NewHistory(4)
	h.Add(windowWithID("w0"))

	h.Clear()

	if h.Len() != 0 {
		t.Errorf("Len = %d after Clear, want 0", h.Len())
	}
	if h.Latest() != nil {
		t.Error("Latest should be nil after Clear")
	}
}

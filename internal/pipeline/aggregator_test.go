package pipeline

import (
	"testing"

	"github.com/quantrel/lixifeed/internal/market"
	"github.com/quantrel/lixifeed/pkg/config"
	"github.com/quantrel/lixifeed/pkg/logger"
)

func testAggLogger() *logger.Logger {
	return logger.New(&config.Config{
		Env:      "development",
		LogLevel: "error",
	})
}

func newTestAggregator(t *testing.T) *Aggregator {
	t.Helper()
	return NewAggregator(testPipelineConfig(), "AAPL", testAggLogger())
}

func TestIngestEmitsOnlyOnFullWindow(t *testing.T) {
	agg := newTestAggregator(t)

	for i, mid := range []float64{100, 101, 99} {
		if w := agg.Ingest(tickAt(mid, 0.1, 100, 100)); w != nil {
			t.Fatalf("Expected no window after tick %d", i+1)
		}
	}

	if agg.Pending() != 3 {
		t.Errorf("Pending = %d, want 3", agg.Pending())
	}

	w := agg.Ingest(tickAt(100, 0.1, 100, 100))
	if w == nil {
		t.Fatal("Expected a window on the 4th tick")
	}

	if len(w.Ticks) != 4 {
		t.Errorf("Window has %d ticks, want exactly 4", len(w.Ticks))
	}

	if !almostEqual(w.MeanMid, 100) {
		t.Errorf("MeanMid = %v, want 100", w.MeanMid)
	}

	if agg.Pending() != 0 {
		t.Errorf("Pending = %d after completion, want 0", agg.Pending())
	}

	if w.ID == "" {
		t.Error("Expected window ID to be assigned")
	}

	if w.Symbol != "AAPL" {
		t.Errorf("Symbol = %q, want AAPL", w.Symbol)
	}
}

func TestFirstWindowReferenceIsOpeningTickMid(t *testing.T) {
	agg := newTestAggregator(t)

	// Opening tick mid 100; window mean drifts above it
	var w *market.TickWindow
	for _, mid := range []float64{100, 100.2, 100.3, 100.3} {
		w = agg.Ingest(tickAt(mid, 0.1, 100, 100))
	}
	if w == nil {
		t.Fatal("Expected a completed window")
	}

	wantRatio := w.MeanMid / 100
	if !almostEqual(w.Ratio, wantRatio) {
		t.Errorf("Ratio = %v, want %v (meanMid/first tick mid)", w.Ratio, wantRatio)
	}

	if w.Label != market.LabelUpwards {
		t.Errorf("Label = %v, want UPWARDS", w.Label)
	}
}

func TestSecondWindowUsesPriorMeanAsReference(t *testing.T) {
	agg := newTestAggregator(t)

	var first *market.TickWindow
	for _, mid := range []float64{100, 100, 100, 100} {
		first = agg.Ingest(tickAt(mid, 0.1, 100, 100))
	}
	if first == nil {
		t.Fatal("Expected first window")
	}

	var second *market.TickWindow
	for _, mid := range []float64{100.5, 100.5, 100.5, 100.5} {
		second = agg.Ingest(tickAt(mid, 0.1, 100, 100))
	}
	if second == nil {
		t.Fatal("Expected second window")
	}

	wantRatio := second.MeanMid / first.MeanMid
	if !almostEqual(second.Ratio, wantRatio) {
		t.Errorf("Ratio = %v, want %v (meanMid/prior meanMid)", second.Ratio, wantRatio)
	}

	if second.Label != market.LabelUpwards {
		t.Errorf("Label = %v, want UPWARDS", second.Label)
	}
}

func TestNoTickInTwoWindows(t *testing.T) {
	agg := newTestAggregator(t)

	seen := make(map[float64]int)
	mids := []float64{100, 101, 102, 103, 104, 105, 106, 107}

	for _, mid := range mids {
		if w := agg.Ingest(tickAt(mid, 0.1, 100, 100)); w != nil {
			for _, tick := range w.Ticks {
				seen[tick.Mid]++
			}
		}
	}

	for mid, count := range seen {
		if count != 1 {
			t.Errorf("Tick with mid %v appeared in %d windows", mid, count)
		}
	}

	if len(seen) != len(mids) {
		t.Errorf("Expected all %d ticks windowed, got %d", len(mids), len(seen))
	}
}

func TestResetDiscardsPartialBuffer(t *testing.T) {
	agg := newTestAggregator(t)

	agg.Ingest(tickAt(100, 0.1, 100, 100))
	agg.Ingest(tickAt(101, 0.1, 100, 100))

	if agg.Pending() != 2 {
		t.Fatalf("Pending = %d, want 2", agg.Pending())
	}

	agg.Reset()

	if agg.Pending() != 0 {
		t.Errorf("Pending = %d after Reset, want 0", agg.Pending())
	}

	// The next window starts from scratch: 4 fresh ticks, reference is
	// the new opening tick, the discarded ticks are gone.
	var w *market.TickWindow
	for _, mid := range []float64{200, 200, 200, 200} {
		w = agg.Ingest(tickAt(mid, 0.1, 100, 100))
	}
	if w == nil {
		t.Fatal("Expected window after reset")
	}

	if !almostEqual(w.Ratio, 1) {
		t.Errorf("Ratio = %v, want 1 (reference reset)", w.Ratio)
	}

	for _, tick := range w.Ticks {
		if tick.Mid != 200 {
			t.Errorf("Found discarded tick with mid %v in post-reset window", tick.Mid)
		}
	}
}

func TestWindowDoesNotAliasBuffer(t *testing.T) {
	agg := newTestAggregator(t)

	var w *market.TickWindow
	for _, mid := range []float64{100, 101, 99, 100} {
		w = agg.Ingest(tickAt(mid, 0.1, 100, 100))
	}

	firstMid := w.Ticks[0].Mid

	// Keep ingesting; the emitted window must not change
	for _, mid := range []float64{500, 500, 500, 500} {
		agg.Ingest(tickAt(mid, 0.1, 100, 100))
	}

	if w.Ticks[0].Mid != firstMid {
		t.Error("Completed window mutated by later ingestion")
	}
}

func TestDeterministicScoring(t *testing.T) {
	mids := []float64{100, 100.3, 99.8, 100.1}

	run := func() *market.TickWindow {
		agg := newTestAggregator(t)
		var w *market.TickWindow
		for _, mid := range mids {
			w = agg.Ingest(tickAt(mid, 0.1, 100, 100))
		}
		return w
	}

	a, b := run(), run()

	if a.Lixi != b.Lixi {
		t.Errorf("Lixi differs between runs: %v vs %v", a.Lixi, b.Lixi)
	}
	if a.Label != b.Label {
		t.Errorf("Label differs between runs: %v vs %v", a.Label, b.Label)
	}
	if a.Features.Volatility != b.Features.Volatility {
		t.Error("Features differ between runs")
	}
}

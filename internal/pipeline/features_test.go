package pipeline

import (
	"math"
	"testing"

	"github.com/quantrel/lixifeed/internal/market"
)

// tickAt builds a validated-shape tick centered on mid with the given
// spread and volumes.
func tickAt(mid, spread float64, bidVol, askVol int64) market.Tick {
	return market.Tick{
		Bid:       mid - spread/2,
		Ask:       mid + spread/2,
		Mid:       mid,
		Spread:    spread,
		Last:      mid,
		Volume:    bidVol + askVol,
		BidVolume: bidVol,
		AskVolume: askVol,
	}
}

func ticksWithMids(mids ...float64) []market.Tick {
	ticks := make([]market.Tick, len(mids))
	for i, m := range mids {
		ticks[i] = tickAt(m, 0.1, 100, 100)
	}
	return ticks
}

const epsilon = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

func TestExtractFeaturesVolatility(t *testing.T) {
	// Population std of [100, 101, 99, 100] is sqrt(0.5) ~= 0.7071
	ticks := ticksWithMids(100, 101, 99, 100)

	f := ExtractFeatures(ticks)

	want := math.Sqrt(0.5)
	if !almostEqual(f.Volatility, want) {
		t.Errorf("Volatility = %v, want %v", f.Volatility, want)
	}

	if got := MeanMid(ticks); !almostEqual(got, 100) {
		t.Errorf("MeanMid = %v, want 100", got)
	}
}

func TestExtractFeaturesSpreadMean(t *testing.T) {
	ticks := []market.Tick{
		tickAt(100, 0.2, 0, 0),
		tickAt(100, 0.4, 0, 0),
	}

	f := ExtractFeatures(ticks)
	if !almostEqual(f.Spread, 0.3) {
		t.Errorf("Spread = %v, want 0.3", f.Spread)
	}
}

func TestExtractFeaturesCrossingReturn(t *testing.T) {
	first := tickAt(100, 0.5, 0, 0)  // ask 100.25
	last := tickAt(100.5, 0.5, 0, 0) // bid 100.25

	f := ExtractFeatures([]market.Tick{first, tickAt(100.1, 0.5, 0, 0), last})

	want := (last.Bid - first.Ask) / first.Ask
	if !almostEqual(f.CrossingReturn, want) {
		t.Errorf("CrossingReturn = %v, want %v", f.CrossingReturn, want)
	}
}

func TestExtractFeaturesVolumeSums(t *testing.T) {
	ticks := []market.Tick{
		tickAt(100, 0.1, 300, 200),
		tickAt(100, 0.1, 100, 400),
	}

	f := ExtractFeatures(ticks)

	if f.Intensity != 1000 {
		t.Errorf("Intensity = %d, want 1000", f.Intensity)
	}
	if f.BidVolume != 400 {
		t.Errorf("BidVolume = %d, want 400", f.BidVolume)
	}
	if f.AskVolume != 600 {
		t.Errorf("AskVolume = %d, want 600", f.AskVolume)
	}
}

func TestExtractFeaturesDerivatives(t *testing.T) {
	f := ExtractFeatures(ticksWithMids(100, 101, 99, 100))

	want := []float64{1, -2, 1}
	if len(f.Derivatives) != len(want) {
		t.Fatalf("Derivatives length = %d, want %d", len(f.Derivatives), len(want))
	}

	for i := range want {
		if !almostEqual(f.Derivatives[i], want[i]) {
			t.Errorf("Derivatives[%d] = %v, want %v", i, f.Derivatives[i], want[i])
		}
	}
}

func TestExtractFeaturesSingleTickDegenerate(t *testing.T) {
	f := ExtractFeatures(ticksWithMids(100))

	if f.CrossingReturn != 0 {
		t.Errorf("CrossingReturn = %v, want 0 for single tick", f.CrossingReturn)
	}
	if len(f.Derivatives) != 0 {
		t.Errorf("Derivatives length = %d, want 0 for single tick", len(f.Derivatives))
	}
	if f.Volatility != 0 {
		t.Errorf("Volatility = %v, want 0 for single tick", f.Volatility)
	}
}

func TestExtractFeaturesDeterministic(t *testing.T) {
	ticks := ticksWithMids(100, 100.3, 99.8, 100.1, 100.2)

	a := ExtractFeatures(ticks)
	b := ExtractFeatures(ticks)

	if a.Spread != b.Spread || a.CrossingReturn != b.CrossingReturn ||
		a.Volatility != b.Volatility || a.Intensity != b.Intensity {
		t.Error("Expected bit-identical features on identical input")
	}

	for i := range a.Derivatives {
		if a.Derivatives[i] != b.Derivatives[i] {
			t.Errorf("Derivatives[%d] differ between runs", i)
		}
	}
}

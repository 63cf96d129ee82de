package pipeline

import (
	"math"

	"github.com/quantrel/lixifeed/internal/market"
)

// ExtractFeatures computes the microstructure feature vector for a
// completed window. Pure and deterministic: two calls over identical tick
// lists produce identical results.
//
// A single-tick window (unreachable through config, which enforces
// windowSize >= 2) degrades to crossingReturn 0 and empty derivatives
// instead of dividing by zero.
func ExtractFeatures(ticks []market.Tick) market.FeatureVector {
	n := len(ticks)
	if n == 0 {
		return market.FeatureVector{Derivatives: []float64{}}
	}

	var spreadSum, midSum float64
	var intensity, askVolume, bidVolume int64

	for _, t := range ticks {
		spreadSum += t.Spread
		midSum += t.Mid
		intensity += t.Volume
		askVolume += t.AskVolume
		bidVolume += t.BidVolume
	}

	meanMid := midSum / float64(n)

	// Population variance of mids (biased, divide by n)
	var sqSum float64
	for _, t := range ticks {
		d := t.Mid - meanMid
		sqSum += d * d
	}
	volatility := math.Sqrt(sqSum / float64(n))

	crossingReturn := 0.0
	if n > 1 {
		first, last := ticks[0], ticks[n-1]
		crossingReturn = (last.Bid - first.Ask) / first.Ask
	}

	derivatives := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		derivatives = append(derivatives, ticks[i].Mid-ticks[i-1].Mid)
	}

	return market.FeatureVector{
		Spread:         spreadSum / float64(n),
		CrossingReturn: crossingReturn,
		Volatility:     volatility,
		Intensity:      intensity,
		AskVolume:      askVolume,
		BidVolume:      bidVolume,
		Derivatives:    derivatives,
	}
}

// MeanMid returns the arithmetic mean of the ticks' midpoints.
func MeanMid(ticks []market.Tick) float64 {
	if len(ticks) == 0 {
		return 0
	}

	var sum float64
	for _, t := range ticks {
		sum += t.Mid
	}
	return sum / float64(len(ticks))
}

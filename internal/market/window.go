package market

import "time"

// Label classifies a window's short-term price direction.
type Label string

const (
	LabelUpwards    Label = "UPWARDS"
	LabelDownwards  Label = "DOWNWARDS"
	LabelStationary Label = "STATIONARY"
)

// FeatureVector is the per-window microstructure feature set, computed
// from the window's tick list alone.
type FeatureVector struct {
	// Spread is the mean of per-tick spreads.
	Spread float64 `json:"spread"`

	// CrossingReturn is (lastTick.bid - firstTick.ask) / firstTick.ask:
	// whether the window's closing bid crossed the opening ask.
	CrossingReturn float64 `json:"crossing_return"`

	// Volatility is the population standard deviation of mids
	// (biased estimator, divide by n).
	Volatility float64 `json:"volatility"`

	// Intensity is the sum of tick volumes.
	Intensity int64 `json:"intensity"`

	// AskVolume and BidVolume are sums of the respective per-tick sizes.
	AskVolume int64 `json:"ask_volume"`
	BidVolume int64 `json:"bid_volume"`

	// Derivatives holds consecutive mid differences, length windowSize-1.
	Derivatives []float64 `json:"derivatives"`
}

// TickWindow is an immutable, fully computed aggregation unit. It exists
// only once complete: exactly windowSize ticks, features, score and label
// all assigned atomically at completion. Consumers may read it without
// synchronization.
type TickWindow struct {
	ID        string        `json:"id"`
	Symbol    string        `json:"symbol"`
	Ticks     []Tick        `json:"ticks"`
	MeanMid   float64       `json:"mean_mid"`
	Features  FeatureVector `json:"features"`
	Lixi      float64       `json:"lixi"`
	Label     Label         `json:"label"`
	Ratio     float64       `json:"ratio"`
	Timestamp time.Time     `json:"timestamp"`
}

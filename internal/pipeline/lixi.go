package pipeline

import (
	"math"

	"github.com/quantrel/lixifeed/internal/market"
	"github.com/quantrel/lixifeed/pkg/config"
)

// Default LIXI parameters. The weights varied across observed deployments
// (0.4/0.5, 0.5/0.5, 0.65/0.4); they are configuration, not canon.
const (
	DefaultWIntensity = 0.5
	DefaultWADV       = 0.5
	DefaultADVFactor  = 5e7
	DefaultCeiling    = 15.0

	// minSpread floors the spread term so a near-zero spread cannot blow
	// up the log.
	minSpread = 0.01
)

// Scorer derives the LIXI liquidity-intensity score from a window's
// feature vector. LIXI is a heuristic log-linear composite: wider spread
// lowers it, higher traded volume raises it. It is not a calibrated
// probability and callers must not treat it as one.
type Scorer struct {
	advFactor  float64
	wIntensity float64
	wADV       float64
	ceiling    float64
}

// NewScorer creates a scorer from pipeline configuration.
func NewScorer(cfg config.PipelineConfig) *Scorer {
	return &Scorer{
		advFactor:  cfg.ADVFactor,
		wIntensity: cfg.WIntensity,
		wADV:       cfg.WADV,
		ceiling:    cfg.LixiCeiling,
	}
}

// Score computes the clamped LIXI score:
//
//	lixi = -log10(max(spread, 0.01))
//	     + wIntensity * log10(max(intensity, 1))
//	     + wADV * log10(advFactor)
//
// The result is clamped to the configured ceiling for display stability.
// There is no floor: negative scores are valid and meaningful (very wide
// spread, near-zero intensity).
func (s *Scorer) Score(f market.FeatureVector) float64 {
	spread := math.Max(f.Spread, minSpread)
	intensity := math.Max(float64(f.Intensity), 1)

	lixi := -math.Log10(spread) +
		s.wIntensity*math.Log10(intensity) +
		s.wADV*math.Log10(s.advFactor)

	if lixi > s.ceiling {
		return s.ceiling
	}
	return lixi
}

package pipeline

import (
	"github.com/quantrel/lixifeed/internal/market"
	"github.com/quantrel/lixifeed/pkg/config"
)

// Classifier labels a window's direction against the prior window's mean
// midpoint using a hysteresis band around ratio=1. The default band
// (1e-5) is deliberately tiny so even small drift reads as directional;
// downstream scoring and alerting depend on the exact threshold.
type Classifier struct {
	alpha float64
}

// NewClassifier creates a classifier from pipeline configuration.
func NewClassifier(cfg config.PipelineConfig) *Classifier {
	return &Classifier{alpha: cfg.Alpha}
}

// Classify returns the ratio meanMid/referenceMid and its direction label.
//
//	ratio > 1+alpha -> UPWARDS
//	ratio < 1-alpha -> DOWNWARDS
//	otherwise       -> STATIONARY
func (c *Classifier) Classify(meanMid, referenceMid float64) (float64, market.Label) {
	ratio := meanMid / referenceMid

	switch {
	case ratio > 1+c.alpha:
		return ratio, market.LabelUpwards
	case ratio < 1-c.alpha:
		return ratio, market.LabelDownwards
	default:
		return ratio, market.LabelStationary
	}
}

package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/quantrel/lixifeed/internal/market"
	"github.com/quantrel/lixifeed/pkg/config"
	"github.com/quantrel/lixifeed/pkg/logger"
)

// Aggregator buffers validated ticks for one instrument and emits a fully
// computed TickWindow each time the buffer reaches windowSize. It is not
// safe for concurrent use: the source controller's run loop is the only
// caller, which keeps buffer mutation and window completion serialized.
type Aggregator struct {
	symbol     string
	size       int
	buf        []market.Tick
	refMid     float64
	haveRef    bool
	scorer     *Scorer
	classifier *Classifier
	logger     *logger.Logger
}

// NewAggregator creates an aggregator for a single instrument.
// cfg.WindowSize is trusted here; config.Load rejects values below 2.
func NewAggregator(cfg config.PipelineConfig, symbol string, log *logger.Logger) *Aggregator {
	return &Aggregator{
		symbol:     symbol,
		size:       cfg.WindowSize,
		buf:        make([]market.Tick, 0, cfg.WindowSize),
		scorer:     NewScorer(cfg),
		classifier: NewClassifier(cfg),
		logger:     log,
	}
}

// Ingest appends a validated tick to the buffer. When the buffer reaches
// windowSize it atomically produces the completed window, clears the
// buffer and rolls the reference midpoint forward; otherwise it returns
// nil. Windows are emitted in strict arrival order and no tick is ever
// included in two windows.
func (a *Aggregator) Ingest(tick market.Tick) *market.TickWindow {
	a.buf = append(a.buf, tick)
	if len(a.buf) < a.size {
		return nil
	}

	window := a.complete()
	a.buf = a.buf[:0]
	return window
}

// complete builds the immutable window from the full buffer.
func (a *Aggregator) complete() *market.TickWindow {
	// Transfer a copy so the window never aliases the reusable buffer.
	ticks := make([]market.Tick, len(a.buf))
	copy(ticks, a.buf)

	meanMid := MeanMid(ticks)

	// The very first window of a session measures drift against its own
	// opening tick's midpoint.
	referenceMid := a.refMid
	if !a.haveRef {
		referenceMid = ticks[0].Mid
	}

	features := ExtractFeatures(ticks)
	ratio, label := a.classifier.Classify(meanMid, referenceMid)

	window := &market.TickWindow{
		ID:        uuid.NewString(),
		Symbol:    a.symbol,
		Ticks:     ticks,
		MeanMid:   meanMid,
		Features:  features,
		Lixi:      a.scorer.Score(features),
		Label:     label,
		Ratio:     ratio,
		Timestamp: time.Now(),
	}

	a.refMid = meanMid
	a.haveRef = true

	a.logger.WithFields(map[string]interface{}{
		"symbol":   a.symbol,
		"window":   window.ID,
		"mean_mid": meanMid,
		"lixi":     window.Lixi,
		"label":    window.Label,
	}).Debug("Completed tick window")

	return window
}

// Pending returns the number of ticks buffered toward the next window.
func (a *Aggregator) Pending() int {
	return len(a.buf)
}

// Reset discards the partial buffer and the rolling reference midpoint.
// The controller calls this on source failover and instrument switch so
// ticks from different sources never share a window.
func (a *Aggregator) Reset() {
	if n := len(a.buf); n > 0 {
		a.logger.WithFields(map[string]interface{}{
			"symbol":    a.symbol,
			"discarded": n,
		}).Debug("Discarded partial window buffer")
	}

	a.buf = a.buf[:0]
	a.refMid = 0
	a.haveRef = false
}

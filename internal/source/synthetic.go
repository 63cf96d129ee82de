package source

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/quantrel/lixifeed/internal/market"
	"github.com/quantrel/lixifeed/pkg/logger"
)

const (
	// defaultBasePrice seeds the walk when no last known price exists.
	defaultBasePrice = 100.0

	// maxDriftPerTick bounds the per-tick relative price move.
	maxDriftPerTick = 0.001

	// syntheticSpreadFraction sets the quoted spread relative to price.
	syntheticSpreadFraction = 0.0005
)

// SyntheticSource synthesizes quotes on a fixed-period timer: a random
// walk around the last known price with a narrow spread and random
// sizes. It exists so the whole pipeline can run with no upstream
// credentials configured, and its quotes travel the same path as live
// ones.
type SyntheticSource struct {
	symbol string
	period time.Duration
	emit   emitFunc
	logger *logger.Logger

	rng   *rand.Rand
	price float64

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewSyntheticSource creates a synthetic source for one symbol.
// basePrice seeds the random walk; zero or negative falls back to a
// fixed default.
func NewSyntheticSource(symbol string, period time.Duration, basePrice float64, emit emitFunc, log *logger.Logger) *SyntheticSource {
	if basePrice <= 0 {
		basePrice = defaultBasePrice
	}

	return &SyntheticSource{
		symbol: symbol,
		period: period,
		emit:   emit,
		logger: log,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		price:  basePrice,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Kind returns KindSynthetic.
func (s *SyntheticSource) Kind() Kind {
	return KindSynthetic
}

// Start launches the generator. It never fails: there is no upstream.
func (s *SyntheticSource) Start(ctx context.Context) error {
	go s.generateLoop()

	s.logger.WithFields(map[string]interface{}{
		"symbol": s.symbol,
		"period": s.period,
	}).Info("Started synthetic tick generator")

	return nil
}

func (s *SyntheticSource) generateLoop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.emit(s.nextQuote())
		}
	}
}

// nextQuote advances the random walk one step and quotes around it.
func (s *SyntheticSource) nextQuote() market.RawQuote {
	drift := (s.rng.Float64()*2 - 1) * maxDriftPerTick
	s.price *= 1 + drift

	spread := s.price * syntheticSpreadFraction
	if spread < 0.01 {
		spread = 0.01
	}

	bid := s.price - spread/2
	ask := s.price + spread/2

	return market.RawQuote{
		Symbol:    s.symbol,
		Bid:       market.Num{Valid: true, Value: bid},
		Ask:       market.Num{Valid: true, Value: ask},
		Last:      market.Num{Valid: true, Value: s.price},
		BidSize:   market.Num{Valid: true, Value: float64(100 + s.rng.Intn(400))},
		AskSize:   market.Num{Valid: true, Value: float64(100 + s.rng.Intn(400))},
		Timestamp: time.Now(),
	}
}

// Stop halts the generator and waits for it to exit.
func (s *SyntheticSource) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		<-s.doneCh
	})
}

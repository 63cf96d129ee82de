package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/quantrel/lixifeed/internal/broker"
	"github.com/quantrel/lixifeed/pkg/config"
	"github.com/quantrel/lixifeed/pkg/logger"
)

// maxConsecutiveFailures is how many quote fetches may fail in a row
// before the polling source reports a connection failure. Isolated
// failures are routine (transient 5xx, timeouts) and only logged.
const maxConsecutiveFailures = 5

// PollingSource is the REST fallback feed: it fetches a quote on a fixed
// interval, paced by a rate limiter so tight intervals cannot exceed the
// brokerage request budget.
type PollingSource struct {
	cfg     config.BrokerConfig
	broker  *broker.Client
	symbol  string
	emit    emitFunc
	onError errorFunc
	logger  *logger.Logger

	limiter *rate.Limiter

	cancel   context.CancelFunc
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewPollingSource creates a polling source for one symbol.
func NewPollingSource(cfg config.BrokerConfig, brokerClient *broker.Client, symbol string, emit emitFunc, onError errorFunc, log *logger.Logger) *PollingSource {
	return &PollingSource{
		cfg:     cfg,
		broker:  brokerClient,
		symbol:  symbol,
		emit:    emit,
		onError: onError,
		logger:  log,
		limiter: rate.NewLimiter(rate.Limit(cfg.PollRateLimit), 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Kind returns KindPolling.
func (s *PollingSource) Kind() Kind {
	return KindPolling
}

// Start verifies the upstream with one fetch inside the connection
// timeout, emits that quote, then continues polling on its own goroutine.
func (s *PollingSource) Start(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectionTimeout)
	defer cancel()

	quote, err := s.broker.GetQuote(checkCtx, s.symbol)
	if err != nil {
		return fmt.Errorf("initial quote fetch failed: %w", err)
	}

	s.emit(quote)

	loopCtx, loopCancel := context.WithCancel(context.Background())
	s.cancel = loopCancel

	go s.pollLoop(loopCtx)

	s.logger.WithFields(map[string]interface{}{
		"symbol":   s.symbol,
		"interval": s.cfg.PollInterval,
	}).Info("Started quote polling")

	return nil
}

// pollLoop fetches quotes until stopped or too many consecutive failures.
func (s *PollingSource) pollLoop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	failures := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return
		}

		quote, err := s.broker.GetQuote(ctx, s.symbol)
		if err != nil {
			failures++
			s.logger.WithError(err).WithFields(map[string]interface{}{
				"symbol":   s.symbol,
				"failures": failures,
			}).Debug("Quote poll failed")

			if failures >= maxConsecutiveFailures {
				select {
				case <-s.stopCh:
					return
				default:
				}
				s.onError(fmt.Errorf("quote polling failed %d times in a row: %w", failures, err))
				return
			}
			continue
		}

		failures = 0
		s.emit(quote)
	}
}

// Stop cancels the poll loop and waits for it to exit.
func (s *PollingSource) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if s.cancel != nil {
			s.cancel()
			<-s.doneCh
		}
	})
}

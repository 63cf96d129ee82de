package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quantrel/lixifeed/internal/broker"
	"github.com/quantrel/lixifeed/internal/market"
	"github.com/quantrel/lixifeed/internal/pipeline"
	"github.com/quantrel/lixifeed/pkg/config"
	"github.com/quantrel/lixifeed/pkg/logger"
)

// WindowSink consumes completed windows. Sinks run on the controller's
// dispatch goroutine, off the ingestion path; a slow sink delays other
// sinks but never tick processing.
type WindowSink func(*market.TickWindow)

// quoteEvent is one raw quote tagged with the generation of the source
// that produced it.
type quoteEvent struct {
	gen   uint64
	quote market.RawQuote
}

type errEvent struct {
	gen uint64
	err error
}

// Controller owns exactly one active tick source at a time and feeds its
// validated ticks into the window aggregator. It is the only component
// that mutates aggregator state, and it does so from a single run loop,
// so buffer mutation and window completion are never concurrent.
//
// Teardown (stop, failover, instrument switch) bumps a generation
// counter; events from earlier generations are dropped, so a late tick
// from a dead source can never land in a fresh buffer.
type Controller struct {
	cfg    *config.Config
	logger *logger.Logger
	broker *broker.Client

	// factory builds sources; replaced in tests.
	factory func(kind Kind, symbol string, emit emitFunc, onError errorFunc) (Source, error)

	mu     sync.Mutex
	state  State
	kind   Kind
	reason string
	symbol string
	since  time.Time
	gen    uint64
	agg    *pipeline.Aggregator
	src    Source

	history *pipeline.History
	sinks   []WindowSink

	quotes  chan quoteEvent
	errs    chan errEvent
	windows chan *market.TickWindow
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// NewController creates a controller in IDLE and starts its run loop.
// Call Close to release it.
func NewController(cfg *config.Config, log *logger.Logger, brokerClient *broker.Client) *Controller {
	c := &Controller{
		cfg:     cfg,
		logger:  log,
		broker:  brokerClient,
		state:   StateIdle,
		kind:    KindNone,
		since:   time.Now(),
		history: pipeline.NewHistory(cfg.Pipeline.HistorySize),
		quotes:  make(chan quoteEvent, 256),
		errs:    make(chan errEvent, 16),
		windows: make(chan *market.TickWindow, 16),
		closeCh: make(chan struct{}),
	}
	c.factory = c.buildSource

	c.wg.Add(2)
	go c.run()
	go c.dispatchLoop()

	return c
}

// AddSink registers a consumer of completed windows. Must be called
// before the first Start.
func (c *Controller) AddSink(sink WindowSink) {
	c.sinks = append(c.sinks, sink)
}

// History returns the bounded in-memory window history.
func (c *Controller) History() *pipeline.History {
	return c.history
}

// buildSource is the default source factory.
func (c *Controller) buildSource(kind Kind, symbol string, emit emitFunc, onError errorFunc) (Source, error) {
	switch kind {
	case KindLive:
		return NewLiveSource(c.cfg.Broker, c.broker, symbol, emit, onError, c.logger), nil
	case KindPolling:
		return NewPollingSource(c.cfg.Broker, c.broker, symbol, emit, onError, c.logger), nil
	case KindSynthetic:
		basePrice := 0.0
		if latest := c.history.Latest(); latest != nil {
			basePrice = latest.MeanMid
		}
		return NewSyntheticSource(symbol, c.cfg.Pipeline.SyntheticTickPeriod, basePrice, emit, c.logger), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", kind)
	}
}

// Start activates a source for the given instrument. Valid from IDLE or
// ERROR (retry/failover). The aggregator is rebuilt, so a window never
// mixes ticks from two sources.
func (c *Controller) Start(ctx context.Context, symbol string, kind Kind) error {
	c.mu.Lock()

	if c.state != StateIdle && c.state != StateError {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("cannot start from state %s; stop first", state)
	}

	// Failover from ERROR replaces the pipeline state of the dead source.
	old := c.detachLocked()

	gen := c.gen
	emit := func(q market.RawQuote) {
		select {
		case c.quotes <- quoteEvent{gen: gen, quote: q}:
		case <-c.closeCh:
		}
	}
	onError := func(err error) {
		select {
		case c.errs <- errEvent{gen: gen, err: err}:
		case <-c.closeCh:
		}
	}

	src, err := c.factory(kind, symbol, emit, onError)
	if err != nil {
		c.setStateLocked(StateError, err.Error())
		c.mu.Unlock()
		return err
	}

	c.symbol = symbol
	c.kind = kind
	c.agg = pipeline.NewAggregator(c.cfg.Pipeline, symbol, c.logger)
	c.src = src

	if kind == KindSynthetic {
		c.setStateLocked(StateSimulating, "")
	} else {
		c.setStateLocked(StateConnecting, "")
	}
	c.mu.Unlock()

	if old != nil {
		old.Stop()
	}

	c.logger.WithFields(map[string]interface{}{
		"symbol": symbol,
		"source": kind,
	}).Info("Starting tick source")

	if err := src.Start(ctx); err != nil {
		c.mu.Lock()
		if c.gen == gen {
			c.src = nil
			c.setStateLocked(StateError, err.Error())
		}
		c.mu.Unlock()
		return fmt.Errorf("source start failed: %w", err)
	}

	c.mu.Lock()
	if c.gen == gen && c.state == StateConnecting {
		c.setStateLocked(StateLive, "")
	}
	c.mu.Unlock()

	return nil
}

// Stop tears down the active source, discards any partial window buffer
// and returns to IDLE.
func (c *Controller) Stop() {
	c.mu.Lock()
	src := c.detachLocked()
	if c.agg != nil {
		c.agg.Reset()
	}
	c.kind = KindNone
	c.setStateLocked(StateIdle, "")
	c.mu.Unlock()

	if src != nil {
		src.Stop()
	}
}

// SwitchInstrument tears down the current source, discards the partial
// buffer and the window history, and re-targets the controller at a new
// symbol in IDLE. The caller restarts with the source of its choice.
func (c *Controller) SwitchInstrument(symbol string) {
	c.mu.Lock()
	src := c.detachLocked()
	if c.agg != nil {
		c.agg.Reset()
		c.agg = nil
	}
	c.history.Clear()
	c.symbol = symbol
	c.kind = KindNone
	c.setStateLocked(StateIdle, "")
	c.mu.Unlock()

	if src != nil {
		src.Stop()
	}

	c.logger.WithField("symbol", symbol).Info("Switched instrument")
}

// Close stops the controller and its goroutines.
func (c *Controller) Close() {
	c.Stop()
	close(c.closeCh)
	c.wg.Wait()
}

// detachLocked bumps the generation and detaches the current source so
// its in-flight events become stale. The caller must stop the returned
// source after releasing the lock.
func (c *Controller) detachLocked() Source {
	c.gen++
	src := c.src
	c.src = nil
	return src
}

func (c *Controller) setStateLocked(state State, reason string) {
	if c.state != state {
		c.since = time.Now()
	}
	c.state = state
	c.reason = reason
}

// run is the single loop that owns the aggregator.
func (c *Controller) run() {
	defer c.wg.Done()

	for {
		select {
		case <-c.closeCh:
			return
		case ev := <-c.quotes:
			c.handleQuote(ev)
		case ev := <-c.errs:
			c.handleSourceError(ev)
		}
	}
}

// handleQuote validates one raw quote and feeds it to the aggregator.
// Events from stale generations are dropped: the source that produced
// them has been torn down.
func (c *Controller) handleQuote(ev quoteEvent) {
	c.mu.Lock()

	if ev.gen != c.gen || c.agg == nil {
		c.mu.Unlock()
		return
	}

	tick, ok := market.ParseTick(ev.quote)
	if !ok {
		c.mu.Unlock()
		// Routine rejection (crossed market, stale or junk quote)
		c.logger.WithField("symbol", ev.quote.Symbol).Debug("Dropped invalid quote")
		return
	}

	window := c.agg.Ingest(tick)
	c.mu.Unlock()

	if window == nil {
		return
	}

	c.history.Add(window)

	select {
	case c.windows <- window:
	default:
		c.logger.WithField("window", window.ID).Warn("Window sink queue full, dropping dispatch")
	}
}

// handleSourceError transitions to ERROR on a fatal source failure.
// Recovery (retry or failover to another source) is the supervising
// application's decision; the controller just reports.
func (c *Controller) handleSourceError(ev errEvent) {
	c.mu.Lock()
	if ev.gen != c.gen {
		c.mu.Unlock()
		return
	}

	src := c.detachLocked()
	c.setStateLocked(StateError, ev.err.Error())
	c.mu.Unlock()

	if src != nil {
		src.Stop()
	}

	c.logger.WithError(ev.err).WithFields(map[string]interface{}{
		"symbol": c.Symbol(),
	}).Error("Tick source failed")
}

// dispatchLoop fans completed windows out to the registered sinks.
func (c *Controller) dispatchLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.closeCh:
			return
		case w := <-c.windows:
			for _, sink := range c.sinks {
				sink(w)
			}
		}
	}
}

// Status is a point-in-time controller snapshot for presentation.
type Status struct {
	State        State        `json:"state"`
	Kind         Kind         `json:"kind"`
	Symbol       string       `json:"symbol"`
	Reason       string       `json:"reason,omitempty"`
	Since        time.Time    `json:"since"`
	PendingTicks int          `json:"pending_ticks"`
	WindowCount  int          `json:"window_count"`
	LastWindowID string       `json:"last_window_id,omitempty"`
	LastWindowAt time.Time    `json:"last_window_at,omitzero"`
	LastLixi     float64      `json:"last_lixi"`
	LastLabel    market.Label `json:"last_label,omitempty"`
}

// Status returns the current state snapshot. Always answerable; the
// surrounding application renders connectivity from it without touching
// controller internals.
func (c *Controller) Status() Status {
	c.mu.Lock()
	s := Status{
		State:  c.state,
		Kind:   c.kind,
		Symbol: c.symbol,
		Reason: c.reason,
		Since:  c.since,
	}
	if c.agg != nil {
		s.PendingTicks = c.agg.Pending()
	}
	c.mu.Unlock()

	s.WindowCount = c.history.Len()
	if latest := c.history.Latest(); latest != nil {
		s.LastWindowID = latest.ID
		s.LastWindowAt = latest.Timestamp
		s.LastLixi = latest.Lixi
		s.LastLabel = latest.Label
	}

	return s
}

// State returns the current lifecycle phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Symbol returns the currently tracked instrument.
func (c *Controller) Symbol() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.symbol
}

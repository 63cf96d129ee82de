package source

import (
	"context"

	"github.com/quantrel/lixifeed/internal/market"
)

// Kind identifies a tick source.
type Kind string

const (
	KindNone      Kind = "NONE"
	KindLive      Kind = "LIVE"      // brokerage websocket push feed
	KindPolling   Kind = "POLLING"   // brokerage REST polling fallback
	KindSynthetic Kind = "SYNTHETIC" // timer-driven generator, no upstream
)

// State is the controller's lifecycle phase.
type State string

const (
	StateIdle       State = "IDLE"
	StateConnecting State = "CONNECTING"
	StateLive       State = "LIVE"       // receiving from a real upstream (live or polling)
	StateSimulating State = "SIMULATING" // receiving from the synthetic generator
	StateError      State = "ERROR"
)

// Source delivers raw quotes for a single instrument. Implementations
// hand quotes to the emit callback supplied at construction and report
// asynchronous failures (connection drops, repeated fetch errors) through
// the onError callback; they never touch aggregator state themselves.
type Source interface {
	Kind() Kind

	// Start begins delivery. It returns once the source is ready,
	// which includes completing any handshake, or with the startup
	// error. Delivery then continues on the source's own goroutines.
	Start(ctx context.Context) error

	// Stop tears down the source and waits for its goroutines to exit.
	// No emit or onError call is made after Stop returns.
	Stop()
}

// emitFunc receives one raw quote from a source.
type emitFunc func(market.RawQuote)

// errorFunc receives a fatal source failure.
type errorFunc func(error)

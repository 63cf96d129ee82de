package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quantrel/lixifeed/internal/broker"
	"github.com/quantrel/lixifeed/internal/market"
	"github.com/quantrel/lixifeed/pkg/config"
	"github.com/quantrel/lixifeed/pkg/httputil"
	"github.com/quantrel/lixifeed/pkg/logger"
)

const quoteBody = `{"quotes":{"quote":{"symbol":"SPY","bid":100.1,"ask":100.2,"last":100.15,"bidsize":300,"asksize":200,"volume":1200}}}`

func newPollBroker(t *testing.T, handler http.HandlerFunc) (*broker.Client, config.BrokerConfig) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.BrokerConfig{
		BaseURL:           server.URL,
		APIToken:          "test-token",
		ConnectionTimeout: time.Second,
		PollInterval:      5 * time.Millisecond,
		PollRateLimit:     1000,
	}

	log := logger.New(testConfig())
	return broker.New(cfg, httputil.New(log).DisableRetry(), log), cfg
}

func TestPollingSourceEmitsQuotes(t *testing.T) {
	client, cfg := newPollBroker(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(quoteBody))
	})

	quotes := make(chan market.RawQuote, 16)
	emit := func(q market.RawQuote) {
		select {
		case quotes <- q:
		default:
		}
	}
	onError := func(err error) { t.Errorf("unexpected source error: %v", err) }

	src := NewPollingSource(cfg, client, "SPY", emit, onError, logger.New(testConfig()))
	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer src.Stop()

	// The verification fetch plus at least one polled quote.
	for i := 0; i < 2; i++ {
		select {
		case q := <-quotes:
			if q.Symbol != "SPY" {
				t.Errorf("quote symbol = %s, want SPY", q.Symbol)
			}
			if !q.Bid.Valid || q.Bid.Value != 100.1 {
				t.Errorf("quote bid = %+v, want 100.1", q.Bid)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("received %d quotes, want at least 2", i)
		}
	}
}

func TestPollingSourceStartFailsOnBadUpstream(t *testing.T) {
	client, cfg := newPollBroker(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	src := NewPollingSource(cfg, client, "SPY",
		func(market.RawQuote) {}, func(error) {}, logger.New(testConfig()))

	if err := src.Start(context.Background()); err == nil {
		t.Fatal("Start() returned nil, want verification fetch failure")
	}

	// Stop after a failed start must not hang.
	src.Stop()
}

func TestPollingSourceReportsRepeatedFailures(t *testing.T) {
	var calls atomic.Int64
	client, cfg := newPollBroker(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(quoteBody))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	})

	failed := make(chan error, 1)
	src := NewPollingSource(cfg, client, "SPY",
		func(market.RawQuote) {},
		func(err error) { failed <- err },
		logger.New(testConfig()))

	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer src.Stop()

	select {
	case err := <-failed:
		if err == nil {
			t.Fatal("onError delivered nil error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("repeated poll failures never reported through onError")
	}
}

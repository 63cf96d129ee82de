package broker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/quantrel/lixifeed/pkg/config"
	"github.com/quantrel/lixifeed/pkg/httputil"
	"github.com/quantrel/lixifeed/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(&config.Config{Env: "development", LogLevel: "error"})
}

func newTestClient(baseURL string) *Client {
	log := testLogger()
	cfg := config.BrokerConfig{
		BaseURL:  baseURL,
		APIToken: "test-token",
	}
	return New(cfg, httputil.New(log).DisableRetry(), log)
}

func TestGetQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.URL.Query().Get("symbols"); got != "AAPL" {
			t.Errorf("symbols = %q, want AAPL", got)
		}

		w.Header().Set("Content-Type", "application/json")
		// Sizes arrive as strings on some venues; the parser accepts both
		w.Write([]byte(`{"quotes":{"quote":{
			"symbol":"AAPL","bid":184.9,"ask":185.1,"last":"185.0",
			"bidsize":"300","asksize":200,"volume":1200345}}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	quote, err := client.GetQuote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("GetQuote() failed: %v", err)
	}

	if quote.Symbol != "AAPL" {
		t.Errorf("Symbol = %q", quote.Symbol)
	}
	if !quote.Bid.Valid || quote.Bid.Value != 184.9 {
		t.Errorf("Bid = %+v, want 184.9", quote.Bid)
	}
	if !quote.BidSize.Valid || quote.BidSize.Value != 300 {
		t.Errorf("BidSize = %+v, want 300", quote.BidSize)
	}
	if quote.Timestamp.IsZero() {
		t.Error("Expected capture timestamp to be set")
	}
}

func TestGetQuoteServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	if _, err := client.GetQuote(context.Background(), "AAPL"); err == nil {
		t.Error("Expected error on non-200 response")
	}
}

func TestCreateStreamSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"stream":{"sessionid":"abc123","url":"wss://stream.example.com/events"}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	session, err := client.CreateStreamSession(context.Background())
	if err != nil {
		t.Fatalf("CreateStreamSession() failed: %v", err)
	}

	if session.SessionID != "abc123" {
		t.Errorf("SessionID = %q", session.SessionID)
	}
	if session.URL != "wss://stream.example.com/events" {
		t.Errorf("URL = %q", session.URL)
	}
}

func TestCreateStreamSessionMissingID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"stream":{}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	if _, err := client.CreateStreamSession(context.Background()); err == nil {
		t.Error("Expected error when sessionid is missing")
	}
}

func TestCreateStreamSessionFallsBackToConfiguredURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"stream":{"sessionid":"abc123"}}`))
	}))
	defer server.Close()

	log := testLogger()
	cfg := config.BrokerConfig{
		BaseURL:   server.URL,
		StreamURL: "wss://configured.example.com/events",
		APIToken:  "t",
	}
	client := New(cfg, httputil.New(log).DisableRetry(), log)

	session, err := client.CreateStreamSession(context.Background())
	if err != nil {
		t.Fatalf("CreateStreamSession() failed: %v", err)
	}

	if session.URL != "wss://configured.example.com/events" {
		t.Errorf("URL = %q, want configured stream URL", session.URL)
	}
}

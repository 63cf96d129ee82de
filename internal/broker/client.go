package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/quantrel/lixifeed/internal/market"
	"github.com/quantrel/lixifeed/pkg/config"
	"github.com/quantrel/lixifeed/pkg/httputil"
	"github.com/quantrel/lixifeed/pkg/logger"
)

// Client is a thin brokerage REST client: quote lookups for the polling
// source and the streaming session handshake for the live push feed.
// It is an external collaborator; all market-data correctness lives in
// the pipeline, not here.
type Client struct {
	cfg        config.BrokerConfig
	httpClient *httputil.Client
	logger     *logger.Logger
}

// New creates a broker client.
func New(cfg config.BrokerConfig, httpClient *httputil.Client, log *logger.Logger) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     log,
	}
}

// StreamSession is the result of the push-feed handshake. The session ID
// authorizes one websocket subscription.
type StreamSession struct {
	SessionID string
	URL       string
}

// quoteResponse mirrors the brokerage quote payload. Numeric fields stay
// loosely typed; market.ParseTick owns all interpretation.
type quoteResponse struct {
	Quotes struct {
		Quote struct {
			Symbol  string     `json:"symbol"`
			Bid     market.Num `json:"bid"`
			Ask     market.Num `json:"ask"`
			Last    market.Num `json:"last"`
			BidSize market.Num `json:"bidsize"`
			AskSize market.Num `json:"asksize"`
			Volume  market.Num `json:"volume"`
		} `json:"quote"`
	} `json:"quotes"`
}

type sessionResponse struct {
	Stream struct {
		SessionID string `json:"sessionid"`
		URL       string `json:"url"`
	} `json:"stream"`
}

// GetQuote fetches the current quote for a symbol.
func (c *Client) GetQuote(ctx context.Context, symbol string) (market.RawQuote, error) {
	endpoint := fmt.Sprintf("%s/v1/markets/quotes?symbols=%s",
		c.cfg.BaseURL, url.QueryEscape(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return market.RawQuote{}, fmt.Errorf("failed to create quote request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return market.RawQuote{}, fmt.Errorf("quote request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return market.RawQuote{}, fmt.Errorf("quote request returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return market.RawQuote{}, fmt.Errorf("read quote response: %w", err)
	}

	var qr quoteResponse
	if err := json.Unmarshal(body, &qr); err != nil {
		return market.RawQuote{}, fmt.Errorf("unmarshal quote response: %w", err)
	}

	q := qr.Quotes.Quote
	return market.RawQuote{
		Symbol:    q.Symbol,
		Bid:       q.Bid,
		Ask:       q.Ask,
		Last:      q.Last,
		BidSize:   q.BidSize,
		AskSize:   q.AskSize,
		Volume:    q.Volume,
		Timestamp: time.Now(),
	}, nil
}

// CreateStreamSession performs the streaming handshake. The returned
// session is short-lived; the live source opens its websocket with it
// immediately.
func (c *Client) CreateStreamSession(ctx context.Context) (*StreamSession, error) {
	endpoint := c.cfg.BaseURL + "/v1/markets/events/session"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(""))
	if err != nil {
		return nil, fmt.Errorf("failed to create session request: %w", err)
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("session request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("session request returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read session response: %w", err)
	}

	var sr sessionResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("unmarshal session response: %w", err)
	}

	if sr.Stream.SessionID == "" {
		return nil, fmt.Errorf("session response missing sessionid")
	}

	session := &StreamSession{
		SessionID: sr.Stream.SessionID,
		URL:       sr.Stream.URL,
	}
	if session.URL == "" {
		session.URL = c.cfg.StreamURL
	}

	c.logger.Debug("Created streaming session")
	return session, nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	req.Header.Set("Accept", "application/json")
}

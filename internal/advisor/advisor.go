package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/quantrel/lixifeed/internal/market"
	"github.com/quantrel/lixifeed/pkg/config"
	"github.com/quantrel/lixifeed/pkg/httputil"
	"github.com/quantrel/lixifeed/pkg/logger"
)

// WindowDigest is the compact per-window projection shared with the
// analysis collaborator: the classified direction, the liquidity score
// and the two volume sums. Tick-level detail stays internal.
type WindowDigest struct {
	Label     market.Label `json:"label"`
	Lixi      float64      `json:"lixi"`
	BidVolume int64        `json:"bid_volume"`
	AskVolume int64        `json:"ask_volume"`
}

// Project maps completed windows to their digests, oldest first.
func Project(windows []*market.TickWindow) []WindowDigest {
	digests := make([]WindowDigest, 0, len(windows))
	for _, w := range windows {
		digests = append(digests, WindowDigest{
			Label:     w.Label,
			Lixi:      w.Lixi,
			BidVolume: w.Features.BidVolume,
			AskVolume: w.Features.AskVolume,
		})
	}
	return digests
}

// adviceRequest is the payload posted to the analysis endpoint.
type adviceRequest struct {
	Symbol    string         `json:"symbol"`
	Timestamp time.Time      `json:"timestamp"`
	Windows   []WindowDigest `json:"windows"`
}

// Client posts window digests to an external analysis endpoint and
// relays its recommendation. The recommendation contract is opaque: the
// response body is passed through as a string.
type Client struct {
	cfg        config.AdvisorConfig
	httpClient *httputil.Client
	logger     *logger.Logger
}

// New creates an advisor client.
func New(cfg config.AdvisorConfig, httpClient *httputil.Client, log *logger.Logger) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     log,
	}
}

// Enabled reports whether a collaborator endpoint is configured.
func (c *Client) Enabled() bool {
	return c.cfg.Enabled && c.cfg.URL != ""
}

// WindowCount returns how many recent windows each request carries.
func (c *Client) WindowCount() int {
	return c.cfg.WindowCount
}

// Advise posts the digest of the given windows and returns the
// collaborator's recommendation.
func (c *Client) Advise(ctx context.Context, symbol string, windows []*market.TickWindow) (string, error) {
	if !c.Enabled() {
		return "", fmt.Errorf("advisor is not configured")
	}
	if len(windows) == 0 {
		return "", fmt.Errorf("no windows to advise on")
	}

	payload := adviceRequest{
		Symbol:    symbol,
		Timestamp: time.Now().UTC(),
		Windows:   Project(windows),
	}

	resp, err := c.httpClient.PostJSON(ctx, c.cfg.URL, payload)
	if err != nil {
		return "", fmt.Errorf("advisor request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("advisor returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read advisor response: %w", err)
	}

	recommendation := parseRecommendation(body)

	c.logger.WithFields(map[string]interface{}{
		"symbol":  symbol,
		"windows": len(windows),
	}).Debug("Received advisor recommendation")

	return recommendation, nil
}

// parseRecommendation accepts either a bare string body or a JSON
// object with a "recommendation" field.
func parseRecommendation(body []byte) string {
	var wrapped struct {
		Recommendation string `json:"recommendation"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Recommendation != "" {
		return wrapped.Recommendation
	}
	return strings.TrimSpace(string(body))
}

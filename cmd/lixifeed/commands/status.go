package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantrel/lixifeed/internal/source"
	"github.com/quantrel/lixifeed/pkg/config"
	"github.com/quantrel/lixifeed/pkg/httputil"
	"github.com/quantrel/lixifeed/pkg/logger"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of a running feed",
	Long: `Queries the status endpoint of a running feed and prints the
controller state, the tracked instrument and the latest window.

Example:
  go run ./cmd/lixifeed status
  go run ./cmd/lixifeed status --url http://localhost:8080`,
	RunE: runStatus,
}

var statusURL string

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusURL, "url", "", "feed base URL (default http://localhost:$PORT)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg)

	baseURL := statusURL
	if baseURL == "" {
		baseURL = "http://localhost:" + cfg.Port
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := httputil.New(log).DisableRetry()
	resp, err := client.Get(ctx, baseURL+"/api/status")
	if err != nil {
		return fmt.Errorf("feed not reachable at %s: %w", baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status endpoint returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read status response: %w", err)
	}

	var status source.Status
	if err := json.Unmarshal(body, &status); err != nil {
		return fmt.Errorf("unmarshal status: %w", err)
	}

	fmt.Printf("State:    %s (since %s)\n", status.State, status.Since.Format(time.RFC3339))
	fmt.Printf("Source:   %s\n", status.Kind)
	fmt.Printf("Symbol:   %s\n", status.Symbol)
	if status.Reason != "" {
		fmt.Printf("Reason:   %s\n", status.Reason)
	}
	fmt.Printf("Buffered: %d ticks\n", status.PendingTicks)
	fmt.Printf("Windows:  %d retained\n", status.WindowCount)
	if status.LastWindowID != "" {
		fmt.Printf("Latest:   %s at %s  LIXI %.4f  %s\n",
			status.LastWindowID, status.LastWindowAt.Format(time.RFC3339), status.LastLixi, status.LastLabel)
	}

	return nil
}

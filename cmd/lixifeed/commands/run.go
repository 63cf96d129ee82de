package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantrel/lixifeed/internal/advisor"
	"github.com/quantrel/lixifeed/internal/api"
	"github.com/quantrel/lixifeed/internal/api/handlers"
	"github.com/quantrel/lixifeed/internal/broker"
	"github.com/quantrel/lixifeed/internal/market"
	"github.com/quantrel/lixifeed/internal/scheduler"
	"github.com/quantrel/lixifeed/internal/scheduler/jobs"
	"github.com/quantrel/lixifeed/internal/source"
	"github.com/quantrel/lixifeed/internal/store"
	"github.com/quantrel/lixifeed/pkg/config"
	"github.com/quantrel/lixifeed/pkg/database"
	"github.com/quantrel/lixifeed/pkg/httputil"
	"github.com/quantrel/lixifeed/pkg/logger"
	"github.com/quantrel/lixifeed/pkg/redis"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the tick feed and API server",
	Long: `Starts the full feed: connects a tick source for one instrument,
aggregates validated ticks into windows, scores them and serves the
results over HTTP.

Source selection:
  --source live       brokerage websocket push feed (default)
  --source polling    brokerage REST polling
  --source synthetic  no upstream, synthesized ticks
  --simulate          shorthand for --source synthetic

A live or polling source that fails to start falls back down the
ladder (live -> polling -> synthetic), and a source that fails while
running is replaced by the synthetic generator so windows keep coming.

Example:
  go run ./cmd/lixifeed run --symbol SPY
  go run ./cmd/lixifeed run --simulate --port 8080`,
	RunE: runFeed,
}

var (
	runPort   string
	runSymbol string
	runSource string
	simulate  bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runPort, "port", "", "API server port (overrides PORT)")
	runCmd.Flags().StringVar(&runSymbol, "symbol", "SPY", "instrument to track")
	runCmd.Flags().StringVar(&runSource, "source", "live", "tick source: live, polling or synthetic")
	runCmd.Flags().BoolVar(&simulate, "simulate", false, "run on the synthetic generator only")
}

func runFeed(cmd *cobra.Command, args []string) error {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if runPort != "" {
		cfg.Port = runPort
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	symbol := strings.ToUpper(strings.TrimSpace(runSymbol))
	if symbol == "" {
		return fmt.Errorf("symbol is required")
	}

	kind, err := resolveSourceKind()
	if err != nil {
		return err
	}

	log.WithFields(map[string]interface{}{
		"symbol": symbol,
		"source": kind,
		"port":   cfg.Port,
		"env":    cfg.Env,
	}).Info("Initializing feed")

	// 3. Optional window persistence
	var db *database.DB
	var windowStore *store.WindowStore
	if cfg.Database.URL != "" {
		db, err = database.New(cfg)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()

		windowStore = store.NewWindowStore(db.Pool)
		if err := windowStore.EnsureSchema(cmd.Context()); err != nil {
			return fmt.Errorf("ensure window schema: %w", err)
		}
		log.Info("Window persistence enabled")
	}

	// 4. Optional Redis (snapshot cache + brokerage rate limiting)
	redisClient, err := redis.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer redisClient.Close()

	// 5. HTTP client for outbound calls
	httpClient := httputil.New(log)
	if redisClient.Enabled() {
		limiter := redis.NewRateLimiter(redisClient, "lixifeed")
		httpClient.WithRateLimiter(limiter, redis.BrokerRateLimit)
	}

	// 6. External collaborators
	brokerClient := broker.New(cfg.Broker, httpClient, log)
	advisorClient := advisor.New(cfg.Advisor, httpClient, log)

	// 7. Controller and window sinks
	controller := source.NewController(cfg, log, brokerClient)
	defer controller.Close()

	if windowStore != nil {
		controller.AddSink(func(w *market.TickWindow) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := windowStore.Save(ctx, w); err != nil {
				log.WithError(err).WithField("window", w.ID).Warn("Failed to persist window")
			}
		})
	}
	if redisClient.Enabled() {
		cache := redis.NewCache(redisClient, "lixifeed")
		controller.AddSink(func(w *market.TickWindow) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := cache.Set(ctx, redis.LatestWindowKey(w.Symbol), w, redis.TTLSnapshot); err != nil {
				log.WithError(err).Warn("Failed to cache latest window")
			}
		})
	}

	// 8. Start the feed, falling back down the source ladder
	if err := startWithFallback(cmd.Context(), controller, symbol, kind, log); err != nil {
		return err
	}

	// 9. Scheduler: health probe, optional store prune
	sched := scheduler.New(log)
	if err := sched.AddJob(jobs.NewHealthJob(controller, db, log)); err != nil {
		return fmt.Errorf("add health job: %w", err)
	}
	if windowStore != nil {
		if err := sched.AddJob(jobs.NewPruneJob(windowStore, cfg, log)); err != nil {
			return fmt.Errorf("add prune job: %w", err)
		}
	}
	sched.Start()
	defer sched.Stop()

	// 10. Supervisor: replace a failed source with the synthetic generator
	supervisorDone := make(chan struct{})
	defer close(supervisorDone)
	go superviseFeed(controller, supervisorDone, log)

	// 11. API server
	feedHandler := handlers.NewFeedHandler(controller, advisorClient, windowStore, log)
	server := api.New(cfg, log, api.NewRouter(feedHandler, log))

	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	fmt.Printf("\nFeed running on http://localhost:%s (symbol %s, source %s)\n", cfg.Port, symbol, kind)
	fmt.Println("Press Ctrl+C to stop")

	// 12. Wait for interrupt, then shut down gracefully
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down feed")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	return nil
}

// resolveSourceKind maps the run flags to a source kind.
func resolveSourceKind() (source.Kind, error) {
	if simulate {
		return source.KindSynthetic, nil
	}
	switch strings.ToLower(runSource) {
	case "live":
		return source.KindLive, nil
	case "polling":
		return source.KindPolling, nil
	case "synthetic":
		return source.KindSynthetic, nil
	default:
		return source.KindNone, fmt.Errorf("unknown source %q (want live, polling or synthetic)", runSource)
	}
}

// fallbackLadder lists the sources to try, best first.
func fallbackLadder(kind source.Kind) []source.Kind {
	switch kind {
	case source.KindLive:
		return []source.Kind{source.KindLive, source.KindPolling, source.KindSynthetic}
	case source.KindPolling:
		return []source.Kind{source.KindPolling, source.KindSynthetic}
	default:
		return []source.Kind{source.KindSynthetic}
	}
}

// startWithFallback walks the ladder until a source starts. The
// synthetic generator cannot fail to start, so the ladder always ends.
func startWithFallback(ctx context.Context, controller *source.Controller, symbol string, kind source.Kind, log *logger.Logger) error {
	var lastErr error
	for _, k := range fallbackLadder(kind) {
		if err := controller.Start(ctx, symbol, k); err != nil {
			lastErr = err
			log.WithError(err).WithField("source", k).Warn("Source failed to start, trying next")
			continue
		}
		return nil
	}
	return fmt.Errorf("no source could start: %w", lastErr)
}

// superviseFeed watches for a feed stuck in ERROR and falls back to the
// synthetic generator so windows keep flowing.
func superviseFeed(controller *source.Controller, done <-chan struct{}, log *logger.Logger) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
		}

		if controller.State() != source.StateError {
			continue
		}

		status := controller.Status()
		log.WithFields(map[string]interface{}{
			"symbol": status.Symbol,
			"reason": status.Reason,
		}).Warn("Feed in error state, falling back to synthetic source")

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := controller.Start(ctx, status.Symbol, source.KindSynthetic); err != nil {
			log.WithError(err).Error("Synthetic fallback failed")
		}
		cancel()
	}
}

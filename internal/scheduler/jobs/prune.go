package jobs

import (
	"context"
	"fmt"

	"github.com/quantrel/lixifeed/internal/store"
	"github.com/quantrel/lixifeed/pkg/config"
	"github.com/quantrel/lixifeed/pkg/logger"
)

// PruneJob deletes persisted windows beyond the retention horizon.
type PruneJob struct {
	store  *store.WindowStore
	config *config.Config
	logger *logger.Logger
}

// NewPruneJob creates a prune job.
func NewPruneJob(windowStore *store.WindowStore, cfg *config.Config, log *logger.Logger) *PruneJob {
	return &PruneJob{
		store:  windowStore,
		config: cfg,
		logger: log,
	}
}

// Name returns the job name.
func (j *PruneJob) Name() string {
	return "window_prune"
}

// Schedule returns the cron schedule (3 AM daily).
func (j *PruneJob) Schedule() string {
	return "0 0 3 * * *"
}

// Run deletes windows older than the configured retention.
func (j *PruneJob) Run(ctx context.Context) error {
	retention := j.config.Database.RetentionDays

	deleted, err := j.store.Prune(ctx, retention)
	if err != nil {
		return fmt.Errorf("prune windows: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"deleted":        deleted,
		"retention_days": retention,
	}).Info("Pruned persisted windows")

	return nil
}

package jobs

import (
	"context"
	"time"

	"github.com/quantrel/lixifeed/internal/source"
	"github.com/quantrel/lixifeed/pkg/database"
	"github.com/quantrel/lixifeed/pkg/logger"
)

// errorStateThreshold is how long the feed may sit in ERROR before the
// health probe starts warning about it.
const errorStateThreshold = time.Minute

// HealthJob periodically checks the feed controller and the database
// pool. It only observes and logs; recovery stays with the supervisor.
type HealthJob struct {
	controller *source.Controller
	db         *database.DB // nil when persistence is disabled
	logger     *logger.Logger
}

// NewHealthJob creates a health probe job.
func NewHealthJob(controller *source.Controller, db *database.DB, log *logger.Logger) *HealthJob {
	return &HealthJob{
		controller: controller,
		db:         db,
		logger:     log,
	}
}

// Name returns the job name.
func (j *HealthJob) Name() string {
	return "feed_health"
}

// Schedule returns the cron schedule (every 30 seconds).
func (j *HealthJob) Schedule() string {
	return "*/30 * * * * *"
}

// Run checks feed and database health.
func (j *HealthJob) Run(ctx context.Context) error {
	status := j.controller.Status()

	if status.State == source.StateError && time.Since(status.Since) > errorStateThreshold {
		j.logger.WithFields(map[string]interface{}{
			"symbol": status.Symbol,
			"reason": status.Reason,
			"for":    time.Since(status.Since).Round(time.Second),
		}).Warn("Feed has been in error state beyond threshold")
	}

	if j.db != nil {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if health, err := j.db.HealthCheck(checkCtx); err != nil {
			j.logger.WithError(err).Warn("Database health check failed")
		} else if !health.Healthy {
			j.logger.WithField("error", health.Error).Warn("Database unhealthy")
		}
	}

	return nil
}

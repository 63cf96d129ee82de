package scheduler

import (
	"context"
	"time"
)

// Job is one scheduled task.
type Job interface {
	// Name returns the job name used in logs and history.
	Name() string

	// Run executes the job.
	Run(ctx context.Context) error

	// Schedule returns the cron expression (with seconds field),
	// e.g. "0 0 3 * * *" for 3 AM daily.
	Schedule() string
}

// JobResult is the outcome of one execution.
type JobResult struct {
	JobName   string        `json:"job_name"`
	StartTime time.Time     `json:"start_time"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

// JobHistory keeps the most recent execution results for one job.
type JobHistory struct {
	Results []JobResult
}

// maxHistoryResults bounds per-job history growth.
const maxHistoryResults = 100

// AddResult records a result, evicting the oldest beyond the cap.
func (h *JobHistory) AddResult(result JobResult) {
	h.Results = append(h.Results, result)
	if len(h.Results) > maxHistoryResults {
		h.Results = h.Results[len(h.Results)-maxHistoryResults:]
	}
}

// LastResult returns the most recent result, or a zero result when the
// job has never run.
func (h *JobHistory) LastResult() JobResult {
	if len(h.Results) == 0 {
		return JobResult{}
	}
	return h.Results[len(h.Results)-1]
}

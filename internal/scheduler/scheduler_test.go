package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quantrel/lixifeed/pkg/config"
	"github.com/quantrel/lixifeed/pkg/logger"
)

type stubJob struct {
	name     string
	schedule string
	runs     atomic.Int64
	err      error
}

func (j *stubJob) Name() string     { return j.name }
func (j *stubJob) Schedule() string { return j.schedule }

func (j *stubJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	return j.err
}

func newTestScheduler() *Scheduler {
	s := New(logger.New(&config.Config{Env: "test", LogLevel: "error", LogFormat: "json"}))
	s.retryDelay = time.Millisecond
	return s
}

func waitForRuns(t *testing.T, job *stubJob, n int64) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for job.runs.Load() < n {
		if time.Now().After(deadline) {
			t.Fatalf("job ran %d times, want at least %d", job.runs.Load(), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSchedulerAddJob(t *testing.T) {
	s := newTestScheduler()
	job := &stubJob{name: "prune", schedule: "0 0 3 * * *"}

	if err := s.AddJob(job); err != nil {
		t.Fatalf("AddJob() error = %v", err)
	}
	if err := s.AddJob(job); err == nil {
		t.Error("duplicate AddJob() returned nil error")
	}
}

func TestSchedulerRejectsBadSchedule(t *testing.T) {
	s := newTestScheduler()
	job := &stubJob{name: "broken", schedule: "not a cron expression"}

	if err := s.AddJob(job); err == nil {
		t.Error("AddJob() with bad schedule returned nil error")
	}
}

func TestSchedulerRunJobImmediately(t *testing.T) {
	s := newTestScheduler()
	job := &stubJob{name: "prune", schedule: "0 0 3 * * *"}

	if err := s.AddJob(job); err != nil {
		t.Fatalf("AddJob() error = %v", err)
	}
	if err := s.RunJob("prune"); err != nil {
		t.Fatalf("RunJob() error = %v", err)
	}

	waitForRuns(t, job, 1)

	var last JobResult
	deadline := time.Now().Add(2 * time.Second)
	for {
		history, err := s.History("prune")
		if err != nil {
			t.Fatalf("History() error = %v", err)
		}
		if len(history.Results) > 0 {
			last = history.LastResult()
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no result recorded")
		}
		time.Sleep(time.Millisecond)
	}

	if !last.Success {
		t.Errorf("result success = false, want true")
	}
	if last.JobName != "prune" {
		t.Errorf("result job name = %s, want prune", last.JobName)
	}
}

func TestSchedulerRunUnknownJob(t *testing.T) {
	s := newTestScheduler()
	if err := s.RunJob("missing"); err == nil {
		t.Error("RunJob() for unknown job returned nil error")
	}
	if _, err := s.History("missing"); err == nil {
		t.Error("History() for unknown job returned nil error")
	}
}

func TestSchedulerRetriesFailingJob(t *testing.T) {
	s := newTestScheduler()
	job := &stubJob{name: "flaky", schedule: "0 0 3 * * *", err: errors.New("boom")}

	if err := s.AddJob(job); err != nil {
		t.Fatalf("AddJob() error = %v", err)
	}
	if err := s.RunJob("flaky"); err != nil {
		t.Fatalf("RunJob() error = %v", err)
	}

	// Initial attempt plus maxRetries.
	waitForRuns(t, job, int64(s.maxRetries)+1)

	deadline := time.Now().Add(2 * time.Second)
	for {
		history, _ := s.History("flaky")
		if len(history.Results) > 0 {
			if last := history.LastResult(); last.Success || last.Error == "" {
				t.Errorf("result = %+v, want recorded failure", last)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("no result recorded")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSchedulerStartStop(t *testing.T) {
	s := newTestScheduler()
	job := &stubJob{name: "tick", schedule: "* * * * * *"}

	if err := s.AddJob(job); err != nil {
		t.Fatalf("AddJob() error = %v", err)
	}

	s.Start()
	waitForRuns(t, job, 1)
	s.Stop()
}

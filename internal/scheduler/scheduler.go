// Package scheduler runs background jobs on cron schedules.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a unit of scheduled work.
type Job interface {
	Run(ctx context.Context) error
	Name() string
}

// Scheduler manages background jobs.
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
}

// New creates a scheduler using standard five-field cron specs and
// descriptors such as "@daily" or "@every 1h". Each run is bounded by
// timeout.
func New(timeout time.Duration) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		timeout: timeout,
	}
}

// Start starts the scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	slog.Info("scheduler stopped")
}

// AddJob registers job on schedule.
// Schedule examples:
//   - "0 3 * * *"   - 3 AM every day
//   - "@hourly"     - Every hour
//   - "@every 30m"  - Every 30 minutes
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		if err := s.RunNow(job); err != nil {
			slog.Error("job failed", "job", job.Name(), "err", err)
		}
	})
	if err != nil {
		return err
	}

	slog.Info("job registered", "job", job.Name(), "schedule", schedule)
	return nil
}

// RunNow executes a job immediately (outside schedule).
func (s *Scheduler) RunNow(job Job) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	slog.Debug("running job", "job", job.Name())
	return job.Run(ctx)
}

// Resetter clears all demo data.
type Resetter interface {
	Reset(ctx context.Context) error
}

// ResetJob empties the product store, the same as going back to the home
// page, so a shared demo starts clean.
type ResetJob struct {
	Target Resetter
}

func (j ResetJob) Name() string { return "demo-reset" }

func (j ResetJob) Run(ctx context.Context) error {
	if err := j.Target.Reset(ctx); err != nil {
		return err
	}
	slog.Info("demo state reset")
	return nil
}

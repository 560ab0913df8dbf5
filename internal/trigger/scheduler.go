// Package trigger re-runs detection batches on a cron schedule or on an
// incoming webhook.
package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// DefaultRunTimeout bounds one triggered batch run.
const DefaultRunTimeout = 30 * time.Minute

// Job is a named batch file that can be re-run.
type Job struct {
	Name      string
	Schedule  string // 5-field cron expression; empty = webhook only
	BatchPath string
}

// BatchRunner executes one run of a job. source is "scheduled" or "webhook".
type BatchRunner interface {
	RunJob(ctx context.Context, job Job, source string) error
}

// Scheduler manages cron-based batch runs.
type Scheduler struct {
	cron   *cron.Cron
	runner BatchRunner
}

// NewScheduler creates a scheduler backed by the given runner.
// Cron expressions use the standard 5-field format: minute hour day-of-month month day-of-week
// (e.g. "*/15 * * * *" for every quarter hour). A run still in progress
// when its next tick fires causes that tick to be skipped.
func NewScheduler(runner BatchRunner) *Scheduler {
	logger := cronLogger{}
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
		runner: runner,
	}
}

// Register adds a cron entry for every job with a schedule.
func (s *Scheduler) Register(jobs ...Job) error {
	for _, job := range jobs {
		if job.Schedule == "" {
			continue
		}
		_, err := s.cron.AddFunc(job.Schedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), DefaultRunTimeout)
			defer cancel()

			log.Info().
				Str("job", job.Name).
				Str("batch", job.BatchPath).
				Msg("scheduled_trigger_fired")

			if err := s.runner.RunJob(ctx, job, "scheduled"); err != nil {
				log.Error().Err(err).
					Str("job", job.Name).
					Msg("scheduled_trigger_failed")
			}
		})
		if err != nil {
			return fmt.Errorf("registering cron %q for job %s: %w", job.Schedule, job.Name, err)
		}
	}
	return nil
}

// Start begins executing registered cron jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for running jobs to complete.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Entries returns the number of registered cron entries.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// cronLogger routes cron's own diagnostics to zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("cron_" + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron_" + msg)
}

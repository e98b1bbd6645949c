// Package scheduler runs the background jobs that keep a paperdesk
// instance ticking: the limit-order sweep and the nightly backup.
package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is a named unit of background work.
type Job interface {
	Run() error
	Name() string
}

// Scheduler wraps a seconds-resolution cron runner. Jobs are registered
// once at startup and run until Stop drains them.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// New creates an idle scheduler; call Start after registering jobs.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// Start begins dispatching registered jobs on their schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
}

// Stop halts scheduling and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a job on a six-field cron schedule (seconds first).
// Descriptors like "@every 30s" (the default sweep cadence) and
// "@hourly" also work.
func (s *Scheduler) AddJob(schedule string, job Job) error {
	jobLog := s.log.With().Str("job", job.Name()).Logger()

	_, err := s.cron.AddFunc(schedule, func() {
		started := time.Now()
		jobLog.Debug().Msg("Running job")

		if err := job.Run(); err != nil {
			jobLog.Error().
				Err(err).
				Dur("elapsed", time.Since(started)).
				Msg("Job failed")
			return
		}
		jobLog.Debug().
			Dur("elapsed", time.Since(started)).
			Msg("Job completed")
	})
	if err != nil {
		return err
	}

	jobLog.Info().Str("schedule", schedule).Msg("Job registered")
	return nil
}

// RunNow executes a job immediately, outside its schedule. Used by the
// manual trigger endpoints.
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("Running job on demand")
	return job.Run()
}

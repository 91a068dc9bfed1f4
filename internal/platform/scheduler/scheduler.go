// Package scheduler runs the service's daily background jobs on gocron.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds a single job run.
const DefaultTimeout = 5 * time.Minute

// Job is a named task run once a day at a wall-clock time.
type Job struct {
	Name string
	At   string // HH:MM in the scheduler's location
	Run  func(ctx context.Context) error
}

type Scheduler struct {
	cron    *gocron.Scheduler
	logger  zerolog.Logger
	timeout time.Duration
}

func New(loc *time.Location, logger zerolog.Logger) *Scheduler {
	cron := gocron.NewScheduler(loc)
	cron.SingletonModeAll()
	return &Scheduler{cron: cron, logger: logger, timeout: DefaultTimeout}
}

// Daily registers job. Runs of the same job never overlap.
func (s *Scheduler) Daily(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("job needs a name and a run func")
	}
	if _, err := time.Parse("15:04", job.At); err != nil {
		return fmt.Errorf("job %s: at must be HH:MM, got %q", job.Name, job.At)
	}
	_, err := s.cron.Every(1).Day().At(job.At).Tag(job.Name).Do(s.execute, job)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", job.Name, err)
	}
	s.logger.Info().Str("job", job.Name).Str("at", job.At).Msg("job scheduled")
	return nil
}

func (s *Scheduler) Start() {
	s.cron.StartAsync()
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// NextRuns reports when each job fires next.
func (s *Scheduler) NextRuns() map[string]time.Time {
	out := make(map[string]time.Time)
	for _, j := range s.cron.Jobs() {
		for _, tag := range j.Tags() {
			out[tag] = j.NextRun()
		}
	}
	return out
}

func (s *Scheduler) execute(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	log := s.logger.With().Str("job", job.Name).Logger()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("job panicked")
		}
	}()

	if err := job.Run(ctx); err != nil {
		log.Error().Err(err).Dur("took", time.Since(start)).Msg("job failed")
		return
	}
	log.Info().Dur("took", time.Since(start)).Msg("job finished")
}

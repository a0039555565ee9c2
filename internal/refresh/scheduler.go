// Package refresh runs the background job that re-polls the feed so a
// page left open converges on the server state.
package refresh

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrEmptyJobName = errors.New("job name is required")
	ErrBadInterval  = errors.New("job interval must be positive")
)

// Service wraps a gocron scheduler for the service's background jobs.
type Service struct {
	scheduler gocron.Scheduler
	stopOnce  sync.Once
	stopErr   error
}

// NewService builds a scheduler whose jobs never overlap themselves and
// whose panics are logged instead of crashing the process.
func NewService() (*Service, error) {
	sched, err := gocron.NewScheduler(
		gocron.WithGlobalJobOptions(
			gocron.WithSingletonMode(gocron.LimitModeWait),
			gocron.WithEventListeners(
				gocron.AfterJobRunsWithPanic(func(jobID uuid.UUID, jobName string, recoverData any) {
					log.Error().
						Str("job_id", jobID.String()).
						Str("job_name", jobName).
						Interface("panic", recoverData).
						Msg("Background job panicked")
				}),
			),
		),
	)
	if err != nil {
		return nil, err
	}
	return &Service{scheduler: sched}, nil
}

// Start begins running registered jobs.
func (s *Service) Start() {
	log.Info().Msg("Background scheduler starting")
	s.scheduler.Start()
}

// Stop shuts down the scheduler and prevents new runs.
func (s *Service) Stop() error {
	s.stopOnce.Do(func() {
		log.Info().Msg("Background scheduler stopping")
		s.stopErr = s.scheduler.Shutdown()
	})
	return s.stopErr
}

// AddIntervalJob registers a fixed-interval job.
func (s *Service) AddIntervalJob(name string, interval time.Duration, task func()) (gocron.Job, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrEmptyJobName
	}
	if interval <= 0 {
		return nil, ErrBadInterval
	}
	jobLogger := log.With().Str("job_name", name).Dur("interval", interval).Logger()

	wrappedTask := func() {
		jobLogger.Debug().Msg("Background job started")
		task()
		jobLogger.Debug().Msg("Background job completed")
	}

	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(wrappedTask),
		gocron.WithName(name),
	)
	if err != nil {
		jobLogger.Error().Err(err).Msg("Failed to register background job")
		return nil, err
	}
	jobLogger.Info().Msg("Background job registered")
	return job, nil
}

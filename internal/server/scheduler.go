package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Job is a periodic task run by a SchedulerService.
type Job struct {
	Name     string
	Interval time.Duration
	// Run receives a context that expires after Interval or on Stop.
	Run func(ctx context.Context) error
}

// SchedulerService runs Jobs on fixed intervals. A job whose previous run is
// still in progress is skipped rather than stacked.
type SchedulerService struct {
	sched  gocron.Scheduler
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewSchedulerService registers jobs on a new scheduler. Nothing runs until Start.
//
// Precondition: every job has a positive Interval and a non-nil Run.
// Postcondition: Returns a ready SchedulerService or a non-nil error.
func NewSchedulerService(logger *zap.Logger, jobs ...Job) (*SchedulerService, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("creating scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &SchedulerService{
		sched:  sched,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	for _, job := range jobs {
		if job.Interval <= 0 || job.Run == nil {
			cancel()
			_ = sched.Shutdown()
			return nil, fmt.Errorf("job %q: interval must be positive and Run non-nil", job.Name)
		}
		_, err := sched.NewJob(
			gocron.DurationJob(job.Interval),
			gocron.NewTask(s.runner(job)),
			gocron.WithName(job.Name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			cancel()
			_ = sched.Shutdown()
			return nil, fmt.Errorf("registering job %q: %w", job.Name, err)
		}
	}
	return s, nil
}

func (s *SchedulerService) runner(job Job) func() {
	return func() {
		ctx, cancel := context.WithTimeout(s.ctx, job.Interval)
		defer cancel()
		start := time.Now()
		if err := job.Run(ctx); err != nil {
			s.logger.Warn("scheduled job failed",
				zap.String("job", job.Name),
				zap.Error(err),
				zap.Duration("elapsed", time.Since(start)),
			)
			return
		}
		s.logger.Debug("scheduled job ran",
			zap.String("job", job.Name),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

// Start runs the scheduler and blocks until Stop.
func (s *SchedulerService) Start() error {
	s.sched.Start()
	<-s.done
	return nil
}

// Stop cancels running jobs and shuts the scheduler down.
func (s *SchedulerService) Stop(_ context.Context) {
	s.once.Do(func() {
		s.cancel()
		if err := s.sched.Shutdown(); err != nil {
			s.logger.Warn("scheduler shutdown", zap.Error(err))
		}
		close(s.done)
	})
}

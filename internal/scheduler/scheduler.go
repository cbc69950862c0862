package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"joke-pipeline/internal/config"
	"joke-pipeline/pkg/logger"

	"github.com/robfig/cron/v3"
)

type Job func(ctx context.Context) error

// Scheduler triggers the job on a fixed interval. Ticks missed while the
// process was down are not replayed, and a slow run does not hold back the
// next one.
type Scheduler struct {
	cron   *cron.Cron
	spec   string
	job    Job
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running bool
}

func New(cfg config.ScheduleConfig, loc *time.Location, job Job) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}

	if _, err := cron.ParseStandard(cfg.Interval); err != nil {
		return nil, fmt.Errorf("invalid schedule interval %q: %w", cfg.Interval, err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:   cron.New(cron.WithLocation(loc)),
		spec:   cfg.Interval,
		job:    job,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.spec, func() {
		if err := s.job(s.ctx); err != nil {
			logger.Error("Scheduled run failed", logger.Err(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job: %w", err)
	}

	s.cron.Start()

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	logger.Info("Scheduler started", logger.String("interval", s.spec))
	return nil
}

// Stop cancels in-flight runs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	logger.Info("Scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

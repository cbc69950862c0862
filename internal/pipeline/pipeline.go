package pipeline

import (
	"context"
	"fmt"
	"time"

	"joke-pipeline/internal/config"
	"joke-pipeline/internal/handoff"
	"joke-pipeline/internal/metrics"
	"joke-pipeline/internal/models"
	"joke-pipeline/pkg/logger"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

type SchemaEnsurer func(ctx context.Context) error

type Collector interface {
	Collect(ctx context.Context) ([]models.JokeRecord, error)
}

type Persister interface {
	InsertAll(ctx context.Context, jokes []models.JokeRecord) (int, error)
}

type Notifier interface {
	NotifyFailure(ctx context.Context, runID, stage string, err error) error
}

// StageError marks the stage a run failed at, after its retries ran out.
type StageError struct {
	RunID string
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("run %s: stage %s failed: %v", e.RunID, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

type Pipeline struct {
	ensure     SchemaEnsurer
	collector  Collector
	persister  Persister
	store      handoff.Store
	notifier   Notifier
	key        string
	retries    int
	retryDelay time.Duration
	newRunID   func() string
}

type Option func(*Pipeline)

func WithNotifier(n Notifier) Option {
	return func(p *Pipeline) {
		p.notifier = n
	}
}

func WithRunID(f func() string) Option {
	return func(p *Pipeline) {
		p.newRunID = f
	}
}

func New(
	ensure SchemaEnsurer,
	collector Collector,
	persister Persister,
	store handoff.Store,
	schedule config.ScheduleConfig,
	key string,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		ensure:     ensure,
		collector:  collector,
		persister:  persister,
		store:      store,
		key:        key,
		retries:    schedule.Retries,
		retryDelay: schedule.RetryDelay,
		newRunID:   uuid.NewString,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

type stage struct {
	name string
	run  func(ctx context.Context, runID string) error
}

func (p *Pipeline) stages() []stage {
	return []stage{
		{models.StageCreateTable, p.createTable},
		{models.StageFetchJokes, p.fetchJokes},
		{models.StageInsertJokes, p.insertJokes},
	}
}

// Run executes one pipeline run: every stage in order, each retried per the
// schedule policy. The first stage to exhaust its retries fails the run.
func (p *Pipeline) Run(ctx context.Context) error {
	runID := p.newRunID()
	start := time.Now()

	logger.Info("Pipeline run started", logger.String("run_id", runID))

	defer func() {
		if err := p.store.Delete(context.WithoutCancel(ctx), runID, p.key); err != nil {
			logger.Warn("Failed to clear handoff",
				logger.String("run_id", runID),
				logger.Err(err),
			)
		}
	}()

	for _, s := range p.stages() {
		if err := p.runStage(ctx, runID, s); err != nil {
			metrics.RunsTotal.WithLabelValues(string(models.RunFailed)).Inc()
			logger.Error("Pipeline run failed",
				logger.String("run_id", runID),
				logger.String("stage", s.name),
				logger.Err(err),
			)
			p.notifyFailure(ctx, runID, s.name, err)
			return &StageError{RunID: runID, Stage: s.name, Err: err}
		}
	}

	metrics.RunsTotal.WithLabelValues(string(models.RunSucceeded)).Inc()
	logger.Info("Pipeline run finished",
		logger.String("run_id", runID),
		logger.Duration("took", time.Since(start)),
	)

	return nil
}

func (p *Pipeline) runStage(ctx context.Context, runID string, s stage) error {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(s.name).Observe(time.Since(start).Seconds())
	}()

	attempt := 0
	return retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attempt++
		err := s.run(ctx, runID)
		if err == nil {
			return nil
		}

		logger.Warn("Stage attempt failed",
			logger.String("run_id", runID),
			logger.String("stage", s.name),
			logger.Int("attempt", attempt),
			logger.Err(err),
		)

		if ctx.Err() != nil {
			return err
		}
		return retry.RetryableError(err)
	})
}

func (p *Pipeline) backoff() retry.Backoff {
	delay := p.retryDelay
	if delay <= 0 {
		delay = time.Nanosecond
	}
	retries := p.retries
	if retries < 0 {
		retries = 0
	}
	return retry.WithMaxRetries(uint64(retries), retry.NewConstant(delay))
}

func (p *Pipeline) createTable(ctx context.Context, _ string) error {
	return p.ensure(ctx)
}

func (p *Pipeline) fetchJokes(ctx context.Context, runID string) error {
	jokes, err := p.collector.Collect(ctx)
	if err != nil {
		return err
	}
	return p.store.Push(ctx, runID, p.key, jokes)
}

func (p *Pipeline) insertJokes(ctx context.Context, runID string) error {
	jokes, err := p.store.Pull(ctx, runID, p.key)
	if err != nil {
		return err
	}
	_, err = p.persister.InsertAll(ctx, jokes)
	return err
}

func (p *Pipeline) notifyFailure(ctx context.Context, runID, stage string, err error) {
	if p.notifier == nil {
		return
	}
	if nerr := p.notifier.NotifyFailure(context.WithoutCancel(ctx), runID, stage, err); nerr != nil {
		logger.Error("Failed to send failure notification",
			logger.String("run_id", runID),
			logger.Err(nerr),
		)
	}
}

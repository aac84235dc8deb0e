// Package scheduler runs the periodic lottery-event lifecycle job.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/pitodoapp/core/pkg/reward"
	"go.uber.org/zap"
)

const defaultInterval = time.Minute

// Scheduler drives time-based event transitions: scheduled events open when
// opens_at passes, open events close when closes_at passes.
type Scheduler struct {
	rewards   *reward.Service
	logger    *zap.Logger
	interval  time.Duration
	scheduler gocron.Scheduler
}

// Option tweaks Scheduler construction.
type Option func(*Scheduler)

// WithInterval overrides the tick interval.
func WithInterval(interval time.Duration) Option {
	return func(scheduler *Scheduler) {
		if interval > 0 {
			scheduler.interval = interval
		}
	}
}

// New wires a Scheduler around the reward service.
func New(rewards *reward.Service, logger *zap.Logger, options ...Option) (*Scheduler, error) {
	if rewards == nil {
		return nil, errors.New("scheduler: reward service dependency is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	scheduler := &Scheduler{rewards: rewards, logger: logger, interval: defaultInterval}
	for _, option := range options {
		if option != nil {
			option(scheduler)
		}
	}
	return scheduler, nil
}

// Start begins ticking until Stop is called.
func (scheduler *Scheduler) Start(ctx context.Context) error {
	cronScheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	_, err = cronScheduler.NewJob(
		gocron.DurationJob(scheduler.interval),
		gocron.NewTask(func() {
			scheduler.tick(ctx)
		}),
	)
	if err != nil {
		return err
	}
	scheduler.scheduler = cronScheduler
	cronScheduler.Start()
	scheduler.logger.Info("event scheduler started", zap.Duration("interval", scheduler.interval))
	return nil
}

// Stop shuts the job loop down.
func (scheduler *Scheduler) Stop() {
	if scheduler.scheduler == nil {
		return
	}
	if err := scheduler.scheduler.Shutdown(); err != nil {
		scheduler.logger.Warn("scheduler shutdown error", zap.Error(err))
	}
}

func (scheduler *Scheduler) tick(ctx context.Context) {
	transitioned, err := scheduler.rewards.CloseDueEvents(ctx)
	if err != nil {
		scheduler.logger.Error("event transition pass failed", zap.Error(err))
		return
	}
	if transitioned > 0 {
		scheduler.logger.Info("lottery events transitioned", zap.Int("count", transitioned))
	}
}

// Package scheduler runs periodic store maintenance on gocron.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Maintainer compacts or vacuums a local backend.
type Maintainer interface {
	Maintain(ctx context.Context) error
}

// Scheduler owns one gocron scheduler.
type Scheduler struct {
	cron gocron.Scheduler
}

// New creates a stopped scheduler with a zap-backed gocron logger.
func New() (*Scheduler, error) {
	s, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(zapLogger{}),
	)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Scheduler{cron: s}, nil
}

// AddMaintenance schedules the maintenance job. maintainer may be nil (cloud
// backend); subscriptions reports the live subscription count for the log line.
func (s *Scheduler) AddMaintenance(cronExpr string, maintainer Maintainer, subscriptions func() int) error {
	_, err := s.cron.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(func(ctx context.Context) {
			runMaintenance(ctx, maintainer, subscriptions)
		}),
		gocron.WithName("store-maintenance"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule maintenance %q: %w", cronExpr, err)
	}
	zap.L().Info("job scheduled", zap.String("name", "store-maintenance"), zap.String("cron", cronExpr))
	return nil
}

func runMaintenance(ctx context.Context, maintainer Maintainer, subscriptions func() int) {
	start := time.Now()
	if maintainer != nil {
		if err := maintainer.Maintain(ctx); err != nil {
			zap.L().Error("store maintenance failed", zap.Error(err))
			return
		}
	}
	fields := []zap.Field{zap.Duration("took", time.Since(start))}
	if subscriptions != nil {
		fields = append(fields, zap.Int("subscriptions", subscriptions()))
	}
	zap.L().Info("store maintenance done", fields...)
}

// Run starts the scheduler and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	<-ctx.Done()
	if err := s.cron.Shutdown(); err != nil {
		return fmt.Errorf("shutdown scheduler: %w", err)
	}
	return nil
}

// zapLogger adapts gocron's key/value logger to the global zap logger.
type zapLogger struct{}

func (zapLogger) Debug(msg string, args ...any) { zap.S().Debugw(msg, args...) }
func (zapLogger) Info(msg string, args ...any)  { zap.S().Infow(msg, args...) }
func (zapLogger) Warn(msg string, args ...any)  { zap.S().Warnw(msg, args...) }
func (zapLogger) Error(msg string, args ...any) { zap.S().Errorw(msg, args...) }

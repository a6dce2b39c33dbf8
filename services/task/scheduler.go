package task

import (
	"context"
	"time"

	"examprep-marketplace/pkg/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

const TriggerScheduler = "scheduler"

type Scheduler struct {
	service *Service
	hour    int
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewScheduler(svc *Service, cfg *config.Config) *Scheduler {
	hour := cfg.Worker.ReconcileHour
	if hour < 0 || hour > 23 {
		hour = 1
	}
	return &Scheduler{service: svc, hour: hour}
}

// StartScheduler runs the daily reconcile loop for the lifetime of the app.
func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())
			s.cancel = cancel
			s.done = make(chan struct{})
			go s.run(ctx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if s.cancel == nil {
				return nil
			}
			s.cancel()
			select {
			case <-s.done:
			case <-ctx.Done():
			}
			return nil
		},
	})
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)
	zap.L().Info("[Scheduler] started reconcile scheduler", zap.Int("hour", s.hour))

	for {
		now := time.Now()
		next := nextRunTime(now, s.hour, 0)

		sleepDuration := next.Sub(now)
		zap.L().Info("[Scheduler] next run scheduled",
			zap.Time("next_run", next),
			zap.Duration("sleep_for", sleepDuration),
		)

		timer := time.NewTimer(sleepDuration)
		select {
		case <-timer.C:
			s.runDaily(ctx)
		case <-ctx.Done():
			timer.Stop()
			zap.L().Info("[Scheduler] stopped")
			return
		}
	}
}

func (s *Scheduler) runDaily(ctx context.Context) {
	job, err := s.service.EnqueueReconcile(ctx, TriggerScheduler, "")
	if err != nil {
		zap.L().Error("[Scheduler] failed to enqueue daily reconcile", zap.Error(err))
		return
	}
	zap.L().Info("[Scheduler] daily reconcile enqueued", zap.String("job_id", job.ID))
}

// nextRunTime returns the next occurrence of hour:minute strictly after now.
func nextRunTime(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

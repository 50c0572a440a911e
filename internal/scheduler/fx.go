package scheduler

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/dukahub/dukahub/internal/config"
)

func NewConfig(cfg config.Config) Config {
	c := DefaultConfig()
	if cfg.SchedulerDailyTime != "" {
		c.DailyTime = cfg.SchedulerDailyTime
	}
	return c
}

var Module = fx.Module("scheduler",
	fx.Provide(NewConfig),
	fx.Provide(New),
)

// Run starts the scheduler loop under the fx lifecycle.
func Run(lc fx.Lifecycle, s *Scheduler, log *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				if err := s.RunForever(ctx); err != nil && ctx.Err() == nil {
					log.Error("scheduler stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}

package main

import (
	"context"

	"github.com/lumeapp/agenda/internal/booking"
	"github.com/lumeapp/agenda/internal/clock"
	"github.com/lumeapp/agenda/internal/config"
	"github.com/lumeapp/agenda/internal/logger"
	"github.com/lumeapp/agenda/internal/notifier"
	"github.com/lumeapp/agenda/internal/payment"
	"github.com/lumeapp/agenda/internal/ratelimit"
	"github.com/lumeapp/agenda/internal/reconcile"
	"github.com/lumeapp/agenda/internal/trigger"
	"github.com/lumeapp/agenda/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// The sweeper runs the system-wide sweeps once and exits. Deploy it under
// cron with SWEEP_MODE=external on the API processes.
func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		db.Module,
		clock.Module,

		booking.Module,
		payment.Module,
		notifier.Module,
		ratelimit.Module,
		reconcile.Module,

		fx.Provide(config.NewTriggerConfigHolder),
		fx.Provide(trigger.New),
		fx.Invoke(RunSweeps),
	)
	app.Run()
}

func RunSweeps(lc fx.Lifecycle, shutdowner fx.Shutdowner, poller *trigger.Poller, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := poller.RunOnce(context.Background()); err != nil {
					log.Warn("sweep run failed", zap.Error(err))
				}
				_ = shutdowner.Shutdown()
			}()
			return nil
		},
	})
}

package trigger

import (
	"context"

	"github.com/lumeapp/agenda/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("trigger",
	fx.Provide(config.NewTriggerConfigHolder),
	fx.Provide(New),
	fx.Invoke(StartPoller),
)

// StartPoller runs the monitor loop in every process and the sweep loops
// only when the process owns them; in external mode cron drives the sweeps
// through the sweeper binary instead.
func StartPoller(lc fx.Lifecycle, cfg config.Config, poller *Poller) {
	var cancel context.CancelFunc
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())

			go poller.RunMonitorForever(ctx)
			if cfg.SweepsInternal() {
				go poller.RunForever(ctx)
			}
			return nil
		},
		OnStop: func(context.Context) error {
			if cancel != nil {
				cancel()
			}
			return nil
		},
	})
}

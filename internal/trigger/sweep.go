package trigger

import (
	"context"

	"github.com/lumeapp/agenda/internal/config"
	"github.com/lumeapp/agenda/internal/observability/metrics"
	"go.uber.org/zap"
)

// backupSweep walks the payment side: every pending charge in the window,
// system-wide, older than the grace period. Charges younger than the grace
// are skipped because their checkout may still be in flight. Catches
// bookings the open-booking listing misses, such as package charges whose
// siblings were written by the legacy note-marker path.
func (p *Poller) backupSweep(ctx context.Context, cfg config.TriggerConfig) error {
	return p.sweep(ctx, "backup_sweep", cfg, func(ctx context.Context) (int, error) {
		return p.svc.ReconcilePendingPayments(ctx, cfg.Window, cfg.SweepGracePeriod, cfg.BatchSize, cfg.PaceDelay)
	})
}

// heartbeatSweep is the last line of defense: every open booking in the
// window, batch by batch, pacing between batches so the gateway never sees
// a burst.
func (p *Poller) heartbeatSweep(ctx context.Context, cfg config.TriggerConfig) error {
	return p.sweep(ctx, "heartbeat_sweep", cfg, func(ctx context.Context) (int, error) {
		return p.svc.ReconcileSystemWide(ctx, cfg.Window, cfg.BatchSize, cfg.PaceDelay)
	})
}

func (p *Poller) sweep(ctx context.Context, name string, cfg config.TriggerConfig, pass func(ctx context.Context) (int, error)) error {
	// Several processes may run sweeps; the advisory lock keeps them from
	// querying the gateway for the same rows at once. Losing the race is
	// not an error.
	if p.limiter != nil {
		token, ok, err := p.limiter.TryLockSweep(ctx, name, cfg.LockTTL)
		if err != nil {
			p.log.Warn("sweep lock unavailable, proceeding unlocked",
				zap.String("trigger", name),
				zap.Error(err),
			)
		} else if !ok {
			p.log.Debug("sweep already running elsewhere", zap.String("trigger", name))
			return nil
		} else {
			defer func() {
				if err := p.limiter.ReleaseSweep(context.WithoutCancel(ctx), name, token); err != nil {
					p.log.Warn("sweep lock release failed", zap.String("trigger", name), zap.Error(err))
				}
			}()
		}
	}

	examined, err := pass(ctx)
	metrics.Reconcile().AddBatchProcessed(name, examined)
	if examined > 0 {
		p.log.Info("sweep completed",
			zap.String("trigger", name),
			zap.Int("examined", examined),
		)
	}
	return err
}

package trigger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lumeapp/agenda/internal/clock"
	"github.com/lumeapp/agenda/internal/config"
	"github.com/lumeapp/agenda/internal/notifier"
	"github.com/lumeapp/agenda/internal/observability/metrics"
	"github.com/lumeapp/agenda/internal/ratelimit"
	"github.com/lumeapp/agenda/internal/reconcile"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_trigger_config")

type Params struct {
	fx.In

	Reconciler reconcile.Service
	Limiter    *ratelimit.WebhookLimiter `optional:"true"`
	Hub        *notifier.Hub             `optional:"true"`
	Clock      clock.Clock
	Log        *zap.Logger
	Holder     *config.TriggerConfigHolder `optional:"true"`
}

// Poller drives the redundant reconciliation triggers. Every trigger runs
// the same pass at a different scope and cadence; any one of them alone is
// enough to converge, the others only shrink the confirmation lag.
type Poller struct {
	svc     reconcile.Service
	limiter *ratelimit.WebhookLimiter
	hub     *notifier.Hub
	clock   clock.Clock
	log     *zap.Logger
	holder  *config.TriggerConfigHolder

	watch *watchState
	beat  *watchState
}

func New(p Params) (*Poller, error) {
	if p.Reconciler == nil || p.Clock == nil || p.Log == nil {
		return nil, ErrInvalidConfig
	}
	return &Poller{
		svc:     p.Reconciler,
		limiter: p.Limiter,
		hub:     p.Hub,
		clock:   p.Clock,
		log:     p.Log.Named("trigger").With(zap.String("component", "trigger")),
		holder:  p.Holder,
		watch:   newWatchState(),
		beat:    newWatchState(),
	}, nil
}

func (p *Poller) cfg() config.TriggerConfig {
	if p.holder != nil {
		return p.holder.Current()
	}
	return config.DefaultTriggerConfig()
}

// Window exposes the rolling reconciliation window for read paths that list
// the same bookings the triggers cover.
func (p *Poller) Window() time.Duration {
	return p.cfg().Window
}

// BatchSize exposes the per-pass booking cap.
func (p *Poller) BatchSize() int {
	return p.cfg().BatchSize
}

func (p *Poller) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	m := metrics.Reconcile()
	m.IncTriggerRun(name)

	err := fn(ctx)
	m.ObserveTriggerDuration(name, time.Since(start))
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		p.log.Warn("trigger timed out",
			zap.String("trigger", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce executes the system-wide sweeps a single time. The sweeper binary
// calls this from cron; the monolith calls it from RunForever.
func (p *Poller) RunOnce(parent context.Context) error {
	cfg := p.cfg()
	var err error
	err = errors.Join(err, p.runJob(parent, "backup_sweep", 2*time.Minute, func(ctx context.Context) error {
		return p.backupSweep(ctx, cfg)
	}))
	err = errors.Join(err, p.runJob(parent, "heartbeat_sweep", 2*time.Minute, func(ctx context.Context) error {
		return p.heartbeatSweep(ctx, cfg)
	}))
	return err
}

// RunForever runs the sweeps on a ticker until the context is canceled.
func (p *Poller) RunForever(ctx context.Context) {
	cfg := p.cfg()
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		if err := p.RunOnce(ctx); err != nil {
			p.log.Warn("sweep run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunMonitorForever runs the owner-scoped monitor loop until canceled.
func (p *Poller) RunMonitorForever(ctx context.Context) {
	cfg := p.cfg()
	ticker := time.NewTicker(cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := p.runJob(ctx, "monitor", time.Minute, func(jobCtx context.Context) error {
			return p.monitorPass(jobCtx, cfg)
		}); err != nil {
			p.log.Warn("monitor run failed", zap.Error(err))
		}
	}
}

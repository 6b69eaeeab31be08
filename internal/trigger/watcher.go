package trigger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lumeapp/agenda/internal/config"
	"github.com/lumeapp/agenda/internal/notifier"
	"github.com/lumeapp/agenda/internal/observability/metrics"
	"github.com/lumeapp/agenda/internal/reconcile"
	"go.uber.org/zap"
)

// watchState tracks which owners are being watched and when each one was
// last reconciled, so bursts of page loads collapse into one gateway query.
type watchState struct {
	mu      sync.Mutex
	lastRun map[snowflake.ID]time.Time
}

func newWatchState() *watchState {
	return &watchState{lastRun: make(map[snowflake.ID]time.Time)}
}

func (w *watchState) due(ownerID snowflake.ID, now time.Time, spacing time.Duration) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	last, ok := w.lastRun[ownerID]
	if ok && now.Sub(last) < spacing {
		return false
	}
	w.lastRun[ownerID] = now
	return true
}

func (w *watchState) owners() []snowflake.ID {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]snowflake.ID, 0, len(w.lastRun))
	for id := range w.lastRun {
		ids = append(ids, id)
	}
	return ids
}

func (w *watchState) drop(id snowflake.ID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.lastRun, id)
}

func (w *watchState) forget(ownerID snowflake.ID, cutoff time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if last, ok := w.lastRun[ownerID]; ok && last.Before(cutoff) {
		delete(w.lastRun, ownerID)
	}
}

// Kick runs an owner-scoped pass if the watcher spacing has elapsed. Called
// whenever someone loads the owner's bookings, so an open tab effectively
// polls on their behalf. Always returns fast; the pass itself is bounded by
// the batch size.
func (p *Poller) Kick(ctx context.Context, ownerID snowflake.ID) error {
	cfg := p.cfg()
	if !p.watch.due(ownerID, p.clock.Now(), cfg.WatcherMinSpacing) {
		return nil
	}
	return p.runJob(ctx, "watcher", 30*time.Second, func(jobCtx context.Context) error {
		examined, err := p.svc.ReconcileOwner(jobCtx, ownerID, cfg.Window, cfg.BatchSize)
		metrics.Reconcile().AddBatchProcessed("watcher", examined)
		return err
	})
}

// RunBookingHeartbeat polls a single booking for as long as someone watches
// it, so an open watch stream converges without waiting for a sweep. Runs a
// pass immediately, then on every watcher interval; concurrent watchers of
// the same booking collapse onto one pass via the spacing check. Stops when
// the booking reaches a terminal outcome, when a terminal change event
// arrives from another trigger, or when the stream context closes.
func (p *Poller) RunBookingHeartbeat(ctx context.Context, bookingID snowflake.ID) {
	cfg := p.cfg()
	defer p.beat.drop(bookingID)

	var events <-chan notifier.Event
	if p.hub != nil {
		sub, _, err := p.hub.Subscribe(bookingID.String())
		if err != nil {
			p.log.Warn("booking heartbeat subscribe failed",
				zap.String("booking_id", bookingID.String()),
				zap.Error(err),
			)
		} else {
			defer sub.Close()
			events = sub.Events()
		}
	}

	if stop := p.heartbeatPass(ctx, bookingID, cfg); stop {
		return
	}

	ticker := time.NewTicker(cfg.WatcherInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			if event.Outcome == string(reconcile.OutcomeConfirmed) || event.Outcome == string(reconcile.OutcomeRejected) {
				return
			}
		case <-ticker.C:
			if stop := p.heartbeatPass(ctx, bookingID, cfg); stop {
				return
			}
		}
	}
}

// heartbeatPass runs one booking pass and reports whether the heartbeat is
// done with it. Anything other than an unchanged outcome means the booking
// settled; a pass error also stops the loop, the sweeps cover it from there.
func (p *Poller) heartbeatPass(ctx context.Context, bookingID snowflake.ID, cfg config.TriggerConfig) bool {
	if !p.beat.due(bookingID, p.clock.Now(), cfg.WatcherMinSpacing) {
		return false
	}
	var outcome reconcile.Outcome
	err := p.runJob(ctx, "booking_heartbeat", 30*time.Second, func(jobCtx context.Context) error {
		var passErr error
		outcome, passErr = p.svc.Reconcile(jobCtx, bookingID)
		return passErr
	})
	if err != nil {
		p.log.Warn("booking heartbeat failed",
			zap.String("booking_id", bookingID.String()),
			zap.Error(err),
		)
		return true
	}
	return outcome != reconcile.OutcomeUnchanged
}

// monitorPass re-reconciles every recently watched owner. Owners idle past
// the window fall out of the set; the sweeps cover them from then on.
func (p *Poller) monitorPass(ctx context.Context, cfg config.TriggerConfig) error {
	now := p.clock.Now()
	cutoff := now.Add(-cfg.Window)
	var errs []error
	examined := 0
	for _, ownerID := range p.watch.owners() {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		p.watch.forget(ownerID, cutoff)
		n, err := p.svc.ReconcileOwner(ctx, ownerID, cfg.Window, cfg.BatchSize)
		examined += n
		if err != nil {
			errs = append(errs, err)
			p.log.Warn("monitor pass failed for owner",
				zap.String("owner_id", ownerID.String()),
				zap.Error(err),
			)
		}
	}
	metrics.Reconcile().AddBatchProcessed("monitor", examined)
	return errors.Join(errs...)
}

package trigger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lumeapp/agenda/internal/clock"
	"github.com/lumeapp/agenda/internal/config"
	"github.com/lumeapp/agenda/internal/notifier"
	"github.com/lumeapp/agenda/internal/observability/metrics"
	"github.com/lumeapp/agenda/internal/reconcile"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type paymentSweep struct {
	window time.Duration
	grace  time.Duration
}

type mockReconciler struct {
	mu            sync.Mutex
	passCalls     []snowflake.ID
	passOutcomes  []reconcile.Outcome
	passErr       error
	ownerCalls    []snowflake.ID
	sweepCalls    []time.Duration
	paymentSweeps []paymentSweep
	ownerErr      error
	sweepErr      error
	paymentErr    error
	perOwnerOut   int
}

// Reconcile pops the next scripted outcome; the last one repeats.
func (m *mockReconciler) Reconcile(ctx context.Context, bookingID snowflake.ID) (reconcile.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passCalls = append(m.passCalls, bookingID)
	if m.passErr != nil {
		return reconcile.OutcomeUnchanged, m.passErr
	}
	if len(m.passOutcomes) == 0 {
		return reconcile.OutcomeUnchanged, nil
	}
	outcome := m.passOutcomes[0]
	if len(m.passOutcomes) > 1 {
		m.passOutcomes = m.passOutcomes[1:]
	}
	return outcome, nil
}

func (m *mockReconciler) ReconcileOwner(ctx context.Context, ownerID snowflake.ID, window time.Duration, limit int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ownerCalls = append(m.ownerCalls, ownerID)
	return m.perOwnerOut, m.ownerErr
}

func (m *mockReconciler) ReconcileSystemWide(ctx context.Context, window time.Duration, limit int, pace time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepCalls = append(m.sweepCalls, window)
	return 0, m.sweepErr
}

func (m *mockReconciler) ReconcilePendingPayments(ctx context.Context, window time.Duration, grace time.Duration, limit int, pace time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paymentSweeps = append(m.paymentSweeps, paymentSweep{window: window, grace: grace})
	return 0, m.paymentErr
}

func (m *mockReconciler) FixRejected(ctx context.Context, bookingID snowflake.ID) (reconcile.Outcome, error) {
	return reconcile.OutcomeUnchanged, nil
}

func (m *mockReconciler) FixPackage(ctx context.Context, token string) (reconcile.Outcome, error) {
	return reconcile.OutcomeUnchanged, nil
}

func (m *mockReconciler) ForceFixPackage(ctx context.Context, token string) (reconcile.Outcome, error) {
	return reconcile.OutcomeUnchanged, nil
}

func (m *mockReconciler) ownerCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ownerCalls)
}

func (m *mockReconciler) passCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.passCalls)
}

func newTestPoller(t *testing.T, svc reconcile.Service, clk clock.Clock, cfg config.TriggerConfig) *Poller {
	t.Helper()

	registry := prometheus.NewRegistry()
	orig := prometheus.DefaultRegisterer
	prometheus.DefaultRegisterer = registry
	t.Cleanup(func() { prometheus.DefaultRegisterer = orig })
	metrics.ResetReconcileMetricsForTest()

	poller, err := New(Params{
		Reconciler: svc,
		Clock:      clk,
		Log:        zap.NewNop(),
		Holder:     config.NewStaticTriggerConfigHolder(cfg),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return poller
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Params{Clock: clock.NewFakeClock(time.Now()), Log: zap.NewNop()})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected invalid_trigger_config, got %v", err)
	}
}

func TestKick_CollapsesBurstsPerOwner(t *testing.T) {
	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc := &mockReconciler{}
	poller := newTestPoller(t, svc, fakeClock, config.TriggerConfig{WatcherMinSpacing: 10 * time.Second})

	node, _ := snowflake.NewNode(1)
	ownerID := node.Generate()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := poller.Kick(ctx, ownerID); err != nil {
			t.Fatalf("Kick: %v", err)
		}
	}
	if got := svc.ownerCallCount(); got != 1 {
		t.Fatalf("expected one pass for a burst, got %d", got)
	}

	fakeClock.Advance(11 * time.Second)
	if err := poller.Kick(ctx, ownerID); err != nil {
		t.Fatalf("Kick after spacing: %v", err)
	}
	if got := svc.ownerCallCount(); got != 2 {
		t.Fatalf("expected second pass after spacing, got %d", got)
	}
}

func TestKick_OwnersAreIndependent(t *testing.T) {
	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc := &mockReconciler{}
	poller := newTestPoller(t, svc, fakeClock, config.TriggerConfig{WatcherMinSpacing: 10 * time.Second})

	node, _ := snowflake.NewNode(1)
	ctx := context.Background()

	if err := poller.Kick(ctx, node.Generate()); err != nil {
		t.Fatalf("Kick: %v", err)
	}
	if err := poller.Kick(ctx, node.Generate()); err != nil {
		t.Fatalf("Kick: %v", err)
	}
	if got := svc.ownerCallCount(); got != 2 {
		t.Fatalf("expected one pass per owner, got %d", got)
	}
}

func TestMonitorPass_CoversWatchedOwners(t *testing.T) {
	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc := &mockReconciler{}
	cfg := config.TriggerConfig{WatcherMinSpacing: 10 * time.Second, Window: time.Hour}
	poller := newTestPoller(t, svc, fakeClock, cfg)

	node, _ := snowflake.NewNode(1)
	ownerID := node.Generate()
	ctx := context.Background()

	if err := poller.Kick(ctx, ownerID); err != nil {
		t.Fatalf("Kick: %v", err)
	}
	if err := poller.monitorPass(ctx, poller.cfg()); err != nil {
		t.Fatalf("monitorPass: %v", err)
	}
	// One pass from the kick, one from the monitor.
	if got := svc.ownerCallCount(); got != 2 {
		t.Fatalf("expected monitor to re-reconcile the owner, got %d calls", got)
	}
}

func TestMonitorPass_DropsIdleOwners(t *testing.T) {
	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc := &mockReconciler{}
	cfg := config.TriggerConfig{WatcherMinSpacing: 10 * time.Second, Window: time.Hour}
	poller := newTestPoller(t, svc, fakeClock, cfg)

	node, _ := snowflake.NewNode(1)
	ownerID := node.Generate()
	ctx := context.Background()

	if err := poller.Kick(ctx, ownerID); err != nil {
		t.Fatalf("Kick: %v", err)
	}

	// Idle past the window: one final monitor pass, then the owner is gone.
	fakeClock.Advance(2 * time.Hour)
	if err := poller.monitorPass(ctx, poller.cfg()); err != nil {
		t.Fatalf("monitorPass: %v", err)
	}
	before := svc.ownerCallCount()

	if err := poller.monitorPass(ctx, poller.cfg()); err != nil {
		t.Fatalf("second monitorPass: %v", err)
	}
	if got := svc.ownerCallCount(); got != before {
		t.Fatalf("expected idle owner dropped from the monitor set, got %d extra calls", got-before)
	}
}

func TestRunOnce_RunsBothSweeps(t *testing.T) {
	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc := &mockReconciler{}
	cfg := config.TriggerConfig{Window: time.Hour, SweepGracePeriod: 10 * time.Minute}
	poller := newTestPoller(t, svc, fakeClock, cfg)

	if err := poller.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if len(svc.paymentSweeps) != 1 {
		t.Fatalf("expected one payment-side backup sweep, got %d", len(svc.paymentSweeps))
	}
	if svc.paymentSweeps[0] != (paymentSweep{window: time.Hour, grace: 10 * time.Minute}) {
		t.Fatalf("expected backup sweep over the window minus grace, got %+v", svc.paymentSweeps[0])
	}
	if len(svc.sweepCalls) != 1 {
		t.Fatalf("expected one heartbeat sweep, got %d", len(svc.sweepCalls))
	}
	if svc.sweepCalls[0] != time.Hour {
		t.Fatalf("expected heartbeat sweep over the window, got %v", svc.sweepCalls[0])
	}
}

func TestRunOnce_HeartbeatStillRunsAfterBackupFailure(t *testing.T) {
	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc := &mockReconciler{paymentErr: errors.New("db_down")}
	poller := newTestPoller(t, svc, fakeClock, config.TriggerConfig{Window: time.Hour})

	err := poller.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected joined sweep errors")
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if len(svc.paymentSweeps) != 1 || len(svc.sweepCalls) != 1 {
		t.Fatalf("a failing backup sweep must not skip the heartbeat, got %d/%d calls", len(svc.paymentSweeps), len(svc.sweepCalls))
	}
}

// The heartbeat tests run against the system clock: the loop sleeps on real
// tickers, so the intervals are shrunk instead of the clock being advanced.

func TestRunBookingHeartbeat_StopsWhenBookingSettles(t *testing.T) {
	svc := &mockReconciler{passOutcomes: []reconcile.Outcome{reconcile.OutcomeUnchanged, reconcile.OutcomeConfirmed}}
	cfg := config.TriggerConfig{WatcherInterval: 2 * time.Millisecond, WatcherMinSpacing: time.Millisecond}
	poller := newTestPoller(t, svc, clock.NewSystemClock(), cfg)

	node, _ := snowflake.NewNode(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		poller.RunBookingHeartbeat(ctx, node.Generate())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("heartbeat did not stop after the booking settled")
	}
	if got := svc.passCallCount(); got != 2 {
		t.Fatalf("expected the settling pass to end the loop, got %d passes", got)
	}
}

func TestRunBookingHeartbeat_StopsWhenStreamCloses(t *testing.T) {
	svc := &mockReconciler{}
	cfg := config.TriggerConfig{WatcherInterval: time.Hour, WatcherMinSpacing: time.Millisecond}
	poller := newTestPoller(t, svc, clock.NewSystemClock(), cfg)

	node, _ := snowflake.NewNode(1)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		poller.RunBookingHeartbeat(ctx, node.Generate())
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("heartbeat did not stop when the stream closed")
	}
}

func TestRunBookingHeartbeat_StopsOnTerminalEventFromAnotherTrigger(t *testing.T) {
	svc := &mockReconciler{}
	cfg := config.TriggerConfig{WatcherInterval: time.Hour, WatcherMinSpacing: time.Millisecond}
	poller := newTestPoller(t, svc, clock.NewSystemClock(), cfg)
	poller.hub = notifier.NewHub()

	node, _ := snowflake.NewNode(1)
	bookingID := node.Generate()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		poller.RunBookingHeartbeat(ctx, bookingID)
		close(done)
	}()

	// The hub drops events published before the heartbeat subscribes, so
	// keep publishing until the loop hears one.
	deadline := time.After(5 * time.Second)
	for {
		poller.hub.Publish(bookingID.String(), notifier.Event{
			Kind:      notifier.KindBookingChanged,
			BookingID: bookingID.String(),
			Outcome:   string(reconcile.OutcomeConfirmed),
		})
		select {
		case <-done:
			if got := svc.passCallCount(); got != 1 {
				t.Fatalf("expected only the initial pass, got %d", got)
			}
			return
		case <-deadline:
			t.Fatal("heartbeat ignored the terminal change event")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestKick_OwnerErrorSurfaces(t *testing.T) {
	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc := &mockReconciler{ownerErr: errors.New("db_down")}
	poller := newTestPoller(t, svc, fakeClock, config.TriggerConfig{WatcherMinSpacing: 10 * time.Second})

	node, _ := snowflake.NewNode(1)
	if err := poller.Kick(context.Background(), node.Generate()); err == nil {
		t.Fatal("expected pass error to surface")
	}
}

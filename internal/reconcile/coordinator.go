package reconcile

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/lumeapp/agenda/internal/booking/domain"
	"github.com/lumeapp/agenda/internal/clock"
	"github.com/lumeapp/agenda/internal/notifier"
	"github.com/lumeapp/agenda/internal/observability/metrics"
	paymentdomain "github.com/lumeapp/agenda/internal/payment/domain"
	"github.com/lumeapp/agenda/internal/payment/gateway"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Outcome summarizes what a reconcile pass did to a booking.
type Outcome string

const (
	// OutcomeUnchanged means the pass observed no actionable gateway state.
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeConfirmed means the pass applied an approval.
	OutcomeConfirmed Outcome = "confirmed"
	// OutcomeRejected means the pass applied a rejection.
	OutcomeRejected Outcome = "rejected"
	// OutcomeAlreadyTerminal means another writer applied the transition
	// first, or the booking was already settled.
	OutcomeAlreadyTerminal Outcome = "already_terminal"
)

type Service interface {
	// Reconcile drives one booking to agreement with its gateway charge.
	// Safe to call from any trigger at any frequency.
	Reconcile(ctx context.Context, bookingID snowflake.ID) (Outcome, error)

	// ReconcileOwner runs a pass over the owner's open bookings inside the
	// rolling window, oldest first.
	ReconcileOwner(ctx context.Context, ownerID snowflake.ID, window time.Duration, limit int) (int, error)

	// ReconcileSystemWide pages through every open booking inside the
	// window, reconciling batch by batch with pace between batches. Feeds
	// the heartbeat sweep.
	ReconcileSystemWide(ctx context.Context, window time.Duration, limit int, pace time.Duration) (int, error)

	// ReconcilePendingPayments drives the backup sweep from the payment
	// side: every pending charge inside the window and older than the grace
	// period gets its booking reconciled. Grace keeps charges whose checkout
	// may still be in flight out of the pass.
	ReconcilePendingPayments(ctx context.Context, window time.Duration, grace time.Duration, limit int, pace time.Duration) (int, error)

	FixRejected(ctx context.Context, bookingID snowflake.ID) (Outcome, error)
	FixPackage(ctx context.Context, token string) (Outcome, error)
	ForceFixPackage(ctx context.Context, token string) (Outcome, error)
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Bookings bookingdomain.Repository
	Payments paymentdomain.Repository
	Registry *gateway.Registry
	Hub      *notifier.Hub
	Clock    clock.Clock
	Log      *zap.Logger
}

type service struct {
	db       *gorm.DB
	bookings bookingdomain.Repository
	payments paymentdomain.Repository
	registry *gateway.Registry
	hub      *notifier.Hub
	clock    clock.Clock
	log      *zap.Logger
	metrics  *metrics.ReconcileMetrics
}

func NewService(p Params) Service {
	return &service{
		db:       p.DB,
		bookings: p.Bookings,
		payments: p.Payments,
		registry: p.Registry,
		hub:      p.Hub,
		clock:    p.Clock,
		log:      p.Log.Named("reconcile.service"),
		metrics:  metrics.Reconcile(),
	}
}

func (s *service) Reconcile(ctx context.Context, bookingID snowflake.ID) (Outcome, error) {
	outcome, err := s.reconcile(ctx, bookingID)
	if err != nil {
		s.metrics.IncPassError(err)
		return outcome, err
	}
	s.metrics.IncPass(string(outcome))
	return outcome, nil
}

func (s *service) reconcile(ctx context.Context, bookingID snowflake.ID) (Outcome, error) {
	booking, err := s.bookings.FindByID(ctx, s.db, bookingID)
	if err != nil {
		return OutcomeUnchanged, err
	}
	if booking.Status.Terminal() {
		return OutcomeAlreadyTerminal, nil
	}

	payment, err := s.findPayment(ctx, booking)
	if err != nil {
		return OutcomeUnchanged, err
	}
	if payment == nil {
		// Nothing charged yet; checkout has not reached the gateway.
		return OutcomeUnchanged, nil
	}

	// A terminal local payment with an open booking means a previous pass
	// crashed between the two writes. Re-apply the booking side only.
	if payment.Status.Terminal() {
		return s.applyTerminal(ctx, booking, payment, payment.Status)
	}

	status, err := s.queryGateway(ctx, payment)
	if err != nil {
		// The charge stays pending; a later trigger retries.
		s.log.Warn("gateway query failed, deferring",
			zap.String("booking_id", booking.ID.String()),
			zap.String("payment_id", payment.ID.String()),
			zap.String("provider", payment.Provider),
			zap.Error(err),
		)
		s.metrics.IncPassError(err)
		return OutcomeUnchanged, nil
	}

	switch status {
	case paymentdomain.GatewayStatusApproved:
		return s.applyApproval(ctx, booking, payment)
	case paymentdomain.GatewayStatusRejected:
		return s.applyRejection(ctx, booking, payment, paymentdomain.PaymentStatusRejected)
	case paymentdomain.GatewayStatusCancelled:
		return s.applyRejection(ctx, booking, payment, paymentdomain.PaymentStatusCancelled)
	case paymentdomain.GatewayStatusRefunded:
		return s.applyRejection(ctx, booking, payment, paymentdomain.PaymentStatusRefunded)
	default:
		return OutcomeUnchanged, nil
	}
}

func (s *service) findPayment(ctx context.Context, booking *bookingdomain.Booking) (*paymentdomain.Payment, error) {
	payment, err := s.payments.FindForBooking(ctx, s.db, booking.ID)
	if err != nil {
		return nil, err
	}
	if payment != nil {
		return payment, nil
	}
	if booking.PackageToken == nil || *booking.PackageToken == "" {
		return nil, nil
	}
	return s.payments.FindForPackage(ctx, s.db, *booking.PackageToken)
}

// queryGateway hits the provider outside any transaction so a slow gateway
// never holds row locks.
func (s *service) queryGateway(ctx context.Context, payment *paymentdomain.Payment) (paymentdomain.GatewayStatus, error) {
	client, err := s.registry.Client(payment.Provider)
	if err != nil {
		return paymentdomain.GatewayStatusUnknown, err
	}
	started := time.Now()
	status, err := client.QueryStatus(ctx, payment.GatewayRef, payment.OwnerID.String())
	s.metrics.ObserveGatewayLatency(payment.Provider, time.Since(started))
	return status, err
}

func (s *service) applyApproval(ctx context.Context, booking *bookingdomain.Booking, payment *paymentdomain.Payment) (Outcome, error) {
	now := s.clock.Now()
	var bookingChanged bool
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.payments.MarkStatusIfPending(ctx, tx, payment.ID, paymentdomain.PaymentStatusApproved, now); err != nil {
			return err
		}
		changed, err := s.settleBookings(ctx, tx, booking, payment, now)
		if err != nil {
			return err
		}
		bookingChanged = changed
		return nil
	})
	if err != nil {
		return OutcomeUnchanged, err
	}
	if !bookingChanged {
		return OutcomeAlreadyTerminal, nil
	}
	s.publishApproval(booking, payment, now)
	return OutcomeConfirmed, nil
}

func (s *service) applyRejection(ctx context.Context, booking *bookingdomain.Booking, payment *paymentdomain.Payment, status paymentdomain.PaymentStatus) (Outcome, error) {
	now := s.clock.Now()
	var paymentChanged, bookingChanged bool
	err := s.db.Transaction(func(tx *gorm.DB) error {
		changed, err := s.payments.MarkStatusIfPending(ctx, tx, payment.ID, status, now)
		if err != nil {
			return err
		}
		paymentChanged = changed
		changed, err = s.bookings.ResetToPending(ctx, tx, booking.ID, now)
		if err != nil {
			return err
		}
		bookingChanged = changed
		return nil
	})
	if err != nil {
		return OutcomeUnchanged, err
	}
	// A booking already back in pending (retried checkout) still rejects:
	// the charge transitioned and watchers need to hear about it.
	if !paymentChanged && !bookingChanged {
		return OutcomeAlreadyTerminal, nil
	}
	if paymentChanged {
		s.publish(notifier.Event{
			Kind:       notifier.KindPaymentChanged,
			PaymentID:  payment.ID.String(),
			BookingID:  booking.ID.String(),
			OwnerID:    booking.OwnerID.String(),
			Status:     string(status),
			Outcome:    string(OutcomeRejected),
			OccurredAt: now,
		}, booking)
	}
	if bookingChanged {
		s.publish(notifier.Event{
			Kind:       notifier.KindBookingChanged,
			BookingID:  booking.ID.String(),
			OwnerID:    booking.OwnerID.String(),
			Status:     string(bookingdomain.BookingStatusPending),
			Outcome:    string(OutcomeRejected),
			OccurredAt: now,
		}, booking)
	}
	return OutcomeRejected, nil
}

// applyTerminal re-applies the booking side of a transition whose payment
// side already landed. Keeps crash recovery idempotent.
func (s *service) applyTerminal(ctx context.Context, booking *bookingdomain.Booking, payment *paymentdomain.Payment, status paymentdomain.PaymentStatus) (Outcome, error) {
	now := s.clock.Now()
	switch status {
	case paymentdomain.PaymentStatusApproved:
		var bookingChanged bool
		err := s.db.Transaction(func(tx *gorm.DB) error {
			changed, err := s.settleBookings(ctx, tx, booking, payment, now)
			if err != nil {
				return err
			}
			bookingChanged = changed
			return nil
		})
		if err != nil {
			return OutcomeUnchanged, err
		}
		if !bookingChanged {
			return OutcomeAlreadyTerminal, nil
		}
		s.publishApproval(booking, payment, now)
		return OutcomeConfirmed, nil
	case paymentdomain.PaymentStatusRejected, paymentdomain.PaymentStatusCancelled, paymentdomain.PaymentStatusRefunded:
		changed, err := s.bookings.ResetToPending(ctx, s.db, booking.ID, now)
		if err != nil {
			return OutcomeUnchanged, err
		}
		if !changed {
			return OutcomeUnchanged, nil
		}
		s.publish(notifier.Event{
			Kind:       notifier.KindBookingChanged,
			BookingID:  booking.ID.String(),
			OwnerID:    booking.OwnerID.String(),
			Status:     string(bookingdomain.BookingStatusPending),
			Outcome:    string(OutcomeRejected),
			OccurredAt: now,
		}, booking)
		return OutcomeRejected, nil
	default:
		return OutcomeUnchanged, nil
	}
}

// settleBookings applies the booking side of an approval: a single booking
// gets the full credit, a package payment settles every sibling.
func (s *service) settleBookings(ctx context.Context, tx *gorm.DB, booking *bookingdomain.Booking, payment *paymentdomain.Payment, now time.Time) (bool, error) {
	if payment.ForPackage() {
		settled, err := s.settlePackage(ctx, tx, *payment.PackageToken, payment.Amount, now)
		if err != nil {
			return false, err
		}
		return settled > 0, nil
	}
	target := booking.ID
	if payment.BookingID != nil {
		target = *payment.BookingID
	}
	return s.bookings.ConfirmIfOpen(ctx, tx, target, payment.Amount, now)
}

func (s *service) publishApproval(booking *bookingdomain.Booking, payment *paymentdomain.Payment, now time.Time) {
	s.publish(notifier.Event{
		Kind:       notifier.KindPaymentChanged,
		PaymentID:  payment.ID.String(),
		BookingID:  booking.ID.String(),
		OwnerID:    booking.OwnerID.String(),
		Status:     string(paymentdomain.PaymentStatusApproved),
		Outcome:    string(OutcomeConfirmed),
		OccurredAt: now,
	}, booking)
	s.publish(notifier.Event{
		Kind:       notifier.KindBookingChanged,
		BookingID:  booking.ID.String(),
		OwnerID:    booking.OwnerID.String(),
		Status:     string(bookingdomain.BookingStatusConfirmed),
		Outcome:    string(OutcomeConfirmed),
		OccurredAt: now,
	}, booking)
}

// publish fans the event out on both the booking topic and the owner topic.
func (s *service) publish(event notifier.Event, booking *bookingdomain.Booking) {
	s.hub.Publish(booking.ID.String(), event)
	s.hub.Publish(booking.OwnerID.String(), event)
}

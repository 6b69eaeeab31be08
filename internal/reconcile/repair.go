package reconcile

import (
	"context"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/lumeapp/agenda/internal/booking/domain"
	"github.com/lumeapp/agenda/internal/notifier"
	paymentdomain "github.com/lumeapp/agenda/internal/payment/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// FixRejected unsticks a booking whose charge was rejected but whose status
// never left scheduled, usually because the process died between the two
// writes. It runs a normal reconcile pass first so fresh gateway state wins
// over stale local state.
func (s *service) FixRejected(ctx context.Context, bookingID snowflake.ID) (Outcome, error) {
	outcome, err := s.Reconcile(ctx, bookingID)
	if err != nil || outcome != OutcomeUnchanged {
		return outcome, err
	}

	payment, err := s.payments.FindForBooking(ctx, s.db, bookingID)
	if err != nil {
		return OutcomeUnchanged, err
	}
	if payment == nil || payment.Status != paymentdomain.PaymentStatusRejected {
		return OutcomeUnchanged, nil
	}

	now := s.clock.Now()
	changed, err := s.bookings.ResetToPending(ctx, s.db, bookingID, now)
	if err != nil {
		return OutcomeUnchanged, err
	}
	if !changed {
		return OutcomeUnchanged, nil
	}
	s.log.Info("repaired rejected booking",
		zap.String("booking_id", bookingID.String()),
		zap.String("payment_id", payment.ID.String()),
	)
	return OutcomeRejected, nil
}

// FixPackage re-runs settlement for a package whose payment is approved but
// whose siblings were left unconfirmed.
func (s *service) FixPackage(ctx context.Context, token string) (Outcome, error) {
	payment, err := s.payments.FindForPackage(ctx, s.db, token)
	if err != nil {
		return OutcomeUnchanged, err
	}
	if payment == nil {
		return OutcomeUnchanged, paymentdomain.ErrPaymentNotFound
	}

	if payment.Status == paymentdomain.PaymentStatusPending {
		status, err := s.queryGateway(ctx, payment)
		if err != nil {
			return OutcomeUnchanged, err
		}
		if status != paymentdomain.GatewayStatusApproved {
			return OutcomeUnchanged, nil
		}
		now := s.clock.Now()
		if _, err := s.payments.MarkStatusIfPending(ctx, s.db, payment.ID, paymentdomain.PaymentStatusApproved, now); err != nil {
			return OutcomeUnchanged, err
		}
	} else if payment.Status != paymentdomain.PaymentStatusApproved {
		return OutcomeUnchanged, nil
	}

	return s.settleForRepair(ctx, token, payment)
}

// ForceFixPackage settles the package without consulting the gateway. It is
// the operator override for charges confirmed out of band; the payment row
// is forced to approved if still pending.
func (s *service) ForceFixPackage(ctx context.Context, token string) (Outcome, error) {
	payment, err := s.payments.FindForPackage(ctx, s.db, token)
	if err != nil {
		return OutcomeUnchanged, err
	}
	if payment == nil {
		return OutcomeUnchanged, paymentdomain.ErrPaymentNotFound
	}

	now := s.clock.Now()
	if payment.Status == paymentdomain.PaymentStatusPending {
		if _, err := s.payments.MarkStatusIfPending(ctx, s.db, payment.ID, paymentdomain.PaymentStatusApproved, now); err != nil {
			return OutcomeUnchanged, err
		}
	}
	s.log.Warn("force-settling package",
		zap.String("package_token", token),
		zap.String("payment_id", payment.ID.String()),
		zap.String("payment_status", string(payment.Status)),
	)
	return s.settleForRepair(ctx, token, payment)
}

func (s *service) settleForRepair(ctx context.Context, token string, payment *paymentdomain.Payment) (Outcome, error) {
	now := s.clock.Now()
	settled := 0
	err := s.db.Transaction(func(tx *gorm.DB) error {
		n, err := s.settlePackage(ctx, tx, token, payment.Amount, now)
		if err != nil {
			return err
		}
		settled = n
		return nil
	})
	if err != nil {
		return OutcomeUnchanged, err
	}
	if settled == 0 {
		return OutcomeAlreadyTerminal, nil
	}
	s.hub.Publish(payment.OwnerID.String(), notifier.Event{
		Kind:       notifier.KindBookingChanged,
		PaymentID:  payment.ID.String(),
		OwnerID:    payment.OwnerID.String(),
		Status:     string(bookingdomain.BookingStatusConfirmed),
		Outcome:    string(OutcomeConfirmed),
		OccurredAt: now,
	})
	return OutcomeConfirmed, nil
}

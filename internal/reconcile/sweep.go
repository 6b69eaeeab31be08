package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/lumeapp/agenda/internal/booking/domain"
	paymentdomain "github.com/lumeapp/agenda/internal/payment/domain"
	"go.uber.org/zap"
)

func (s *service) ReconcileOwner(ctx context.Context, ownerID snowflake.ID, window time.Duration, limit int) (int, error) {
	since := s.clock.Now().Add(-window)
	open, err := s.bookings.ListOpenForOwner(ctx, s.db, ownerID, since, limit)
	if err != nil {
		return 0, err
	}
	return s.reconcileBatch(ctx, open)
}

func (s *service) ReconcileSystemWide(ctx context.Context, window time.Duration, limit int, pace time.Duration) (int, error) {
	since := s.clock.Now().Add(-window)
	after := time.Time{}
	total := 0
	var errs []error
	for {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		open, err := s.bookings.ListOpenSystemWide(ctx, s.db, since, after, limit)
		if err != nil {
			errs = append(errs, err)
			break
		}
		if len(open) == 0 {
			break
		}
		examined, err := s.reconcileBatch(ctx, open)
		total += examined
		if err != nil {
			errs = append(errs, err)
		}
		if len(open) < limit {
			break
		}
		after = open[len(open)-1].CreatedAt

		if pace > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(pace):
			}
		}
	}
	return total, errors.Join(errs...)
}

func (s *service) ReconcilePendingPayments(ctx context.Context, window time.Duration, grace time.Duration, limit int, pace time.Duration) (int, error) {
	now := s.clock.Now()
	since := now.Add(-window)
	before := now.Add(-grace)
	after := time.Time{}
	total := 0
	var errs []error
	for {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		pending, err := s.payments.ListPendingSystemWide(ctx, s.db, since, before, after, limit)
		if err != nil {
			errs = append(errs, err)
			break
		}
		if len(pending) == 0 {
			break
		}
		for i := range pending {
			if ctx.Err() != nil {
				errs = append(errs, ctx.Err())
				break
			}
			bookingID, ok, err := s.bookingForPayment(ctx, &pending[i])
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if !ok {
				s.log.Warn("pending payment has no resolvable booking",
					zap.String("payment_id", pending[i].ID.String()),
				)
				continue
			}
			total++
			if _, err := s.Reconcile(ctx, bookingID); err != nil {
				errs = append(errs, err)
			}
		}
		if len(pending) < limit {
			break
		}
		after = pending[len(pending)-1].CreatedAt

		if pace > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(pace):
			}
		}
	}
	return total, errors.Join(errs...)
}

// bookingForPayment resolves the booking a charge settles. Package payments
// resolve to the first sibling; reconciling any sibling settles them all.
func (s *service) bookingForPayment(ctx context.Context, payment *paymentdomain.Payment) (snowflake.ID, bool, error) {
	if payment.BookingID != nil {
		return *payment.BookingID, true, nil
	}
	if !payment.ForPackage() {
		return 0, false, nil
	}
	siblings, err := s.bookings.FindSiblings(ctx, s.db, *payment.PackageToken)
	if err != nil {
		return 0, false, err
	}
	if len(siblings) == 0 {
		siblings, err = s.bookings.FindSiblingsByNoteMarker(ctx, s.db, *payment.PackageToken)
		if err != nil {
			return 0, false, err
		}
	}
	if len(siblings) == 0 {
		return 0, false, nil
	}
	return siblings[0].ID, true, nil
}

// reconcileBatch runs one pass per booking, accumulating failures so a
// single bad row never stalls the rest of the batch.
func (s *service) reconcileBatch(ctx context.Context, open []bookingdomain.Booking) (int, error) {
	var errs []error
	examined := 0
	for _, item := range open {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		examined++
		if _, err := s.Reconcile(ctx, item.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return examined, errors.Join(errs...)
}

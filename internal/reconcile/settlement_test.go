package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/lumeapp/agenda/internal/booking/domain"
	paymentdomain "github.com/lumeapp/agenda/internal/payment/domain"
)

func TestReconcile_PackageSettlesEverySibling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token := "pkg-split-even"
	siblings := make([]snowflake.ID, 0, 4)
	for i := 0; i < 4; i++ {
		siblings = append(siblings, f.insertBooking(t, bookingdomain.BookingStatusScheduled, 125, &token))
	}
	_, ref := f.insertPayment(t, nil, &token, 500, paymentdomain.PaymentStatusPending)
	f.gw.set(ref, paymentdomain.GatewayStatusApproved)

	outcome, err := f.svc.Reconcile(ctx, siblings[0])
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if outcome != OutcomeConfirmed {
		t.Fatalf("expected confirmed, got %s", outcome)
	}

	var total int64
	for _, id := range siblings {
		booking := f.loadBooking(t, id)
		if booking.Status != bookingdomain.BookingStatusConfirmed {
			t.Fatalf("sibling %s not confirmed, got %s", id, booking.Status)
		}
		if booking.AmountPaid != 125 {
			t.Fatalf("sibling %s expected share 125, got %d", id, booking.AmountPaid)
		}
		total += booking.AmountPaid
	}
	if total != 500 {
		t.Fatalf("shares must sum to the amount paid, got %d", total)
	}
}

func TestReconcile_PackageRemainderGoesToFirstSibling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token := "pkg-split-odd"
	siblings := make([]snowflake.ID, 0, 3)
	for i := 0; i < 3; i++ {
		siblings = append(siblings, f.insertBooking(t, bookingdomain.BookingStatusScheduled, 40, &token))
	}
	_, ref := f.insertPayment(t, nil, &token, 100, paymentdomain.PaymentStatusPending)
	f.gw.set(ref, paymentdomain.GatewayStatusApproved)

	if _, err := f.svc.Reconcile(ctx, siblings[0]); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	shares := make([]int64, len(siblings))
	var total int64
	for i, id := range siblings {
		shares[i] = f.loadBooking(t, id).AmountPaid
		total += shares[i]
	}
	if total != 100 {
		t.Fatalf("shares must sum exactly, got %d (%v)", total, shares)
	}
	if shares[0] != 34 || shares[1] != 33 || shares[2] != 33 {
		t.Fatalf("expected remainder on the first sibling in id order, got %v", shares)
	}
}

func TestReconcile_PackageSettlementIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token := "pkg-rerun"
	first := f.insertBooking(t, bookingdomain.BookingStatusScheduled, 250, &token)
	second := f.insertBooking(t, bookingdomain.BookingStatusScheduled, 250, &token)
	_, ref := f.insertPayment(t, nil, &token, 500, paymentdomain.PaymentStatusPending)
	f.gw.set(ref, paymentdomain.GatewayStatusApproved)

	if _, err := f.svc.Reconcile(ctx, first); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	f.clock.Advance(time.Minute)
	outcome, err := f.svc.Reconcile(ctx, second)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if outcome != OutcomeAlreadyTerminal {
		t.Fatalf("expected already_terminal on re-run, got %s", outcome)
	}

	if paid := f.loadBooking(t, first).AmountPaid; paid != 250 {
		t.Fatalf("expected shares untouched on re-run, got %d", paid)
	}
	if paid := f.loadBooking(t, second).AmountPaid; paid != 250 {
		t.Fatalf("expected shares untouched on re-run, got %d", paid)
	}
}

// A sibling cancelled before settlement keeps its status; the remaining
// siblings still receive their shares.
func TestReconcile_PackageSkipsCancelledSibling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token := "pkg-cancelled"
	first := f.insertBooking(t, bookingdomain.BookingStatusScheduled, 250, &token)
	cancelled := f.insertBooking(t, bookingdomain.BookingStatusCancelled, 250, &token)
	_, ref := f.insertPayment(t, nil, &token, 500, paymentdomain.PaymentStatusPending)
	f.gw.set(ref, paymentdomain.GatewayStatusApproved)

	outcome, err := f.svc.Reconcile(ctx, first)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if outcome != OutcomeConfirmed {
		t.Fatalf("expected confirmed, got %s", outcome)
	}

	if status := f.loadBooking(t, cancelled).Status; status != bookingdomain.BookingStatusCancelled {
		t.Fatalf("cancelled sibling must stay cancelled, got %s", status)
	}
	if paid := f.loadBooking(t, first).AmountPaid; paid != 250 {
		t.Fatalf("expected open sibling share 250, got %d", paid)
	}
}

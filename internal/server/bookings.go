package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	bookingdomain "github.com/lumeapp/agenda/internal/booking/domain"
	"go.uber.org/zap"
)

type bookingResponse struct {
	ID           string  `json:"id"`
	OwnerID      string  `json:"owner_id"`
	ClientRef    string  `json:"client_ref"`
	ScheduledAt  string  `json:"scheduled_at"`
	Status       string  `json:"status"`
	AmountDue    int64   `json:"amount_due"`
	AmountPaid   int64   `json:"amount_paid"`
	PackageToken *string `json:"package_token,omitempty"`
	UpdatedAt    string  `json:"updated_at"`
}

func toBookingResponse(b *bookingdomain.Booking) bookingResponse {
	return bookingResponse{
		ID:           b.ID.String(),
		OwnerID:      b.OwnerID.String(),
		ClientRef:    b.ClientRef,
		ScheduledAt:  b.ScheduledAt.Format(time.RFC3339),
		Status:       string(b.Status),
		AmountDue:    b.AmountDue,
		AmountPaid:   b.AmountPaid,
		PackageToken: b.PackageToken,
		UpdatedAt:    b.UpdatedAt.Format(time.RFC3339),
	}
}

// GetBooking returns the booking after nudging reconciliation, so the page
// load itself is the most frequent trigger. The nudge is spaced per owner;
// most reads return without touching the gateway.
func (s *Server) GetBooking(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	booking, err := s.bookings.FindByID(ctx, s.db, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if booking.Status.Open() {
		if err := s.poller.Kick(ctx, booking.OwnerID); err != nil {
			s.log.Warn("watcher kick failed", zap.String("owner_id", booking.OwnerID.String()), zap.Error(err))
		}
		// Re-read: the kick may have just confirmed this booking.
		if fresh, err := s.bookings.FindByID(ctx, s.db, id); err == nil {
			booking = fresh
		}
	}

	c.JSON(http.StatusOK, toBookingResponse(booking))
}

func (s *Server) ListOwnerBookings(c *gin.Context) {
	ownerID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	if err := s.poller.Kick(ctx, ownerID); err != nil {
		s.log.Warn("watcher kick failed", zap.String("owner_id", ownerID.String()), zap.Error(err))
	}

	since := time.Now().UTC().Add(-s.poller.Window())
	items, err := s.bookings.ListOpenForOwner(ctx, s.db, ownerID, since, s.poller.BatchSize())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	out := make([]bookingResponse, 0, len(items))
	for i := range items {
		out = append(out, toBookingResponse(&items[i]))
	}
	c.JSON(http.StatusOK, gin.H{"bookings": out})
}

// ReconcileBooking runs one pass on demand and reports the outcome.
func (s *Server) ReconcileBooking(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	outcome, err := s.reconciler.Reconcile(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcome": string(outcome)})
}

func parseID(raw string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(raw))
}

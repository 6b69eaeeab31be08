package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// BookingStatus tracks payment progress for a scheduled slot.
type BookingStatus string

const (
	BookingStatusScheduled BookingStatus = "scheduled"
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// Open reports whether the booking can still be transitioned by reconciliation.
// Confirmed and cancelled are absorbing; transitions are forward-only.
func (s BookingStatus) Open() bool {
	return s == BookingStatusScheduled || s == BookingStatusPending
}

func (s BookingStatus) Terminal() bool {
	return s == BookingStatusConfirmed || s == BookingStatusCancelled
}

// Booking represents a scheduled service slot paid in advance.
// Amounts are integer cents. PackageToken links the siblings of a
// multi-session package settled by a single payment; Note keeps the
// legacy free-text where older rows embedded the token as "pkg:<token>".
type Booking struct {
	ID           snowflake.ID  `json:"id" gorm:"primaryKey"`
	OwnerID      snowflake.ID  `json:"owner_id" gorm:"not null;index"`
	ClientRef    string        `json:"client_ref" gorm:"type:text;not null"`
	ScheduledAt  time.Time     `json:"scheduled_at" gorm:"not null;index"`
	Status       BookingStatus `json:"status" gorm:"type:text;not null;default:'scheduled';index"`
	AmountDue    int64         `json:"amount_due" gorm:"not null"`
	AmountPaid   int64         `json:"amount_paid" gorm:"not null;default:0"`
	Note         string        `json:"note" gorm:"type:text"`
	PackageToken *string       `json:"package_token" gorm:"type:text;index"`
	CreatedAt    time.Time     `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time     `json:"updated_at" gorm:"not null"`
}

func (Booking) TableName() string { return "bookings" }

var (
	ErrBookingNotFound = errors.New("booking_not_found")
)

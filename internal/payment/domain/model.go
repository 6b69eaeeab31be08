package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// PaymentStatus is the local view of a charge; it lags the gateway until a
// reconcile pass observes the authoritative status.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusApproved  PaymentStatus = "approved"
	PaymentStatusRejected  PaymentStatus = "rejected"
	PaymentStatusCancelled PaymentStatus = "cancelled"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentStatusApproved, PaymentStatusRejected, PaymentStatusCancelled, PaymentStatusRefunded:
		return true
	default:
		return false
	}
}

// GatewayStatus is what the provider reports for a charge.
type GatewayStatus string

const (
	GatewayStatusPending   GatewayStatus = "pending"
	GatewayStatusApproved  GatewayStatus = "approved"
	GatewayStatusRejected  GatewayStatus = "rejected"
	GatewayStatusCancelled GatewayStatus = "cancelled"
	GatewayStatusRefunded  GatewayStatus = "refunded"
	GatewayStatusUnknown   GatewayStatus = "unknown"
)

// Payment is a charge issued against a booking, or against a whole package
// when PackageToken is set and BookingID is nil. Amounts are integer cents.
type Payment struct {
	ID           snowflake.ID   `json:"id" gorm:"primaryKey"`
	OwnerID      snowflake.ID   `json:"owner_id" gorm:"not null;index"`
	BookingID    *snowflake.ID  `json:"booking_id" gorm:"index"`
	PackageToken *string        `json:"package_token" gorm:"type:text;index"`
	Provider     string         `json:"provider" gorm:"type:text;not null"`
	GatewayRef   string         `json:"gateway_ref" gorm:"type:text;not null;uniqueIndex"`
	Amount       int64          `json:"amount" gorm:"not null"`
	Currency     string         `json:"currency" gorm:"type:text;not null"`
	Status       PaymentStatus  `json:"status" gorm:"type:text;not null;default:'pending';index"`
	Metadata     datatypes.JSON `json:"metadata" gorm:"type:jsonb"`
	CreatedAt    time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time      `json:"updated_at" gorm:"not null"`
	SettledAt    *time.Time     `json:"settled_at"`
}

func (Payment) TableName() string { return "payments" }

// ForPackage reports whether the payment settles a multi-session package
// rather than a single booking.
func (p *Payment) ForPackage() bool {
	return p.PackageToken != nil && *p.PackageToken != ""
}

package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)

	// FindForBooking returns the most recent payment targeting the booking,
	// or nil when none exists.
	FindForBooking(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) (*Payment, error)

	// FindForPackage returns the payment that settles the package token.
	FindForPackage(ctx context.Context, db *gorm.DB, token string) (*Payment, error)

	// ListPendingSystemWide feeds the backup sweep. It returns pending
	// payments created inside [since, before], oldest first; before excludes
	// charges young enough that checkout may still be in flight. The after
	// cursor is an exclusive lower bound on created_at for paging.
	ListPendingSystemWide(ctx context.Context, db *gorm.DB, since time.Time, before time.Time, after time.Time, limit int) ([]Payment, error)

	// MarkStatusIfPending moves a pending payment to a terminal status and
	// stamps settled_at, keeping the original stamp on replays. Returns false
	// when the row is no longer pending.
	MarkStatusIfPending(ctx context.Context, db *gorm.DB, id snowflake.ID, status PaymentStatus, now time.Time) (bool, error)
}

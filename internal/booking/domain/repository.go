package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Booking, error)

	// ListOpenForOwner returns the owner's scheduled/pending bookings created
	// within the rolling window, oldest first, capped at limit.
	ListOpenForOwner(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, since time.Time, limit int) ([]Booking, error)

	// ListOpenSystemWide feeds the sweeps. The after cursor is an exclusive
	// lower bound on created_at so a sweep pages through the open set once
	// instead of re-reading rows it already examined.
	ListOpenSystemWide(ctx context.Context, db *gorm.DB, since time.Time, after time.Time, limit int) ([]Booking, error)

	// FindSiblings returns every booking carrying the package token, id order.
	FindSiblings(ctx context.Context, db *gorm.DB, token string) ([]Booking, error)

	// FindSiblingsByNoteMarker scans the legacy "pkg:<token>" note marker for
	// rows written before package_token existed.
	FindSiblingsByNoteMarker(ctx context.Context, db *gorm.DB, token string) ([]Booking, error)

	// ConfirmIfOpen credits the booking and moves it to confirmed only while
	// its status is still scheduled or pending and the credit fits amount_due.
	// Returns false when another writer already applied the transition.
	ConfirmIfOpen(ctx context.Context, db *gorm.DB, id snowflake.ID, credit int64, now time.Time) (bool, error)

	// SettleSibling sets amount_paid to the package share and confirms the
	// sibling unless it is already confirmed. Idempotent by construction.
	SettleSibling(ctx context.Context, db *gorm.DB, id snowflake.ID, share int64, now time.Time) (bool, error)

	// ResetToPending moves a scheduled booking back to pending after a
	// rejected charge so checkout can restart. Confirmed rows are untouched.
	ResetToPending(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
}

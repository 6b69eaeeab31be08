package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lumeapp/agenda/internal/booking/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Booking, error) {
	var item domain.Booking
	err := db.WithContext(ctx).Raw(
		`SELECT id, owner_id, client_ref, scheduled_at, status, amount_due,
			amount_paid, note, package_token, created_at, updated_at
		 FROM bookings
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrBookingNotFound
	}
	return &item, nil
}

func (r *repo) ListOpenForOwner(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, since time.Time, limit int) ([]domain.Booking, error) {
	var items []domain.Booking
	err := db.WithContext(ctx).Raw(
		`SELECT id, owner_id, client_ref, scheduled_at, status, amount_due,
			amount_paid, note, package_token, created_at, updated_at
		 FROM bookings
		 WHERE owner_id = ?
		   AND status IN ('scheduled', 'pending')
		   AND created_at >= ?
		 ORDER BY created_at ASC
		 LIMIT ?`,
		ownerID,
		since,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListOpenSystemWide(ctx context.Context, db *gorm.DB, since time.Time, after time.Time, limit int) ([]domain.Booking, error) {
	var items []domain.Booking
	err := db.WithContext(ctx).Raw(
		`SELECT id, owner_id, client_ref, scheduled_at, status, amount_due,
			amount_paid, note, package_token, created_at, updated_at
		 FROM bookings
		 WHERE status IN ('scheduled', 'pending')
		   AND created_at >= ?
		   AND created_at > ?
		 ORDER BY created_at ASC
		 LIMIT ?`,
		since,
		after,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindSiblings(ctx context.Context, db *gorm.DB, token string) ([]domain.Booking, error) {
	var items []domain.Booking
	err := db.WithContext(ctx).Raw(
		`SELECT id, owner_id, client_ref, scheduled_at, status, amount_due,
			amount_paid, note, package_token, created_at, updated_at
		 FROM bookings
		 WHERE package_token = ?
		 ORDER BY id ASC`,
		token,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindSiblingsByNoteMarker(ctx context.Context, db *gorm.DB, token string) ([]domain.Booking, error) {
	var items []domain.Booking
	err := db.WithContext(ctx).Raw(
		`SELECT id, owner_id, client_ref, scheduled_at, status, amount_due,
			amount_paid, note, package_token, created_at, updated_at
		 FROM bookings
		 WHERE note LIKE ?
		 ORDER BY id ASC`,
		"%pkg:"+token+"%",
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ConfirmIfOpen(ctx context.Context, db *gorm.DB, id snowflake.ID, credit int64, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET status = 'confirmed',
			 amount_paid = amount_paid + ?,
			 updated_at = ?
		 WHERE id = ?
		   AND status IN ('scheduled', 'pending')
		   AND amount_paid + ? <= amount_due`,
		credit,
		now,
		id,
		credit,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) SettleSibling(ctx context.Context, db *gorm.DB, id snowflake.ID, share int64, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET status = 'confirmed',
			 amount_paid = ?,
			 updated_at = ?
		 WHERE id = ?
		   AND status <> 'confirmed'
		   AND status <> 'cancelled'`,
		share,
		now,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ResetToPending(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET status = 'pending',
			 updated_at = ?
		 WHERE id = ?
		   AND status = 'scheduled'`,
		now,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

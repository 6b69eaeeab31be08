package reconcile

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrNoSiblings = errors.New("no_siblings_for_token")

// settlePackage confirms every sibling carrying the token and splits the
// payment evenly across them. The division is exact in cents: each sibling
// gets amount/n and the first sibling in id order absorbs the remainder, so
// the shares always sum to the amount paid. Already-confirmed siblings keep
// their recorded share, which makes re-runs safe.
func (s *service) settlePackage(ctx context.Context, tx *gorm.DB, token string, amount int64, now time.Time) (int, error) {
	siblings, err := s.bookings.FindSiblings(ctx, tx, token)
	if err != nil {
		return 0, err
	}
	if len(siblings) == 0 {
		// Rows written before package_token existed carry the token in the
		// note field instead.
		siblings, err = s.bookings.FindSiblingsByNoteMarker(ctx, tx, token)
		if err != nil {
			return 0, err
		}
	}
	if len(siblings) == 0 {
		return 0, ErrNoSiblings
	}

	n := int64(len(siblings))
	base := amount / n
	remainder := amount - base*n

	settled := 0
	for i, sibling := range siblings {
		share := base
		if i == 0 {
			share += remainder
		}
		changed, err := s.bookings.SettleSibling(ctx, tx, sibling.ID, share, now)
		if err != nil {
			return settled, err
		}
		if changed {
			settled++
		}
	}
	if settled > 0 {
		s.log.Info("package settled",
			zap.String("package_token", token),
			zap.Int64("amount", amount),
			zap.Int("siblings", len(siblings)),
			zap.Int("settled", settled),
		)
	}
	return settled, nil
}

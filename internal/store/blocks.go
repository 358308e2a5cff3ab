package store

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Wikid82/warden/internal/models"
)

type BlockStore struct {
	db *gorm.DB
}

func (s *BlockStore) Get(ctx context.Context, ip string) (*models.BlockedIP, error) {
	var res []models.BlockedIP
	if err := s.db.WithContext(ctx).Where("ip_address = ?", ip).Limit(1).Find(&res).Error; err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, ErrNotFound
	}
	return &res[0], nil
}

// Upsert replaces any existing block for the same address.
func (s *BlockStore) Upsert(ctx context.Context, b *models.BlockedIP) error {
	b.BlockedAt = utc(b.BlockedAt)
	if b.ExpiresAt != nil {
		exp := utc(*b.ExpiresAt)
		b.ExpiresAt = &exp
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "ip_address"}},
			UpdateAll: true,
		}).
		Create(b).Error
}

func (s *BlockStore) Delete(ctx context.Context, ip string) error {
	return s.db.WithContext(ctx).Where("ip_address = ?", ip).Delete(&models.BlockedIP{}).Error
}

// DeleteExpired removes temporary blocks whose expiry is not after now.
func (s *BlockStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("permanent = ? AND (expires_at IS NULL OR expires_at <= ?)", false, utc(now)).
		Delete(&models.BlockedIP{})
	return res.RowsAffected, res.Error
}

func (s *BlockStore) List(ctx context.Context) ([]models.BlockedIP, error) {
	var res []models.BlockedIP
	if err := s.db.WithContext(ctx).Order("blocked_at desc").Find(&res).Error; err != nil {
		return nil, err
	}
	return res, nil
}

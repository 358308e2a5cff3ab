package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/Wikid82/warden/internal/models"
)

type RuleStore struct {
	db *gorm.DB
}

func (s *RuleStore) Create(ctx context.Context, r *models.SecurityRule) error {
	return s.db.WithContext(ctx).Create(r).Error
}

// List returns every rule in store order.
func (s *RuleStore) List(ctx context.Context) ([]models.SecurityRule, error) {
	var res []models.SecurityRule
	if err := s.db.WithContext(ctx).Order("id asc").Find(&res).Error; err != nil {
		return nil, err
	}
	return res, nil
}

func (s *RuleStore) ListEnabled(ctx context.Context) ([]models.SecurityRule, error) {
	var res []models.SecurityRule
	if err := s.db.WithContext(ctx).Where("enabled = ?", true).Order("id asc").Find(&res).Error; err != nil {
		return nil, err
	}
	return res, nil
}

package store

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/Wikid82/warden/internal/models"
)

type UserStore struct {
	db *gorm.DB
}

func (s *UserStore) Create(ctx context.Context, u *models.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	return s.db.WithContext(ctx).Create(u).Error
}

func (s *UserStore) GetByUUID(ctx context.Context, id string) (*models.User, error) {
	return s.first(ctx, "uuid = ?", id)
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.first(ctx, "email = ?", strings.ToLower(strings.TrimSpace(email)))
}

func (s *UserStore) first(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where(query, arg).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

type AlertProviderStore struct {
	db *gorm.DB
}

func (s *AlertProviderStore) Create(ctx context.Context, p *models.AlertProvider) error {
	return s.db.WithContext(ctx).Create(p).Error
}

func (s *AlertProviderStore) ListEnabled(ctx context.Context) ([]models.AlertProvider, error) {
	var res []models.AlertProvider
	if err := s.db.WithContext(ctx).Where("enabled = ?", true).Find(&res).Error; err != nil {
		return nil, err
	}
	return res, nil
}

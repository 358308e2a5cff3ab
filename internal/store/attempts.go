package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/Wikid82/warden/internal/models"
)

type AttemptStore struct {
	db *gorm.DB
}

func (s *AttemptStore) Insert(ctx context.Context, a *models.AccessAttempt) error {
	if !a.Timestamp.IsZero() {
		a.Timestamp = utc(a.Timestamp)
	}
	return s.db.WithContext(ctx).Create(a).Error
}

// MostRecent returns the newest attempt for actor and ip.
func (s *AttemptStore) MostRecent(ctx context.Context, actorID, ip string) (*models.AccessAttempt, error) {
	var res []models.AccessAttempt
	err := s.db.WithContext(ctx).
		Where("actor_id = ? AND ip_address = ?", actorID, ip).
		Order("timestamp desc").
		Limit(1).
		Find(&res).Error
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, ErrNotFound
	}
	return &res[0], nil
}

func (s *AttemptStore) SetSuccess(ctx context.Context, id string, success bool) error {
	return s.db.WithContext(ctx).
		Model(&models.AccessAttempt{}).
		Where("id = ?", id).
		Update("success", success).Error
}

func (s *AttemptStore) SetGeolocation(ctx context.Context, id string, g models.Geolocation) error {
	return s.db.WithContext(ctx).
		Model(&models.AccessAttempt{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"geo_latitude":  g.Latitude,
			"geo_longitude": g.Longitude,
			"geo_country":   g.Country,
			"geo_city":      g.City,
		}).Error
}

func (s *AttemptStore) Count(ctx context.Context, f AttemptFilter) (int64, error) {
	var n int64
	err := s.filter(ctx, f).Model(&models.AccessAttempt{}).Count(&n).Error
	return n, err
}

func (s *AttemptStore) DistinctIPs(ctx context.Context, f AttemptFilter) ([]string, error) {
	var ips []string
	err := s.filter(ctx, f).
		Model(&models.AccessAttempt{}).
		Distinct("ip_address").
		Order("ip_address").
		Pluck("ip_address", &ips).Error
	return ips, err
}

func (s *AttemptStore) List(ctx context.Context, f AttemptFilter, limit int) ([]models.AccessAttempt, error) {
	var res []models.AccessAttempt
	q := s.filter(ctx, f).Order("timestamp desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&res).Error; err != nil {
		return nil, err
	}
	return res, nil
}

func (s *AttemptStore) filter(ctx context.Context, f AttemptFilter) *gorm.DB {
	q := s.db.WithContext(ctx)
	if f.ActorID != "" {
		q = q.Where("actor_id = ?", f.ActorID)
	}
	if f.IPAddress != "" {
		q = q.Where("ip_address = ?", f.IPAddress)
	}
	if !f.Since.IsZero() {
		q = q.Where("timestamp > ?", utc(f.Since))
	}
	if !f.Until.IsZero() {
		q = q.Where("timestamp <= ?", utc(f.Until))
	}
	if f.Success != nil {
		q = q.Where("success = ?", *f.Success)
	}
	if f.ExcludeID != "" {
		q = q.Where("id <> ?", f.ExcludeID)
	}
	return q
}

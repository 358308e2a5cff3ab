package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/Wikid82/warden/internal/models"
)

type EventStore struct {
	db *gorm.DB
}

func (s *EventStore) Insert(ctx context.Context, e *models.SecurityEvent) error {
	if !e.Timestamp.IsZero() {
		e.Timestamp = utc(e.Timestamp)
	}
	return s.db.WithContext(ctx).Create(e).Error
}

func (s *EventStore) List(ctx context.Context, f EventFilter) ([]models.SecurityEvent, error) {
	q := s.db.WithContext(ctx).Order("timestamp desc")
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Severity != "" {
		q = q.Where("severity = ?", f.Severity)
	}
	if f.ActorID != "" {
		q = q.Where("actor_id = ?", f.ActorID)
	}
	if !f.Since.IsZero() {
		q = q.Where("timestamp > ?", utc(f.Since))
	}
	if f.Resolved != nil {
		q = q.Where("resolved = ?", *f.Resolved)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var res []models.SecurityEvent
	if err := q.Find(&res).Error; err != nil {
		return nil, err
	}
	return res, nil
}

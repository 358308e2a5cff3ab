// Package store is the record store behind the access-security engine.
// Each collection is exposed through a small repository interface so the
// services can be wired against fakes or another backend.
package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/Wikid82/warden/internal/models"
)

// ErrNotFound is returned by point lookups that match nothing.
var ErrNotFound = errors.New("record not found")

// AttemptFilter selects access attempts. Since is exclusive and Until is
// inclusive; zero times leave that side unbounded.
type AttemptFilter struct {
	ActorID   string
	IPAddress string
	Since     time.Time
	Until     time.Time
	Success   *bool
	ExcludeID string
}

// EventFilter selects security events, newest first.
type EventFilter struct {
	Type     models.EventType
	Severity models.Severity
	ActorID  string
	Since    time.Time
	Resolved *bool
	Limit    int
}

type AttemptRepository interface {
	Insert(ctx context.Context, a *models.AccessAttempt) error
	MostRecent(ctx context.Context, actorID, ip string) (*models.AccessAttempt, error)
	SetSuccess(ctx context.Context, id string, success bool) error
	SetGeolocation(ctx context.Context, id string, g models.Geolocation) error
	Count(ctx context.Context, f AttemptFilter) (int64, error)
	DistinctIPs(ctx context.Context, f AttemptFilter) ([]string, error)
	List(ctx context.Context, f AttemptFilter, limit int) ([]models.AccessAttempt, error)
}

type EventRepository interface {
	Insert(ctx context.Context, e *models.SecurityEvent) error
	List(ctx context.Context, f EventFilter) ([]models.SecurityEvent, error)
}

type RuleRepository interface {
	Create(ctx context.Context, r *models.SecurityRule) error
	List(ctx context.Context) ([]models.SecurityRule, error)
	ListEnabled(ctx context.Context) ([]models.SecurityRule, error)
}

type BlockRepository interface {
	Get(ctx context.Context, ip string) (*models.BlockedIP, error)
	Upsert(ctx context.Context, b *models.BlockedIP) error
	Delete(ctx context.Context, ip string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	List(ctx context.Context) ([]models.BlockedIP, error)
}

type UserRepository interface {
	Create(ctx context.Context, u *models.User) error
	GetByUUID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

type AlertProviderRepository interface {
	Create(ctx context.Context, p *models.AlertProvider) error
	ListEnabled(ctx context.Context) ([]models.AlertProvider, error)
}

// Repositories bundles every collection of one backend.
type Repositories struct {
	Attempts       AttemptRepository
	Events         EventRepository
	Rules          RuleRepository
	Blocks         BlockRepository
	Users          UserRepository
	AlertProviders AlertProviderRepository
}

// NewGorm returns gorm-backed repositories sharing db.
func NewGorm(db *gorm.DB) Repositories {
	return Repositories{
		Attempts:       &AttemptStore{db: db},
		Events:         &EventStore{db: db},
		Rules:          &RuleStore{db: db},
		Blocks:         &BlockStore{db: db},
		Users:          &UserStore{db: db},
		AlertProviders: &AlertProviderStore{db: db},
	}
}

// utc normalises times before they reach sqlite, which compares the stored
// text representation lexically.
func utc(t time.Time) time.Time {
	return t.UTC()
}

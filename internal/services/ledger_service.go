package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Wikid82/warden/internal/logger"
	"github.com/Wikid82/warden/internal/metrics"
	"github.com/Wikid82/warden/internal/models"
	"github.com/Wikid82/warden/internal/store"
	"github.com/Wikid82/warden/internal/util"
)

// AttemptInput describes an access attempt about to be authorized.
type AttemptInput struct {
	ActorID     string
	IPAddress   string
	UserAgent   string
	Resource    string
	Action      string
	Geolocation *models.Geolocation
}

// LedgerService is the append-only record of access attempts and security events.
type LedgerService struct {
	attempts store.AttemptRepository
	events   store.EventRepository
	alerter  Alerter
	now      clock
}

// NewLedgerService returns a ledger writing to the given repositories. A nil
// alerter disables alert dispatch.
func NewLedgerService(attempts store.AttemptRepository, events store.EventRepository, alerter Alerter) *LedgerService {
	return &LedgerService{
		attempts: attempts,
		events:   events,
		alerter:  alerter,
		now:      time.Now,
	}
}

// SetClock overrides the time source.
func (s *LedgerService) SetClock(now func() time.Time) { s.now = now }

// LogAttempt appends a not-yet-successful attempt and returns its id.
func (s *LedgerService) LogAttempt(ctx context.Context, in AttemptInput) (string, error) {
	a := &models.AccessAttempt{
		ActorID:     in.ActorID,
		IPAddress:   in.IPAddress,
		UserAgent:   in.UserAgent,
		Timestamp:   s.now(),
		Resource:    in.Resource,
		Action:      in.Action,
		Geolocation: in.Geolocation,
	}
	if err := s.attempts.Insert(ctx, a); err != nil {
		return "", fmt.Errorf("log access attempt: %w", err)
	}
	return a.ID, nil
}

// AttachGeolocation records the resolved location on an attempt logged
// before the lookup ran.
func (s *LedgerService) AttachGeolocation(ctx context.Context, attemptID string, g *models.Geolocation) error {
	if g == nil || attemptID == "" {
		return nil
	}
	if err := s.attempts.SetGeolocation(ctx, attemptID, *g); err != nil {
		return fmt.Errorf("attach geolocation: %w", err)
	}
	return nil
}

// UpdateMostRecentAttempt sets Success on the newest attempt for actor and ip.
// It is a no-op when there is no such attempt.
func (s *LedgerService) UpdateMostRecentAttempt(ctx context.Context, actorID, ip string, success bool) error {
	a, err := s.attempts.MostRecent(ctx, actorID, ip)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("find latest attempt: %w", err)
	}
	if err := s.attempts.SetSuccess(ctx, a.ID, success); err != nil {
		return fmt.Errorf("update attempt outcome: %w", err)
	}
	return nil
}

// LogEvent stores e and, for high and critical events, hands it to the
// alerter. Alert failures are logged and never returned.
func (s *LedgerService) LogEvent(ctx context.Context, e *models.SecurityEvent) error {
	if e == nil {
		return nil
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	if err := s.events.Insert(ctx, e); err != nil {
		return fmt.Errorf("log security event: %w", err)
	}
	metrics.IncSecurityEvent(string(e.Type), string(e.Severity))

	entry := logger.WithFields(logrus.Fields{
		"event_id": e.ID,
		"type":     e.Type,
		"severity": e.Severity,
		"actor":    util.SanitizeForLog(e.ActorID),
		"ip":       util.SanitizeForLog(e.IPAddress),
	})
	if !e.RequiresAlert() {
		entry.Info("security event recorded")
		return nil
	}
	entry.Warn("security event recorded")

	if s.alerter != nil {
		if err := s.alerter.Send(ctx, e); err != nil {
			entry.WithError(err).Warn("alert dispatch failed")
		}
	}
	return nil
}

// RecordFailedLogin logs a failed credential check as both an attempt and a
// low severity failed_authentication event so it feeds brute-force detection.
func (s *LedgerService) RecordFailedLogin(ctx context.Context, email, ip, userAgent string) error {
	if _, err := s.LogAttempt(ctx, AttemptInput{
		IPAddress: ip,
		UserAgent: userAgent,
		Resource:  "auth",
		Action:    "login",
	}); err != nil {
		return err
	}
	e := &models.SecurityEvent{
		Type:      models.EventFailedAuthentication,
		Severity:  models.SeverityLow,
		IPAddress: ip,
		UserAgent: userAgent,
	}
	if err := e.SetDetails(models.FailedLoginDetails{Email: email}); err != nil {
		return err
	}
	return s.LogEvent(ctx, e)
}

// CountAttempts counts attempts matching f.
func (s *LedgerService) CountAttempts(ctx context.Context, f store.AttemptFilter) (int64, error) {
	n, err := s.attempts.Count(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return n, nil
}

// DistinctIPsForActor returns the addresses actorID used successfully after since.
func (s *LedgerService) DistinctIPsForActor(ctx context.Context, actorID string, since time.Time) ([]string, error) {
	ok := true
	ips, err := s.attempts.DistinctIPs(ctx, store.AttemptFilter{ActorID: actorID, Since: since, Success: &ok})
	if err != nil {
		return nil, fmt.Errorf("list actor ips: %w", err)
	}
	return ips, nil
}

// ListEvents returns recent security events, newest first.
func (s *LedgerService) ListEvents(ctx context.Context, f store.EventFilter) ([]models.SecurityEvent, error) {
	return s.events.List(ctx, f)
}

// ListAttempts returns recent access attempts, newest first.
func (s *LedgerService) ListAttempts(ctx context.Context, f store.AttemptFilter, limit int) ([]models.AccessAttempt, error) {
	return s.attempts.List(ctx, f, limit)
}

package models

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type EventType string

const (
	EventSuspiciousActivity   EventType = "suspicious_activity"
	EventFailedAuthentication EventType = "failed_authentication"
	EventDataBreach           EventType = "data_breach"
	EventUnauthorizedAccess   EventType = "unauthorized_access"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities; unknown values rank below low.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// AtLeast reports whether s is as severe as min.
func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() >= min.Rank()
}

// SecurityEvent records a detected violation or anomaly. Resolved is only
// changed by remediation tooling outside the engine.
type SecurityEvent struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Type      EventType `json:"type" gorm:"index"`
	Severity  Severity  `json:"severity" gorm:"index"`
	Timestamp time.Time `json:"timestamp" gorm:"index"`
	ActorID   string    `json:"actor_id,omitempty" gorm:"index"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	Details   string    `json:"details" gorm:"type:text"`
	Resolved  bool      `json:"resolved"`
}

func (e *SecurityEvent) BeforeCreate(tx *gorm.DB) (err error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return
}

// RequiresAlert is true for high and critical events.
func (e *SecurityEvent) RequiresAlert() bool {
	return e.Severity.AtLeast(SeverityHigh)
}

// EventDetails is implemented by the typed payloads stored in Details.
type EventDetails interface {
	Trigger() string
}

// SetDetails serialises a typed payload into Details.
func (e *SecurityEvent) SetDetails(d EventDetails) error {
	b, err := json.Marshal(struct {
		Trigger string       `json:"trigger"`
		Data    EventDetails `json:"data"`
	}{d.Trigger(), d})
	if err != nil {
		return err
	}
	e.Details = string(b)
	return nil
}

// RuleViolationDetails is attached to events raised by rule log/alert actions.
type RuleViolationDetails struct {
	RuleID   uint     `json:"rule_id"`
	RuleName string   `json:"rule_name"`
	RuleType RuleType `json:"rule_type"`
	Reason   string   `json:"reason"`
	Resource string   `json:"resource"`
	Action   string   `json:"action"`
}

func (RuleViolationDetails) Trigger() string { return "rule_violation" }

type BlockedAccessDetails struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

func (BlockedAccessDetails) Trigger() string { return "blocked_ip" }

type PermissionDeniedDetails struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
	Role     string `json:"role,omitempty"`
}

func (PermissionDeniedDetails) Trigger() string { return "permission_denied" }

type MultiIPDetails struct {
	IPs       []string `json:"ips"`
	Window    string   `json:"window"`
	Threshold int      `json:"threshold"`
}

func (MultiIPDetails) Trigger() string { return "multiple_ips" }

type BruteForceDetails struct {
	FailedAttempts int64  `json:"failed_attempts"`
	Window         string `json:"window"`
	BlockMinutes   int    `json:"block_minutes"`
}

func (BruteForceDetails) Trigger() string { return "brute_force" }

type FailedLoginDetails struct {
	Email string `json:"email"`
}

func (FailedLoginDetails) Trigger() string { return "failed_login" }

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Wikid82/warden/internal/logger"
	"github.com/Wikid82/warden/internal/metrics"
	"github.com/Wikid82/warden/internal/models"
	"github.com/Wikid82/warden/internal/store"
)

var (
	ErrUnknownRuleType       = errors.New("unknown rule type")
	ErrInvalidRuleParameters = errors.New("invalid rule parameters")
)

// DefaultRuleBlockMinutes is how long a block action bans an address.
const DefaultRuleBlockMinutes = 60

// RuleEngine evaluates the enabled security rules against one request and
// performs their actions. Misconfigured rules are skipped so the engine
// stays permissive for rules it cannot interpret.
type RuleEngine struct {
	rules        store.RuleRepository
	ledger       *LedgerService
	blocks       *BlockService
	location     *time.Location
	blockMinutes int
	now          clock
}

func NewRuleEngine(rules store.RuleRepository, ledger *LedgerService, blocks *BlockService) *RuleEngine {
	return &RuleEngine{
		rules:        rules,
		ledger:       ledger,
		blocks:       blocks,
		location:     time.Local,
		blockMinutes: DefaultRuleBlockMinutes,
		now:          time.Now,
	}
}

// SetLocation sets the zone used for time_restriction hours.
func (e *RuleEngine) SetLocation(loc *time.Location) {
	if loc != nil {
		e.location = loc
	}
}

// SetBlockMinutes sets the ban duration applied by block actions.
func (e *RuleEngine) SetBlockMinutes(minutes int) {
	if minutes > 0 {
		e.blockMinutes = minutes
	}
}

// SetClock overrides the time source.
func (e *RuleEngine) SetClock(now func() time.Time) { e.now = now }

// Evaluate runs every enabled rule in storage order. All violated rules
// perform their actions; the first violated rule carrying a block action
// supplies the denial reason.
func (e *RuleEngine) Evaluate(ctx context.Context, rc RequestContext) (Decision, error) {
	rules, err := e.rules.ListEnabled(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("load security rules: %w", err)
	}

	denyReason := ""
	for i := range rules {
		rule := &rules[i]
		log := logger.WithFields(logrus.Fields{"rule_id": rule.ID, "rule": rule.Name, "rule_type": rule.Type})

		violation, err := e.check(ctx, rule, rc)
		if err != nil {
			if errors.Is(err, ErrUnknownRuleType) || errors.Is(err, ErrInvalidRuleParameters) {
				log.WithError(err).Warn("skipping misconfigured security rule")
				continue
			}
			return Decision{}, err
		}
		if violation == "" {
			continue
		}

		metrics.IncRuleViolation(string(rule.Type))
		log.WithField("violation", violation).Info("security rule violated")

		blocking, err := e.applyActions(ctx, rule, rc, violation)
		if err != nil {
			return Decision{}, err
		}
		if blocking && denyReason == "" {
			denyReason = "Security rule violation: " + rule.Name
		}
	}

	if denyReason != "" {
		return Decision{Allowed: false, Reason: denyReason}, nil
	}
	return Decision{Allowed: true}, nil
}

// check returns a description of the violation, or "" when the rule holds.
func (e *RuleEngine) check(ctx context.Context, rule *models.SecurityRule, rc RequestContext) (string, error) {
	switch rule.Type {
	case models.RuleRateLimit:
		var p models.RateLimitParams
		if err := rule.DecodeParameters(&p); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidRuleParameters, err)
		}
		return e.checkRateLimit(ctx, p, rc)
	case models.RuleGeoRestriction:
		var p models.GeoRestrictionParams
		if err := rule.DecodeParameters(&p); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidRuleParameters, err)
		}
		return checkGeoRestriction(p, rc), nil
	case models.RuleTimeRestriction:
		var p models.TimeRestrictionParams
		if err := rule.DecodeParameters(&p); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidRuleParameters, err)
		}
		return checkTimeRestriction(p, e.now().In(e.location)), nil
	case models.RuleDeviceRestriction:
		var p models.DeviceRestrictionParams
		if err := rule.DecodeParameters(&p); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidRuleParameters, err)
		}
		return checkDeviceRestriction(p, rc.UserAgent), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRuleType, rule.Type)
	}
}

// checkRateLimit counts the attempts already recorded for the key inside
// (now-window, now]. The attempt being evaluated is not counted, so the
// maxRequests-th request in a window is still allowed.
func (e *RuleEngine) checkRateLimit(ctx context.Context, p models.RateLimitParams, rc RequestContext) (string, error) {
	if p.WindowMs <= 0 || p.MaxRequests < 0 {
		return "", fmt.Errorf("%w: windowMs and maxRequests must be positive", ErrInvalidRuleParameters)
	}

	now := e.now()
	window := time.Duration(p.WindowMs) * time.Millisecond
	f := store.AttemptFilter{
		Since:     now.Add(-window),
		Until:     now,
		ExcludeID: rc.AttemptID,
	}
	switch p.KeyType {
	case models.RateLimitByUser:
		// An empty actor would match every actor's attempts.
		if rc.ActorID == "" {
			return "", nil
		}
		f.ActorID = rc.ActorID
	case models.RateLimitByIP:
		f.IPAddress = rc.IPAddress
	default:
		return "", fmt.Errorf("%w: keyType %q", ErrInvalidRuleParameters, p.KeyType)
	}

	n, err := e.ledger.CountAttempts(ctx, f)
	if err != nil {
		return "", err
	}
	if n >= int64(p.MaxRequests) {
		return fmt.Sprintf("%d requests by %s in %s (max %d)", n, p.KeyType, window, p.MaxRequests), nil
	}
	return "", nil
}

func checkGeoRestriction(p models.GeoRestrictionParams, rc RequestContext) string {
	country := rc.Country()
	if len(p.AllowedCountries) > 0 && !containsFold(p.AllowedCountries, country) {
		return fmt.Sprintf("country %q not in allowed list", country)
	}
	if len(p.BlockedCountries) > 0 && country != "" && containsFold(p.BlockedCountries, country) {
		return fmt.Sprintf("country %q is blocked", country)
	}
	return ""
}

// checkTimeRestriction treats an empty hour list as unrestricted.
func checkTimeRestriction(p models.TimeRestrictionParams, now time.Time) string {
	if len(p.AllowedHours) == 0 {
		return ""
	}
	hour := now.Hour()
	for _, h := range p.AllowedHours {
		if h == hour {
			return ""
		}
	}
	return fmt.Sprintf("hour %d outside allowed hours", hour)
}

func checkDeviceRestriction(p models.DeviceRestrictionParams, userAgent string) string {
	ua := strings.ToLower(userAgent)
	for _, d := range p.BlockedDevices {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		if strings.Contains(ua, strings.ToLower(d)) {
			return fmt.Sprintf("user agent matches blocked device %q", d)
		}
	}
	return ""
}

// applyActions performs rule's actions in order and reports whether any of
// them denies the request.
func (e *RuleEngine) applyActions(ctx context.Context, rule *models.SecurityRule, rc RequestContext, violation string) (bool, error) {
	actions, err := rule.ActionList()
	if err != nil {
		logger.WithFields(logrus.Fields{"rule_id": rule.ID}).WithError(err).Warn("unreadable rule actions")
		return false, nil
	}

	blocking := false
	for _, action := range actions {
		switch action {
		case models.ActionLog:
			if err := e.logViolation(ctx, rule, rc, violation, models.SeverityMedium); err != nil {
				return false, err
			}
		case models.ActionAlert:
			if err := e.logViolation(ctx, rule, rc, violation, models.SeverityHigh); err != nil {
				return false, err
			}
		case models.ActionBlock:
			blocking = true
			if !identifiableIP(rc.IPAddress) {
				continue
			}
			if err := e.blocks.Block(ctx, rc.IPAddress, e.blockMinutes, "Security rule violation: "+rule.Name); err != nil {
				return false, err
			}
			metrics.IncIPBlock("rule")
		default:
			logger.WithFields(logrus.Fields{"rule_id": rule.ID, "action": action}).Warn("ignoring unknown rule action")
		}
	}
	return blocking, nil
}

func (e *RuleEngine) logViolation(ctx context.Context, rule *models.SecurityRule, rc RequestContext, violation string, severity models.Severity) error {
	ev := &models.SecurityEvent{
		Type:      models.EventSuspiciousActivity,
		Severity:  severity,
		ActorID:   rc.ActorID,
		IPAddress: rc.IPAddress,
		UserAgent: rc.UserAgent,
	}
	if err := ev.SetDetails(models.RuleViolationDetails{
		RuleID:   rule.ID,
		RuleName: rule.Name,
		RuleType: rule.Type,
		Reason:   violation,
		Resource: rc.Resource,
		Action:   rc.Action,
	}); err != nil {
		return err
	}
	return e.ledger.LogEvent(ctx, ev)
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(strings.TrimSpace(item), v) {
			return true
		}
	}
	return false
}

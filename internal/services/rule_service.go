package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/Wikid82/warden/internal/models"
	"github.com/Wikid82/warden/internal/store"
)

var (
	ErrInvalidRuleName    = errors.New("rule name is required")
	ErrInvalidRuleAction  = errors.New("invalid rule action")
	ErrInvalidCountryCode = errors.New("invalid country code")
)

var countryCodePattern = regexp.MustCompile(`^[A-Z]{2}$`)

// SecurityRuleService validates and stores administrator-provisioned rules.
// The engine itself tolerates malformed rows; this is the gate that keeps
// them out in the first place.
type SecurityRuleService struct {
	rules store.RuleRepository
}

func NewSecurityRuleService(rules store.RuleRepository) *SecurityRuleService {
	return &SecurityRuleService{rules: rules}
}

// Create validates r and stores it.
func (s *SecurityRuleService) Create(ctx context.Context, r *models.SecurityRule) error {
	if err := ValidateRule(r); err != nil {
		return err
	}
	return s.rules.Create(ctx, r)
}

// List returns every rule, enabled or not, in evaluation order.
func (s *SecurityRuleService) List(ctx context.Context) ([]models.SecurityRule, error) {
	return s.rules.List(ctx)
}

// ValidateRule checks the name, parameters and actions of r.
func ValidateRule(r *models.SecurityRule) error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrInvalidRuleName
	}

	switch r.Type {
	case models.RuleRateLimit:
		var p models.RateLimitParams
		if err := r.DecodeParameters(&p); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRuleParameters, err)
		}
		if p.WindowMs <= 0 || p.MaxRequests < 0 {
			return fmt.Errorf("%w: windowMs must be positive and maxRequests non-negative", ErrInvalidRuleParameters)
		}
		if p.KeyType != models.RateLimitByUser && p.KeyType != models.RateLimitByIP {
			return fmt.Errorf("%w: keyType must be user or ip", ErrInvalidRuleParameters)
		}
	case models.RuleGeoRestriction:
		var p models.GeoRestrictionParams
		if err := r.DecodeParameters(&p); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRuleParameters, err)
		}
		for _, code := range append(append([]string{}, p.AllowedCountries...), p.BlockedCountries...) {
			if !countryCodePattern.MatchString(strings.ToUpper(strings.TrimSpace(code))) {
				return fmt.Errorf("%w: %s", ErrInvalidCountryCode, code)
			}
		}
	case models.RuleTimeRestriction:
		var p models.TimeRestrictionParams
		if err := r.DecodeParameters(&p); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRuleParameters, err)
		}
		for _, h := range p.AllowedHours {
			if h < 0 || h > 23 {
				return fmt.Errorf("%w: hour %d out of range", ErrInvalidRuleParameters, h)
			}
		}
	case models.RuleDeviceRestriction:
		var p models.DeviceRestrictionParams
		if err := r.DecodeParameters(&p); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRuleParameters, err)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownRuleType, r.Type)
	}

	actions, err := r.ActionList()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRuleAction, err)
	}
	for _, a := range actions {
		switch a {
		case models.ActionBlock, models.ActionAlert, models.ActionLog:
		default:
			return fmt.Errorf("%w: %q", ErrInvalidRuleAction, a)
		}
	}
	return nil
}

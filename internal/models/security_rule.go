package models

import (
	"github.com/goccy/go-json"
)

// RuleType is the closed set of rule kinds the engine evaluates.
type RuleType string

const (
	RuleRateLimit         RuleType = "rate_limit"
	RuleGeoRestriction    RuleType = "geo_restriction"
	RuleTimeRestriction   RuleType = "time_restriction"
	RuleDeviceRestriction RuleType = "device_restriction"
)

type RuleAction string

const (
	ActionBlock RuleAction = "block"
	ActionAlert RuleAction = "alert"
	ActionLog   RuleAction = "log"
)

// SecurityRule is provisioned by administrators. Parameters holds the JSON
// form of the parameter struct matching Type; Actions is a JSON array.
type SecurityRule struct {
	ID         uint     `json:"id" gorm:"primaryKey"`
	Name       string   `json:"name"`
	Type       RuleType `json:"type"`
	Enabled    bool     `json:"enabled" gorm:"index"`
	Parameters string   `json:"parameters" gorm:"type:text"`
	Actions    string   `json:"actions" gorm:"type:text"`
}

type RateLimitKey string

const (
	RateLimitByUser RateLimitKey = "user"
	RateLimitByIP   RateLimitKey = "ip"
)

type RateLimitParams struct {
	WindowMs    int64        `json:"windowMs"`
	MaxRequests int          `json:"maxRequests"`
	KeyType     RateLimitKey `json:"keyType"`
}

type GeoRestrictionParams struct {
	AllowedCountries []string `json:"allowedCountries,omitempty"`
	BlockedCountries []string `json:"blockedCountries,omitempty"`
}

type TimeRestrictionParams struct {
	AllowedHours []int `json:"allowedHours"`
}

type DeviceRestrictionParams struct {
	BlockedDevices []string `json:"blockedDevices"`
}

// SetParameters stores p as the rule's JSON parameters.
func (r *SecurityRule) SetParameters(p interface{}) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	r.Parameters = string(b)
	return nil
}

// DecodeParameters unmarshals the stored parameters into dst.
func (r *SecurityRule) DecodeParameters(dst interface{}) error {
	if r.Parameters == "" {
		return json.Unmarshal([]byte("{}"), dst)
	}
	return json.Unmarshal([]byte(r.Parameters), dst)
}

// SetActions stores the ordered action list.
func (r *SecurityRule) SetActions(actions ...RuleAction) error {
	b, err := json.Marshal(actions)
	if err != nil {
		return err
	}
	r.Actions = string(b)
	return nil
}

// ActionList returns the ordered action list; an empty column means none.
func (r *SecurityRule) ActionList() ([]RuleAction, error) {
	if r.Actions == "" {
		return nil, nil
	}
	var actions []RuleAction
	if err := json.Unmarshal([]byte(r.Actions), &actions); err != nil {
		return nil, err
	}
	return actions, nil
}

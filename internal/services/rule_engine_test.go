package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wikid82/warden/internal/models"
)

func TestRuleEngine_NoRulesAllows(t *testing.T) {
	f := newEngineFixture(t)
	rc := f.attempt(t, "u1", "203.0.113.1", "ua")

	d, err := f.rules.Evaluate(context.Background(), rc)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Empty(t, d.Reason)
}

func TestRuleEngine_RateLimitBoundary(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.addRule(t, "Per-user burst", models.RuleRateLimit,
		models.RateLimitParams{WindowMs: 60000, MaxRequests: 5, KeyType: models.RateLimitByUser},
		models.ActionBlock)

	for i := 0; i < 5; i++ {
		rc := f.attempt(t, "u1", "203.0.113.1", "ua")
		d, err := f.rules.Evaluate(ctx, rc)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d should pass", i+1)
		f.clock.Advance(time.Second)
	}

	rc := f.attempt(t, "u1", "203.0.113.1", "ua")
	d, err := f.rules.Evaluate(ctx, rc)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "Security rule violation: Per-user burst", d.Reason)

	blocked, err := f.blocks.IsBlocked(ctx, "203.0.113.1")
	require.NoError(t, err)
	assert.True(t, blocked)

	// Other actors are counted separately.
	other := f.attempt(t, "u2", "198.51.100.1", "ua")
	d, err = f.rules.Evaluate(ctx, other)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestRuleEngine_UserRateLimitIgnoresAnonymousActor(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.addRule(t, "per-user", models.RuleRateLimit,
		models.RateLimitParams{WindowMs: 60000, MaxRequests: 3, KeyType: models.RateLimitByUser},
		models.ActionBlock)

	for _, actor := range []string{"u1", "u2", "u3"} {
		f.attempt(t, actor, "203.0.113.9", "ua")
	}
	require.NoError(t, f.ledger.RecordFailedLogin(ctx, "who@example.com", "203.0.113.9", "ua"))

	d, err := f.rules.Evaluate(ctx, f.attempt(t, "", "198.51.100.7", "ua"))
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	blocked, err := f.blocks.IsBlocked(ctx, "198.51.100.7")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestRuleEngine_RateLimitWindowSlides(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.addRule(t, "Per-ip", models.RuleRateLimit,
		models.RateLimitParams{WindowMs: 60000, MaxRequests: 2, KeyType: models.RateLimitByIP},
		models.ActionLog)

	f.attempt(t, "u1", "203.0.113.1", "ua")
	f.attempt(t, "u2", "203.0.113.1", "ua")
	f.clock.Advance(61 * time.Second)

	rc := f.attempt(t, "u3", "203.0.113.1", "ua")
	d, err := f.rules.Evaluate(ctx, rc)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Empty(t, f.events(t))
}

func TestRuleEngine_ZeroMaxRequestsAlwaysViolates(t *testing.T) {
	f := newEngineFixture(t)
	f.addRule(t, "Closed", models.RuleRateLimit,
		models.RateLimitParams{WindowMs: 1000, MaxRequests: 0, KeyType: models.RateLimitByUser},
		models.ActionBlock)

	d, err := f.rules.Evaluate(context.Background(), f.attempt(t, "u1", "203.0.113.1", "ua"))
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestRuleEngine_GeoRestriction(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.addRule(t, "Allowed countries", models.RuleGeoRestriction,
		models.GeoRestrictionParams{AllowedCountries: []string{"US", "CA"}},
		models.ActionBlock)
	f.addRule(t, "Denied countries", models.RuleGeoRestriction,
		models.GeoRestrictionParams{BlockedCountries: []string{"us"}},
		models.ActionLog)

	rc := f.attempt(t, "u1", "203.0.113.1", "ua")
	rc.Geolocation = &models.Geolocation{Country: "CA"}
	d, err := f.rules.Evaluate(ctx, rc)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	rc = f.attempt(t, "u1", "203.0.113.2", "ua")
	rc.Geolocation = &models.Geolocation{Country: "FR"}
	d, err = f.rules.Evaluate(ctx, rc)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "Security rule violation: Allowed countries", d.Reason)

	// Blocked list match only logs.
	rc = f.attempt(t, "u1", "203.0.113.3", "ua")
	rc.Geolocation = &models.Geolocation{Country: "US"}
	d, err = f.rules.Evaluate(ctx, rc)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	events := f.events(t)
	require.Len(t, events, 1)
	assert.Equal(t, models.SeverityMedium, events[0].Severity)
}

func TestRuleEngine_TimeRestrictionUsesLocation(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.addRule(t, "Office hours", models.RuleTimeRestriction,
		models.TimeRestrictionParams{AllowedHours: []int{8, 9, 10, 11, 12, 13, 14, 15, 16, 17}},
		models.ActionBlock)

	// 10:00 UTC
	d, err := f.rules.Evaluate(ctx, f.attempt(t, "u1", "203.0.113.1", "ua"))
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	// 10:00 UTC is 19:00 in Tokyo.
	f.rules.SetLocation(time.FixedZone("JST", 9*3600))
	d, err = f.rules.Evaluate(ctx, f.attempt(t, "u1", "203.0.113.2", "ua"))
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestRuleEngine_EmptyAllowedHoursIsUnrestricted(t *testing.T) {
	f := newEngineFixture(t)
	f.addRule(t, "Empty", models.RuleTimeRestriction, models.TimeRestrictionParams{}, models.ActionBlock)

	d, err := f.rules.Evaluate(context.Background(), f.attempt(t, "u1", "203.0.113.1", "ua"))
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestRuleEngine_DeviceRestriction(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.addRule(t, "No scripts", models.RuleDeviceRestriction,
		models.DeviceRestrictionParams{BlockedDevices: []string{"Python-Requests", ""}},
		models.ActionBlock)

	d, err := f.rules.Evaluate(ctx, f.attempt(t, "u1", "203.0.113.1", "Mozilla/5.0"))
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = f.rules.Evaluate(ctx, f.attempt(t, "u1", "203.0.113.1", "python-requests/2.31"))
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestRuleEngine_AlertOnlyRuleDoesNotDeny(t *testing.T) {
	f := newEngineFixture(t)
	f.addRule(t, "Watch curl", models.RuleDeviceRestriction,
		models.DeviceRestrictionParams{BlockedDevices: []string{"curl"}},
		models.ActionAlert)

	d, err := f.rules.Evaluate(context.Background(), f.attempt(t, "u1", "203.0.113.1", "curl/8.0"))
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	events := f.events(t)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventSuspiciousActivity, events[0].Type)
	assert.Equal(t, models.SeverityHigh, events[0].Severity)
	assert.Contains(t, events[0].Details, "Watch curl")
	assert.Equal(t, 1, f.alerter.count())
}

func TestRuleEngine_AllViolatedRulesActFirstBlockReasonWins(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.addRule(t, "Log curl", models.RuleDeviceRestriction,
		models.DeviceRestrictionParams{BlockedDevices: []string{"curl"}}, models.ActionLog)
	f.addRule(t, "Block curl", models.RuleDeviceRestriction,
		models.DeviceRestrictionParams{BlockedDevices: []string{"curl"}}, models.ActionBlock, models.ActionAlert)
	f.addRule(t, "Block curl again", models.RuleDeviceRestriction,
		models.DeviceRestrictionParams{BlockedDevices: []string{"curl"}}, models.ActionBlock)

	d, err := f.rules.Evaluate(ctx, f.attempt(t, "u1", "203.0.113.1", "curl/8.0"))
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "Security rule violation: Block curl", d.Reason)
	assert.Len(t, f.events(t), 2)
}

func TestRuleEngine_BlockSkipsUnknownIP(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.addRule(t, "Block curl", models.RuleDeviceRestriction,
		models.DeviceRestrictionParams{BlockedDevices: []string{"curl"}}, models.ActionBlock)

	d, err := f.rules.Evaluate(ctx, f.attempt(t, "u1", UnknownIP, "curl/8.0"))
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	list, err := f.blocks.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRuleEngine_SkipsMisconfiguredRules(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	require.NoError(t, f.repos.Rules.Create(ctx, &models.SecurityRule{
		Name: "Mystery", Type: "mystery", Enabled: true, Actions: `["block"]`,
	}))
	require.NoError(t, f.repos.Rules.Create(ctx, &models.SecurityRule{
		Name: "Broken", Type: models.RuleRateLimit, Enabled: true, Parameters: `{"windowMs":"soon"}`, Actions: `["block"]`,
	}))
	require.NoError(t, f.repos.Rules.Create(ctx, &models.SecurityRule{
		Name: "Bad key", Type: models.RuleRateLimit, Enabled: true, Parameters: `{"windowMs":1000,"maxRequests":0,"keyType":"tenant"}`, Actions: `["block"]`,
	}))

	d, err := f.rules.Evaluate(ctx, f.attempt(t, "u1", "203.0.113.1", "ua"))
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestRuleEngine_DisabledRulesAreIgnored(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	r := &models.SecurityRule{Name: "Off", Type: models.RuleDeviceRestriction, Enabled: false}
	require.NoError(t, r.SetParameters(models.DeviceRestrictionParams{BlockedDevices: []string{"curl"}}))
	require.NoError(t, r.SetActions(models.ActionBlock))
	require.NoError(t, f.repos.Rules.Create(ctx, r))

	d, err := f.rules.Evaluate(ctx, f.attempt(t, "u1", "203.0.113.1", "curl/8.0"))
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestRuleEngine_RateLimitWindowIsHalfOpen(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.addRule(t, "One per minute", models.RuleRateLimit,
		models.RateLimitParams{WindowMs: 60000, MaxRequests: 1, KeyType: models.RateLimitByUser},
		models.ActionBlock)

	f.attempt(t, "u1", "203.0.113.1", "ua")
	f.clock.Advance(time.Minute)

	// The earlier attempt sits exactly at now-W and is outside the window.
	d, err := f.rules.Evaluate(ctx, f.attempt(t, "u1", "203.0.113.1", "ua"))
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	f.clock.Advance(time.Millisecond)
	d, err = f.rules.Evaluate(ctx, f.attempt(t, "u1", "203.0.113.1", "ua"))
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

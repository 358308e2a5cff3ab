package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Wikid82/warden/internal/config"
	"github.com/Wikid82/warden/internal/database"
	"github.com/Wikid82/warden/internal/models"
	"github.com/Wikid82/warden/internal/store"
)

func setupServicesTestDB(t *testing.T) store.Repositories {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	return store.NewGorm(db)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingAlerter struct {
	mu     sync.Mutex
	events []models.SecurityEvent
	err    error
}

func (a *recordingAlerter) Send(ctx context.Context, e *models.SecurityEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, *e)
	return a.err
}

func (a *recordingAlerter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.events)
}

// engineFixture wires the services against one in-memory database and a
// shared clock.
type engineFixture struct {
	repos    store.Repositories
	clock    *fakeClock
	alerter  *recordingAlerter
	ledger   *LedgerService
	blocks   *BlockService
	rules    *RuleEngine
	detector *AnomalyDetector
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	repos := setupServicesTestDB(t)
	clk := newFakeClock()
	alerter := &recordingAlerter{}

	ledger := NewLedgerService(repos.Attempts, repos.Events, alerter)
	ledger.SetClock(clk.Now)
	blocks := NewBlockService(repos.Blocks)
	blocks.SetClock(clk.Now)
	rules := NewRuleEngine(repos.Rules, ledger, blocks)
	rules.SetClock(clk.Now)
	rules.SetLocation(time.UTC)
	detector := NewAnomalyDetector(ledger, blocks, config.DefaultAnomalyConfig())
	detector.SetClock(clk.Now)

	return &engineFixture{
		repos:    repos,
		clock:    clk,
		alerter:  alerter,
		ledger:   ledger,
		blocks:   blocks,
		rules:    rules,
		detector: detector,
	}
}

// attempt logs an attempt and returns the request context for it.
func (f *engineFixture) attempt(t *testing.T, actor, ip, ua string) RequestContext {
	t.Helper()
	id, err := f.ledger.LogAttempt(context.Background(), AttemptInput{
		ActorID:   actor,
		IPAddress: ip,
		UserAgent: ua,
		Resource:  "presence",
		Action:    "read",
	})
	require.NoError(t, err)
	return RequestContext{
		AttemptID: id,
		ActorID:   actor,
		IPAddress: ip,
		UserAgent: ua,
		Resource:  "presence",
		Action:    "read",
	}
}

func (f *engineFixture) addRule(t *testing.T, name string, typ models.RuleType, params interface{}, actions ...models.RuleAction) *models.SecurityRule {
	t.Helper()
	r := &models.SecurityRule{Name: name, Type: typ, Enabled: true}
	require.NoError(t, r.SetParameters(params))
	require.NoError(t, r.SetActions(actions...))
	require.NoError(t, f.repos.Rules.Create(context.Background(), r))
	return r
}

func (f *engineFixture) events(t *testing.T) []models.SecurityEvent {
	t.Helper()
	events, err := f.ledger.ListEvents(context.Background(), store.EventFilter{})
	require.NoError(t, err)
	return events
}

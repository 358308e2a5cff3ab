package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/Wikid82/warden/internal/config"
	"github.com/Wikid82/warden/internal/database"
	"github.com/Wikid82/warden/internal/logger"
	"github.com/Wikid82/warden/internal/models"
	"github.com/Wikid82/warden/internal/services"
	"github.com/Wikid82/warden/internal/store"
)

type seedUser struct {
	email, name, role string
}

func main() {
	logger.Init(true, os.Stdout)
	log := logger.Log()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	log.Info("✓ Database migrated successfully")

	ctx := context.Background()
	repos := store.NewGorm(db)

	password := os.Getenv("WARDEN_SEED_PASSWORD")
	if password == "" {
		password = "changeme123"
	}

	users := []seedUser{
		{"admin@example.com", "Administrator", models.RoleAdmin},
		{"manager@example.com", "Team Manager", models.RoleManager},
		{"employee@example.com", "Sample Employee", models.RoleEmployee},
	}
	for _, su := range users {
		existing, err := repos.Users.GetByEmail(ctx, su.email)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			log.WithError(err).Fatal("lookup user")
		}
		if existing != nil {
			log.WithField("email", su.email).Info("user already exists")
			continue
		}
		u := &models.User{Email: su.email, Name: su.name, Role: su.role, Enabled: true}
		if err := u.SetPassword(password); err != nil {
			log.WithError(err).Fatal("hash password")
		}
		if err := repos.Users.Create(ctx, u); err != nil {
			log.WithError(err).Fatal("create user")
		}
		log.WithFields(logrus.Fields{"email": su.email, "role": su.role}).Info("✓ Created user")
	}

	rules := services.NewSecurityRuleService(repos.Rules)
	existing, err := rules.List(ctx)
	if err != nil {
		log.WithError(err).Fatal("list rules")
	}
	if len(existing) > 0 {
		log.WithField("count", len(existing)).Info("rules already seeded")
		return
	}

	examples, err := exampleRules()
	if err != nil {
		log.WithError(err).Fatal("build example rules")
	}
	for _, r := range examples {
		if err := rules.Create(ctx, r); err != nil {
			log.WithError(err).WithField("rule", r.Name).Fatal("create rule")
		}
		log.WithField("rule", r.Name).Info("✓ Created rule")
	}
}

func exampleRules() ([]*models.SecurityRule, error) {
	type spec struct {
		name    string
		typ     models.RuleType
		enabled bool
		params  interface{}
		actions []models.RuleAction
	}
	specs := []spec{
		{
			name:    "API burst limit",
			typ:     models.RuleRateLimit,
			enabled: true,
			params:  models.RateLimitParams{WindowMs: 60000, MaxRequests: 120, KeyType: models.RateLimitByIP},
			actions: []models.RuleAction{models.ActionLog, models.ActionBlock},
		},
		{
			name:    "Sanctioned regions",
			typ:     models.RuleGeoRestriction,
			enabled: true,
			params:  models.GeoRestrictionParams{BlockedCountries: []string{"KP"}},
			actions: []models.RuleAction{models.ActionAlert, models.ActionBlock},
		},
		{
			name:    "Office hours",
			typ:     models.RuleTimeRestriction,
			enabled: false,
			params:  models.TimeRestrictionParams{AllowedHours: []int{7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19}},
			actions: []models.RuleAction{models.ActionLog},
		},
		{
			name:    "Scripted clients",
			typ:     models.RuleDeviceRestriction,
			enabled: true,
			params:  models.DeviceRestrictionParams{BlockedDevices: []string{"sqlmap", "nikto"}},
			actions: []models.RuleAction{models.ActionAlert, models.ActionBlock},
		},
	}

	out := make([]*models.SecurityRule, 0, len(specs))
	for _, s := range specs {
		r := &models.SecurityRule{Name: s.name, Type: s.typ, Enabled: s.enabled}
		if err := r.SetParameters(s.params); err != nil {
			return nil, fmt.Errorf("rule %q parameters: %w", s.name, err)
		}
		if err := r.SetActions(s.actions...); err != nil {
			return nil, fmt.Errorf("rule %q actions: %w", s.name, err)
		}
		out = append(out, r)
	}
	return out, nil
}

package routes

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/Wikid82/warden/internal/api/handlers"
	"github.com/Wikid82/warden/internal/api/middleware"
	"github.com/Wikid82/warden/internal/cerberus"
	"github.com/Wikid82/warden/internal/config"
	"github.com/Wikid82/warden/internal/logger"
	"github.com/Wikid82/warden/internal/models"
	"github.com/Wikid82/warden/internal/services"
	"github.com/Wikid82/warden/internal/store"
)

// Services holds the long-lived components created by Register so the
// caller can stop them on shutdown.
type Services struct {
	Ledger   *services.LedgerService
	Blocks   *services.BlockService
	Rules    *services.SecurityRuleService
	Auth     *services.AuthService
	Alerts   *services.AlertService
	Sweeper  *services.BlockSweeper
	Cerberus *cerberus.Cerberus
}

// Close stops background work. It is safe to call more than once.
func (s *Services) Close() {
	if s.Sweeper != nil {
		s.Sweeper.Stop()
		s.Sweeper = nil
	}
	if s.Alerts != nil {
		s.Alerts.Close()
	}
}

// Register builds the access engine on db and wires up API routes.
func Register(router *gin.Engine, db *gorm.DB, cfg config.Config) (*Services, error) {
	repos := store.NewGorm(db)

	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("load time zone: %w", err)
	}

	alerts := services.NewAlertService(repos.AlertProviders, cfg.Alerts)
	ledger := services.NewLedgerService(repos.Attempts, repos.Events, alerts)
	blocks := services.NewBlockService(repos.Blocks)

	engine := services.NewRuleEngine(repos.Rules, ledger, blocks)
	engine.SetLocation(loc)
	engine.SetBlockMinutes(cfg.Security.RuleBlockMinutes)

	perms, err := services.NewPermissionService(repos.Users)
	if err != nil {
		alerts.Close()
		return nil, fmt.Errorf("load permissions: %w", err)
	}
	detector := services.NewAnomalyDetector(ledger, blocks, cfg.Anomaly)
	authService := services.NewAuthService(repos.Users, ledger, blocks, detector, cfg.Security)
	ruleService := services.NewSecurityRuleService(repos.Rules)

	cerb := cerberus.New(cerberus.Deps{
		Ledger:      ledger,
		Blocks:      blocks,
		Rules:       engine,
		Permissions: perms,
		Anomalies:   detector,
		Geo:         services.NewGeoLocator(cfg.Geo),
	})

	svc := &Services{
		Ledger:   ledger,
		Blocks:   blocks,
		Rules:    ruleService,
		Auth:     authService,
		Alerts:   alerts,
		Cerberus: cerb,
	}

	if cfg.Sweeper.Enabled {
		sweeper, err := services.NewBlockSweeper(blocks, cfg.Sweeper.Schedule)
		if err != nil {
			svc.Close()
			return nil, err
		}
		sweeper.Start()
		svc.Sweeper = sweeper
		logger.Log().WithField("schedule", cfg.Sweeper.Schedule).Info("expired block sweeper started")
	}

	router.GET("/api/v1/health", handlers.HealthHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")

	authHandler := handlers.NewAuthHandler(authService, perms)
	api.POST("/auth/login", authHandler.Login)

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(authService))
	{
		protected.GET("/auth/me", authHandler.Me)

		accessHandler := handlers.NewAccessHandler(cerb)
		protected.POST("/access/check", accessHandler.Check)

		presenceHandler := handlers.NewPresenceHandler()
		protected.GET("/presence", cerb.Guard("presence", "read"), presenceHandler.List)
		protected.POST("/presence", cerb.Guard("presence", "write"), presenceHandler.Record)

		securityHandler := handlers.NewSecurityHandler(ledger, blocks, ruleService)
		security := protected.Group("/security")
		security.Use(middleware.RequireRole(models.RoleAdmin))
		security.GET("/events", cerb.Guard("security", "read"), securityHandler.ListEvents)
		security.GET("/attempts", cerb.Guard("security", "read"), securityHandler.ListAttempts)
		security.GET("/blocks", cerb.Guard("security", "read"), securityHandler.ListBlocks)
		security.POST("/blocks", cerb.Guard("security", "write"), securityHandler.CreateBlock)
		security.GET("/rules", cerb.Guard("security", "read"), securityHandler.ListRules)
		security.POST("/rules", cerb.Guard("security", "write"), securityHandler.CreateRule)
	}

	return svc, nil
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/Wikid82/warden/internal/config"
	"github.com/Wikid82/warden/internal/cryptoutil"
	"github.com/Wikid82/warden/internal/database"
	"github.com/Wikid82/warden/internal/logger"
	"github.com/Wikid82/warden/internal/metrics"
	"github.com/Wikid82/warden/internal/server"
	"github.com/Wikid82/warden/internal/store"
	"github.com/Wikid82/warden/internal/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log().WithError(err).Fatal("load config")
	}

	// Log to both stdout and file
	logger.Init(cfg.Log.Debug, io.MultiWriter(os.Stdout, logger.NewRotatingWriter(cfg.Log.Dir, "warden.log")))
	log := logger.Log()

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid config")
	}
	cryptoutil.SetDefaultSecret(cfg.Security.DefaultSecret)

	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.WithError(err).Fatal("create data directory")
		}
	}
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		log.WithError(err).Fatal("connect database")
	}

	// Handle CLI commands
	if len(os.Args) > 1 && os.Args[1] == "reset-password" {
		if len(os.Args) != 4 {
			log.Fatalf("Usage: %s reset-password <email> <new-password>", os.Args[0])
		}
		email, newPassword := os.Args[2], os.Args[3]

		if err := resetPassword(context.Background(), db, email, newPassword); err != nil {
			log.WithError(err).WithField("email", email).Fatal("failed to reset password")
		}
		log.WithField("email", email).Info("password updated")
		return
	}

	log.Infof("starting %s %s", version.Name, version.Full())

	metrics.Register(prometheus.DefaultRegisterer)

	srv, err := server.New(db, cfg)
	if err != nil {
		log.WithError(err).Fatal("build server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		log.WithError(err).Error("server error")
		stop()
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

// resetPassword looks the user up with the same email normalisation used at
// account creation and stores a fresh bcrypt hash.
func resetPassword(ctx context.Context, db *gorm.DB, email, newPassword string) error {
	user, err := store.NewGorm(db).Users.GetByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	if err := user.SetPassword(newPassword); err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := db.WithContext(ctx).Save(user).Error; err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

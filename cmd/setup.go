package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gwherrett/mako-sync-ai-sub002/internal/models"
	"github.com/gwherrett/mako-sync-ai-sub002/internal/repositories"
	"github.com/gwherrett/mako-sync-ai-sub002/internal/shared"
	"github.com/urfave/cli/v3"
)

// Setup initializes the database, runs migrations, and creates the local
// session when a backend token is provided.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	var config *shared.Config
	if _, err := os.Stat(configPath); err == nil {
		if config, err = shared.LoadConfig(configPath); err != nil {
			r.logger.Warn("failed to load config, using defaults", "error", err)
			config = shared.DefaultConfig()
		}
	} else {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
			config = shared.DefaultConfig()
		} else {
			r.logger.Info("config file created", "path", configPath)
			if config, err = shared.LoadConfig(configPath); err != nil {
				r.logger.Warn("failed to load created config, using defaults", "error", err)
				config = shared.DefaultConfig()
			}
		}
	}
	r.config = config
	r.configPath = configPath

	r.logger.Info("initializing database", "path", config.Database.Path)

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	r.logger.Infof("setup complete for database: %v", config.Database.Path)

	sessions := repositories.NewSessionRepository(db)
	if err := r.setupSession(sessions, cmd.String("email"), cmd.String("token")); err != nil {
		return err
	}

	r.writePlain("✓ Setup complete\n")
	r.writePlain("Database: %s\n", config.Database.Path)
	r.writePlain("Config: %s\n", configPath)
	r.writePlainln("Next steps:")
	r.writePlain("1. Add your Spotify client credentials to %s\n", configPath)
	r.writePlain("2. Run 'makosync connect' to link your Spotify account\n")

	return nil
}

// setupSession creates the local session row when absent.
//
// The backend access token authorizes sync calls; without one the session is
// skipped and connect/sync commands will report the missing session.
func (r *Runner) setupSession(sessions *repositories.SessionRepository, email, token string) error {
	current, err := sessions.Current()
	if err != nil {
		return fmt.Errorf("failed to read session: %w", err)
	}
	if current != nil {
		r.logger.Info("session already exists", "user", current.UserID())
		return nil
	}

	if token == "" {
		r.logger.Info("no session created; rerun with --token to create one")
		return nil
	}

	session := models.NewSession(0, shared.GenerateID(), email, token)
	if err := sessions.Create(session); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	r.logger.Info("local session created", "user", session.UserID(), "email", email)
	return nil
}

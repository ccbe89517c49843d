package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/gwherrett/mako-sync-ai-sub002/internal/formatter"
	"github.com/gwherrett/mako-sync-ai-sub002/internal/models"
	"github.com/gwherrett/mako-sync-ai-sub002/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Sync verifies the connection and runs a liked-songs sync.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	if err := r.ensureManager(cmd.String("config")); err != nil {
		return err
	}

	force := cmd.Bool("force")
	r.logger.Info("starting liked songs sync", "force", force)

	progressCh := make(chan tasks.ProgressUpdate, 10)
	go func() {
		for update := range progressCh {
			switch update.Phase {
			case tasks.CheckStatus:
				r.writePlain("🔍 %s\n", update.Message)
			case tasks.SyncLibrary:
				r.writePlain("🎵 %s\n", update.Message)
			}
		}
	}()

	result, err := r.engine.SyncFlow(ctx, progressCh, force)
	close(progressCh)

	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		body, err := formatter.SyncJSON(result)
		if err != nil {
			return err
		}
		return r.writePlain("%s\n", body)
	}

	r.writePlain("\n")
	r.writePlainHeader("Sync Complete!")
	r.writePlain("%s", formatter.SyncText(result))
	return nil
}

// Monitor runs a health check cycle and prints metrics plus active alerts.
//
// With --watch it keeps the monitor running and prints each cycle until
// interrupted.
func (r *Runner) Monitor(ctx context.Context, cmd *cli.Command) error {
	if err := r.ensureManager(cmd.String("config")); err != nil {
		return err
	}

	asJSON := cmd.Bool("json")

	if !cmd.Bool("watch") {
		if err := r.manager.ValidateSecurity(ctx); err != nil {
			r.logger.Warn("security validation failed", "error", err)
		}
		metrics := r.manager.PerformHealthCheck(ctx)
		return r.writeHealth(metrics, r.manager.Monitor().ActiveAlerts(), asJSON)
	}

	if r.config != nil && !r.config.Lifecycle.HealthMonitoring {
		return fmt.Errorf("health monitoring is disabled in the configuration")
	}

	watchCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	monitor := r.manager.Monitor()
	listenerID := monitor.AddListener(func(metrics models.HealthMetrics, alerts []models.Alert) {
		if err := r.writeHealth(metrics, alerts, asJSON); err != nil {
			r.logger.Warn("failed to write health cycle", "error", err)
		}
	})
	defer monitor.RemoveListener(listenerID)

	r.logger.Info("health monitoring started; press ctrl-c to stop")
	r.manager.StartMonitoring(watchCtx)
	defer r.manager.StopMonitoring()

	<-watchCtx.Done()
	return nil
}

func (r *Runner) writeHealth(metrics models.HealthMetrics, alerts []models.Alert, asJSON bool) error {
	if asJSON {
		body, err := formatter.HealthJSON(metrics, alerts)
		if err != nil {
			return err
		}
		return r.writePlain("%s\n", body)
	}
	return r.writePlain("%s", formatter.HealthText(metrics, alerts))
}

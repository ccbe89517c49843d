package main

import (
	"context"
	"time"

	"github.com/gwherrett/mako-sync-ai-sub002/internal/formatter"
	"github.com/gwherrett/mako-sync-ai-sub002/internal/shared"
	"github.com/gwherrett/mako-sync-ai-sub002/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Connect runs the full OAuth handshake: opens the authorization page and
// waits for the browser redirect to the loopback listener.
func (r *Runner) Connect(ctx context.Context, cmd *cli.Command) error {
	if err := r.ensureManager(cmd.String("config")); err != nil {
		return err
	}

	if timeout := cmd.Duration("timeout"); timeout > 0 {
		ctx_, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		ctx = ctx_
	}

	r.logger.Info("starting spotify connect flow")

	progressCh := make(chan tasks.ProgressUpdate, 10)
	go func() {
		for update := range progressCh {
			switch update.Phase {
			case tasks.Authorize:
				r.writePlain("🔗 %s\n", update.Message)
			case tasks.AwaitCallback:
				r.writePlain("⏳ %s\n", update.Message)
				if data, ok := update.Data.(map[string]string); ok && data["url"] != "" {
					r.writePlain("   If the browser did not open, visit:\n   %s\n", data["url"])
				}
			case tasks.Persist:
				r.writePlain("💾 %s\n", update.Message)
			}
		}
	}()

	conn, err := r.engine.ConnectFlow(ctx, progressCh)
	close(progressCh)

	if err != nil {
		return err
	}

	account := conn.DisplayName()
	if account == "" {
		account = conn.SpotifyUserID()
	}

	r.writePlainln("✓ Spotify connected")
	r.writePlain("Account: %s\n", account)
	if conn.Email() != "" {
		r.writePlain("Email: %s\n", conn.Email())
	}
	r.writePlain("Token expires in: %s\n", shared.FormatDuration(time.Until(conn.ExpiresAt())))

	return nil
}

// Disconnect severs the Spotify connection and discards stored tokens.
func (r *Runner) Disconnect(ctx context.Context, cmd *cli.Command) error {
	if err := r.ensureManager(cmd.String("config")); err != nil {
		return err
	}

	r.logger.Info("disconnecting spotify account")

	if err := r.manager.Disconnect(ctx); err != nil {
		return err
	}

	r.writePlain("✓ Spotify disconnected\n")
	return nil
}

// Status checks the connection and prints the resulting state.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	if err := r.ensureManager(cmd.String("config")); err != nil {
		return err
	}

	state, err := r.manager.CheckConnection(ctx, cmd.Bool("force"))
	if err != nil {
		r.logger.Debug("status check reported an error", "error", err)
	}

	if cmd.Bool("json") {
		body, err := formatter.StatusJSON(state)
		if err != nil {
			return err
		}
		return r.writePlain("%s\n", body)
	}

	return r.writePlain("%s", formatter.StatusText(state, time.Now()))
}

// Refresh forces a token refresh against the backend.
func (r *Runner) Refresh(ctx context.Context, cmd *cli.Command) error {
	if err := r.ensureManager(cmd.String("config")); err != nil {
		return err
	}

	r.logger.Info("refreshing spotify tokens")

	outcome, err := r.manager.RefreshTokens(ctx)
	if err != nil {
		return err
	}

	r.writePlain("✓ Tokens refreshed (%d attempt(s))\n", outcome.Attempts)
	r.writePlain("Token expires in: %s\n", shared.FormatDuration(time.Until(outcome.ExpiresAt)))
	return nil
}

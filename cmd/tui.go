package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gwherrett/mako-sync-ai-sub002/internal/shared"
	"github.com/gwherrett/mako-sync-ai-sub002/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive terminal dashboard for the Spotify connection.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	if err := r.ensureManager(cmd.String("config")); err != nil {
		return err
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger("./tmp/makosync-tui.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	model := ui.NewModel(ctx, r.manager)
	p := tea.NewProgram(model)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}

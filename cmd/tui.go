package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/spx/internal/app"
	"github.com/desertthunder/spx/internal/shared"
	"github.com/desertthunder/spx/internal/ui"
	"github.com/urfave/cli/v3"
)

// tuiController narrows the controller's login handle to [ui.Login].
type tuiController struct {
	*app.Controller
}

func (c tuiController) StartLogin(ctx context.Context) (ui.Login, error) {
	pending, err := c.Controller.StartLogin(ctx)
	if pending == nil {
		return nil, err
	}
	return pending, err
}

// TUI launches the interactive player. A saved login is restored first; otherwise the login view is shown.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(shared.ExpandHome(cmd.String("log-file")))
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	shared.SetLogLevel(fileLogger, shared.ParseLogLevel(r.config.Log.Level))
	r.SetLogger(fileLogger)

	st, err := r.build(stackOpts{Interactive: true})
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.ctrl.Bootstrap(ctx); err != nil {
		r.logger.Warn("could not restore saved login", "error", err)
	}

	model := ui.NewModel(ctx, tuiController{st.ctrl})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithReportFocus(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}

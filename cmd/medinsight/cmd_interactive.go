package main

import (
	"fmt"

	"medinsight/cmd/medinsight/app"
	"medinsight/cmd/medinsight/ui"
	"medinsight/internal/logging"
	"medinsight/internal/notify"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// runInteractive starts the full-screen interface.
func runInteractive(cmd *cobra.Command, args []string) error {
	notifier := notify.New(cfg.GetDismissAfter())
	defer notifier.Close()

	s, err := openServices(cfg, notifier)
	if err != nil {
		return err
	}
	defer s.Close()

	theme := ui.ThemeFor(cfg.UI.Theme)
	md, err := ui.NewMarkdown(ui.StyleFor(theme), cfg.UI.CacheSize)
	if err != nil {
		return fmt.Errorf("failed to create markdown renderer: %w", err)
	}

	model := app.New(commandContext(cmd), app.Deps{
		API:           s.client,
		Store:         s.kv,
		Auth:          s.auth,
		Notifier:      notifier,
		Markdown:      md,
		Theme:         theme,
		GoogleEnabled: s.google != nil,
	})

	logging.Get(logging.CategoryBoot).Info("interactive session started",
		zap.String("theme", cfg.UI.Theme),
		zap.Bool("google", s.google != nil))

	p := tea.NewProgram(model, tea.WithAltScreen())
	final, err := p.Run()
	if fm, ok := final.(app.Model); ok {
		fm.Shutdown()
	} else {
		model.Shutdown()
	}
	return err
}

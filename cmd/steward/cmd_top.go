package main

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"steward/cmd/steward/ui"
	"steward/internal/store"
)

var topIntervalFlag time.Duration

// topCmd runs the live full-screen dashboard
var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Live full-screen dashboard",
	Long: `Full-screen view of workspace health that refreshes on an
interval. 'q' quits, 'r' forces a refresh.`,
	RunE: runTop,
}

func init() {
	topCmd.Flags().DurationVar(&topIntervalFlag, "interval", 5*time.Second, "Refresh interval")
	rootCmd.AddCommand(topCmd)
}

func runTop(cmd *cobra.Command, args []string) error {
	root, cfg, err := loadWorkspace()
	if err != nil {
		return err
	}

	// One store handle for the lifetime of the view; refreshes share it.
	st, err := store.New(root.DBPath())
	if err != nil {
		return fmt.Errorf("failed to open workspace index: %w", err)
	}
	defer st.Close()

	refresh := func() (string, error) {
		rep, err := gatherReport(cmd, root, cfg, st)
		if err != nil {
			return "", err
		}
		return rep.Markdown(), nil
	}

	p := tea.NewProgram(
		ui.NewTopModel(root.Path, refresh, topIntervalFlag, ui.DefaultStyles()),
		tea.WithAltScreen(),
	)
	_, err = p.Run()
	return err
}

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"steward/internal/store"
	"steward/internal/workspace"
)

// doctorCmd diagnoses workspace problems without fixing them
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check workspace health",
	Long: `Inspects the workspace layout, config, lock state, and index
database. Doctor only diagnoses; run 'steward maintain' to fix what it
can fix.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	root, err := resolveRoot()
	if err != nil {
		return err
	}

	checks := workspace.Doctor(root)

	// Opening the index exercises the sqlite file end to end, including
	// schema migration.
	dbCheck := workspace.Check{Name: "index db", Status: workspace.CheckOK, Detail: root.DBPath()}
	if st, err := store.New(root.DBPath()); err != nil {
		dbCheck.Status = workspace.CheckFail
		dbCheck.Detail = err.Error()
	} else {
		st.Close()
	}
	checks = append(checks, dbCheck)

	fmt.Println("🩺 Doctor")
	fmt.Println(strings.Repeat("─", 50))
	for _, c := range checks {
		mark := "✓"
		switch c.Status {
		case workspace.CheckWarn:
			mark = "⚠"
		case workspace.CheckFail:
			mark = "✗"
		}
		fmt.Printf("  %s %-18s %s\n", mark, c.Name, c.Detail)
	}
	fmt.Println(strings.Repeat("─", 50))
	fmt.Printf("Total: %s\n", workspace.Summarize(checks))

	if !workspace.Healthy(checks) {
		return fmt.Errorf("workspace has failing checks")
	}
	return nil
}

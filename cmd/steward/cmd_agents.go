package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

// agentsCmd manages sub-agent definitions
var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Inspect and validate sub-agent definitions",
	Long: `Works with the markdown agent definitions under .claude/agents/.

Subcommands:
  list      - List loaded agents (default)
  show      - Show one agent's definition
  validate  - Validate every definition and exit non-zero on problems`,
	RunE: runAgentsList,
}

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List loaded agent definitions",
	RunE:  runAgentsList,
}

var agentsShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show one agent definition",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentsShow,
}

var agentsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate all agent definitions",
	RunE:  runAgentsValidate,
}

func init() {
	agentsCmd.AddCommand(agentsListCmd, agentsShowCmd, agentsValidateCmd)
	rootCmd.AddCommand(agentsCmd)
}

func runAgentsList(cmd *cobra.Command, args []string) error {
	root, cfg, err := loadWorkspace()
	if err != nil {
		return err
	}
	reg, err := loadRegistry(root, cfg)
	if err != nil {
		return err
	}

	fmt.Println("🤖 Agents")
	fmt.Println(strings.Repeat("─", 50))
	if reg.Len() == 0 {
		fmt.Println("No agent definitions found.")
		fmt.Printf("Drop markdown files into %s\n", root.AgentsDir(cfg.Agents.Dir))
		return nil
	}

	for _, a := range reg.All() {
		model := a.Model
		if model == "" {
			model = "inherit"
		}
		fmt.Printf("  %-24s %-10s priority %d, %d triggers\n", a.Name, model, a.Priority, len(a.Triggers))
		fmt.Printf("    %s\n", truncateLine(a.Description, 70))
	}
	fmt.Println(strings.Repeat("─", 50))
	fmt.Printf("Total: %d agents", reg.Len())
	if n := len(reg.Problems()); n > 0 {
		fmt.Printf(", %d files rejected (run 'steward agents validate')", n)
	}
	if n := len(reg.Shadowed()); n > 0 {
		fmt.Printf(", %d shadowed", n)
	}
	fmt.Println()
	return nil
}

func runAgentsShow(cmd *cobra.Command, args []string) error {
	root, cfg, err := loadWorkspace()
	if err != nil {
		return err
	}
	reg, err := loadRegistry(root, cfg)
	if err != nil {
		return err
	}

	a, ok := reg.Get(args[0])
	if !ok {
		return fmt.Errorf("agent %q not found (have: %s)", args[0], strings.Join(reg.Names(), ", "))
	}

	fmt.Printf("🤖 %s\n", a.Name)
	fmt.Println(strings.Repeat("─", 50))
	fmt.Printf("  %-12s %s\n", "description", a.Description)
	if a.Model != "" {
		fmt.Printf("  %-12s %s\n", "model", a.Model)
	}
	if len(a.Tools) > 0 {
		fmt.Printf("  %-12s %s\n", "tools", strings.Join(a.Tools, ", "))
	}
	if a.Priority != 0 {
		fmt.Printf("  %-12s %d\n", "priority", a.Priority)
	}
	if len(a.Triggers) > 0 {
		fmt.Printf("  %-12s %s\n", "triggers", strings.Join(a.Triggers, ", "))
	}
	fmt.Printf("  %-12s %s\n", "file", a.Path)

	if notes := a.Lint(); len(notes) > 0 {
		for _, note := range notes {
			fmt.Printf("  ⚠ %s\n", note)
		}
	}

	fmt.Println(strings.Repeat("─", 50))
	fmt.Print(renderMarkdown(a.Body))
	return nil
}

func runAgentsValidate(cmd *cobra.Command, args []string) error {
	root, cfg, err := loadWorkspace()
	if err != nil {
		return err
	}
	reg, err := loadRegistry(root, cfg)
	if err != nil {
		return err
	}

	fmt.Println("🔎 Agent validation")
	fmt.Println(strings.Repeat("─", 50))

	for _, a := range reg.All() {
		notes := a.Lint()
		if len(notes) == 0 {
			fmt.Printf("  ✓ %s\n", a.Name)
			continue
		}
		fmt.Printf("  ⚠ %s\n", a.Name)
		for _, note := range notes {
			fmt.Printf("      %s\n", note)
		}
	}

	problems := reg.Problems()
	sort.Slice(problems, func(i, j int) bool { return problems[i].Path < problems[j].Path })
	for _, p := range problems {
		fmt.Printf("  ✗ %s\n      %v\n", p.Path, p.Err)
	}
	for _, path := range reg.Shadowed() {
		fmt.Printf("  ⚠ %s shadowed by a project-level definition\n", path)
	}

	fmt.Println(strings.Repeat("─", 50))
	fmt.Printf("%d valid, %d rejected, %d shadowed\n", reg.Len(), len(problems), len(reg.Shadowed()))

	if len(problems) > 0 {
		return fmt.Errorf("%d agent definitions failed validation", len(problems))
	}
	return nil
}

func truncateLine(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

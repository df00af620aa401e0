package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

// JSON renders the dashboard for machine consumption.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Markdown renders the dashboard as a document.
func (r *Report) Markdown() string {
	var sb strings.Builder

	sb.WriteString("# Workspace Dashboard\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n", r.GeneratedAt.Format(time.RFC3339)))
	if r.Workspace != "" {
		sb.WriteString(fmt.Sprintf("Workspace: `%s`\n", r.Workspace))
	}
	sb.WriteString("\n")

	sb.WriteString("## Agents\n")
	sb.WriteString(fmt.Sprintf("- Registered: %d\n", r.Agents.Count))
	if r.Agents.Problems > 0 {
		sb.WriteString(fmt.Sprintf("- ⚠️ Problems: %d\n", r.Agents.Problems))
	}
	if r.Agents.Shadowed > 0 {
		sb.WriteString(fmt.Sprintf("- Shadowed by project definitions: %d\n", r.Agents.Shadowed))
	}
	if len(r.Agents.ByModel) > 0 {
		models := make([]string, 0, len(r.Agents.ByModel))
		for model, n := range r.Agents.ByModel {
			models = append(models, fmt.Sprintf("%s (%d)", model, n))
		}
		sb.WriteString("- Models: " + strings.Join(models, ", ") + "\n")
	}
	sb.WriteString("\n")

	sb.WriteString("## Memory Bank\n")
	sb.WriteString(fmt.Sprintf("- Files: %d (%s, %d lines)\n",
		r.Memory.Files, humanize.Bytes(uint64(r.Memory.TotalBytes)), r.Memory.TotalLines))
	if r.Memory.Files > 0 {
		sb.WriteString(fmt.Sprintf("- Health: %d ok / %d warn / %d critical\n",
			r.Memory.ByHealth["ok"], r.Memory.ByHealth["warn"], r.Memory.ByHealth["critical"]))
		if r.Memory.IssueCount > 0 {
			sb.WriteString(fmt.Sprintf("- Open issues: %d\n", r.Memory.IssueCount))
		}
		if r.Memory.Largest != "" {
			sb.WriteString(fmt.Sprintf("- Largest file: `%s`\n", r.Memory.Largest))
		}
		if r.Memory.Stalest != "" {
			sb.WriteString(fmt.Sprintf("- Stalest file: `%s`\n", r.Memory.Stalest))
		}
	}
	sb.WriteString("\n")

	sb.WriteString("## Backups\n")
	if r.Backups.Count == 0 {
		sb.WriteString("- No snapshots yet.\n")
	} else {
		sb.WriteString(fmt.Sprintf("- Snapshots: %d (%s)\n",
			r.Backups.Count, humanize.Bytes(uint64(r.Backups.TotalBytes))))
		sb.WriteString(fmt.Sprintf("- Latest: `%s` (%s)\n",
			r.Backups.LatestID, humanize.Time(r.Backups.LatestAt)))
	}
	sb.WriteString("\n")

	if len(r.Runs) > 0 {
		sb.WriteString("## Recent Runs\n")
		sb.WriteString("| ID | Kind | Status | Started | Duration |\n")
		sb.WriteString("|----|------|--------|---------|----------|\n")
		for _, run := range r.Runs {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
				shortID(run.ID), run.Kind, run.Status,
				run.Started.Format(time.RFC3339), formatDuration(run.Duration)))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// termStyles are the semantic styles for terminal rendering.
type termStyles struct {
	title   lipgloss.Style
	section lipgloss.Style
	key     lipgloss.Style
	good    lipgloss.Style
	warn    lipgloss.Style
	bad     lipgloss.Style
}

func newTermStyles(noColor bool) termStyles {
	if noColor {
		plain := lipgloss.NewStyle()
		return termStyles{title: plain, section: plain, key: plain, good: plain, warn: plain, bad: plain}
	}
	return termStyles{
		title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8BC34A")),
		section: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2196F3")),
		key:     lipgloss.NewStyle().Foreground(lipgloss.Color("#999999")),
		good:    lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A")),
		warn:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107")),
		bad:     lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935")),
	}
}

// Terminal renders the dashboard for an interactive session.
func (r *Report) Terminal(noColor bool) string {
	s := newTermStyles(noColor)
	var sb strings.Builder

	sb.WriteString(s.title.Render("🧹 steward dashboard") + "\n")
	sb.WriteString(s.key.Render(fmt.Sprintf("generated %s", humanize.Time(r.GeneratedAt))) + "\n")
	sb.WriteString(strings.Repeat("─", 50) + "\n")

	sb.WriteString(s.section.Render("Agents") + "\n")
	sb.WriteString(kv(s, "registered", fmt.Sprintf("%d", r.Agents.Count)))
	if r.Agents.Problems > 0 {
		sb.WriteString(kv(s, "problems", s.warn.Render(fmt.Sprintf("%d ⚠️", r.Agents.Problems))))
	}
	if r.Agents.Shadowed > 0 {
		sb.WriteString(kv(s, "shadowed", fmt.Sprintf("%d", r.Agents.Shadowed)))
	}

	sb.WriteString(s.section.Render("Memory Bank") + "\n")
	sb.WriteString(kv(s, "files", fmt.Sprintf("%d (%s, %d lines)",
		r.Memory.Files, humanize.Bytes(uint64(r.Memory.TotalBytes)), r.Memory.TotalLines)))
	if r.Memory.Files > 0 {
		health := fmt.Sprintf("%s / %s / %s",
			s.good.Render(fmt.Sprintf("%d ok", r.Memory.ByHealth["ok"])),
			s.warn.Render(fmt.Sprintf("%d warn", r.Memory.ByHealth["warn"])),
			s.bad.Render(fmt.Sprintf("%d critical", r.Memory.ByHealth["critical"])))
		sb.WriteString(kv(s, "health", health))
		if r.Memory.Stalest != "" {
			sb.WriteString(kv(s, "stalest", r.Memory.Stalest))
		}
	}

	sb.WriteString(s.section.Render("Backups") + "\n")
	if r.Backups.Count == 0 {
		sb.WriteString(kv(s, "snapshots", "none"))
	} else {
		sb.WriteString(kv(s, "snapshots", fmt.Sprintf("%d (%s)",
			r.Backups.Count, humanize.Bytes(uint64(r.Backups.TotalBytes)))))
		sb.WriteString(kv(s, "latest", fmt.Sprintf("%s (%s)",
			r.Backups.LatestID, humanize.Time(r.Backups.LatestAt))))
	}

	if len(r.Runs) > 0 {
		sb.WriteString(s.section.Render("Recent Runs") + "\n")
		for _, run := range r.Runs {
			status := run.Status
			switch run.Status {
			case "ok":
				status = s.good.Render("ok")
			case "failed":
				status = s.bad.Render("failed")
			case "running":
				status = s.warn.Render("running")
			}
			sb.WriteString(fmt.Sprintf("  %s  %-10s %s  %s\n",
				shortID(run.ID), run.Kind, status, humanize.Time(run.Started)))
		}
	}

	return sb.String()
}

func kv(s termStyles, key, value string) string {
	return fmt.Sprintf("  %s %s\n", s.key.Render(fmt.Sprintf("%-12s", key)), value)
}

// Write persists dashboard.json and dashboard.md under dir.
func Write(dir string, r *Report) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create reports directory: %w", err)
	}
	data, err := r.JSON()
	if err != nil {
		return fmt.Errorf("failed to encode dashboard: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, "dashboard.json"), data); err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(dir, "dashboard.md"), []byte(r.Markdown()))
}

// writeFileAtomic writes via a temp file and rename so a crash mid-write
// never leaves a truncated dashboard behind.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}

// Package report builds the workspace dashboard: one snapshot of agent,
// memory, backup, and run state rendered as JSON, markdown, or styled
// terminal output.
package report

import (
	"time"

	"steward/internal/agent"
	"steward/internal/backup"
	"steward/internal/memory"
	"steward/internal/store"
)

// AgentsSummary rolls up the registry.
type AgentsSummary struct {
	Count    int            `json:"count"`
	Problems int            `json:"problems"`
	Shadowed int            `json:"shadowed"`
	ByModel  map[string]int `json:"by_model,omitempty"`
	Names    []string       `json:"names,omitempty"`
}

// BackupsSummary rolls up the snapshot directory.
type BackupsSummary struct {
	Count      int       `json:"count"`
	LatestID   string    `json:"latest_id,omitempty"`
	LatestAt   time.Time `json:"latest_at,omitempty"`
	TotalBytes int64     `json:"total_bytes"`
}

// RunSummary is one run row trimmed for display.
type RunSummary struct {
	ID       string        `json:"id"`
	Kind     string        `json:"kind"`
	Status   string        `json:"status"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration_ns"`
}

// Report is a point-in-time dashboard of workspace health.
type Report struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Workspace   string         `json:"workspace"`
	Agents      AgentsSummary  `json:"agents"`
	Memory      memory.Summary `json:"memory"`
	Backups     BackupsSummary `json:"backups"`
	Runs        []RunSummary   `json:"runs,omitempty"`
}

// Input carries the gathered state a Report is built from.
type Input struct {
	Workspace string
	Registry  *agent.Registry
	Memory    []memory.File
	Backups   []backup.Manifest
	Runs      []store.Run
}

// Build assembles a dashboard snapshot. All inputs are optional; a nil
// registry or empty slices simply produce zero sections.
func Build(in Input) *Report {
	rep := &Report{
		GeneratedAt: time.Now().UTC(),
		Workspace:   in.Workspace,
		Memory:      memory.Summarize(in.Memory),
	}

	if in.Registry != nil {
		rep.Agents = AgentsSummary{
			Count:    in.Registry.Len(),
			Problems: len(in.Registry.Problems()),
			Shadowed: len(in.Registry.Shadowed()),
			Names:    in.Registry.Names(),
		}
		byModel := make(map[string]int)
		for _, a := range in.Registry.All() {
			model := a.Model
			if model == "" {
				model = "inherit"
			}
			byModel[model]++
		}
		if len(byModel) > 0 {
			rep.Agents.ByModel = byModel
		}
	}

	for _, m := range in.Backups {
		rep.Backups.Count++
		rep.Backups.TotalBytes += m.TotalBytes
		if m.ID > rep.Backups.LatestID {
			rep.Backups.LatestID = m.ID
			rep.Backups.LatestAt = m.CreatedAt
		}
	}

	for _, run := range in.Runs {
		rs := RunSummary{
			ID:      run.ID,
			Kind:    run.Kind,
			Status:  run.Status,
			Started: run.StartedAt,
		}
		if run.FinishedAt != nil {
			rs.Duration = run.FinishedAt.Sub(run.StartedAt)
		}
		rep.Runs = append(rep.Runs, rs)
	}

	return rep
}

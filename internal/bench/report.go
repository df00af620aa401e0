package bench

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// JSON renders the result for machine consumption.
func (r *Result) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Markdown renders the result as a report document.
func (r *Result) Markdown() string {
	var sb strings.Builder

	sb.WriteString("# Routing Bench Report\n\n")
	sb.WriteString(fmt.Sprintf("Run: %s (took %v)\n\n",
		r.StartedAt.Format(time.RFC3339), r.Elapsed.Round(time.Millisecond)))

	sb.WriteString("## Latency\n")
	sb.WriteString(fmt.Sprintf("- Cases: %d, iterations: %d, samples: %d\n",
		r.Cases, r.Iterations, r.Samples))
	sb.WriteString(fmt.Sprintf("- min %s / mean %s / p50 %s / p95 %s / p99 %s / max %s\n\n",
		ns(r.Latency.Min), ns(r.Latency.Mean), ns(r.Latency.P50),
		ns(r.Latency.P95), ns(r.Latency.P99), ns(r.Latency.Max)))

	sb.WriteString("## Accuracy\n")
	if r.Scored == 0 {
		sb.WriteString("- No cases carried expectations.\n\n")
	} else {
		sb.WriteString(fmt.Sprintf("- %d/%d matched (%.1f%%)\n\n",
			r.Matched, r.Scored, r.Accuracy*100))
	}

	if len(r.Mismatches) > 0 {
		sb.WriteString("## Mismatches\n")
		for _, m := range r.Mismatches {
			got := m.Got
			if got == "" {
				got = "(none)"
			}
			sb.WriteString(fmt.Sprintf("- `%s`: want %s, got %s\n", m.Task, m.Want, got))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func ns(v int64) string {
	return time.Duration(v).String()
}

// WriteReports writes bench.json and bench.md under dir.
func WriteReports(dir string, r *Result) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create reports directory: %w", err)
	}
	data, err := r.JSON()
	if err != nil {
		return fmt.Errorf("failed to encode bench result: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, "bench.json"), data); err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(dir, "bench.md"), []byte(r.Markdown()))
}

// writeFileAtomic writes via a temp file and rename so readers never see
// a partial report.
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

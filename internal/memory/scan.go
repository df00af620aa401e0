package memory

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// scanConcurrency bounds parallel file reads during a scan.
const scanConcurrency = 8

// Scan inspects every markdown file in the memory bank. Results come back
// sorted by file name. A missing directory is an empty bank, not an error.
func Scan(ctx context.Context, dir string, rules Rules) ([]File, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// Snapshot dirs and other tool state never count as memory
			if strings.HasPrefix(d.Name(), ".") && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), ".md") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to walk memory directory: %w", err)
	}

	var mu sync.Mutex
	files := make([]File, 0, len(paths))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(scanConcurrency)
	for _, path := range paths {
		path := path
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f, err := Inspect(path, rules)
			if err != nil {
				return err
			}
			mu.Lock()
			files = append(files, f)
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Summary rolls a scan up for reports.
type Summary struct {
	Files      int            `json:"files"`
	TotalBytes int64          `json:"total_bytes"`
	TotalLines int            `json:"total_lines"`
	ByHealth   map[Health]int `json:"by_health"`
	IssueCount int            `json:"issue_count"`
	Largest    string         `json:"largest,omitempty"`
	Stalest    string         `json:"stalest,omitempty"`
}

// Summarize computes bank-level totals from inspected files.
func Summarize(files []File) Summary {
	s := Summary{ByHealth: map[Health]int{}}

	var largest int64 = -1
	stalest := time.Time{}
	for _, f := range files {
		s.Files++
		s.TotalBytes += f.Size
		s.TotalLines += f.Lines
		s.ByHealth[f.Health]++
		s.IssueCount += len(f.Issues)

		if f.Size > largest {
			largest = f.Size
			s.Largest = f.Name
		}
		if stalest.IsZero() || f.Modified.Before(stalest) {
			stalest = f.Modified
			s.Stalest = f.Name
		}
	}
	return s
}

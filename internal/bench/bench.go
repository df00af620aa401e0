// Package bench measures routing latency and accuracy. Suites are
// YAML-defined task lists that can be run manually or from maintenance to
// continuously evaluate routing behavior.
package bench

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"steward/internal/agent"
	"steward/internal/router"
)

// Suite is a collection of routing cases.
type Suite struct {
	Version int    `yaml:"version"`
	Cases   []Case `yaml:"cases"`
}

// Case is a single routing case. An empty Expect means the case is
// measured for latency only and does not count toward accuracy.
type Case struct {
	Task   string `yaml:"task"`
	Expect string `yaml:"expect,omitempty"`
}

// LoadSuite reads a YAML suite file from disk.
func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Suite
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse suite YAML: %w", err)
	}
	return &s, nil
}

// SyntheticSuite derives a suite from the registry itself: one case per
// trigger phrase, expecting the agent that declared it. Used when no
// fixture file is given.
func SyntheticSuite(reg *agent.Registry) *Suite {
	s := &Suite{Version: 1}
	for _, a := range reg.All() {
		for _, trigger := range a.Triggers {
			s.Cases = append(s.Cases, Case{
				Task:   fmt.Sprintf("please handle this: %s", trigger),
				Expect: a.Name,
			})
		}
		if len(a.Triggers) == 0 {
			s.Cases = append(s.Cases, Case{
				Task: fmt.Sprintf("work suited to %s", a.Name),
			})
		}
	}
	return s
}

// Options control a bench run.
type Options struct {
	Iterations int
	Warmup     int
}

// DefaultOptions returns the standard run parameters.
func DefaultOptions() Options {
	return Options{Iterations: 100, Warmup: 10}
}

// Stats summarize routing latency in nanoseconds.
type Stats struct {
	Min  int64 `json:"min_ns"`
	Mean int64 `json:"mean_ns"`
	P50  int64 `json:"p50_ns"`
	P95  int64 `json:"p95_ns"`
	P99  int64 `json:"p99_ns"`
	Max  int64 `json:"max_ns"`
}

// Mismatch is one case whose routed agent differed from the expectation.
type Mismatch struct {
	Task string `json:"task"`
	Want string `json:"want"`
	Got  string `json:"got"`
}

// Result is the outcome of one bench run.
type Result struct {
	StartedAt  time.Time     `json:"started_at"`
	Cases      int           `json:"cases"`
	Iterations int           `json:"iterations"`
	Samples    int           `json:"samples"`
	Latency    Stats         `json:"latency"`
	Scored     int           `json:"scored"` // cases with an expectation
	Matched    int           `json:"matched"`
	Accuracy   float64       `json:"accuracy"`
	Mismatches []Mismatch    `json:"mismatches,omitempty"`
	Elapsed    time.Duration `json:"elapsed_ns"`
}

// Run routes every case Iterations times and reports latency and
// accuracy. Accuracy is checked once per case since routing is
// deterministic for a fixed registry.
func Run(r *router.Router, suite *Suite, opts Options) *Result {
	if opts.Iterations <= 0 {
		opts.Iterations = DefaultOptions().Iterations
	}
	if opts.Warmup < 0 {
		opts.Warmup = 0
	}

	res := &Result{
		StartedAt:  time.Now().UTC(),
		Cases:      len(suite.Cases),
		Iterations: opts.Iterations,
	}
	if len(suite.Cases) == 0 {
		return res
	}

	for i := 0; i < opts.Warmup; i++ {
		for _, c := range suite.Cases {
			r.Route(c.Task)
		}
	}

	for _, c := range suite.Cases {
		if c.Expect == "" {
			continue
		}
		res.Scored++
		d := r.Route(c.Task)
		if d.Agent == c.Expect {
			res.Matched++
		} else {
			res.Mismatches = append(res.Mismatches, Mismatch{Task: c.Task, Want: c.Expect, Got: d.Agent})
		}
	}
	if res.Scored > 0 {
		res.Accuracy = float64(res.Matched) / float64(res.Scored)
	}

	start := time.Now()
	samples := make([]int64, 0, opts.Iterations*len(suite.Cases))
	for i := 0; i < opts.Iterations; i++ {
		for _, c := range suite.Cases {
			began := time.Now()
			r.Route(c.Task)
			samples = append(samples, time.Since(began).Nanoseconds())
		}
	}
	res.Elapsed = time.Since(start)
	res.Samples = len(samples)
	res.Latency = summarize(samples)
	return res
}

// summarize computes latency stats from raw samples.
func summarize(samples []int64) Stats {
	if len(samples) == 0 {
		return Stats{}
	}

	sorted := make([]int64, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum int64
	for _, s := range sorted {
		sum += s
	}

	return Stats{
		Min:  sorted[0],
		Mean: sum / int64(len(sorted)),
		P50:  percentile(sorted, 50),
		P95:  percentile(sorted, 95),
		P99:  percentile(sorted, 99),
		Max:  sorted[len(sorted)-1],
	}
}

// percentile returns the nearest-rank percentile of a sorted sample set.
func percentile(sorted []int64, p int) int64 {
	idx := (len(sorted) - 1) * p / 100
	return sorted[idx]
}

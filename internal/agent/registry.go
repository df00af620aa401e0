package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Problem records a definition file that failed to parse or validate.
type Problem struct {
	Path string
	Err  error
}

// Registry is the loaded set of sub-agent definitions. Project-level
// definitions shadow user-level ones with the same name.
type Registry struct {
	agents   map[string]*Agent
	names    []string
	problems []Problem
	shadowed []string
}

// LoadRegistry loads definitions from dirs in priority order: the first
// directory containing a name wins. Missing directories are skipped;
// unparseable files are recorded as problems, not load failures.
func LoadRegistry(limits Limits, dirs ...string) (*Registry, error) {
	reg := &Registry{agents: make(map[string]*Agent)}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read agents directory %s: %w", dir, err)
		}

		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
				continue
			}
			path := filepath.Join(dir, entry.Name())

			a, err := ParseFile(path, limits)
			if err != nil {
				reg.problems = append(reg.problems, Problem{Path: path, Err: err})
				continue
			}

			if existing, ok := reg.agents[a.Name]; ok {
				if filepath.Dir(existing.Path) == dir {
					// Same directory: a genuine duplicate definition
					reg.problems = append(reg.problems, Problem{
						Path: path,
						Err:  fmt.Errorf("duplicate agent name %q (already defined in %s)", a.Name, existing.Path),
					})
				} else {
					reg.shadowed = append(reg.shadowed, path)
				}
				continue
			}

			reg.agents[a.Name] = a
		}
	}

	reg.names = make([]string, 0, len(reg.agents))
	for name := range reg.agents {
		reg.names = append(reg.names, name)
	}
	sort.Strings(reg.names)

	return reg, nil
}

// Get returns the agent by name.
func (r *Registry) Get(name string) (*Agent, bool) {
	a, ok := r.agents[name]
	return a, ok
}

// All returns every loaded agent in name order.
func (r *Registry) All() []*Agent {
	out := make([]*Agent, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.agents[name])
	}
	return out
}

// Names returns the sorted agent names.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Len returns the number of loaded agents.
func (r *Registry) Len() int {
	return len(r.agents)
}

// Problems returns files that failed to parse or validate.
func (r *Registry) Problems() []Problem {
	return r.problems
}

// Shadowed returns user-level files hidden by project-level definitions.
func (r *Registry) Shadowed() []string {
	return r.shadowed
}

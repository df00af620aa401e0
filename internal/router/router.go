// Package router selects the agent best suited to a task description.
// Routing is deliberately transparent: a weighted keyword scorer over the
// registry, no learned models and no hidden state. Given the same registry
// and task it always returns the same decision.
package router

import (
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"steward/internal/agent"
)

// Weights control how strongly each agent field pulls a task toward the
// agent. Trigger phrases are authored intent and score highest.
type Weights struct {
	Trigger     float64
	Name        float64
	Description float64
}

// DefaultWeights returns the standard field weighting.
func DefaultWeights() Weights {
	return Weights{Trigger: 3, Name: 2, Description: 1}
}

// Options configure a Router.
type Options struct {
	Weights Weights

	// MinScore is the lowest score that still counts as a match.
	MinScore float64

	// DefaultAgent receives tasks that no agent matched. Empty disables
	// the fallback.
	DefaultAgent string
}

// DefaultOptions returns the standard routing configuration.
func DefaultOptions() Options {
	return Options{Weights: DefaultWeights(), MinScore: 1}
}

// Match records one scoring hit: which token or phrase matched which
// agent field, and what it contributed.
type Match struct {
	Token string  `json:"token"`
	Field string  `json:"field"` // trigger, name, or description
	Score float64 `json:"score"`
}

// Candidate is one agent's total score against a task.
type Candidate struct {
	Agent    string  `json:"agent"`
	Score    float64 `json:"score"`
	Priority int     `json:"priority"`
	Matched  []Match `json:"matched,omitempty"`
}

// Decision is the outcome of routing one task.
type Decision struct {
	Task       string        `json:"task"`
	Agent      string        `json:"agent"` // empty when nothing matched
	Score      float64       `json:"score"`
	Confidence float64       `json:"confidence"` // winner's share of all candidate scores
	Fallback   bool          `json:"fallback"`   // true when the default agent was used
	Matched    []Match       `json:"matched,omitempty"`
	Alternates []Candidate   `json:"alternates,omitempty"`
	Elapsed    time.Duration `json:"elapsed_ns"`
}

// Router scores tasks against an agent registry.
type Router struct {
	reg  *agent.Registry
	opts Options
}

// New creates a router over the given registry.
func New(reg *agent.Registry, opts Options) *Router {
	if opts.Weights == (Weights{}) {
		opts.Weights = DefaultWeights()
	}
	return &Router{reg: reg, opts: opts}
}

// Route picks the best agent for a task.
func (r *Router) Route(task string) Decision {
	start := time.Now()

	candidates := r.score(task)
	decision := Decision{Task: task}

	var total float64
	for _, c := range candidates {
		total += c.Score
	}

	if len(candidates) > 0 && candidates[0].Score >= r.opts.MinScore {
		best := candidates[0]
		decision.Agent = best.Agent
		decision.Score = best.Score
		decision.Matched = best.Matched
		if total > 0 {
			decision.Confidence = best.Score / total
		}
		if len(candidates) > 1 {
			n := len(candidates) - 1
			if n > 2 {
				n = 2
			}
			decision.Alternates = candidates[1 : 1+n]
		}
	} else if r.opts.DefaultAgent != "" {
		decision.Agent = r.opts.DefaultAgent
		decision.Fallback = true
	}

	decision.Elapsed = time.Since(start)
	return decision
}

// Explain returns every agent that scored against the task, best first.
// Useful for answering "why did this task go there".
func (r *Router) Explain(task string) []Candidate {
	return r.score(task)
}

// score runs the task against all agents and returns scoring candidates
// in decision order.
func (r *Router) score(task string) []Candidate {
	taskLower := strings.ToLower(task)
	tokens := Tokenize(task)

	var candidates []Candidate
	for _, a := range r.reg.All() {
		c := r.scoreAgent(a, taskLower, tokens)
		if c.Score > 0 {
			candidates = append(candidates, c)
		}
	}

	// Decision order: score, then author priority, then name so that
	// equal agents always resolve the same way.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].Agent < candidates[j].Agent
	})
	return candidates
}

// scoreAgent scores one agent against the prepared task forms.
func (r *Router) scoreAgent(a *agent.Agent, taskLower string, tokens []string) Candidate {
	c := Candidate{Agent: a.Name, Priority: a.Priority}
	w := r.opts.Weights

	for _, trigger := range a.Triggers {
		if containsPhrase(taskLower, trigger) {
			c.Score += w.Trigger
			c.Matched = append(c.Matched, Match{Token: trigger, Field: "trigger", Score: w.Trigger})
		}
	}

	nameSet := tokenSet(strings.ReplaceAll(a.Name, "-", " "))
	descSet := tokenSet(a.Description)
	for _, tok := range tokens {
		if nameSet[tok] {
			c.Score += w.Name
			c.Matched = append(c.Matched, Match{Token: tok, Field: "name", Score: w.Name})
		}
		if descSet[tok] {
			c.Score += w.Description
			c.Matched = append(c.Matched, Match{Token: tok, Field: "description", Score: w.Description})
		}
	}
	return c
}

// Tokenize lowercases a string and splits it into scoring tokens.
// Stopwords and tokens shorter than three runes are dropped; duplicates
// are removed so a repeated word cannot inflate a score.
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]bool, len(fields))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 3 || stopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		tokens = append(tokens, f)
	}
	return tokens
}

// tokenSet returns the token membership set for an agent field.
func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range Tokenize(s) {
		set[tok] = true
	}
	return set
}

// containsPhrase reports whether phrase occurs in s on word boundaries,
// so the trigger "rust" does not fire on "trust me".
func containsPhrase(s, phrase string) bool {
	if phrase == "" {
		return false
	}
	for from := 0; ; {
		i := strings.Index(s[from:], phrase)
		if i < 0 {
			return false
		}
		i += from
		end := i + len(phrase)
		if boundaryBefore(s, i) && boundaryAfter(s, end) {
			return true
		}
		from = i + 1
	}
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// stopwords are task words too common to carry routing signal.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "from": true, "into": true, "when": true, "then": true,
	"have": true, "has": true, "had": true, "will": true, "would": true,
	"could": true, "should": true, "can": true, "are": true, "was": true,
	"were": true, "been": true, "being": true, "its": true, "our": true,
	"your": true, "their": true, "all": true, "any": true, "some": true,
	"not": true, "but": true, "you": true, "please": true, "need": true,
	"want": true, "make": true, "help": true, "use": true, "using": true,
	"about": true, "after": true, "before": true, "there": true, "here": true,
	"what": true, "which": true, "how": true, "why": true, "where": true,
	"more": true, "most": true, "other": true, "than": true, "them": true,
	"they": true, "get": true, "new": true, "out": true, "also": true,
}

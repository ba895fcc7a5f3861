package skillgraph

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCycle is wrapped by New when the prerequisite edges form a cycle.
var ErrCycle = errors.New("prerequisite cycle")

// validate performs all structural checks on modules and edges.
// Returns a combined error describing all problems found, or nil if valid.
func validate(modules []Module, edges []Edge) error {
	var errs []string

	ids := make(map[string]bool, len(modules))
	for _, m := range modules {
		if m.ID == "" {
			errs = append(errs, "module with empty ID")
			continue
		}
		if ids[m.ID] {
			errs = append(errs, fmt.Sprintf("duplicate module ID: %q", m.ID))
		}
		ids[m.ID] = true
		if m.SkillKey == "" {
			errs = append(errs, fmt.Sprintf("module %q has no skill", m.ID))
		}
	}

	type pair struct{ from, to string }
	seen := make(map[pair]bool, len(edges))
	for _, e := range edges {
		if e.From == "" || e.To == "" {
			errs = append(errs, fmt.Sprintf("edge %q -> %q has an empty endpoint", e.From, e.To))
			continue
		}
		if e.From == e.To {
			errs = append(errs, fmt.Sprintf("skill %q lists itself as a prerequisite", e.From))
		}
		if seen[pair{e.From, e.To}] {
			errs = append(errs, fmt.Sprintf("duplicate edge %q -> %q", e.From, e.To))
		}
		seen[pair{e.From, e.To}] = true
		if e.RequiredMastery < 0 || e.RequiredMastery > 100 {
			errs = append(errs, fmt.Sprintf("edge %q -> %q threshold %v outside [0,100]", e.From, e.To, e.RequiredMastery))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("skill graph validation failed:\n  %s", strings.Join(errs, "\n  "))
	}

	if order, ok := topoSort(skillSet(modules, edges), edges); !ok {
		visited := make(map[string]bool, len(order))
		for _, s := range order {
			visited[s] = true
		}
		var stuck []string
		for _, s := range skillSet(modules, edges) {
			if !visited[s] {
				stuck = append(stuck, s)
			}
		}
		return fmt.Errorf("%w among skills: %s", ErrCycle, strings.Join(stuck, ", "))
	}
	return nil
}

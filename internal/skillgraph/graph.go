package skillgraph

import (
	"fmt"
	"sort"
)

// Module is a unit of learning content that targets one skill.
type Module struct {
	ID        string `json:"id" yaml:"id"`
	Title     string `json:"title" yaml:"title"`
	SkillKey  string `json:"skillKey" yaml:"skill"`
	Subject   string `json:"subject" yaml:"subject"`
	PathOrder int    `json:"pathOrder" yaml:"path_order"`
}

// Edge states that To requires RequiredMastery (0-100) on From.
type Edge struct {
	From            string  `json:"from" yaml:"from"`
	To              string  `json:"to" yaml:"to"`
	RequiredMastery float64 `json:"requiredMastery" yaml:"required_mastery"`
}

// Gap describes one unmet prerequisite.
type Gap struct {
	Skill        string  `json:"skill"`
	Prerequisite string  `json:"prerequisite"`
	Required     float64 `json:"required"`
	Current      float64 `json:"current"`
	Gap          float64 `json:"gap"`
}

// Graph is an immutable, validated prerequisite DAG over skills plus the
// modules that target them.
type Graph struct {
	modules    []Module
	byModule   map[string]*Module
	bySkill    map[string][]Module
	prereqs    map[string][]Edge
	dependents map[string][]string
	skills     []string
	topoOrder  []string
	topoIndex  map[string]int
}

// New validates modules and edges and builds the graph with its indices.
func New(modules []Module, edges []Edge) (*Graph, error) {
	if err := validate(modules, edges); err != nil {
		return nil, err
	}

	g := &Graph{
		modules:    append([]Module(nil), modules...),
		byModule:   make(map[string]*Module, len(modules)),
		bySkill:    make(map[string][]Module),
		prereqs:    make(map[string][]Edge),
		dependents: make(map[string][]string),
		topoIndex:  make(map[string]int),
	}

	sort.SliceStable(g.modules, func(i, j int) bool {
		if g.modules[i].PathOrder != g.modules[j].PathOrder {
			return g.modules[i].PathOrder < g.modules[j].PathOrder
		}
		return g.modules[i].ID < g.modules[j].ID
	})
	for i := range g.modules {
		m := &g.modules[i]
		g.byModule[m.ID] = m
		g.bySkill[m.SkillKey] = append(g.bySkill[m.SkillKey], *m)
	}

	for _, e := range edges {
		g.prereqs[e.To] = append(g.prereqs[e.To], e)
		g.dependents[e.From] = append(g.dependents[e.From], e.To)
	}
	for skill := range g.prereqs {
		sort.Slice(g.prereqs[skill], func(i, j int) bool {
			return g.prereqs[skill][i].From < g.prereqs[skill][j].From
		})
	}

	g.skills = skillSet(modules, edges)
	g.topoOrder, _ = topoSort(g.skills, edges)
	for i, s := range g.topoOrder {
		g.topoIndex[s] = i
	}
	return g, nil
}

// Modules returns all modules in declared path order.
func (g *Graph) Modules() []Module {
	return append([]Module(nil), g.modules...)
}

// Module returns a module by ID.
func (g *Graph) Module(id string) (Module, error) {
	m, ok := g.byModule[id]
	if !ok {
		return Module{}, fmt.Errorf("module %q not found", id)
	}
	return *m, nil
}

// ModulesForSkill returns the modules that target a skill, in path order.
func (g *Graph) ModulesForSkill(skill string) []Module {
	return g.bySkill[skill]
}

// Skills returns every skill referenced by modules or edges, sorted.
func (g *Graph) Skills() []string {
	return append([]string(nil), g.skills...)
}

// Prerequisites returns the incoming edges of a skill.
func (g *Graph) Prerequisites(skill string) []Edge {
	return g.prereqs[skill]
}

// Dependents returns the skills that directly require skill.
func (g *Graph) Dependents(skill string) []string {
	return g.dependents[skill]
}

// TopologicalOrder returns skills so that every prerequisite precedes its
// dependents. Ties are broken alphabetically.
func (g *Graph) TopologicalOrder() []string {
	return append([]string(nil), g.topoOrder...)
}

// Depth returns the position of a skill in topological order, or -1.
func (g *Graph) Depth(skill string) int {
	if i, ok := g.topoIndex[skill]; ok {
		return i
	}
	return -1
}

// Blockers returns the unmet prerequisites of skill given a mastery lookup.
// An empty result means the skill is unlocked.
func (g *Graph) Blockers(skill string, masteryOf func(skill string) float64) []Gap {
	var gaps []Gap
	for _, e := range g.prereqs[skill] {
		current := masteryOf(e.From)
		if current < e.RequiredMastery {
			gaps = append(gaps, Gap{
				Skill:        skill,
				Prerequisite: e.From,
				Required:     e.RequiredMastery,
				Current:      current,
				Gap:          e.RequiredMastery - current,
			})
		}
	}
	return gaps
}

func skillSet(modules []Module, edges []Edge) []string {
	set := make(map[string]bool)
	for _, m := range modules {
		set[m.SkillKey] = true
	}
	for _, e := range edges {
		set[e.From] = true
		set[e.To] = true
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// topoSort runs Kahn's algorithm over skills. It returns the order and
// whether every skill was visited; a partial order means a cycle exists.
func topoSort(skills []string, edges []Edge) ([]string, bool) {
	inDegree := make(map[string]int, len(skills))
	adj := make(map[string][]string)
	for _, s := range skills {
		inDegree[s] = 0
	}
	for _, e := range edges {
		inDegree[e.To]++
		adj[e.From] = append(adj[e.From], e.To)
	}

	var queue []string
	for _, s := range skills {
		if inDegree[s] == 0 {
			queue = append(queue, s)
		}
	}

	order := make([]string, 0, len(skills))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		next := append([]string(nil), adj[id]...)
		sort.Strings(next)
		for _, dep := range next {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}
	return order, len(order) == len(skills)
}

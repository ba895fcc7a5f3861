package skillgraph

import (
	"errors"
	"slices"
	"testing"
)

func testGraph(t *testing.T) *Graph {
	t.Helper()
	g, err := New(
		[]Module{
			{ID: "m-frac", SkillKey: "fractions", Subject: "math", PathOrder: 3},
			{ID: "m-add", SkillKey: "addition", Subject: "math", PathOrder: 1},
			{ID: "m-mul", SkillKey: "multiplication", Subject: "math", PathOrder: 2},
		},
		[]Edge{
			{From: "addition", To: "multiplication", RequiredMastery: 70},
			{From: "multiplication", To: "fractions", RequiredMastery: 60},
			{From: "addition", To: "fractions", RequiredMastery: 80},
		},
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func TestModules_PathOrder(t *testing.T) {
	g := testGraph(t)
	var ids []string
	for _, m := range g.Modules() {
		ids = append(ids, m.ID)
	}
	if !slices.Equal(ids, []string{"m-add", "m-mul", "m-frac"}) {
		t.Errorf("Modules() = %v", ids)
	}
}

func TestTopologicalOrder(t *testing.T) {
	g := testGraph(t)
	order := g.TopologicalOrder()
	if !slices.Equal(order, []string{"addition", "multiplication", "fractions"}) {
		t.Errorf("TopologicalOrder() = %v", order)
	}
	if g.Depth("fractions") != 2 || g.Depth("unknown") != -1 {
		t.Errorf("unexpected depths")
	}
}

func TestBlockers(t *testing.T) {
	g := testGraph(t)
	mastery := map[string]float64{"addition": 75, "multiplication": 65}
	lookup := func(s string) float64 { return mastery[s] }

	if gaps := g.Blockers("multiplication", lookup); len(gaps) != 0 {
		t.Errorf("multiplication should be unlocked, got %+v", gaps)
	}

	gaps := g.Blockers("fractions", lookup)
	if len(gaps) != 1 {
		t.Fatalf("Blockers(fractions) = %+v, want one gap", gaps)
	}
	if gaps[0].Prerequisite != "addition" || gaps[0].Gap != 5 {
		t.Errorf("gap = %+v, want addition short by 5", gaps[0])
	}

	if gaps := g.Blockers("addition", lookup); gaps != nil {
		t.Errorf("root skill should have no blockers")
	}
}

func TestNew_RejectsCycle(t *testing.T) {
	_, err := New(nil, []Edge{
		{From: "a", To: "b", RequiredMastery: 50},
		{From: "b", To: "c", RequiredMastery: 50},
		{From: "c", To: "a", RequiredMastery: 50},
	})
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}
}

func TestNew_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		modules []Module
		edges   []Edge
	}{
		{"duplicate module", []Module{{ID: "m", SkillKey: "a"}, {ID: "m", SkillKey: "b"}}, nil},
		{"module without skill", []Module{{ID: "m"}}, nil},
		{"self edge", nil, []Edge{{From: "a", To: "a"}}},
		{"threshold range", nil, []Edge{{From: "a", To: "b", RequiredMastery: 120}}},
		{"duplicate edge", nil, []Edge{{From: "a", To: "b"}, {From: "a", To: "b"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.modules, tt.edges); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

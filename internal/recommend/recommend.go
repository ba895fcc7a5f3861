// Package recommend selects the next learning module for a student from an
// explicit mastery snapshot and a prerequisite graph. It keeps no state.
package recommend

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/abhisek/gradewise/internal/mastery"
	"github.com/abhisek/gradewise/internal/question"
	"github.com/abhisek/gradewise/internal/skillgraph"
	"github.com/abhisek/gradewise/internal/spacedrep"
)

// ErrNoModules is returned when the graph has no modules to recommend.
var ErrNoModules = errors.New("no modules to recommend")

// Type classifies a recommendation.
type Type string

const (
	TypeReview     Type = "REVIEW"
	TypeRemedial   Type = "REMEDIAL"
	TypeDiagnostic Type = "DIAGNOSTIC"
	TypeNextModule Type = "NEXT_MODULE"
)

// Config holds the ranking thresholds.
type Config struct {
	// MasteredThreshold marks a skill as mastered for priority banding.
	MasteredThreshold float64
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{MasteredThreshold: 90}
}

// Snapshot is a read-only view of one student's mastery records by skill.
type Snapshot struct {
	StudentID string
	Records   map[string]*mastery.Record
}

// NewSnapshot indexes records by skill key.
func NewSnapshot(studentID string, records []*mastery.Record) Snapshot {
	s := Snapshot{StudentID: studentID, Records: make(map[string]*mastery.Record, len(records))}
	for _, r := range records {
		s.Records[r.SkillKey] = r
	}
	return s
}

// Level returns the mastery level of a skill, 0 if never practiced.
func (s Snapshot) Level(skill string) float64 {
	if r, ok := s.Records[skill]; ok {
		return r.MasteryLevel
	}
	return 0
}

// Candidate is one ranked module.
type Candidate struct {
	Module      skillgraph.Module `json:"module"`
	Mastery     float64           `json:"mastery"`
	Practiced   bool              `json:"practiced"`
	Due         bool              `json:"due"`
	OverdueDays float64           `json:"overdueDays"`
	Blockers    []skillgraph.Gap  `json:"blockers,omitempty"`
}

// Blocked reports whether any prerequisite is unmet.
func (c *Candidate) Blocked() bool { return len(c.Blockers) > 0 }

// Recommendation is the engine's answer. Exactly one of Module or
// FullyBlocked is set.
type Recommendation struct {
	StudentID             string              `json:"studentId"`
	Type                  Type                `json:"type,omitempty"`
	Priority              int                 `json:"priority,omitempty"`
	Module                *skillgraph.Module  `json:"module,omitempty"`
	Mastery               float64             `json:"mastery"`
	RecommendedDifficulty question.Difficulty `json:"recommendedDifficulty,omitempty"`
	RemedialSkill         string              `json:"remedialSkill,omitempty"`
	Reason                string              `json:"reason"`

	FullyBlocked bool             `json:"fullyBlocked"`
	Blockers     []skillgraph.Gap `json:"blockers,omitempty"`

	Ranked []Candidate `json:"ranked"`
}

// Rank evaluates every module of the graph for the student. Unblocked
// modules come first, then due reviews (most overdue first), then the
// weakest skills, then declared path order.
func Rank(snap Snapshot, g *skillgraph.Graph, now time.Time) []Candidate {
	modules := g.Modules()
	out := make([]Candidate, 0, len(modules))
	for _, m := range modules {
		c := Candidate{Module: m, Mastery: snap.Level(m.SkillKey)}
		if r, ok := snap.Records[m.SkillKey]; ok {
			c.Practiced = true
			c.Due = spacedrep.IsDue(r.NextReviewAt, now)
			c.OverdueDays = spacedrep.OverdueDays(r.NextReviewAt, now)
		}
		c.Blockers = g.Blockers(m.SkillKey, snap.Level)
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Blocked() != b.Blocked() {
			return !a.Blocked()
		}
		if a.Due != b.Due {
			return a.Due
		}
		if a.Due && a.OverdueDays != b.OverdueDays {
			return a.OverdueDays > b.OverdueDays
		}
		if a.Mastery != b.Mastery {
			return a.Mastery < b.Mastery
		}
		if a.Module.PathOrder != b.Module.PathOrder {
			return a.Module.PathOrder < b.Module.PathOrder
		}
		return a.Module.ID < b.Module.ID
	})
	return out
}

// Recommend picks the next module. When every module is blocked it returns a
// FullyBlocked result listing each unmet prerequisite instead of a module.
func Recommend(snap Snapshot, g *skillgraph.Graph, now time.Time, cfg Config) (*Recommendation, error) {
	ranked := Rank(snap, g, now)
	if len(ranked) == 0 {
		return nil, ErrNoModules
	}

	rec := &Recommendation{StudentID: snap.StudentID, Ranked: ranked}

	top := ranked[0]
	if top.Blocked() {
		rec.FullyBlocked = true
		rec.Blockers = collectBlockers(ranked)
		rec.Reason = fmt.Sprintf("all %d modules are blocked by unmet prerequisites", len(ranked))
		return rec, nil
	}

	m := top.Module
	rec.Module = &m
	rec.Mastery = top.Mastery
	rec.RecommendedDifficulty = mastery.RecommendedDifficulty(top.Mastery)

	switch {
	case top.Due:
		rec.Type = TypeReview
		rec.Priority = 1
		rec.Reason = fmt.Sprintf("review of %s is due (%.1f days overdue)", m.SkillKey, top.OverdueDays)

	case remedialSkill(snap, g, m.SkillKey) != "":
		rec.Type = TypeRemedial
		rec.Priority = 1
		rec.RemedialSkill = remedialSkill(snap, g, m.SkillKey)
		rec.RecommendedDifficulty = question.DifficultyEasy
		rec.Reason = fmt.Sprintf("repeated misses on %s call for easier practice", rec.RemedialSkill)

	case !practicedSubject(snap, g, m.Subject):
		rec.Type = TypeDiagnostic
		rec.Priority = 2
		rec.Reason = "no mastery data yet; start with a diagnostic"

	default:
		rec.Type = TypeNextModule
		rec.Priority = priorityBand(top.Mastery, cfg.MasteredThreshold)
		rec.Reason = fmt.Sprintf("%s is the weakest unlocked skill at %.0f%%", m.SkillKey, top.Mastery)
	}
	return rec, nil
}

// remedialSkill returns the target or prerequisite skill carrying a
// step-down signal, preferring the target itself.
func remedialSkill(snap Snapshot, g *skillgraph.Graph, skill string) string {
	if r, ok := snap.Records[skill]; ok && r.Signal == mastery.SignalStepDown {
		return skill
	}
	for _, e := range g.Prerequisites(skill) {
		if r, ok := snap.Records[e.From]; ok && r.Signal == mastery.SignalStepDown {
			return e.From
		}
	}
	return ""
}

// practicedSubject reports whether the student has any record for a skill
// taught in subject. An empty subject covers the whole graph.
func practicedSubject(snap Snapshot, g *skillgraph.Graph, subject string) bool {
	for _, m := range g.Modules() {
		if subject != "" && m.Subject != subject {
			continue
		}
		if _, ok := snap.Records[m.SkillKey]; ok {
			return true
		}
	}
	return false
}

func priorityBand(level, mastered float64) int {
	switch {
	case level < 40:
		return 2
	case level < 75:
		return 3
	case level < mastered:
		return 4
	default:
		return 5
	}
}

func collectBlockers(ranked []Candidate) []skillgraph.Gap {
	type key struct{ skill, prereq string }
	seen := make(map[key]bool)
	var out []skillgraph.Gap
	for _, c := range ranked {
		for _, gap := range c.Blockers {
			k := key{gap.Skill, gap.Prerequisite}
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, gap)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Skill != out[j].Skill {
			return out[i].Skill < out[j].Skill
		}
		return out[i].Prerequisite < out[j].Prerequisite
	})
	return out
}

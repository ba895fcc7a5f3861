package rubric

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrUnknownCriterion is returned when scores name a criterion the rubric
// does not have.
var ErrUnknownCriterion = errors.New("unknown criterion")

// Criterion is one scored dimension of a rubric.
type Criterion struct {
	ID        string  `json:"id" yaml:"id"`
	Name      string  `json:"name" yaml:"name"`
	MaxPoints float64 `json:"maxPoints" yaml:"max_points"`
	// Weight is the criterion's share of the total, in percent.
	Weight float64 `json:"weight" yaml:"weight"`
}

// Rubric scores essays and peer-reviewed submissions criterion by criterion.
type Rubric struct {
	ID       string      `json:"id" yaml:"id"`
	Name     string      `json:"name" yaml:"name"`
	Criteria []Criterion `json:"criteria" yaml:"criteria"`
}

// Validate checks that the rubric can produce scores.
func (r *Rubric) Validate() error {
	if len(r.Criteria) == 0 {
		return fmt.Errorf("rubric %q has no criteria", r.ID)
	}
	seen := make(map[string]bool, len(r.Criteria))
	for _, c := range r.Criteria {
		if seen[c.ID] {
			return fmt.Errorf("rubric %q: duplicate criterion %q", r.ID, c.ID)
		}
		seen[c.ID] = true
		if c.MaxPoints <= 0 {
			return fmt.Errorf("rubric %q: criterion %q needs positive max points", r.ID, c.ID)
		}
		if c.Weight < 0 {
			return fmt.Errorf("rubric %q: criterion %q has negative weight", r.ID, c.ID)
		}
	}
	return nil
}

// weights returns normalized criterion weights summing to 1. A rubric with no
// explicit weights weighs criteria equally.
func (r *Rubric) weights() map[string]float64 {
	total := 0.0
	for _, c := range r.Criteria {
		total += c.Weight
	}
	out := make(map[string]float64, len(r.Criteria))
	for _, c := range r.Criteria {
		if total == 0 {
			out[c.ID] = 1 / float64(len(r.Criteria))
		} else {
			out[c.ID] = c.Weight / total
		}
	}
	return out
}

// Score turns per-criterion points into a weighted fraction in [0,1].
// Each criterion is clamped to its max; criteria without a score count as 0.
func (r *Rubric) Score(scores map[string]float64) (float64, error) {
	if err := r.Validate(); err != nil {
		return 0, err
	}
	w := r.weights()
	byID := make(map[string]Criterion, len(r.Criteria))
	for _, c := range r.Criteria {
		byID[c.ID] = c
	}

	fraction := 0.0
	for id, pts := range scores {
		c, ok := byID[id]
		if !ok {
			return 0, fmt.Errorf("rubric %q: %w %q", r.ID, ErrUnknownCriterion, id)
		}
		fraction += w[id] * math.Max(0, math.Min(pts, c.MaxPoints)) / c.MaxPoints
	}
	return math.Min(1, fraction), nil
}

// CriterionAverages averages raw points per criterion across score sets.
// Criteria are returned in rubric order.
func (r *Rubric) CriterionAverages(sets []map[string]float64) []CriterionAverage {
	out := make([]CriterionAverage, 0, len(r.Criteria))
	for _, c := range r.Criteria {
		sum, n := 0.0, 0
		for _, s := range sets {
			if v, ok := s[c.ID]; ok {
				sum += v
				n++
			}
		}
		avg := 0.0
		if n > 0 {
			avg = sum / float64(n)
		}
		out = append(out, CriterionAverage{CriterionID: c.ID, Average: avg, Count: n})
	}
	return out
}

// CriterionAverage is the mean of one criterion across reviews.
type CriterionAverage struct {
	CriterionID string  `json:"criterionId"`
	Average     float64 `json:"average"`
	Count       int     `json:"count"`
}

// Average returns the mean of the fractions, or 0 for none.
func Average(fractions []float64) float64 {
	if len(fractions) == 0 {
		return 0
	}
	sum := 0.0
	for _, f := range fractions {
		sum += f
	}
	return sum / float64(len(fractions))
}

// Median returns the median of the fractions, or 0 for none.
func Median(fractions []float64) float64 {
	if len(fractions) == 0 {
		return 0
	}
	s := append([]float64(nil), fractions...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

package mastery

import (
	"math"
	"time"

	"github.com/abhisek/gradewise/internal/question"
)

// Category is a coarse label for a mastery level.
type Category string

const (
	CategoryBeginner   Category = "Beginner"
	CategoryDeveloping Category = "Developing"
	CategoryCompetent  Category = "Competent"
	CategoryProficient Category = "Proficient"
	CategoryExpert     Category = "Expert"
)

// AllCategories returns categories from lowest to highest.
func AllCategories() []Category {
	return []Category{CategoryBeginner, CategoryDeveloping, CategoryCompetent, CategoryProficient, CategoryExpert}
}

// CategoryOf maps a level to its category.
func CategoryOf(level float64) Category {
	switch {
	case level >= 90:
		return CategoryExpert
	case level >= 75:
		return CategoryProficient
	case level >= 60:
		return CategoryCompetent
	case level >= 40:
		return CategoryDeveloping
	default:
		return CategoryBeginner
	}
}

// RecommendedDifficulty returns the difficulty to practice next at a level.
func RecommendedDifficulty(level float64) question.Difficulty {
	switch {
	case level >= 80:
		return question.DifficultyHard
	case level >= 50:
		return question.DifficultyMedium
	default:
		return question.DifficultyEasy
	}
}

// Confidence returns how much the estimate can be trusted given the number
// of attempts behind it.
func Confidence(totalAttempts int) float64 {
	switch {
	case totalAttempts < 3:
		return 0.3
	case totalAttempts < 5:
		return 0.5
	case totalAttempts < 10:
		return 0.7
	case totalAttempts < 20:
		return 0.85
	default:
		return 0.95
	}
}

// Decayed returns the level after idle-time decay at perWeek per week since
// the record was last practiced. The stored level is not changed.
func Decayed(r *Record, perWeek float64, now time.Time) float64 {
	if r.LastPracticedAt.IsZero() || !now.After(r.LastPracticedAt) {
		return r.MasteryLevel
	}
	weeks := now.Sub(r.LastPracticedAt).Hours() / (24 * 7)
	return clampLevel(r.MasteryLevel * math.Pow(1-perWeek, weeks))
}

// Predict projects the level after n further interactions at the current
// velocity.
func Predict(r *Record, n int) float64 {
	return clampLevel(r.MasteryLevel + r.VelocityScore*float64(n))
}

// Accuracy returns the lifetime share of correct attempts.
func (r *Record) Accuracy() float64 {
	if r.TotalAttempts == 0 {
		return 0
	}
	return float64(r.CorrectAttempts) / float64(r.TotalAttempts)
}

// Stats summarizes a student's mastery records.
type Stats struct {
	Skills       int              `json:"skills"`
	AverageLevel float64          `json:"averageLevel"`
	Mastered     int              `json:"mastered"`
	DueReviews   int              `json:"dueReviews"`
	ByCategory   map[Category]int `json:"byCategory"`
}

// Summarize computes Stats for the given records.
func Summarize(records []*Record, masteredThreshold float64, now time.Time) Stats {
	s := Stats{ByCategory: make(map[Category]int)}
	total := 0.0
	for _, r := range records {
		s.Skills++
		total += r.MasteryLevel
		s.ByCategory[CategoryOf(r.MasteryLevel)]++
		if r.MasteryLevel >= masteredThreshold {
			s.Mastered++
		}
		if !now.Before(r.NextReviewAt) {
			s.DueReviews++
		}
	}
	if s.Skills > 0 {
		s.AverageLevel = total / float64(s.Skills)
	}
	return s
}

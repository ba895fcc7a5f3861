package mastery

import (
	"fmt"
	"time"

	"github.com/abhisek/gradewise/internal/question"
	"github.com/abhisek/gradewise/internal/spacedrep"
)

// Outcome is the result of one learning interaction.
type Outcome string

const (
	OutcomeCorrect   Outcome = "correct"
	OutcomePartial   Outcome = "partial"
	OutcomeIncorrect Outcome = "incorrect"
	OutcomeSkipped   Outcome = "skipped"
)

// Score returns the outcome score fed into the accuracy average.
func (o Outcome) Score() float64 {
	switch o {
	case OutcomeCorrect:
		return 1.0
	case OutcomePartial:
		return 0.5
	default:
		return 0.0
	}
}

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeCorrect, OutcomePartial, OutcomeIncorrect, OutcomeSkipped:
		return true
	}
	return false
}

func (o Outcome) grade() spacedrep.Grade {
	switch o {
	case OutcomeCorrect:
		return spacedrep.GradeCorrect
	case OutcomePartial:
		return spacedrep.GradePartial
	default:
		return spacedrep.GradeIncorrect
	}
}

// OutcomeFromFraction classifies a graded fraction of points.
func OutcomeFromFraction(f float64) Outcome {
	switch {
	case f >= 1-1e-9:
		return OutcomeCorrect
	case f > 0:
		return OutcomePartial
	default:
		return OutcomeIncorrect
	}
}

// Signal is a difficulty adjustment hint derived from recent streaks.
type Signal string

const (
	SignalNone     Signal = "none"
	SignalStepDown Signal = "step_down"
	SignalStepUp   Signal = "step_up"
)

// Record is the persistent mastery estimate for one (student, skill) pair.
type Record struct {
	StudentID string `json:"studentId"`
	SkillKey  string `json:"skillKey"`

	// MasteryLevel is kept within [0, 100].
	MasteryLevel float64 `json:"masteryLevel"`
	AvgAccuracy  float64 `json:"avgAccuracy"`

	TotalAttempts        int `json:"totalAttempts"`
	CorrectAttempts      int `json:"correctAttempts"`
	ConsecutiveCorrect   int `json:"consecutiveCorrect"`
	ConsecutiveIncorrect int `json:"consecutiveIncorrect"`

	// VelocityScore is a moving average of per-interaction mastery deltas.
	VelocityScore float64 `json:"velocityScore"`

	LastPracticedAt time.Time           `json:"lastPracticedAt"`
	NextReviewAt    time.Time           `json:"nextReviewAt"`
	ReviewInterval  time.Duration       `json:"reviewInterval"`
	LastDifficulty  question.Difficulty `json:"lastDifficulty"`
	Signal          Signal              `json:"signal"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

// Key returns the lock/storage key of the record.
func (r *Record) Key() string { return Key(r.StudentID, r.SkillKey) }

// Key builds the per-(student, skill) key.
func Key(studentID, skillKey string) string {
	return studentID + "\x00" + skillKey
}

// Interaction is one graded learning event for a skill.
type Interaction struct {
	// ID deduplicates retries. Replaying an ID is rejected.
	ID               string              `json:"id"`
	StudentID        string              `json:"studentId"`
	SkillKey         string              `json:"skillKey"`
	Difficulty       question.Difficulty `json:"difficulty"`
	Outcome          Outcome             `json:"outcome"`
	Score            float64             `json:"score"`
	TimeSpentSeconds int                 `json:"timeSpentSeconds"`
	HintsUsed        int                 `json:"hintsUsed"`
	At               time.Time           `json:"at"`
	Source           string              `json:"source,omitempty"`
}

// Validate checks the interaction fields.
func (in *Interaction) Validate() error {
	switch {
	case in.StudentID == "":
		return fmt.Errorf("%w: missing student ID", ErrInvalidInteraction)
	case in.SkillKey == "":
		return fmt.Errorf("%w: missing skill key", ErrInvalidInteraction)
	case !in.Outcome.Valid():
		return fmt.Errorf("%w: unknown outcome %q", ErrInvalidInteraction, in.Outcome)
	case in.HintsUsed < 0:
		return fmt.Errorf("%w: negative hints used", ErrInvalidInteraction)
	case in.Difficulty != "" && !in.Difficulty.Valid():
		return fmt.Errorf("%w: unknown difficulty %q", ErrInvalidInteraction, in.Difficulty)
	}
	return nil
}

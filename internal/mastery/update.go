package mastery

import (
	"fmt"
	"math"

	"github.com/abhisek/gradewise/internal/question"
	"github.com/abhisek/gradewise/internal/spacedrep"
)

// Config holds the constants of the mastery update rule.
type Config struct {
	// LearningRate (α) weights the newest outcome in the accuracy average.
	LearningRate float64
	// HintPenalty is the fraction of credit removed per hint used.
	HintPenalty float64
	// VelocitySmoothing (β) weights the newest delta in the velocity average.
	VelocitySmoothing float64

	StepDownAfter int
	StepUpAfter   int

	EasyMultiplier   float64
	MediumMultiplier float64
	HardMultiplier   float64

	// DecayPerWeek is the fractional mastery loss per idle week, used for
	// display and analytics only.
	DecayPerWeek float64
	// MasteredThreshold is the level at which a skill counts as mastered.
	MasteredThreshold float64

	Schedule spacedrep.Config
}

// DefaultConfig returns the default mastery constants.
func DefaultConfig() Config {
	return Config{
		LearningRate:      0.2,
		HintPenalty:       0.1,
		VelocitySmoothing: 0.3,
		StepDownAfter:     3,
		StepUpAfter:       5,
		EasyMultiplier:    0.8,
		MediumMultiplier:  1.0,
		HardMultiplier:    1.3,
		DecayPerWeek:      0.05,
		MasteredThreshold: 90,
		Schedule:          spacedrep.DefaultConfig(),
	}
}

// Validate rejects constants that would break the update's bounds.
func (c Config) Validate() error {
	if c.LearningRate <= 0 || c.LearningRate > 1 {
		return fmt.Errorf("learning rate must be in (0,1], got %v", c.LearningRate)
	}
	if c.HintPenalty < 0 || c.HintPenalty > 1 {
		return fmt.Errorf("hint penalty must be in [0,1], got %v", c.HintPenalty)
	}
	if c.VelocitySmoothing <= 0 || c.VelocitySmoothing > 1 {
		return fmt.Errorf("velocity smoothing must be in (0,1], got %v", c.VelocitySmoothing)
	}
	for name, m := range map[string]float64{
		"easy": c.EasyMultiplier, "medium": c.MediumMultiplier, "hard": c.HardMultiplier,
	} {
		if m <= 0 {
			return fmt.Errorf("%s multiplier must be positive, got %v", name, m)
		}
	}
	if c.StepDownAfter <= 0 || c.StepUpAfter <= 0 {
		return fmt.Errorf("streak thresholds must be positive")
	}
	if c.Schedule.BaseInterval <= 0 || c.Schedule.GrowthFactor <= 1 {
		return fmt.Errorf("schedule needs a positive base interval and growth factor above 1")
	}
	return nil
}

func (c Config) multiplier(d question.Difficulty) float64 {
	switch d {
	case question.DifficultyEasy:
		return c.EasyMultiplier
	case question.DifficultyHard:
		return c.HardMultiplier
	default:
		return c.MediumMultiplier
	}
}

// Apply folds one interaction into prev and returns the new record. prev may
// be nil for the first interaction of a skill. Apply does not modify prev.
func Apply(cfg Config, prev *Record, in Interaction) *Record {
	var rec Record
	if prev != nil {
		rec = *prev
	} else {
		rec = Record{StudentID: in.StudentID, SkillKey: in.SkillKey, Signal: SignalNone}
	}

	difficulty := in.Difficulty
	if difficulty == "" {
		difficulty = question.DifficultyMedium
	}

	credited := in.Outcome.Score() * math.Max(0, 1-cfg.HintPenalty*float64(in.HintsUsed))

	rec.AvgAccuracy += cfg.LearningRate * (credited - rec.AvgAccuracy)

	// Hard items move mastery up faster and down slower; easy ones the reverse.
	step := 100*credited - rec.MasteryLevel
	k := cfg.multiplier(difficulty)
	if step < 0 {
		k = 1 / k
	}
	level := clampLevel(rec.MasteryLevel + cfg.LearningRate*k*step)
	delta := level - rec.MasteryLevel
	rec.MasteryLevel = level
	rec.VelocityScore += cfg.VelocitySmoothing * (delta - rec.VelocityScore)

	if rec.LastDifficulty != "" && rec.LastDifficulty != difficulty {
		rec.ConsecutiveCorrect = 0
		rec.ConsecutiveIncorrect = 0
	}

	rec.TotalAttempts++
	switch in.Outcome {
	case OutcomeCorrect:
		rec.CorrectAttempts++
		rec.ConsecutiveCorrect++
		rec.ConsecutiveIncorrect = 0
	case OutcomePartial:
		rec.ConsecutiveCorrect = 0
		rec.ConsecutiveIncorrect = 0
	default:
		rec.ConsecutiveIncorrect++
		rec.ConsecutiveCorrect = 0
	}

	switch {
	case rec.ConsecutiveIncorrect >= cfg.StepDownAfter:
		rec.Signal = SignalStepDown
	case rec.ConsecutiveCorrect >= cfg.StepUpAfter:
		rec.Signal = SignalStepUp
	default:
		rec.Signal = SignalNone
	}

	rec.ReviewInterval = spacedrep.Next(cfg.Schedule, rec.ReviewInterval, in.Outcome.grade())
	rec.LastPracticedAt = in.At
	rec.NextReviewAt = in.At.Add(rec.ReviewInterval)
	rec.LastDifficulty = difficulty
	rec.UpdatedAt = in.At

	return &rec
}

func clampLevel(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}

package spacedrep

import "time"

// Grade is the spaced-repetition view of an interaction outcome.
type Grade int

const (
	GradeIncorrect Grade = iota // also used for skipped items
	GradePartial
	GradeCorrect
)

// Config controls interval growth.
type Config struct {
	// BaseInterval is the first interval after a correct answer and the
	// interval an incorrect answer resets to.
	BaseInterval time.Duration
	// GrowthFactor multiplies the interval on every further correct answer.
	GrowthFactor float64
	// MaxInterval caps interval growth; zero means no cap.
	MaxInterval time.Duration
}

// DefaultConfig returns a one-day base interval that doubles without a cap.
func DefaultConfig() Config {
	return Config{
		BaseInterval: 24 * time.Hour,
		GrowthFactor: 2.0,
	}
}

// Next returns the interval that follows current for the given grade.
//
//	correct:   base when no interval exists yet, otherwise current × growth
//	incorrect: base
//	partial:   current unchanged (base when no interval exists yet)
//
// Intervals grow strictly with a correct streak only while MaxInterval is
// zero. Once a configured cap is reached, further correct answers hold the
// interval at the cap.
func Next(cfg Config, current time.Duration, g Grade) time.Duration {
	switch g {
	case GradeCorrect:
		if current <= 0 {
			return cfg.BaseInterval
		}
		next := time.Duration(float64(current) * cfg.GrowthFactor)
		if cfg.MaxInterval > 0 && next > cfg.MaxInterval {
			next = cfg.MaxInterval
		}
		return next
	case GradePartial:
		if current <= 0 {
			return cfg.BaseInterval
		}
		return current
	default:
		return cfg.BaseInterval
	}
}

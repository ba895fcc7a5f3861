package mastery

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/abhisek/gradewise/internal/question"
)

var t0 = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func interaction(o Outcome, d question.Difficulty) Interaction {
	return Interaction{StudentID: "s1", SkillKey: "fractions", Outcome: o, Difficulty: d, At: t0}
}

func TestApply_AccuracyScenario(t *testing.T) {
	prev := &Record{StudentID: "s1", SkillKey: "fractions", AvgAccuracy: 0.6}
	got := Apply(DefaultConfig(), prev, interaction(OutcomeCorrect, question.DifficultyMedium))
	if math.Abs(got.AvgAccuracy-0.68) > 1e-9 {
		t.Errorf("AvgAccuracy = %v, want 0.68", got.AvgAccuracy)
	}
	if prev.AvgAccuracy != 0.6 {
		t.Errorf("Apply modified prev")
	}
}

func TestApply_HardMovesMoreThanEasy(t *testing.T) {
	cfg := DefaultConfig()
	prev := &Record{MasteryLevel: 50}
	hard := Apply(cfg, prev, interaction(OutcomeCorrect, question.DifficultyHard))
	easy := Apply(cfg, prev, interaction(OutcomeCorrect, question.DifficultyEasy))
	if hard.MasteryLevel <= easy.MasteryLevel {
		t.Errorf("hard gain %v should exceed easy gain %v", hard.MasteryLevel, easy.MasteryLevel)
	}

	hardMiss := Apply(cfg, prev, interaction(OutcomeIncorrect, question.DifficultyHard))
	easyMiss := Apply(cfg, prev, interaction(OutcomeIncorrect, question.DifficultyEasy))
	if hardMiss.MasteryLevel <= easyMiss.MasteryLevel {
		t.Errorf("missing a hard item (%v) should cost less than an easy one (%v)", hardMiss.MasteryLevel, easyMiss.MasteryLevel)
	}
}

func TestApply_HintPenalty(t *testing.T) {
	cfg := DefaultConfig()
	in := interaction(OutcomeCorrect, question.DifficultyMedium)
	noHints := Apply(cfg, nil, in)
	in.HintsUsed = 3
	hints := Apply(cfg, nil, in)
	// credited 0.7 instead of 1.0
	if math.Abs(hints.AvgAccuracy-0.14) > 1e-9 {
		t.Errorf("AvgAccuracy with hints = %v, want 0.14", hints.AvgAccuracy)
	}
	if hints.MasteryLevel >= noHints.MasteryLevel {
		t.Errorf("hints should reduce mastery gain")
	}

	in.HintsUsed = 50
	floored := Apply(cfg, nil, in)
	if floored.AvgAccuracy != 0 {
		t.Errorf("credited outcome must floor at 0, got accuracy %v", floored.AvgAccuracy)
	}
}

func TestApply_LevelStaysBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LearningRate = 1
	cfg.HardMultiplier = 5

	rng := rand.New(rand.NewPCG(1, 2))
	outcomes := []Outcome{OutcomeCorrect, OutcomePartial, OutcomeIncorrect, OutcomeSkipped}
	difficulties := []question.Difficulty{question.DifficultyEasy, question.DifficultyMedium, question.DifficultyHard}

	var rec *Record
	for i := 0; i < 2000; i++ {
		in := interaction(outcomes[rng.IntN(len(outcomes))], difficulties[rng.IntN(len(difficulties))])
		in.HintsUsed = rng.IntN(4)
		in.At = t0.Add(time.Duration(i) * time.Hour)
		rec = Apply(cfg, rec, in)
		if rec.MasteryLevel < 0 || rec.MasteryLevel > 100 {
			t.Fatalf("step %d: level %v out of [0,100]", i, rec.MasteryLevel)
		}
		if rec.NextReviewAt.Before(rec.LastPracticedAt) {
			t.Fatalf("step %d: next review before last practice", i)
		}
	}
}

func TestApply_StreakSignals(t *testing.T) {
	cfg := DefaultConfig()
	var rec *Record
	for i := 0; i < 3; i++ {
		rec = Apply(cfg, rec, interaction(OutcomeIncorrect, question.DifficultyMedium))
	}
	if rec.Signal != SignalStepDown {
		t.Errorf("Signal = %s after 3 incorrect, want step_down", rec.Signal)
	}

	for i := 0; i < 5; i++ {
		rec = Apply(cfg, rec, interaction(OutcomeCorrect, question.DifficultyMedium))
	}
	if rec.Signal != SignalStepUp || rec.ConsecutiveIncorrect != 0 {
		t.Errorf("Signal = %s, incorrect streak %d; want step_up and 0", rec.Signal, rec.ConsecutiveIncorrect)
	}
}

func TestApply_StreakResetsOnDifficultyChange(t *testing.T) {
	cfg := DefaultConfig()
	var rec *Record
	rec = Apply(cfg, rec, interaction(OutcomeIncorrect, question.DifficultyHard))
	rec = Apply(cfg, rec, interaction(OutcomeIncorrect, question.DifficultyHard))
	rec = Apply(cfg, rec, interaction(OutcomeIncorrect, question.DifficultyEasy))
	if rec.ConsecutiveIncorrect != 1 || rec.Signal != SignalNone {
		t.Errorf("streak = %d signal = %s, want 1 and none", rec.ConsecutiveIncorrect, rec.Signal)
	}
}

func TestApply_ReviewSchedule(t *testing.T) {
	cfg := DefaultConfig()
	var rec *Record
	var prevInterval time.Duration
	for i := 0; i < 10; i++ {
		rec = Apply(cfg, rec, interaction(OutcomeCorrect, question.DifficultyMedium))
		if rec.ReviewInterval <= prevInterval {
			t.Fatalf("correct #%d: interval %v not above %v", i+1, rec.ReviewInterval, prevInterval)
		}
		prevInterval = rec.ReviewInterval
	}

	rec = Apply(cfg, rec, interaction(OutcomeIncorrect, question.DifficultyMedium))
	if rec.ReviewInterval != cfg.Schedule.BaseInterval {
		t.Errorf("interval after miss = %v, want base", rec.ReviewInterval)
	}
	if !rec.NextReviewAt.Equal(t0.Add(cfg.Schedule.BaseInterval)) {
		t.Errorf("NextReviewAt = %v", rec.NextReviewAt)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	cfg := DefaultConfig()
	cfg.LearningRate = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero learning rate")
	}
	cfg = DefaultConfig()
	cfg.Schedule.GrowthFactor = 1
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for non-growing schedule")
	}
}

package grader

import (
	"errors"
	"math"
	"testing"

	"github.com/abhisek/gradewise/internal/question"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func multiSelect(partialCredit bool, weights map[string]float64) *question.Question {
	return &question.Question{
		ID:                 "mcq",
		Kind:               question.KindMultipleChoice,
		Points:             10,
		AllowPartialCredit: partialCredit,
		Key: question.MultipleChoiceKey{
			Options:              []question.Option{{ID: "A"}, {ID: "B"}, {ID: "C"}, {ID: "D"}},
			Correct:              []string{"A", "C"},
			AllowMultipleAnswers: true,
			Weights:              weights,
		},
	}
}

func TestGrade_MultipleChoiceWeightedPartialCredit(t *testing.T) {
	g := New(DefaultConfig())
	q := multiSelect(true, map[string]float64{"A": 0.5, "C": 0.5})

	res, err := g.Grade(q, question.ChoiceAnswer{Selected: []string{"A"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !approx(res.PointsEarned, 5) {
		t.Errorf("PointsEarned = %v, want 5", res.PointsEarned)
	}
	if res.Correct == nil || *res.Correct {
		t.Errorf("partial selection should not be correct")
	}
}

func TestGrade_MultipleChoiceRepeatedSelection(t *testing.T) {
	g := New(DefaultConfig())
	q := multiSelect(true, map[string]float64{"A": 0.5, "C": 0.5})

	res, err := g.Grade(q, question.ChoiceAnswer{Selected: []string{"A", "A"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !approx(res.PointsEarned, 5) || *res.Correct {
		t.Errorf("repeated A: points=%v correct=%v, want 5 and false", res.PointsEarned, *res.Correct)
	}

	res, _ = g.Grade(multiSelect(false, nil), question.ChoiceAnswer{Selected: []string{"A", "C", "C"}})
	if !*res.Correct || res.PointsEarned != 10 {
		t.Errorf("repeated C on exact set: points=%v correct=%v", res.PointsEarned, *res.Correct)
	}
}

func TestGrade_MultipleChoiceWrongSelectionPenalty(t *testing.T) {
	g := New(DefaultConfig())
	q := multiSelect(true, nil)

	res, err := g.Grade(q, question.ChoiceAnswer{Selected: []string{"A", "B"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 0.5 for A minus 0.5 for B.
	if !approx(res.PointsEarned, 0) {
		t.Errorf("PointsEarned = %v, want 0", res.PointsEarned)
	}

	res, err = g.Grade(q, question.ChoiceAnswer{Selected: []string{"A", "B", "C", "D"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.PointsEarned < 0 {
		t.Errorf("PointsEarned must not go negative, got %v", res.PointsEarned)
	}
}

func TestGrade_MultipleChoiceAllOrNothing(t *testing.T) {
	g := New(DefaultConfig())
	q := multiSelect(false, nil)

	submissions := [][]string{{"A"}, {"C"}, {"A", "B", "C"}, {}, {"B", "D"}}
	for _, sel := range submissions {
		res, err := g.Grade(q, question.ChoiceAnswer{Selected: sel})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.PointsEarned != 0 {
			t.Errorf("selection %v earned %v, want 0", sel, res.PointsEarned)
		}
	}

	res, err := g.Grade(q, question.ChoiceAnswer{Selected: []string{"C", "A"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.PointsEarned != 10 || !*res.Correct {
		t.Errorf("exact set earned %v, want 10", res.PointsEarned)
	}
}

func TestGrade_SingleChoice(t *testing.T) {
	g := New(DefaultConfig())
	q := &question.Question{
		ID: "single", Kind: question.KindMultipleChoice, Points: 2,
		Key: question.MultipleChoiceKey{
			Options: []question.Option{{ID: "A"}, {ID: "B"}},
			Correct: []string{"B"},
		},
	}
	res, _ := g.Grade(q, question.ChoiceAnswer{Selected: []string{"B"}})
	if res.PointsEarned != 2 {
		t.Errorf("PointsEarned = %v, want 2", res.PointsEarned)
	}
	res, _ = g.Grade(q, question.ChoiceAnswer{Selected: []string{"A", "B"}})
	if res.PointsEarned != 0 {
		t.Errorf("two selections on single-answer earned %v", res.PointsEarned)
	}
	res, _ = g.Grade(q, question.ChoiceAnswer{Selected: []string{"B", "B"}})
	if res.PointsEarned != 2 {
		t.Errorf("repeated correct option earned %v, want 2", res.PointsEarned)
	}
}

func TestGrade_TrueFalseFeedback(t *testing.T) {
	g := New(DefaultConfig())
	q := &question.Question{
		ID: "tf", Kind: question.KindTrueFalse, Points: 1,
		Key: question.TrueFalseKey{Answer: true, TrueFeedback: "yes", FalseFeedback: "no"},
	}
	res, _ := g.Grade(q, question.BoolAnswer{Value: false})
	if *res.Correct || res.Feedback != "no" {
		t.Errorf("got correct=%v feedback=%q", *res.Correct, res.Feedback)
	}
	res, _ = g.Grade(q, question.BoolAnswer{Value: true})
	if !*res.Correct || res.Feedback != "yes" || res.PointsEarned != 1 {
		t.Errorf("got correct=%v feedback=%q points=%v", *res.Correct, res.Feedback, res.PointsEarned)
	}
}

func TestGrade_ShortAnswer(t *testing.T) {
	g := New(DefaultConfig())
	tests := []struct {
		name     string
		key      question.ShortAnswerKey
		response string
		want     bool
	}{
		{"exact", question.ShortAnswerKey{AcceptedAnswers: []string{"Paris"}, ExactMatch: true}, "paris", true},
		{"exact rejects typo", question.ShortAnswerKey{AcceptedAnswers: []string{"Paris"}, ExactMatch: true}, "Pariss", false},
		{"one edit tolerated", question.ShortAnswerKey{AcceptedAnswers: []string{"Paris"}}, "Pariz", true},
		{"two edits rejected", question.ShortAnswerKey{AcceptedAnswers: []string{"Paris"}}, "Parzz", false},
		{"embedded in sentence", question.ShortAnswerKey{AcceptedAnswers: []string{"Paris"}}, "the city of paris", false},
		{"single letter", question.ShortAnswerKey{AcceptedAnswers: []string{"Photosynthesis"}}, "o", false},
		{"fragment", question.ShortAnswerKey{AcceptedAnswers: []string{"Photosynthesis"}}, "syn", false},
		{"prefix", question.ShortAnswerKey{AcceptedAnswers: []string{"Photosynthesis"}}, "photo", false},
		{"contradicting sentence", question.ShortAnswerKey{AcceptedAnswers: []string{"Photosynthesis"}}, "Photosynthesis is not it at all, it is respiration", false},
		{"typo in long word", question.ShortAnswerKey{AcceptedAnswers: []string{"Photosynthesis"}}, "photosynthesys", true},
		{"short answer needs exact", question.ShortAnswerKey{AcceptedAnswers: []string{"42"}}, "43", false},
		{"whitespace collapsed", question.ShortAnswerKey{AcceptedAnswers: []string{"New York"}, ExactMatch: true}, "  new   york ", true},
		{"case sensitive", question.ShortAnswerKey{AcceptedAnswers: []string{"NaCl"}, CaseSensitive: true, ExactMatch: true}, "nacl", false},
		{"empty response", question.ShortAnswerKey{AcceptedAnswers: []string{"a"}}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &question.Question{ID: "s", Kind: question.KindShortAnswer, Points: 3, Key: tt.key}
			res, err := g.Grade(q, question.TextAnswer{Text: tt.response})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if *res.Correct != tt.want {
				t.Errorf("Correct = %v, want %v", *res.Correct, tt.want)
			}
		})
	}
}

func TestGrade_ShortAnswerAIDefersVerdict(t *testing.T) {
	g := New(DefaultConfig())
	q := &question.Question{
		ID: "ai", Kind: question.KindShortAnswer, Points: 5,
		Key: question.ShortAnswerKey{AcceptedAnswers: []string{"photosynthesis"}, UseAIGrading: true},
	}
	res, err := g.Grade(q, question.TextAnswer{Text: "photosynthesys"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Correct != nil {
		t.Errorf("AI-graded answer must not carry a verdict")
	}
	if !res.RequiresManualReview {
		t.Errorf("expected RequiresManualReview")
	}
	if res.Confidence <= 0.8 || res.Confidence >= 1 {
		t.Errorf("Confidence = %v, want close to 1", res.Confidence)
	}
	if res.PointsEarned != 0 {
		t.Errorf("PointsEarned = %v, want 0", res.PointsEarned)
	}
}

func TestGrade_Essay(t *testing.T) {
	g := New(DefaultConfig())
	q := &question.Question{
		ID: "essay", Kind: question.KindEssay, Points: 20,
		Key: question.EssayKey{MinWords: 5},
	}
	res, err := g.Grade(q, question.TextAnswer{Text: "too short"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.RequiresManualReview || res.PointsEarned != 0 || res.Correct != nil {
		t.Errorf("unexpected essay result: %+v", res)
	}
	if res.Feedback == "" {
		t.Errorf("expected word-count feedback")
	}
}

func TestGrade_Matching(t *testing.T) {
	g := New(DefaultConfig())
	key := question.MatchingKey{Pairs: []question.Pair{
		{Left: "1", Right: "a"}, {Left: "2", Right: "b"}, {Left: "3", Right: "c"}, {Left: "4", Right: "d"},
	}}
	ans := question.MatchAnswer{Pairs: map[string]string{"1": "a", "2": "b", "3": "d", "4": "c"}}

	q := &question.Question{ID: "m", Kind: question.KindMatching, Points: 8, AllowPartialCredit: true, Key: key}
	res, _ := g.Grade(q, ans)
	if !approx(res.PointsEarned, 4) {
		t.Errorf("partial matching earned %v, want 4", res.PointsEarned)
	}

	q.AllowPartialCredit = false
	res, _ = g.Grade(q, ans)
	if res.PointsEarned != 0 {
		t.Errorf("all-or-nothing matching earned %v, want 0", res.PointsEarned)
	}
}

func TestGrade_OrderingPartialBounds(t *testing.T) {
	g := New(DefaultConfig())
	items := []string{"a", "b", "c", "d", "e"}
	q := &question.Question{
		ID: "o", Kind: question.KindOrdering, Points: 10,
		Key: question.OrderingKey{CorrectOrder: items, AllowPartialOrder: true},
	}

	tests := []struct {
		name  string
		order []string
		want  float64
	}{
		{"exact", []string{"a", "b", "c", "d", "e"}, 10},
		{"reversed", []string{"e", "d", "c", "b", "a"}, 0},
		{"one swap", []string{"b", "a", "c", "d", "e"}, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := g.Grade(q, question.OrderAnswer{Order: tt.order})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !approx(res.PointsEarned, tt.want) {
				t.Errorf("PointsEarned = %v, want %v", res.PointsEarned, tt.want)
			}
			if res.PointsEarned < 0 || res.PointsEarned > q.Points {
				t.Errorf("PointsEarned %v out of bounds", res.PointsEarned)
			}
		})
	}
}

func TestGrade_OrderingAllOrNothing(t *testing.T) {
	g := New(DefaultConfig())
	q := &question.Question{
		ID: "o", Kind: question.KindOrdering, Points: 10,
		Key: question.OrderingKey{CorrectOrder: []string{"a", "b", "c"}},
	}
	res, _ := g.Grade(q, question.OrderAnswer{Order: []string{"a", "c", "b"}})
	if res.PointsEarned != 0 {
		t.Errorf("PointsEarned = %v, want 0", res.PointsEarned)
	}
}

func TestGrade_FillBlank(t *testing.T) {
	g := New(DefaultConfig())
	key := question.FillBlankKey{Blanks: []question.Blank{
		{AcceptedAnswers: []string{"oxygen"}, Points: 3},
		{AcceptedAnswers: []string{"carbon dioxide", "co2"}, Points: 3},
	}}
	q := &question.Question{ID: "f", Kind: question.KindFillBlank, Points: 5, AllowPartialCredit: true, Key: key}

	res, _ := g.Grade(q, question.BlanksAnswer{Values: []string{"Oxygen", "CO2"}})
	if res.PointsEarned != 5 {
		t.Errorf("PointsEarned = %v, want capped 5", res.PointsEarned)
	}

	res, _ = g.Grade(q, question.BlanksAnswer{Values: []string{"oxygen", "nitrogen"}})
	if !approx(res.PointsEarned, 3) {
		t.Errorf("PointsEarned = %v, want 3", res.PointsEarned)
	}

	res, _ = g.Grade(q, question.BlanksAnswer{Values: []string{"oxy", "carbon dioxide gas"}})
	if res.PointsEarned != 0 {
		t.Errorf("fragments earned %v points, want 0", res.PointsEarned)
	}

	q.AllowPartialCredit = false
	res, _ = g.Grade(q, question.BlanksAnswer{Values: []string{"oxygen", "nitrogen"}})
	if res.PointsEarned != 0 {
		t.Errorf("PointsEarned = %v, want 0", res.PointsEarned)
	}
}

func TestGrade_Errors(t *testing.T) {
	g := New(DefaultConfig())

	q := multiSelect(true, nil)
	if _, err := g.Grade(q, question.TextAnswer{Text: "A"}); !errors.Is(err, ErrMalformedSubmission) {
		t.Errorf("expected ErrMalformedSubmission, got %v", err)
	}

	corrupt := &question.Question{
		ID: "bad", Kind: question.KindOrdering, Points: 1,
		Key: question.OrderingKey{},
	}
	if _, err := g.Grade(corrupt, question.OrderAnswer{}); !errors.Is(err, ErrCorruptAnswerKey) {
		t.Errorf("expected ErrCorruptAnswerKey, got %v", err)
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"café", "cafe", 1},
	}
	for _, tt := range tests {
		if got := levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestLetterGrade(t *testing.T) {
	for pct, want := range map[float64]string{95: "A", 80: "B", 79.9: "C", 60: "D", 10: "F"} {
		if got := LetterGrade(pct); got != want {
			t.Errorf("LetterGrade(%v) = %s, want %s", pct, got, want)
		}
	}
}

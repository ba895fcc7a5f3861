package grader

import (
	"fmt"
	"math"

	"github.com/abhisek/gradewise/internal/question"
)

// Re-exported so callers can test grading failures without importing question.
var (
	ErrMalformedSubmission = question.ErrMalformedSubmission
	ErrCorruptAnswerKey    = question.ErrCorruptAnswerKey
)

// Config tunes the tolerant matching and partial-credit rules.
type Config struct {
	// MaxEditDistance is the Levenshtein tolerance for non-exact text matching.
	MaxEditDistance int

	// WrongSelectionPenalty is subtracted from multi-select partial credit for
	// every incorrect option chosen. Negative means 1/|correct options|.
	WrongSelectionPenalty float64
}

// DefaultConfig returns the default grading configuration.
func DefaultConfig() Config {
	return Config{
		MaxEditDistance:       1,
		WrongSelectionPenalty: -1,
	}
}

// Result is the outcome of grading one answer. It is never mutated after
// Grade returns.
type Result struct {
	// Correct is nil when the verdict is deferred to a reviewer.
	Correct              *bool   `json:"correct"`
	PointsEarned         float64 `json:"pointsEarned"`
	MaxPoints            float64 `json:"maxPoints"`
	RequiresManualReview bool    `json:"requiresManualReview"`
	Confidence           float64 `json:"confidence"`
	Feedback             string  `json:"feedback,omitempty"`
}

// Fraction returns PointsEarned / MaxPoints.
func (r *Result) Fraction() float64 {
	if r.MaxPoints <= 0 {
		return 0
	}
	return r.PointsEarned / r.MaxPoints
}

// Grader scores answers. It holds no mutable state and is safe for
// concurrent use.
type Grader struct {
	cfg Config
}

// New creates a Grader.
func New(cfg Config) *Grader {
	return &Grader{cfg: cfg}
}

// Grade scores a decoded answer against the question's key.
// A payload whose type does not fit the question returns an error wrapping
// ErrMalformedSubmission; an unusable key returns one wrapping
// ErrCorruptAnswerKey.
func (g *Grader) Grade(q *question.Question, a question.Answer) (*Result, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	var (
		res *Result
		err error
	)
	switch key := q.Key.(type) {
	case question.MultipleChoiceKey:
		ans, ok := a.(question.ChoiceAnswer)
		if !ok {
			return nil, mismatch(q, a)
		}
		res = g.gradeMultipleChoice(q, key, ans)
	case question.TrueFalseKey:
		ans, ok := a.(question.BoolAnswer)
		if !ok {
			return nil, mismatch(q, a)
		}
		res = gradeTrueFalse(q, key, ans)
	case question.ShortAnswerKey:
		ans, ok := a.(question.TextAnswer)
		if !ok {
			return nil, mismatch(q, a)
		}
		res = g.gradeShortAnswer(q, key, ans)
	case question.EssayKey:
		ans, ok := a.(question.TextAnswer)
		if !ok {
			return nil, mismatch(q, a)
		}
		res = gradeEssay(q, key, ans)
	case question.MatchingKey:
		ans, ok := a.(question.MatchAnswer)
		if !ok {
			return nil, mismatch(q, a)
		}
		res = gradeMatching(q, key, ans)
	case question.OrderingKey:
		ans, ok := a.(question.OrderAnswer)
		if !ok {
			return nil, mismatch(q, a)
		}
		res, err = gradeOrdering(q, key, ans)
	case question.FillBlankKey:
		ans, ok := a.(question.BlanksAnswer)
		if !ok {
			return nil, mismatch(q, a)
		}
		res, err = g.gradeFillBlank(q, key, ans)
	default:
		return nil, fmt.Errorf("question %q: %w: unsupported key %T", q.ID, ErrCorruptAnswerKey, q.Key)
	}
	if err != nil {
		return nil, err
	}

	res.MaxPoints = q.Points
	res.PointsEarned = clamp(res.PointsEarned, 0, q.Points)
	return res, nil
}

func mismatch(q *question.Question, a question.Answer) error {
	return &question.MalformedError{
		QuestionID: q.ID,
		Kind:       q.Kind,
		Err:        fmt.Errorf("answer type %T does not fit question", a),
	}
}

// verdict builds a hard-verdict result with full or zero points.
func verdict(correct bool, points float64) *Result {
	earned := 0.0
	if correct {
		earned = points
	}
	return &Result{Correct: &correct, PointsEarned: earned, Confidence: 1}
}

// partial builds a result from a credit fraction in [0,1]. Only full credit
// counts as correct.
func partial(fraction, points float64) *Result {
	fraction = clamp(fraction, 0, 1)
	correct := fraction >= 1-1e-9
	return &Result{Correct: &correct, PointsEarned: points * fraction, Confidence: 1}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// LetterGrade maps a percentage to a letter grade.
func LetterGrade(percentage float64) string {
	switch {
	case percentage >= 90:
		return "A"
	case percentage >= 80:
		return "B"
	case percentage >= 70:
		return "C"
	case percentage >= 60:
		return "D"
	default:
		return "F"
	}
}

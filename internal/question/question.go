package question

// Kind identifies which grading rule applies to a question.
type Kind string

const (
	KindMultipleChoice Kind = "multiple_choice"
	KindTrueFalse      Kind = "true_false"
	KindShortAnswer    Kind = "short_answer"
	KindEssay          Kind = "essay"
	KindMatching       Kind = "matching"
	KindOrdering       Kind = "ordering"
	KindFillBlank      Kind = "fill_blank"
)

// AllKinds returns every question kind in display order.
func AllKinds() []Kind {
	return []Kind{
		KindMultipleChoice,
		KindTrueFalse,
		KindShortAnswer,
		KindEssay,
		KindMatching,
		KindOrdering,
		KindFillBlank,
	}
}

// Difficulty is the authored difficulty of a question or interaction.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
)

// Valid reports whether d is one of the known difficulties.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// Question is an immutable question definition. The answer key is a tagged
// variant whose concrete type must agree with Kind.
type Question struct {
	ID         string
	Kind       Kind
	Text       string
	Points     float64
	Difficulty Difficulty

	// SkillKey ties graded answers to a mastery record. Empty means the
	// question does not feed the mastery tracker.
	SkillKey string

	AutoGradable       bool
	AllowPartialCredit bool

	Key AnswerKey
}

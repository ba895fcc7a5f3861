package question

// AnswerKey is the type-specific grading payload of a question.
// The set of implementations is closed; graders switch on the concrete type.
type AnswerKey interface {
	Kind() Kind
	sealed()
}

// Option is one selectable choice of a multiple-choice question.
type Option struct {
	ID   string
	Text string
}

// MultipleChoiceKey grades single- and multi-select questions.
type MultipleChoiceKey struct {
	Options              []Option
	Correct              []string
	AllowMultipleAnswers bool

	// Weights holds per-option partial-credit weights for correct options.
	// Missing entries default to an equal share.
	Weights map[string]float64
}

// TrueFalseKey grades a boolean statement.
type TrueFalseKey struct {
	Answer        bool
	TrueFeedback  string
	FalseFeedback string
}

// ShortAnswerKey grades free text against a list of accepted answers.
type ShortAnswerKey struct {
	AcceptedAnswers []string
	CaseSensitive   bool
	ExactMatch      bool
	UseAIGrading    bool
}

// EssayKey describes an essay prompt. Essays are never machine-scored.
type EssayKey struct {
	MinWords     int
	MaxWords     int
	RubricID     string
	UseAIGrading bool
	Guidance     string
}

// Pair links a left-hand item to its right-hand match.
type Pair struct {
	Left  string
	Right string
}

// MatchingKey grades a set of left→right pairings.
type MatchingKey struct {
	Pairs []Pair
}

// OrderingKey grades an ordered sequence of item ids.
type OrderingKey struct {
	CorrectOrder      []string
	AllowPartialOrder bool
}

// Blank is one gap of a fill-in-the-blank question.
type Blank struct {
	AcceptedAnswers []string
	// Points for this blank. Zero means an equal share of the question points.
	Points float64
}

// FillBlankKey grades each blank independently.
type FillBlankKey struct {
	Blanks        []Blank
	CaseSensitive bool
}

func (MultipleChoiceKey) Kind() Kind { return KindMultipleChoice }
func (TrueFalseKey) Kind() Kind      { return KindTrueFalse }
func (ShortAnswerKey) Kind() Kind    { return KindShortAnswer }
func (EssayKey) Kind() Kind          { return KindEssay }
func (MatchingKey) Kind() Kind       { return KindMatching }
func (OrderingKey) Kind() Kind       { return KindOrdering }
func (FillBlankKey) Kind() Kind      { return KindFillBlank }

func (MultipleChoiceKey) sealed() {}
func (TrueFalseKey) sealed()      {}
func (ShortAnswerKey) sealed()    {}
func (EssayKey) sealed()          {}
func (MatchingKey) sealed()       {}
func (OrderingKey) sealed()       {}
func (FillBlankKey) sealed()      {}

// IsCorrectOption reports whether id is one of the correct options.
func (k MultipleChoiceKey) IsCorrectOption(id string) bool {
	for _, c := range k.Correct {
		if c == id {
			return true
		}
	}
	return false
}

// HasOption reports whether id names an option of the question.
func (k MultipleChoiceKey) HasOption(id string) bool {
	for _, o := range k.Options {
		if o.ID == id {
			return true
		}
	}
	return false
}

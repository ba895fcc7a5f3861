package catalog

import (
	"fmt"

	"github.com/abhisek/gradewise/internal/question"
)

// questionDoc is the flat YAML form of a question. Only the fields of the
// question's kind are read.
type questionDoc struct {
	ID            string  `yaml:"id"`
	Kind          string  `yaml:"kind"`
	Text          string  `yaml:"text"`
	Points        float64 `yaml:"points"`
	Difficulty    string  `yaml:"difficulty"`
	Skill         string  `yaml:"skill"`
	PartialCredit bool    `yaml:"partial_credit"`

	// multiple_choice
	Options  []optionDoc        `yaml:"options"`
	Correct  []string           `yaml:"correct"`
	Multiple bool               `yaml:"multiple"`
	Weights  map[string]float64 `yaml:"weights"`

	// true_false
	Answer        *bool  `yaml:"answer"`
	TrueFeedback  string `yaml:"true_feedback"`
	FalseFeedback string `yaml:"false_feedback"`

	// short_answer, fill_blank
	Accepted      []string `yaml:"accepted"`
	CaseSensitive bool     `yaml:"case_sensitive"`
	ExactMatch    bool     `yaml:"exact_match"`
	AIGrading     bool     `yaml:"ai_grading"`

	// essay
	MinWords int    `yaml:"min_words"`
	MaxWords int    `yaml:"max_words"`
	Rubric   string `yaml:"rubric"`
	Guidance string `yaml:"guidance"`

	// matching
	Pairs []pairDoc `yaml:"pairs"`

	// ordering
	Order        []string `yaml:"order"`
	PartialOrder bool     `yaml:"partial_order"`

	// fill_blank
	Blanks []blankDoc `yaml:"blanks"`
}

type optionDoc struct {
	ID   string `yaml:"id"`
	Text string `yaml:"text"`
}

type pairDoc struct {
	Left  string `yaml:"left"`
	Right string `yaml:"right"`
}

type blankDoc struct {
	Accepted []string `yaml:"accepted"`
	Points   float64  `yaml:"points"`
}

func (d questionDoc) toQuestion() (*question.Question, error) {
	q := &question.Question{
		ID:                 d.ID,
		Kind:               question.Kind(d.Kind),
		Text:               d.Text,
		Points:             d.Points,
		Difficulty:         question.Difficulty(d.Difficulty),
		SkillKey:           d.Skill,
		AllowPartialCredit: d.PartialCredit,
	}
	if q.Difficulty == "" {
		q.Difficulty = question.DifficultyMedium
	}

	switch q.Kind {
	case question.KindMultipleChoice:
		opts := make([]question.Option, len(d.Options))
		for i, o := range d.Options {
			opts[i] = question.Option{ID: o.ID, Text: o.Text}
		}
		q.Key = question.MultipleChoiceKey{Options: opts, Correct: d.Correct, AllowMultipleAnswers: d.Multiple, Weights: d.Weights}
	case question.KindTrueFalse:
		if d.Answer == nil {
			return nil, fmt.Errorf("question %q: true_false needs an answer", d.ID)
		}
		q.Key = question.TrueFalseKey{Answer: *d.Answer, TrueFeedback: d.TrueFeedback, FalseFeedback: d.FalseFeedback}
	case question.KindShortAnswer:
		q.Key = question.ShortAnswerKey{AcceptedAnswers: d.Accepted, CaseSensitive: d.CaseSensitive, ExactMatch: d.ExactMatch, UseAIGrading: d.AIGrading}
	case question.KindEssay:
		q.Key = question.EssayKey{MinWords: d.MinWords, MaxWords: d.MaxWords, RubricID: d.Rubric, UseAIGrading: d.AIGrading, Guidance: d.Guidance}
	case question.KindMatching:
		pairs := make([]question.Pair, len(d.Pairs))
		for i, p := range d.Pairs {
			pairs[i] = question.Pair{Left: p.Left, Right: p.Right}
		}
		q.Key = question.MatchingKey{Pairs: pairs}
	case question.KindOrdering:
		q.Key = question.OrderingKey{CorrectOrder: d.Order, AllowPartialOrder: d.PartialOrder}
	case question.KindFillBlank:
		blanks := make([]question.Blank, len(d.Blanks))
		for i, b := range d.Blanks {
			blanks[i] = question.Blank{AcceptedAnswers: b.Accepted, Points: b.Points}
		}
		q.Key = question.FillBlankKey{Blanks: blanks, CaseSensitive: d.CaseSensitive}
	default:
		return nil, fmt.Errorf("question %q: unknown kind %q", d.ID, d.Kind)
	}

	q.AutoGradable = autoGradable(q)
	return q, nil
}

// autoGradable reports whether the machine verdict is final.
func autoGradable(q *question.Question) bool {
	switch k := q.Key.(type) {
	case question.EssayKey:
		return false
	case question.ShortAnswerKey:
		return !k.UseAIGrading
	}
	return true
}

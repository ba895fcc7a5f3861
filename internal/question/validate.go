package question

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCorruptAnswerKey indicates a question whose answer key cannot be used
// for grading.
var ErrCorruptAnswerKey = errors.New("corrupt answer key")

// Validate checks the question definition and its answer key.
// Returns an error wrapping ErrCorruptAnswerKey describing all problems found.
func (q *Question) Validate() error {
	var errs []string

	if q.ID == "" {
		errs = append(errs, "missing question ID")
	}
	if q.Points <= 0 {
		errs = append(errs, fmt.Sprintf("points must be positive, got %v", q.Points))
	}
	if q.Difficulty != "" && !q.Difficulty.Valid() {
		errs = append(errs, fmt.Sprintf("unknown difficulty %q", q.Difficulty))
	}
	if q.Key == nil {
		errs = append(errs, "missing answer key")
	} else if q.Key.Kind() != q.Kind {
		errs = append(errs, fmt.Sprintf("answer key kind %s does not match question kind %s", q.Key.Kind(), q.Kind))
	} else {
		errs = append(errs, validateKey(q.Key)...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("question %q: %w: %s", q.ID, ErrCorruptAnswerKey, strings.Join(errs, "; "))
	}
	return nil
}

func validateKey(key AnswerKey) []string {
	var errs []string

	switch k := key.(type) {
	case MultipleChoiceKey:
		if len(k.Options) == 0 {
			errs = append(errs, "no options")
		}
		if len(k.Correct) == 0 {
			errs = append(errs, "no correct options")
		}
		if !k.AllowMultipleAnswers && len(k.Correct) > 1 {
			errs = append(errs, "single-answer question has multiple correct options")
		}
		for _, c := range k.Correct {
			if !k.HasOption(c) {
				errs = append(errs, fmt.Sprintf("correct option %q is not an option", c))
			}
		}
		for id, w := range k.Weights {
			if w < 0 || w > 1 {
				errs = append(errs, fmt.Sprintf("weight for %q out of range: %v", id, w))
			}
			if !k.IsCorrectOption(id) {
				errs = append(errs, fmt.Sprintf("weight given for non-correct option %q", id))
			}
		}

	case ShortAnswerKey:
		if len(k.AcceptedAnswers) == 0 && !k.UseAIGrading {
			errs = append(errs, "no accepted answers")
		}

	case EssayKey:
		if k.MaxWords > 0 && k.MinWords > k.MaxWords {
			errs = append(errs, fmt.Sprintf("min words %d exceeds max words %d", k.MinWords, k.MaxWords))
		}

	case MatchingKey:
		if len(k.Pairs) == 0 {
			errs = append(errs, "no pairs")
		}
		lefts := make(map[string]bool, len(k.Pairs))
		for _, p := range k.Pairs {
			if lefts[p.Left] {
				errs = append(errs, fmt.Sprintf("duplicate left item %q", p.Left))
			}
			lefts[p.Left] = true
		}

	case OrderingKey:
		if len(k.CorrectOrder) == 0 {
			errs = append(errs, "empty correct order")
		}
		seen := make(map[string]bool, len(k.CorrectOrder))
		for _, id := range k.CorrectOrder {
			if seen[id] {
				errs = append(errs, fmt.Sprintf("duplicate item %q", id))
			}
			seen[id] = true
		}

	case FillBlankKey:
		if len(k.Blanks) == 0 {
			errs = append(errs, "no blanks")
		}
		for i, b := range k.Blanks {
			if len(b.AcceptedAnswers) == 0 {
				errs = append(errs, fmt.Sprintf("blank %d has no accepted answers", i))
			}
			if b.Points < 0 {
				errs = append(errs, fmt.Sprintf("blank %d has negative points", i))
			}
		}

	case TrueFalseKey:
		// Nothing to check.
	}

	return errs
}

package question

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedSubmission indicates the submitted payload does not fit the
// question kind. It is distinct from a well-formed wrong answer.
var ErrMalformedSubmission = errors.New("malformed submission")

// MalformedError describes why a payload was rejected.
type MalformedError struct {
	QuestionID string
	Kind       Kind
	Err        error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed %s answer for question %q: %v", e.Kind, e.QuestionID, e.Err)
}

func (e *MalformedError) Unwrap() []error { return []error{ErrMalformedSubmission, e.Err} }

// Answer is a decoded submission payload. Its concrete type depends on the
// question kind.
type Answer interface {
	answer()
}

// ChoiceAnswer selects option ids of a multiple-choice question.
type ChoiceAnswer struct {
	Selected []string `json:"selected"`
}

// BoolAnswer answers a true/false question.
type BoolAnswer struct {
	Value bool `json:"value"`
}

// TextAnswer answers a short-answer or essay question.
type TextAnswer struct {
	Text string `json:"text"`
}

// MatchAnswer maps left item ids to right item ids.
type MatchAnswer struct {
	Pairs map[string]string `json:"pairs"`
}

// OrderAnswer lists item ids in the submitted order.
type OrderAnswer struct {
	Order []string `json:"order"`
}

// BlanksAnswer fills each blank in order.
type BlanksAnswer struct {
	Values []string `json:"values"`
}

func (ChoiceAnswer) answer() {}
func (BoolAnswer) answer()   {}
func (TextAnswer) answer()   {}
func (MatchAnswer) answer()  {}
func (OrderAnswer) answer()  {}
func (BlanksAnswer) answer() {}

// DecodeAnswer parses raw into the answer type for q and checks it against
// the question's structure. Any mismatch yields a *MalformedError.
func DecodeAnswer(q *Question, raw json.RawMessage) (Answer, error) {
	malformed := func(format string, args ...any) error {
		return &MalformedError{QuestionID: q.ID, Kind: q.Kind, Err: fmt.Errorf(format, args...)}
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, malformed("empty payload")
	}

	switch q.Kind {
	case KindMultipleChoice:
		var a struct {
			Selected *[]string `json:"selected"`
		}
		if err := strictUnmarshal(trimmed, &a); err != nil {
			return nil, malformed("%v", err)
		}
		if a.Selected == nil {
			return nil, malformed("missing selected")
		}
		key, _ := q.Key.(MultipleChoiceKey)
		seen := make(map[string]bool, len(*a.Selected))
		for _, id := range *a.Selected {
			if !key.HasOption(id) {
				return nil, malformed("unknown option %q", id)
			}
			if seen[id] {
				return nil, malformed("option %q selected twice", id)
			}
			seen[id] = true
		}
		return ChoiceAnswer{Selected: *a.Selected}, nil

	case KindTrueFalse:
		var a struct {
			Value *bool `json:"value"`
		}
		if err := strictUnmarshal(trimmed, &a); err != nil {
			return nil, malformed("%v", err)
		}
		if a.Value == nil {
			return nil, malformed("missing value")
		}
		return BoolAnswer{Value: *a.Value}, nil

	case KindShortAnswer, KindEssay:
		var a struct {
			Text *string `json:"text"`
		}
		if err := strictUnmarshal(trimmed, &a); err != nil {
			return nil, malformed("%v", err)
		}
		if a.Text == nil {
			return nil, malformed("missing text")
		}
		return TextAnswer{Text: *a.Text}, nil

	case KindMatching:
		var a struct {
			Pairs map[string]string `json:"pairs"`
		}
		if err := strictUnmarshal(trimmed, &a); err != nil {
			return nil, malformed("%v", err)
		}
		if a.Pairs == nil {
			return nil, malformed("missing pairs")
		}
		key, _ := q.Key.(MatchingKey)
		lefts := make(map[string]bool, len(key.Pairs))
		rights := make(map[string]bool, len(key.Pairs))
		for _, p := range key.Pairs {
			lefts[p.Left] = true
			rights[p.Right] = true
		}
		for l, r := range a.Pairs {
			if !lefts[l] {
				return nil, malformed("unknown left item %q", l)
			}
			if !rights[r] {
				return nil, malformed("unknown right item %q", r)
			}
		}
		return MatchAnswer{Pairs: a.Pairs}, nil

	case KindOrdering:
		var a struct {
			Order []string `json:"order"`
		}
		if err := strictUnmarshal(trimmed, &a); err != nil {
			return nil, malformed("%v", err)
		}
		key, _ := q.Key.(OrderingKey)
		if !isPermutation(a.Order, key.CorrectOrder) {
			return nil, malformed("order must be a permutation of the %d items", len(key.CorrectOrder))
		}
		return OrderAnswer{Order: a.Order}, nil

	case KindFillBlank:
		var a struct {
			Values []string `json:"values"`
		}
		if err := strictUnmarshal(trimmed, &a); err != nil {
			return nil, malformed("%v", err)
		}
		key, _ := q.Key.(FillBlankKey)
		if len(a.Values) != len(key.Blanks) {
			return nil, malformed("expected %d blanks, got %d", len(key.Blanks), len(a.Values))
		}
		return BlanksAnswer{Values: a.Values}, nil
	}

	return nil, malformed("unsupported question kind")
}

func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

func isPermutation(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	counts := make(map[string]int, len(want))
	for _, id := range want {
		counts[id]++
	}
	for _, id := range got {
		counts[id]--
		if counts[id] < 0 {
			return false
		}
	}
	return true
}

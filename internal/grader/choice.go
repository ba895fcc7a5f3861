package grader

import "github.com/abhisek/gradewise/internal/question"

func (g *Grader) gradeMultipleChoice(q *question.Question, key question.MultipleChoiceKey, ans question.ChoiceAnswer) *Result {
	// Repeating an option must not count its weight twice.
	ans.Selected = distinct(ans.Selected)
	if !key.AllowMultipleAnswers {
		correct := len(ans.Selected) == 1 && key.IsCorrectOption(ans.Selected[0])
		return verdict(correct, q.Points)
	}

	var hits, wrong int
	for _, id := range ans.Selected {
		if key.IsCorrectOption(id) {
			hits++
		} else {
			wrong++
		}
	}
	overlap := jaccard(hits, len(ans.Selected), len(key.Correct))

	if !q.AllowPartialCredit {
		res := verdict(hits == len(key.Correct) && wrong == 0, q.Points)
		res.Confidence = overlap
		return res
	}

	weights := normalizedWeights(key)
	credit := 0.0
	for _, id := range ans.Selected {
		credit += weights[id]
	}

	penalty := g.cfg.WrongSelectionPenalty
	if penalty < 0 {
		penalty = 1 / float64(len(key.Correct))
	}
	credit -= penalty * float64(wrong)

	res := partial(credit, q.Points)
	// Full weight on a subset of options is not a correct answer.
	if hits != len(key.Correct) || wrong > 0 {
		f := false
		res.Correct = &f
	}
	return res
}

// distinct drops repeated option ids, keeping first-seen order.
func distinct(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// normalizedWeights fills missing weights with an equal share and scales the
// total down to 1 when authors over-allocate.
func normalizedWeights(key question.MultipleChoiceKey) map[string]float64 {
	share := 1 / float64(len(key.Correct))
	out := make(map[string]float64, len(key.Correct))
	total := 0.0
	for _, id := range key.Correct {
		w, ok := key.Weights[id]
		if !ok {
			w = share
		}
		out[id] = w
		total += w
	}
	if total > 1 {
		for id := range out {
			out[id] /= total
		}
	}
	return out
}

func jaccard(hits, selected, correct int) float64 {
	union := selected + correct - hits
	if union == 0 {
		return 0
	}
	return float64(hits) / float64(union)
}

func gradeTrueFalse(q *question.Question, key question.TrueFalseKey, ans question.BoolAnswer) *Result {
	res := verdict(ans.Value == key.Answer, q.Points)
	if ans.Value {
		res.Feedback = key.TrueFeedback
	} else {
		res.Feedback = key.FalseFeedback
	}
	return res
}

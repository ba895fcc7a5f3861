package grader

import (
	"fmt"

	"github.com/abhisek/gradewise/internal/question"
)

func gradeMatching(q *question.Question, key question.MatchingKey, ans question.MatchAnswer) *Result {
	correct := 0
	for _, p := range key.Pairs {
		if ans.Pairs[p.Left] == p.Right {
			correct++
		}
	}
	if !q.AllowPartialCredit {
		return verdict(correct == len(key.Pairs), q.Points)
	}
	return partial(float64(correct)/float64(len(key.Pairs)), q.Points)
}

// gradeOrdering scores partial orders by Kendall-tau concordance: the share
// of item pairs whose relative order matches the key. A fully reversed
// submission scores zero.
func gradeOrdering(q *question.Question, key question.OrderingKey, ans question.OrderAnswer) (*Result, error) {
	pos := make(map[string]int, len(ans.Order))
	for i, id := range ans.Order {
		pos[id] = i
	}
	for _, id := range key.CorrectOrder {
		if _, ok := pos[id]; !ok {
			return nil, &question.MalformedError{
				QuestionID: q.ID,
				Kind:       q.Kind,
				Err:        fmt.Errorf("missing item %q", id),
			}
		}
	}

	exact := true
	for i, id := range key.CorrectOrder {
		if pos[id] != i {
			exact = false
			break
		}
	}
	if !key.AllowPartialOrder || len(key.CorrectOrder) < 2 {
		return verdict(exact, q.Points), nil
	}

	n := len(key.CorrectOrder)
	concordant := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if pos[key.CorrectOrder[i]] < pos[key.CorrectOrder[j]] {
				concordant++
			}
		}
	}
	total := n * (n - 1) / 2
	return partial(float64(concordant)/float64(total), q.Points), nil
}

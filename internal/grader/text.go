package grader

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/abhisek/gradewise/internal/question"
)

// normalize trims, collapses internal whitespace and, unless caseSensitive,
// lowercases the input.
func normalize(s string, caseSensitive bool) string {
	s = strings.Join(strings.Fields(s), " ")
	if !caseSensitive {
		s = strings.ToLower(s)
	}
	return s
}

// match is the outcome of comparing a response with accepted answers.
type match struct {
	ok         bool
	similarity float64 // best 1 - distance/maxLen across accepted answers
}

// matchText applies the short-answer matching rule shared by short answers
// and fill-in-the-blank gaps: equality after normalization or, unless exact,
// a small edit distance. Fragments and answers embedded in longer text do
// not match.
func (g *Grader) matchText(response string, accepted []string, caseSensitive, exact bool) match {
	resp := normalize(response, caseSensitive)
	var best match
	for _, a := range accepted {
		want := normalize(a, caseSensitive)
		if resp == want {
			return match{ok: true, similarity: 1}
		}

		dist := levenshtein(resp, want)
		if sim := similarity(dist, resp, want); sim > best.similarity {
			best.similarity = sim
		}
		if exact || resp == "" || !g.typoTolerant(want) {
			continue
		}
		if dist <= g.cfg.MaxEditDistance {
			best.ok = true
		}
	}
	return best
}

// typoTolerant reports whether want is long enough for an edit-distance
// match to mean a misspelling rather than a different answer ("42" vs "43").
func (g *Grader) typoTolerant(want string) bool {
	return g.cfg.MaxEditDistance > 0 && utf8.RuneCountInString(want) > 3*g.cfg.MaxEditDistance
}

func similarity(dist int, a, b string) float64 {
	n := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if n == 0 {
		return 1
	}
	return 1 - float64(dist)/float64(n)
}

// levenshtein returns the edit distance between a and b in runes.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func (g *Grader) gradeShortAnswer(q *question.Question, key question.ShortAnswerKey, ans question.TextAnswer) *Result {
	m := g.matchText(ans.Text, key.AcceptedAnswers, key.CaseSensitive, key.ExactMatch)

	if key.UseAIGrading {
		return &Result{
			RequiresManualReview: true,
			Confidence:           m.similarity,
		}
	}
	res := verdict(m.ok, q.Points)
	if m.ok && m.similarity < 1 {
		res.Confidence = m.similarity
	}
	return res
}

func gradeEssay(_ *question.Question, key question.EssayKey, ans question.TextAnswer) *Result {
	words := len(strings.Fields(ans.Text))
	var feedback string
	switch {
	case key.MinWords > 0 && words < key.MinWords:
		feedback = fmt.Sprintf("Essay is too short: %d words, minimum %d.", words, key.MinWords)
	case key.MaxWords > 0 && words > key.MaxWords:
		feedback = fmt.Sprintf("Essay is too long: %d words, maximum %d.", words, key.MaxWords)
	default:
		feedback = fmt.Sprintf("Essay submitted: %d words.", words)
	}
	return &Result{RequiresManualReview: true, Feedback: feedback}
}

func (g *Grader) gradeFillBlank(q *question.Question, key question.FillBlankKey, ans question.BlanksAnswer) (*Result, error) {
	if len(ans.Values) != len(key.Blanks) {
		return nil, &question.MalformedError{
			QuestionID: q.ID,
			Kind:       q.Kind,
			Err:        fmt.Errorf("expected %d blanks, got %d", len(key.Blanks), len(ans.Values)),
		}
	}

	share := q.Points / float64(len(key.Blanks))
	earned := 0.0
	filled := 0
	for i, b := range key.Blanks {
		if !g.matchText(ans.Values[i], b.AcceptedAnswers, key.CaseSensitive, false).ok {
			continue
		}
		filled++
		if b.Points > 0 {
			earned += b.Points
		} else {
			earned += share
		}
	}

	if !q.AllowPartialCredit {
		return verdict(filled == len(key.Blanks), q.Points), nil
	}
	return partial(earned/q.Points, q.Points), nil
}

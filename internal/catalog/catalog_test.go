package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/abhisek/gradewise/internal/question"
	"github.com/abhisek/gradewise/internal/skillgraph"
)

func TestSample(t *testing.T) {
	c, err := Sample()
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	ctx := context.Background()

	q, err := c.GetQuestion(ctx, "mul-1")
	if err != nil {
		t.Fatal(err)
	}
	key, ok := q.Key.(question.MultipleChoiceKey)
	if !ok || !key.AllowMultipleAnswers || key.Weights["a"] != 0.5 || !q.AllowPartialCredit {
		t.Errorf("mul-1 decoded as %+v", q)
	}

	essay, _ := c.GetQuestion(ctx, "frac-4")
	if essay.AutoGradable {
		t.Error("essay should not be auto-gradable")
	}

	quiz, err := c.GetQuiz(ctx, "fractions-unit")
	if err != nil {
		t.Fatal(err)
	}
	if quiz.TimeLimit != 45*time.Minute || !quiz.HardDeadline || quiz.MaxAttempts != 2 {
		t.Errorf("quiz decoded as %+v", quiz)
	}

	if got := c.Graph().TopologicalOrder(); strings.Join(got, ",") != "addition,multiplication,fractions" {
		t.Errorf("topological order = %v", got)
	}
	if edges := c.GetPrerequisites("fractions"); len(edges) != 1 || edges[0].From != "multiplication" {
		t.Errorf("prerequisites = %+v", edges)
	}

	cohort, _ := c.GetCohort(ctx, "fractions-unit")
	author, _ := c.GetAuthor(ctx, "essay-ben")
	if len(cohort) != 5 || author != "ben" {
		t.Errorf("cohort = %v author = %q", cohort, author)
	}

	if _, err := c.Rubric(ctx, "explain"); err != nil {
		t.Errorf("Rubric: %v", err)
	}
	if _, err := c.GetQuiz(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown quiz: got %v", err)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"unknown kind": `
questions:
  - {id: q, kind: drawing, points: 1}
`,
		"corrupt key": `
questions:
  - {id: q, kind: multiple_choice, points: 1, options: [{id: a}]}
`,
		"quiz references unknown question": `
quizzes:
  - {id: z, questions: [missing]}
`,
		"unknown rubric": `
questions:
  - {id: q, kind: essay, points: 2, rubric: nope}
`,
		"prerequisite cycle": `
prerequisites:
  - {from: a, to: b, required_mastery: 10}
  - {from: b, to: a, required_mastery: 10}
`,
		"unknown field": `
questions:
  - {id: q, kind: true_false, points: 1, answer: true, colour: red}
`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParse_CycleWrapsErrCycle(t *testing.T) {
	_, err := Parse([]byte(`
prerequisites:
  - {from: a, to: b, required_mastery: 10}
  - {from: b, to: a, required_mastery: 10}
`))
	if !errors.Is(err, skillgraph.ErrCycle) {
		t.Errorf("got %v, want ErrCycle", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, sample, 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c.Questions()) != 8 || len(c.Quizzes()) != 2 {
		t.Errorf("loaded %d questions, %d quizzes", len(c.Questions()), len(c.Quizzes()))
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

// Package catalog loads authored content (questions, quizzes, learning
// modules, prerequisites, rubrics and rosters) from YAML.
package catalog

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/abhisek/gradewise/internal/attempt"
	"github.com/abhisek/gradewise/internal/question"
	"github.com/abhisek/gradewise/internal/rubric"
	"github.com/abhisek/gradewise/internal/skillgraph"
)

// ErrNotFound is wrapped by lookups of unknown IDs.
var ErrNotFound = errors.New("not found")

//go:embed sample.yaml
var sample []byte

// Catalog is an immutable, validated content set.
type Catalog struct {
	questions map[string]*question.Question
	quizzes   map[string]*attempt.Quiz
	rubrics   map[string]*rubric.Rubric
	cohorts   map[string][]string
	authors   map[string]string
	graph     *skillgraph.Graph
}

type document struct {
	Questions     []questionDoc       `yaml:"questions"`
	Quizzes       []attempt.Quiz      `yaml:"quizzes"`
	Modules       []skillgraph.Module `yaml:"modules"`
	Prerequisites []skillgraph.Edge   `yaml:"prerequisites"`
	Rubrics       []rubric.Rubric     `yaml:"rubrics"`
	Cohorts       map[string][]string `yaml:"cohorts"`
	Submissions   map[string]string   `yaml:"submissions"`
}

// Load reads a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Sample returns the built-in demo catalog.
func Sample() (*Catalog, error) {
	return Parse(sample)
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	c := &Catalog{
		questions: make(map[string]*question.Question, len(doc.Questions)),
		quizzes:   make(map[string]*attempt.Quiz, len(doc.Quizzes)),
		rubrics:   make(map[string]*rubric.Rubric, len(doc.Rubrics)),
		cohorts:   doc.Cohorts,
		authors:   doc.Submissions,
	}
	if c.cohorts == nil {
		c.cohorts = map[string][]string{}
	}
	if c.authors == nil {
		c.authors = map[string]string{}
	}

	var errs []error
	for i := range doc.Rubrics {
		r := &doc.Rubrics[i]
		if err := r.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		c.rubrics[r.ID] = r
	}

	for _, qd := range doc.Questions {
		q, err := qd.toQuestion()
		if err == nil {
			err = q.Validate()
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := c.questions[q.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate question %q", q.ID))
			continue
		}
		if k, ok := q.Key.(question.EssayKey); ok && k.RubricID != "" {
			if _, ok := c.rubrics[k.RubricID]; !ok {
				errs = append(errs, fmt.Errorf("question %q: unknown rubric %q", q.ID, k.RubricID))
			}
		}
		c.questions[q.ID] = q
	}

	for i := range doc.Quizzes {
		qz := &doc.Quizzes[i]
		if qz.ID == "" {
			errs = append(errs, errors.New("quiz with empty ID"))
			continue
		}
		if len(qz.QuestionIDs) == 0 {
			errs = append(errs, fmt.Errorf("quiz %q has no questions", qz.ID))
		}
		for _, id := range qz.QuestionIDs {
			if _, ok := c.questions[id]; !ok {
				errs = append(errs, fmt.Errorf("quiz %q: unknown question %q", qz.ID, id))
			}
		}
		if qz.QuestionsToShow < 0 || qz.MaxAttempts < 0 || qz.TimeLimit < 0 {
			errs = append(errs, fmt.Errorf("quiz %q: negative limit", qz.ID))
		}
		c.quizzes[qz.ID] = qz
	}

	g, err := skillgraph.New(doc.Modules, doc.Prerequisites)
	if err != nil {
		errs = append(errs, err)
	}
	c.graph = g

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return c, nil
}

// GetQuestion returns a question by ID.
func (c *Catalog) GetQuestion(_ context.Context, id string) (*question.Question, error) {
	q, ok := c.questions[id]
	if !ok {
		return nil, fmt.Errorf("question %q: %w", id, ErrNotFound)
	}
	return q, nil
}

// GetQuiz returns a quiz by ID.
func (c *Catalog) GetQuiz(_ context.Context, id string) (*attempt.Quiz, error) {
	q, ok := c.quizzes[id]
	if !ok {
		return nil, fmt.Errorf("quiz %q: %w", id, ErrNotFound)
	}
	return q, nil
}

// Rubric returns a rubric by ID.
func (c *Catalog) Rubric(_ context.Context, id string) (*rubric.Rubric, error) {
	r, ok := c.rubrics[id]
	if !ok {
		return nil, fmt.Errorf("rubric %q: %w", id, ErrNotFound)
	}
	return r, nil
}

// GetCohort returns the students of a cohort.
func (c *Catalog) GetCohort(_ context.Context, id string) ([]string, error) {
	s, ok := c.cohorts[id]
	if !ok {
		return nil, fmt.Errorf("cohort %q: %w", id, ErrNotFound)
	}
	return append([]string(nil), s...), nil
}

// GetAuthor returns the author of a submission.
func (c *Catalog) GetAuthor(_ context.Context, submissionID string) (string, error) {
	a, ok := c.authors[submissionID]
	if !ok {
		return "", fmt.Errorf("submission %q: %w", submissionID, ErrNotFound)
	}
	return a, nil
}

// GetPrerequisites returns the prerequisite edges of a skill.
func (c *Catalog) GetPrerequisites(skill string) []skillgraph.Edge {
	return c.graph.Prerequisites(skill)
}

// Graph returns the prerequisite graph.
func (c *Catalog) Graph() *skillgraph.Graph { return c.graph }

// Questions returns all questions sorted by ID.
func (c *Catalog) Questions() []*question.Question {
	out := make([]*question.Question, 0, len(c.questions))
	for _, q := range c.questions {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Quizzes returns all quizzes sorted by ID.
func (c *Catalog) Quizzes() []*attempt.Quiz {
	out := make([]*attempt.Quiz, 0, len(c.quizzes))
	for _, q := range c.quizzes {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

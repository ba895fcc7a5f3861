package review

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"text/template"

	"github.com/abhisek/gradewise/internal/attempt"
	"github.com/abhisek/gradewise/internal/llm"
	"github.com/abhisek/gradewise/internal/question"
	"github.com/abhisek/gradewise/internal/rubric"
)

// AIConfig holds configuration for the LLM reviewer.
type AIConfig struct {
	MaxTokens   int
	Temperature float64

	// MinConfidence is the confidence below which a grade is left for a
	// human instead of being applied.
	MinConfidence float64
}

// DefaultAIConfig returns sensible defaults.
func DefaultAIConfig() AIConfig {
	return AIConfig{
		MaxTokens:     512,
		Temperature:   0.2,
		MinConfidence: 0.6,
	}
}

// AIReviewer grades free-text answers with an LLM.
type AIReviewer struct {
	provider llm.Provider
	cfg      AIConfig
}

// NewAIReviewer creates an LLM-backed reviewer.
func NewAIReviewer(provider llm.Provider, cfg AIConfig) *AIReviewer {
	return &AIReviewer{provider: provider, cfg: cfg}
}

// Verdict is the reviewer's grade for one answer.
type Verdict struct {
	Fraction   float64
	Correct    bool
	Confidence float64
	Feedback   string
}

// Resolution converts the verdict into points for a question worth maxPoints.
func (v *Verdict) Resolution(maxPoints float64, reviewer string) attempt.Resolution {
	c := v.Correct
	return attempt.Resolution{
		PointsEarned: math.Round(v.Fraction*maxPoints*100) / 100,
		Correct:      &c,
		Feedback:     v.Feedback,
		Reviewer:     reviewer,
	}
}

type gradingOutput struct {
	ScoreFraction   float64          `json:"score_fraction"`
	Correct         bool             `json:"correct"`
	Confidence      float64          `json:"confidence"`
	Feedback        string           `json:"feedback"`
	Strengths       []string         `json:"strengths"`
	Improvements    []string         `json:"improvements"`
	CriterionScores []criterionScore `json:"criterion_scores"`
}

type criterionScore struct {
	CriterionID string  `json:"criterion_id"`
	Points      float64 `json:"points"`
}

// Supports reports whether the reviewer can grade the question.
func Supports(q *question.Question) bool {
	if q == nil {
		return false
	}
	switch k := q.Key.(type) {
	case question.EssayKey:
		return k.UseAIGrading
	case question.ShortAnswerKey:
		return k.UseAIGrading
	}
	return false
}

// Review grades one answer. When rub is non-nil and the model returns
// criterion scores, the fraction is computed from the rubric.
func (r *AIReviewer) Review(ctx context.Context, req attempt.ReviewRequest, rub *rubric.Rubric) (*Verdict, error) {
	ctx = llm.WithPurpose(ctx, "answer-review")
	ctx = llm.WithSubject(ctx, req.AttemptID+":"+req.Question.ID)

	ans, err := question.DecodeAnswer(req.Question, req.Payload)
	if err != nil {
		return nil, err
	}
	text, ok := ans.(question.TextAnswer)
	if !ok {
		return nil, fmt.Errorf("question %s: AI review needs a text answer", req.Question.ID)
	}

	userMsg, err := buildGradingMessage(req.Question, text.Text, rub)
	if err != nil {
		return nil, fmt.Errorf("build grading prompt: %w", err)
	}

	resp, err := r.provider.Generate(ctx, llm.Request{
		System:      gradingSystemPrompt,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: userMsg}},
		Schema:      GradingSchema,
		MaxTokens:   r.cfg.MaxTokens,
		Temperature: r.cfg.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM grading failed: %w", err)
	}

	var raw gradingOutput
	if err := json.Unmarshal(resp.Content, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse grading response: %w", err)
	}

	v := &Verdict{
		Fraction:   math.Max(0, math.Min(1, raw.ScoreFraction)),
		Correct:    raw.Correct,
		Confidence: math.Max(0, math.Min(1, raw.Confidence)),
		Feedback:   composeFeedback(raw),
	}
	if rub != nil && len(raw.CriterionScores) > 0 {
		scores := make(map[string]float64, len(raw.CriterionScores))
		for _, cs := range raw.CriterionScores {
			scores[cs.CriterionID] = cs.Points
		}
		f, err := rub.Score(scores)
		if err != nil {
			return nil, fmt.Errorf("apply rubric: %w", err)
		}
		v.Fraction = f
	}
	return v, nil
}

// MinConfidence returns the threshold below which verdicts are not applied.
func (r *AIReviewer) MinConfidence() float64 { return r.cfg.MinConfidence }

// ModelID identifies the grading model.
func (r *AIReviewer) ModelID() string { return r.provider.ModelID() }

func composeFeedback(raw gradingOutput) string {
	var b strings.Builder
	b.WriteString(raw.Feedback)
	if len(raw.Strengths) > 0 {
		b.WriteString("\nStrengths: ")
		b.WriteString(strings.Join(raw.Strengths, "; "))
	}
	if len(raw.Improvements) > 0 {
		b.WriteString("\nTo improve: ")
		b.WriteString(strings.Join(raw.Improvements, "; "))
	}
	return b.String()
}

const gradingSystemPrompt = `You are an experienced teacher grading a student's written answer.

Instructions:
- Judge the answer only against the question and the expectations given.
- score_fraction is the share of the points the answer deserves.
- When a rubric is listed, score every criterion from 0 to its maximum and return them in criterion_scores. Otherwise return an empty list.
- Provide a confidence score (0.0–1.0) reflecting how certain the grade is.
- Keep feedback short, specific and addressed to the student.`

type gradingPrompt struct {
	Question *question.Question
	Answer   string
	Accepted []string
	MinWords int
	MaxWords int
	Guidance string
	Rubric   *rubric.Rubric
}

var gradingUserTemplate = template.Must(template.New("grading").Parse(`Question ({{.Question.Kind}}, {{.Question.Points}} points): {{.Question.Text}}
{{if .Accepted}}Reference answers:
{{range .Accepted}}- {{.}}
{{end}}{{end}}{{if .Guidance}}Expectations: {{.Guidance}}
{{end}}{{if or .MinWords .MaxWords}}Length: {{.MinWords}}–{{.MaxWords}} words
{{end}}{{if .Rubric}}Rubric "{{.Rubric.Name}}":
{{range .Rubric.Criteria}}- {{.ID}} ({{.Name}}): up to {{.MaxPoints}} points
{{end}}{{end}}
Student answer:
{{.Answer}}`))

func buildGradingMessage(q *question.Question, answer string, rub *rubric.Rubric) (string, error) {
	p := gradingPrompt{Question: q, Answer: answer, Rubric: rub}
	switch k := q.Key.(type) {
	case question.ShortAnswerKey:
		p.Accepted = k.AcceptedAnswers
	case question.EssayKey:
		p.MinWords, p.MaxWords, p.Guidance = k.MinWords, k.MaxWords, k.Guidance
	}

	var buf bytes.Buffer
	if err := gradingUserTemplate.Execute(&buf, p); err != nil {
		return "", err
	}
	return buf.String(), nil
}

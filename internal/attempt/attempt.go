// Package attempt runs one student's pass through a quiz: question sampling,
// answer collection, time limits, grading at submission and aggregation.
package attempt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/abhisek/gradewise/internal/grader"
	"github.com/abhisek/gradewise/internal/question"
)

// Status is the lifecycle state of an attempt.
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusSubmitted  Status = "SUBMITTED"
	StatusGraded     Status = "GRADED"
	StatusExpired    Status = "EXPIRED"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusGraded || s == StatusExpired
}

// transitions lists the only legal forward moves.
var transitions = map[Status][]Status{
	StatusInProgress: {StatusSubmitted, StatusExpired},
	StatusSubmitted:  {StatusGraded},
}

func canTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Quiz holds the attempt policy of a quiz.
type Quiz struct {
	ID          string   `json:"id" yaml:"id"`
	Title       string   `json:"title" yaml:"title"`
	QuestionIDs []string `json:"questionIds" yaml:"questions"`

	// QuestionsToShow samples a subset per attempt. Zero shows all.
	QuestionsToShow int `json:"questionsToShow" yaml:"questions_to_show"`

	// TimeLimit of zero means untimed.
	TimeLimit time.Duration `json:"timeLimit" yaml:"time_limit"`

	// HardDeadline expires an overdue attempt instead of submitting it.
	HardDeadline bool `json:"hardDeadline" yaml:"hard_deadline"`

	// MaxAttempts of zero means unlimited.
	MaxAttempts  int     `json:"maxAttempts" yaml:"max_attempts"`
	PassingScore float64 `json:"passingScore" yaml:"passing_score"`

	// AutoGrade finalizes machine-graded attempts without human sign-off.
	AutoGrade bool `json:"autoGrade" yaml:"auto_grade"`

	AvailableFrom  time.Time `json:"availableFrom,omitzero" yaml:"available_from"`
	AvailableUntil time.Time `json:"availableUntil,omitzero" yaml:"available_until"`

	LockQuestionsAfterAnswering bool `json:"lockQuestionsAfterAnswering" yaml:"lock_questions_after_answering"`
	RandomizeQuestions          bool `json:"randomizeQuestions" yaml:"randomize_questions"`
}

// Available reports whether now lies inside the quiz window. Zero bounds
// are open.
func (q *Quiz) Available(now time.Time) bool {
	if !q.AvailableFrom.IsZero() && now.Before(q.AvailableFrom) {
		return false
	}
	if !q.AvailableUntil.IsZero() && now.After(q.AvailableUntil) {
		return false
	}
	return true
}

// Answer is one submitted response and, after submission, its grade.
type Answer struct {
	QuestionID       string          `json:"questionId"`
	Payload          json.RawMessage `json:"payload,omitempty"`
	TimeSpentSeconds int             `json:"timeSpentSeconds"`
	Flagged          bool            `json:"flagged"`
	AnsweredAt       time.Time       `json:"answeredAt,omitzero"`

	Result *grader.Result `json:"result,omitempty"`

	// ReviewID is set while the grade waits on a reviewer.
	ReviewID   string `json:"reviewId,omitempty"`
	Reviewed   bool   `json:"reviewed"`
	GradeError string `json:"gradeError,omitempty"`
}

// Answered reports whether the student submitted a payload.
func (a *Answer) Answered() bool { return len(a.Payload) > 0 }

// Pending reports whether the answer still waits on a reviewer.
func (a *Answer) Pending() bool { return a.ReviewID != "" && !a.Reviewed }

// Attempt is one student's run through one quiz.
type Attempt struct {
	ID        string `json:"id"`
	QuizID    string `json:"quizId"`
	StudentID string `json:"studentId"`
	Number    int    `json:"number"`
	Status    Status `json:"status"`

	// QuestionIDs is the presented order.
	QuestionIDs []string `json:"questionIds"`
	Answers     []Answer `json:"answers"`

	StartedAt   time.Time `json:"startedAt"`
	Deadline    time.Time `json:"deadline,omitzero"`
	SubmittedAt time.Time `json:"submittedAt,omitzero"`
	GradedAt    time.Time `json:"gradedAt,omitzero"`

	TotalScore   float64 `json:"totalScore"`
	MaxScore     float64 `json:"maxScore"`
	Percentage   float64 `json:"percentage"`
	PassingScore float64 `json:"passingScore"`
	Passed       bool    `json:"passed"`
	LetterGrade  string  `json:"letterGrade,omitempty"`
}

// Presents reports whether questionID is part of this attempt.
func (a *Attempt) Presents(questionID string) bool {
	for _, id := range a.QuestionIDs {
		if id == questionID {
			return true
		}
	}
	return false
}

// Answer returns the answer for a question, or nil.
func (a *Attempt) Answer(questionID string) *Answer {
	for i := range a.Answers {
		if a.Answers[i].QuestionID == questionID {
			return &a.Answers[i]
		}
	}
	return nil
}

// PendingReviews returns the review IDs that are still open.
func (a *Attempt) PendingReviews() []string {
	var ids []string
	for i := range a.Answers {
		if a.Answers[i].Pending() {
			ids = append(ids, a.Answers[i].ReviewID)
		}
	}
	return ids
}

// Overdue reports whether an in-progress attempt has passed its deadline.
func (a *Attempt) Overdue(now time.Time) bool {
	return a.Status == StatusInProgress && !a.Deadline.IsZero() && now.After(a.Deadline)
}

func (a *Attempt) transition(to Status) error {
	if !canTransition(a.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, to)
	}
	a.Status = to
	return nil
}

// aggregate recomputes totals from graded answers. MaxScore is fixed when
// the attempt starts.
func (a *Attempt) aggregate() {
	total := 0.0
	for i := range a.Answers {
		if r := a.Answers[i].Result; r != nil {
			total += r.PointsEarned
		}
	}
	a.TotalScore = total
	if a.MaxScore > 0 {
		a.Percentage = total / a.MaxScore * 100
	} else {
		a.Percentage = 0
	}
	a.Passed = a.Percentage >= a.PassingScore
	a.LetterGrade = grader.LetterGrade(a.Percentage)
}

// Outcomes returns each graded answer with its question ID, in presented
// order. Answers without a result are skipped.
func (a *Attempt) Outcomes() []Outcome {
	out := make([]Outcome, 0, len(a.QuestionIDs))
	for _, id := range a.QuestionIDs {
		ans := a.Answer(id)
		if ans == nil || ans.Result == nil {
			continue
		}
		out = append(out, Outcome{QuestionID: id, Answered: ans.Answered(), TimeSpentSeconds: ans.TimeSpentSeconds, Result: *ans.Result})
	}
	return out
}

// Outcome is a graded answer flattened for downstream consumers.
type Outcome struct {
	QuestionID       string
	Answered         bool
	TimeSpentSeconds int
	Result           grader.Result
}

// ReviewRequest asks a reviewer to settle one answer.
type ReviewRequest struct {
	ReviewID    string             `json:"reviewId"`
	AttemptID   string             `json:"attemptId"`
	QuizID      string             `json:"quizId"`
	StudentID   string             `json:"studentId"`
	Question    *question.Question `json:"-"`
	Payload     json.RawMessage    `json:"payload,omitempty"`
	Provisional grader.Result      `json:"provisional"`
	GradeError  string             `json:"gradeError,omitempty"`
}

// Resolution is a reviewer's final grade for one answer.
type Resolution struct {
	PointsEarned float64 `json:"pointsEarned"`
	// Correct defaults to full marks when nil.
	Correct  *bool  `json:"correct,omitempty"`
	Feedback string `json:"feedback,omitempty"`
	Reviewer string `json:"reviewer,omitempty"`
}

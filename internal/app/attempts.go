package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/abhisek/gradewise/internal/attempt"
	"github.com/abhisek/gradewise/internal/grader"
	"github.com/abhisek/gradewise/internal/mastery"
	"github.com/abhisek/gradewise/internal/notify"
	"github.com/abhisek/gradewise/internal/question"
	"github.com/abhisek/gradewise/internal/review"
	"github.com/abhisek/gradewise/internal/store"
)

// Grade scores one answer to a catalog question without touching any
// attempt or mastery state.
func (e *Engine) Grade(ctx context.Context, questionID string, payload json.RawMessage) (*grader.Result, error) {
	_, span := e.tracer.Start(ctx, "grade", trace.WithAttributes(attribute.String("question.id", questionID)))
	defer span.End()

	q, err := e.catalog.GetQuestion(ctx, questionID)
	if err != nil {
		return nil, endSpan(span, err)
	}
	ans, err := question.DecodeAnswer(q, payload)
	if err != nil {
		return nil, endSpan(span, err)
	}
	res, err := e.grader.Grade(q, ans)
	if err != nil {
		e.metrics.AnswerGraded(string(q.Kind), "error")
		return nil, endSpan(span, fmt.Errorf("grade %s: %w", questionID, err))
	}
	e.metrics.AnswerGraded(string(q.Kind), resultLabel(res))
	return res, nil
}

func (e *Engine) StartAttempt(ctx context.Context, quizID, studentID string) (*attempt.Attempt, error) {
	a, err := e.attempts.Start(ctx, quizID, studentID)
	if err != nil {
		return nil, err
	}
	e.metrics.AttemptTransition("started")
	return a, nil
}

// GetAttempt loads an attempt, applying its deadline first.
func (e *Engine) GetAttempt(ctx context.Context, attemptID string) (*attempt.Attempt, error) {
	return e.attempts.Get(ctx, attemptID)
}

func (e *Engine) SubmitAnswer(ctx context.Context, attemptID string, in attempt.AnswerInput) (*attempt.Attempt, error) {
	return e.attempts.SubmitAnswer(ctx, attemptID, in)
}

// SubmitAttempt grades the attempt. Auto-graded attempts come back GRADED
// with mastery already updated; the rest stay SUBMITTED until every review
// is resolved.
func (e *Engine) SubmitAttempt(ctx context.Context, attemptID string) (*attempt.Attempt, error) {
	ctx, span := e.tracer.Start(ctx, "attempt.submit", trace.WithAttributes(attribute.String("attempt.id", attemptID)))
	defer span.End()

	a, err := e.attempts.Submit(ctx, attemptID)
	if err != nil {
		return nil, endSpan(span, err)
	}
	e.metrics.AttemptTransition("submitted")
	for _, id := range a.QuestionIDs {
		ans := a.Answer(id)
		q, err := e.catalog.GetQuestion(ctx, id)
		if ans == nil || err != nil {
			continue
		}
		switch {
		case ans.GradeError != "":
			e.metrics.AnswerGraded(string(q.Kind), "error")
		case ans.Pending():
			e.metrics.AnswerGraded(string(q.Kind), "pending")
		case ans.Result != nil:
			e.metrics.AnswerGraded(string(q.Kind), resultLabel(ans.Result))
		}
	}
	span.SetAttributes(
		attribute.String("attempt.status", string(a.Status)),
		attribute.Float64("attempt.percentage", a.Percentage),
	)
	return a, nil
}

// ResolveReview applies a human grade to an open review.
func (e *Engine) ResolveReview(ctx context.Context, attemptID, reviewID string, res attempt.Resolution) (*attempt.Attempt, error) {
	return e.attempts.ResolveReview(ctx, attemptID, reviewID, res)
}

func (e *Engine) AttemptHistory(ctx context.Context, quizID, studentID string) ([]*attempt.Attempt, error) {
	return e.attempts.History(ctx, quizID, studentID)
}

// applyReview is the review service's resolver for AI grades.
func (e *Engine) applyReview(ctx context.Context, req attempt.ReviewRequest, res attempt.Resolution) error {
	_, err := e.attempts.ResolveReview(ctx, req.AttemptID, req.ReviewID, res)
	return err
}

// AttemptFinalized feeds every graded answer with a skill into the mastery
// tracker and announces the result. Updates outlive the caller's context.
// A failed feed goes to the backlog for ResyncMastery.
func (e *Engine) AttemptFinalized(ctx context.Context, a *attempt.Attempt) {
	ctx = context.WithoutCancel(ctx)
	e.metrics.AttemptTransition(string(a.Status))

	if err := e.feedMastery(ctx, a); err != nil {
		e.log.Error("feeding mastery from attempt",
			zap.String("attempt", a.ID),
			zap.String("student", a.StudentID),
			zap.Error(err),
		)
		if merr := e.backlog.Mark(ctx, a.ID, a.StudentID, err, e.now().UTC()); merr != nil {
			e.log.Error("queueing mastery feed", zap.String("attempt", a.ID), zap.Error(merr))
		}
	}
	e.notify(ctx, notify.KindAttemptGraded, a.StudentID, a.QuizID, attemptSummary{
		AttemptID:   a.ID,
		Status:      a.Status,
		TotalScore:  a.TotalScore,
		MaxScore:    a.MaxScore,
		Percentage:  a.Percentage,
		Passed:      a.Passed,
		LetterGrade: a.LetterGrade,
	})
}

// ReviewRequested hands the answer to the review service. Anything it
// cannot queue for AI review is announced for a human.
func (e *Engine) ReviewRequested(ctx context.Context, req attempt.ReviewRequest) {
	if d := e.reviews.Submit(ctx, req); d != review.Queued {
		e.announceManualReview(ctx, req, d)
	}
}

// announceManualReview announces an answer that waits for a human, either
// straight away or after the AI could not settle it.
func (e *Engine) announceManualReview(ctx context.Context, req attempt.ReviewRequest, why review.Disposition) {
	qid := ""
	if req.Question != nil {
		qid = req.Question.ID
	}
	e.notify(ctx, notify.KindReviewNeeded, req.StudentID, req.AttemptID, reviewNeeded{
		ReviewID:   req.ReviewID,
		AttemptID:  req.AttemptID,
		QuestionID: qid,
		Reason:     string(why),
		GradeError: req.GradeError,
	})
}

type attemptSummary struct {
	AttemptID   string         `json:"attemptId"`
	Status      attempt.Status `json:"status"`
	TotalScore  float64        `json:"totalScore"`
	MaxScore    float64        `json:"maxScore"`
	Percentage  float64        `json:"percentage"`
	Passed      bool           `json:"passed"`
	LetterGrade string         `json:"letterGrade,omitempty"`
}

type reviewNeeded struct {
	ReviewID   string `json:"reviewId"`
	AttemptID  string `json:"attemptId"`
	QuestionID string `json:"questionId"`
	Reason     string `json:"reason"`
	GradeError string `json:"gradeError,omitempty"`
}

// ResyncMastery replays every queued mastery feed and returns how many
// landed. Feeds that fail again stay queued; their errors are joined.
func (e *Engine) ResyncMastery(ctx context.Context) (int, error) {
	pending, err := e.backlog.List(ctx)
	if err != nil {
		return 0, err
	}
	var errs []error
	landed := 0
	for _, p := range pending {
		if err := e.replayFeed(ctx, p.AttemptID); err != nil {
			errs = append(errs, fmt.Errorf("attempt %s: %w", p.AttemptID, err))
			if merr := e.backlog.Mark(ctx, p.AttemptID, p.StudentID, err, e.now().UTC()); merr != nil {
				errs = append(errs, merr)
			}
			continue
		}
		if err := e.backlog.Clear(ctx, p.AttemptID); err != nil {
			errs = append(errs, err)
			continue
		}
		landed++
	}
	return landed, errors.Join(errs...)
}

// PendingMasteryFeeds lists attempts still waiting for a mastery replay.
func (e *Engine) PendingMasteryFeeds(ctx context.Context) ([]store.PendingFeed, error) {
	return e.backlog.List(ctx)
}

func (e *Engine) replayFeed(ctx context.Context, attemptID string) error {
	a, err := e.attempts.Get(ctx, attemptID)
	if err != nil {
		return err
	}
	return e.feedMastery(ctx, a)
}

// feedMastery records one interaction per graded answer whose question has
// a skill. Skills update in parallel; answers to the same skill apply in
// presented order. Interaction IDs derive from the attempt, so a replay
// is a no-op.
func (e *Engine) feedMastery(ctx context.Context, a *attempt.Attempt) error {
	at := a.GradedAt
	if at.IsZero() {
		at = a.SubmittedAt
	}
	if at.IsZero() {
		at = e.now().UTC()
	}

	bySkill := make(map[string][]mastery.Interaction)
	var skills []string
	for _, o := range a.Outcomes() {
		q, err := e.catalog.GetQuestion(ctx, o.QuestionID)
		if err != nil {
			return fmt.Errorf("get question %s: %w", o.QuestionID, err)
		}
		// Unresolved reviews on an expired attempt carry no judgement yet.
		if q.SkillKey == "" || o.Result.RequiresManualReview {
			continue
		}
		outcome := mastery.OutcomeSkipped
		if o.Answered {
			outcome = mastery.OutcomeFromFraction(o.Result.Fraction())
		}
		if _, seen := bySkill[q.SkillKey]; !seen {
			skills = append(skills, q.SkillKey)
		}
		bySkill[q.SkillKey] = append(bySkill[q.SkillKey], mastery.Interaction{
			ID:               a.ID + ":" + o.QuestionID,
			StudentID:        a.StudentID,
			SkillKey:         q.SkillKey,
			Difficulty:       q.Difficulty,
			Outcome:          outcome,
			Score:            o.Result.Fraction(),
			TimeSpentSeconds: o.TimeSpentSeconds,
			At:               at,
			Source:           "attempt:" + a.ID,
		})
	}

	var g errgroup.Group
	for _, skill := range skills {
		interactions := bySkill[skill]
		g.Go(func() error {
			for _, in := range interactions {
				if _, err := e.recordInteraction(ctx, in); err != nil && !errors.Is(err, mastery.ErrDuplicateInteraction) {
					return fmt.Errorf("skill %s: %w", skill, err)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func resultLabel(r *grader.Result) string {
	switch {
	case r.RequiresManualReview:
		return "pending"
	case r.Correct != nil && *r.Correct:
		return "correct"
	case r.PointsEarned > 0:
		return "partial"
	default:
		return "incorrect"
	}
}

func endSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

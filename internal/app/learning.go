package app

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/abhisek/gradewise/internal/mastery"
	"github.com/abhisek/gradewise/internal/notify"
	"github.com/abhisek/gradewise/internal/peerreview"
	"github.com/abhisek/gradewise/internal/recommend"
	"github.com/abhisek/gradewise/internal/spacedrep"
)

// RecordInteraction applies one learning event to the student's mastery
// of a skill. A replayed interaction ID returns the current record along
// with mastery.ErrDuplicateInteraction.
func (e *Engine) RecordInteraction(ctx context.Context, in mastery.Interaction) (*mastery.Record, error) {
	ctx, span := e.tracer.Start(ctx, "mastery.record", trace.WithAttributes(
		attribute.String("student.id", in.StudentID),
		attribute.String("skill.key", in.SkillKey),
	))
	defer span.End()

	if in.At.IsZero() {
		in.At = e.now().UTC()
	}
	rec, err := e.recordInteraction(ctx, in)
	if err != nil && !errors.Is(err, mastery.ErrDuplicateInteraction) {
		return nil, endSpan(span, err)
	}
	return rec, err
}

func (e *Engine) recordInteraction(ctx context.Context, in mastery.Interaction) (*mastery.Record, error) {
	rec, err := e.tracker.RecordInteraction(ctx, in)
	if err != nil {
		return rec, err
	}
	e.metrics.MasteryUpdated(string(in.Outcome), rec.MasteryLevel)
	return rec, nil
}

func (e *Engine) Mastery(ctx context.Context, studentID, skillKey string) (*mastery.Record, error) {
	return e.tracker.Get(ctx, studentID, skillKey)
}

// MasteryRecords lists every skill the student has a record for.
func (e *Engine) MasteryRecords(ctx context.Context, studentID string) ([]*mastery.Record, error) {
	return e.tracker.Records(ctx, studentID)
}

// AdjustMastery sets a level by hand; reason is logged with the change.
func (e *Engine) AdjustMastery(ctx context.Context, studentID, skillKey string, level float64, reason string) (*mastery.Record, error) {
	return e.tracker.Adjust(ctx, studentID, skillKey, level, reason)
}

func (e *Engine) ResetMastery(ctx context.Context, studentID, skillKey string) (*mastery.Record, error) {
	return e.tracker.Reset(ctx, studentID, skillKey)
}

// ReviewQueue lists the student's skills due for spaced review, most
// overdue first.
func (e *Engine) ReviewQueue(ctx context.Context, studentID string) ([]spacedrep.Item, error) {
	return e.tracker.ReviewQueue(ctx, studentID, e.now().UTC())
}

func (e *Engine) MasteryStats(ctx context.Context, studentID string) (mastery.Stats, error) {
	return e.tracker.Stats(ctx, studentID, e.now().UTC())
}

// Recommend picks the student's next module from the skill graph and their
// current mastery. A fully blocked student is announced so an instructor
// can step in.
func (e *Engine) Recommend(ctx context.Context, studentID string) (*recommend.Recommendation, error) {
	ctx, span := e.tracer.Start(ctx, "recommend", trace.WithAttributes(attribute.String("student.id", studentID)))
	defer span.End()

	records, err := e.tracker.Records(ctx, studentID)
	if err != nil {
		return nil, endSpan(span, fmt.Errorf("load mastery: %w", err))
	}
	rec, err := recommend.Recommend(recommend.NewSnapshot(studentID, records), e.catalog.Graph(), e.now().UTC(), e.cfg.RecommendConfig())
	if err != nil {
		return nil, endSpan(span, err)
	}

	if rec.FullyBlocked {
		e.metrics.Recommendation("BLOCKED")
		e.notify(ctx, notify.KindPrerequisiteBlocked, studentID, "", rec.Blockers)
		span.SetAttributes(attribute.Bool("recommend.blocked", true))
		return rec, nil
	}
	e.metrics.Recommendation(string(rec.Type))
	span.SetAttributes(
		attribute.String("recommend.type", string(rec.Type)),
		attribute.String("recommend.module", rec.Module.ID),
	)
	return rec, nil
}

// AssignReviews allocates n peer reviewers from the cohort to each
// submission and tells every reviewer what they owe.
func (e *Engine) AssignReviews(ctx context.Context, cohortID string, submissionIDs []string, n int, opts peerreview.Options) ([]peerreview.Assignment, error) {
	as, err := e.peers.AssignBatch(ctx, cohortID, submissionIDs, n, opts)
	if err != nil {
		return nil, err
	}
	byReviewer := make(map[string][]string)
	var reviewers []string
	for _, a := range as {
		if _, seen := byReviewer[a.ReviewerID]; !seen {
			reviewers = append(reviewers, a.ReviewerID)
		}
		byReviewer[a.ReviewerID] = append(byReviewer[a.ReviewerID], a.SubmissionID)
	}
	for _, r := range reviewers {
		e.notify(ctx, notify.KindPeerReviewAssigned, r, cohortID, map[string]any{
			"submissionIds": byReviewer[r],
			"anonymous":     opts.Anonymous,
		})
	}
	return as, nil
}

// SubmitPeerReview checks the scores against the named rubric and stores
// them.
func (e *Engine) SubmitPeerReview(ctx context.Context, rubricID string, rv peerreview.Review) error {
	rub, err := e.catalog.Rubric(ctx, rubricID)
	if err != nil {
		return err
	}
	if err := e.peers.SubmitReview(ctx, rub, rv); err != nil {
		return err
	}
	e.log.Debug("peer review stored",
		zap.String("submission", rv.SubmissionID),
		zap.String("reviewer", rv.ReviewerID),
	)
	return nil
}

func (e *Engine) PeerReviewSummary(ctx context.Context, rubricID, submissionID string) (*peerreview.Summary, error) {
	rub, err := e.catalog.Rubric(ctx, rubricID)
	if err != nil {
		return nil, err
	}
	return e.peers.Summary(ctx, rub, submissionID)
}

func (e *Engine) PendingPeerReviews(ctx context.Context, reviewerID string) ([]peerreview.Assignment, error) {
	return e.peers.Pending(ctx, reviewerID)
}

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/abhisek/gradewise/internal/peerreview"
)

// PeerReviewRepo persists reviewer assignments and submitted reviews.
type PeerReviewRepo struct {
	s *Store
}

var _ peerreview.Repo = (*PeerReviewRepo)(nil)

// SaveAssignments implements peerreview.Repo. The batch is all-or-nothing.
func (r *PeerReviewRepo) SaveAssignments(ctx context.Context, as []peerreview.Assignment) error {
	if len(as) == 0 {
		return nil
	}
	now := millis(time.Now())
	return r.s.withTx(ctx, func(tx dialect.Tx) error {
		ins := builder().Insert("peer_review_assignments").
			Columns("submission_id", "reviewer_id", "anonymous", "assigned_at")
		for _, a := range as {
			ins.Values(a.SubmissionID, a.ReviewerID, a.Anonymous, now)
		}
		query, args := ins.Query()
		if err := tx.Exec(ctx, query, args, nil); err != nil {
			return fmt.Errorf("save assignments: %w", err)
		}
		return nil
	})
}

// ListAssignments implements peerreview.Repo.
func (r *PeerReviewRepo) ListAssignments(ctx context.Context, submissionID string) ([]peerreview.Assignment, error) {
	return r.assignments(ctx, entsql.EQ("submission_id", submissionID))
}

// PendingForReviewer implements peerreview.Repo.
func (r *PeerReviewRepo) PendingForReviewer(ctx context.Context, reviewerID string) ([]peerreview.Assignment, error) {
	all, err := r.assignments(ctx, entsql.EQ("reviewer_id", reviewerID))
	if err != nil {
		return nil, err
	}

	query, args := builder().Select("submission_id").From(entsql.Table("peer_reviews")).
		Where(entsql.EQ("reviewer_id", reviewerID)).
		Query()
	done := make(map[string]bool)
	err = scanAll(ctx, r.s.drv, query, args, func(rows *entsql.Rows) error {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		done[id] = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list reviews by reviewer: %w", err)
	}

	pending := all[:0]
	for _, a := range all {
		if !done[a.SubmissionID] {
			pending = append(pending, a)
		}
	}
	return pending, nil
}

// SaveReview implements peerreview.Repo. A reviewer resubmitting replaces
// their earlier review.
func (r *PeerReviewRepo) SaveReview(ctx context.Context, rv peerreview.Review) error {
	body, err := json.Marshal(rv)
	if err != nil {
		return fmt.Errorf("marshal review: %w", err)
	}
	return r.s.withTx(ctx, func(tx dialect.Tx) error {
		assigned, err := exists(ctx, tx, builder().Select("reviewer_id").From(entsql.Table("peer_review_assignments")).
			Where(entsql.And(entsql.EQ("submission_id", rv.SubmissionID), entsql.EQ("reviewer_id", rv.ReviewerID))))
		if err != nil {
			return fmt.Errorf("check assignment: %w", err)
		}
		if !assigned {
			return fmt.Errorf("%s reviewing %s: %w", rv.ReviewerID, rv.SubmissionID, peerreview.ErrNotAssigned)
		}

		query, args := builder().Insert("peer_reviews").
			Columns("submission_id", "reviewer_id", "submitted_at", "body").
			Values(rv.SubmissionID, rv.ReviewerID, millis(rv.SubmittedAt), string(body)).
			OnConflict(entsql.ConflictColumns("submission_id", "reviewer_id"), entsql.ResolveWithNewValues()).
			Query()
		if err := tx.Exec(ctx, query, args, nil); err != nil {
			return fmt.Errorf("save review: %w", err)
		}
		return nil
	})
}

// ListReviews implements peerreview.Repo, ordered by reviewer.
func (r *PeerReviewRepo) ListReviews(ctx context.Context, submissionID string) ([]peerreview.Review, error) {
	query, args := builder().Select("body").From(entsql.Table("peer_reviews")).
		Where(entsql.EQ("submission_id", submissionID)).
		OrderBy("reviewer_id").
		Query()
	var out []peerreview.Review
	err := scanAll(ctx, r.s.drv, query, args, func(rows *entsql.Rows) error {
		rv, err := scanJSON[peerreview.Review](rows)
		if err != nil {
			return err
		}
		out = append(out, *rv)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return out, nil
}

func (r *PeerReviewRepo) assignments(ctx context.Context, pred *entsql.Predicate) ([]peerreview.Assignment, error) {
	query, args := builder().Select("submission_id", "reviewer_id", "anonymous").
		From(entsql.Table("peer_review_assignments")).
		Where(pred).
		OrderBy("submission_id", "reviewer_id").
		Query()
	var out []peerreview.Assignment
	err := scanAll(ctx, r.s.drv, query, args, func(rows *entsql.Rows) error {
		var (
			a    peerreview.Assignment
			anon int
		)
		if err := rows.Scan(&a.SubmissionID, &a.ReviewerID, &anon); err != nil {
			return err
		}
		a.Anonymous = anon != 0
		out = append(out, a)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return out, nil
}

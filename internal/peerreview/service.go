package peerreview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/abhisek/gradewise/internal/rubric"
)

var (
	ErrAlreadyAssigned = errors.New("submission already has reviewers")
	ErrNotAssigned     = errors.New("reviewer not assigned to submission")
)

// Review is one reviewer's rubric scores for a submission.
type Review struct {
	SubmissionID string             `json:"submissionId"`
	ReviewerID   string             `json:"reviewerId"`
	Scores       map[string]float64 `json:"scores"`
	Comment      string             `json:"comment,omitempty"`
	SubmittedAt  time.Time          `json:"submittedAt"`
}

// Summary aggregates the reviews of one submission.
type Summary struct {
	SubmissionID string                    `json:"submissionId"`
	RubricID     string                    `json:"rubricId"`
	Count        int                       `json:"count"`
	Assigned     int                       `json:"assigned"`
	Average      float64                   `json:"average"`
	Median       float64                   `json:"median"`
	PerCriterion []rubric.CriterionAverage `json:"perCriterion"`
}

// Summarize scores every review with r and aggregates the fractions.
func Summarize(r *rubric.Rubric, submissionID string, reviews []Review) (*Summary, error) {
	fractions := make([]float64, 0, len(reviews))
	sets := make([]map[string]float64, 0, len(reviews))
	for _, rv := range reviews {
		f, err := r.Score(rv.Scores)
		if err != nil {
			return nil, fmt.Errorf("score review by %s: %w", rv.ReviewerID, err)
		}
		fractions = append(fractions, f)
		sets = append(sets, rv.Scores)
	}
	return &Summary{
		SubmissionID: submissionID,
		RubricID:     r.ID,
		Count:        len(reviews),
		Average:      rubric.Average(fractions),
		Median:       rubric.Median(fractions),
		PerCriterion: r.CriterionAverages(sets),
	}, nil
}

// Repo persists assignments and reviews.
type Repo interface {
	// SaveAssignments stores a batch atomically.
	SaveAssignments(ctx context.Context, as []Assignment) error
	ListAssignments(ctx context.Context, submissionID string) ([]Assignment, error)
	PendingForReviewer(ctx context.Context, reviewerID string) ([]Assignment, error)
	// SaveReview fails with ErrNotAssigned when no assignment exists.
	SaveReview(ctx context.Context, r Review) error
	ListReviews(ctx context.Context, submissionID string) ([]Review, error)
}

// Roster resolves cohorts and submission authors.
type Roster interface {
	GetCohort(ctx context.Context, cohortID string) ([]string, error)
	GetAuthor(ctx context.Context, submissionID string) (string, error)
}

// Service runs allocation batches against persisted state. Batches are
// serialized; they are rare and not latency sensitive.
type Service struct {
	mu     sync.Mutex
	alloc  *Allocator
	repo   Repo
	roster Roster
	log    *zap.Logger
	now    func() time.Time
}

// NewService creates a peer review Service.
func NewService(alloc *Allocator, repo Repo, roster Roster, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		alloc:  alloc,
		repo:   repo,
		roster: roster,
		log:    log.With(zap.String("component", "peerreview")),
		now:    time.Now,
	}
}

// AssignBatch allocates n reviewers to each submission from the cohort and
// persists the whole batch, or nothing.
func (s *Service) AssignBatch(ctx context.Context, cohortID string, submissionIDs []string, n int, opts Options) ([]Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cohort, err := s.roster.GetCohort(ctx, cohortID)
	if err != nil {
		return nil, fmt.Errorf("get cohort: %w", err)
	}

	subs := make([]Submission, 0, len(submissionIDs))
	for _, id := range submissionIDs {
		author, err := s.roster.GetAuthor(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get author of %s: %w", id, err)
		}
		existing, err := s.repo.ListAssignments(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("list assignments: %w", err)
		}
		if len(existing) > 0 {
			return nil, fmt.Errorf("submission %s: %w", id, ErrAlreadyAssigned)
		}
		subs = append(subs, Submission{ID: id, AuthorID: author})
	}

	as, err := s.alloc.Assign(subs, cohort, n, opts)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SaveAssignments(ctx, as); err != nil {
		return nil, fmt.Errorf("save assignments: %w", err)
	}

	s.log.Info("peer reviews assigned",
		zap.String("cohort", cohortID),
		zap.Int("submissions", len(subs)),
		zap.Int("assignments", len(as)),
	)
	return as, nil
}

// SubmitReview stores a reviewer's scores after checking them against the
// rubric.
func (s *Service) SubmitReview(ctx context.Context, r *rubric.Rubric, rv Review) error {
	if _, err := r.Score(rv.Scores); err != nil {
		return fmt.Errorf("validate scores: %w", err)
	}
	if rv.SubmittedAt.IsZero() {
		rv.SubmittedAt = s.now().UTC()
	}
	if err := s.repo.SaveReview(ctx, rv); err != nil {
		return fmt.Errorf("save review: %w", err)
	}
	return nil
}

// Summary aggregates the reviews received so far.
func (s *Service) Summary(ctx context.Context, r *rubric.Rubric, submissionID string) (*Summary, error) {
	reviews, err := s.repo.ListReviews(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	assigned, err := s.repo.ListAssignments(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	sum, err := Summarize(r, submissionID, reviews)
	if err != nil {
		return nil, err
	}
	sum.Assigned = len(assigned)
	return sum, nil
}

// Pending lists the reviews a reviewer still owes.
func (s *Service) Pending(ctx context.Context, reviewerID string) ([]Assignment, error) {
	as, err := s.repo.PendingForReviewer(ctx, reviewerID)
	if err != nil {
		return nil, fmt.Errorf("list pending reviews: %w", err)
	}
	return as, nil
}

// Package review settles answers that the grader could not finish on its
// own. Eligible answers are graded asynchronously by an LLM; the rest wait
// for a human.
package review

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/abhisek/gradewise/internal/attempt"
	"github.com/abhisek/gradewise/internal/question"
	"github.com/abhisek/gradewise/internal/rubric"
)

// Disposition tells the caller what happened to a review request.
type Disposition string

const (
	Queued  Disposition = "queued"
	Manual  Disposition = "manual"
	Dropped Disposition = "dropped"

	// Outcomes of a queued request that fell back to a human.
	AIFailed      Disposition = "ai-failed"
	LowConfidence Disposition = "low-confidence"
	ResolveFailed Disposition = "resolve-failed"
)

// Fallback is told about a queued request the AI could not settle.
type Fallback func(ctx context.Context, req attempt.ReviewRequest, why Disposition)

// Resolver applies a finished review.
type Resolver func(ctx context.Context, req attempt.ReviewRequest, res attempt.Resolution) error

// RubricSource looks up rubrics by ID.
type RubricSource interface {
	Rubric(ctx context.Context, id string) (*rubric.Rubric, error)
}

// Config sizes the async queue.
type Config struct {
	QueueSize int
	Workers   int
}

// DefaultConfig returns the default queue sizing.
func DefaultConfig() Config {
	return Config{QueueSize: 32, Workers: 1}
}

// Service dispatches review requests to the AI reviewer in the background.
type Service struct {
	reviewer *AIReviewer
	rubrics  RubricSource
	resolve  Resolver
	onDrop   func()
	fallback Fallback
	log      *zap.Logger

	mu      sync.RWMutex
	closed  bool
	pending chan reviewJob
	wg      sync.WaitGroup
}

type reviewJob struct {
	ctx context.Context
	req attempt.ReviewRequest
}

// Option configures a Service.
type Option func(*Service)

// WithDropHook is called for every request dropped on a full queue.
func WithDropHook(fn func()) Option {
	return func(s *Service) { s.onDrop = fn }
}

// WithManualFallback is called whenever a queued request ends up waiting
// for a human after all.
func WithManualFallback(fn Fallback) Option {
	return func(s *Service) { s.fallback = fn }
}

// NewService creates a review service. If reviewer is nil, every request is
// left for manual review.
func NewService(reviewer *AIReviewer, rubrics RubricSource, resolve Resolver, cfg Config, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	s := &Service{
		reviewer: reviewer,
		rubrics:  rubrics,
		resolve:  resolve,
		log:      log.With(zap.String("component", "review")),
		pending:  make(chan reviewJob, cfg.QueueSize),
	}
	for _, o := range opts {
		o(s)
	}
	if reviewer != nil {
		for range cfg.Workers {
			s.wg.Add(1)
			go s.processLoop()
		}
	}
	return s
}

// Submit routes a review request. It never blocks: when the queue is full
// the request is dropped and stays open for manual review.
func (s *Service) Submit(ctx context.Context, req attempt.ReviewRequest) Disposition {
	if s.reviewer == nil || req.GradeError != "" || !Supports(req.Question) {
		return Manual
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Manual
	}

	select {
	case s.pending <- reviewJob{ctx: context.WithoutCancel(ctx), req: req}:
		return Queued
	default:
		s.log.Warn("review queue full, leaving for manual review",
			zap.String("review", req.ReviewID),
			zap.String("attempt", req.AttemptID),
		)
		if s.onDrop != nil {
			s.onDrop()
		}
		return Dropped
	}
}

func (s *Service) processLoop() {
	defer s.wg.Done()
	for job := range s.pending {
		s.process(job)
	}
}

func (s *Service) process(job reviewJob) {
	log := s.log.With(zap.String("review", job.req.ReviewID), zap.String("attempt", job.req.AttemptID))

	var rub *rubric.Rubric
	if k, ok := job.req.Question.Key.(question.EssayKey); ok && k.RubricID != "" && s.rubrics != nil {
		r, err := s.rubrics.Rubric(job.ctx, k.RubricID)
		if err != nil {
			log.Warn("rubric lookup failed, grading without it", zap.String("rubric", k.RubricID), zap.Error(err))
		} else {
			rub = r
		}
	}

	v, err := s.reviewer.Review(job.ctx, job.req, rub)
	if err != nil {
		log.Warn("AI review failed, leaving for manual review", zap.Error(err))
		s.fallBack(job, AIFailed)
		return
	}
	if v.Confidence < s.reviewer.MinConfidence() {
		log.Info("AI review below confidence threshold, leaving for manual review",
			zap.Float64("confidence", v.Confidence),
		)
		s.fallBack(job, LowConfidence)
		return
	}

	maxPoints := job.req.Provisional.MaxPoints
	if maxPoints <= 0 {
		maxPoints = job.req.Question.Points
	}
	res := v.Resolution(maxPoints, "ai:"+s.reviewer.ModelID())
	if s.resolve == nil {
		return
	}
	err = s.resolve(job.ctx, job.req, res)
	switch {
	case err == nil:
	case errors.Is(err, attempt.ErrReviewResolved), errors.Is(err, attempt.ErrReviewNotFound):
		// A human got there first.
		log.Info("review closed before the AI verdict landed", zap.Error(err))
	default:
		log.Warn("applying AI review failed", zap.Error(err))
		s.fallBack(job, ResolveFailed)
	}
}

func (s *Service) fallBack(job reviewJob, why Disposition) {
	if s.fallback != nil {
		s.fallback(job.ctx, job.req, why)
	}
}

// Close stops accepting requests and waits for queued ones to finish.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.pending)
	s.mu.Unlock()
	s.wg.Wait()
}

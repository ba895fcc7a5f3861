package attempt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/abhisek/gradewise/internal/grader"
	"github.com/abhisek/gradewise/internal/keylock"
	"github.com/abhisek/gradewise/internal/question"
)

// Repo persists attempts. GetAttempt returns an error wrapping ErrNotFound
// for unknown IDs.
type Repo interface {
	CreateAttempt(ctx context.Context, a *Attempt) error
	SaveAttempt(ctx context.Context, a *Attempt) error
	GetAttempt(ctx context.Context, id string) (*Attempt, error)
	ListAttempts(ctx context.Context, quizID, studentID string) ([]*Attempt, error)
	ListInProgress(ctx context.Context) ([]*Attempt, error)
}

// Catalog supplies quizzes and questions.
type Catalog interface {
	GetQuiz(ctx context.Context, id string) (*Quiz, error)
	GetQuestion(ctx context.Context, id string) (*question.Question, error)
}

// Listener observes attempt lifecycle events. Calls happen after the
// attempt is saved and outside its lock.
type Listener interface {
	AttemptFinalized(ctx context.Context, a *Attempt)
	ReviewRequested(ctx context.Context, req ReviewRequest)
}

// AnswerInput is a raw answer submission.
type AnswerInput struct {
	QuestionID       string          `json:"questionId"`
	Payload          json.RawMessage `json:"payload"`
	TimeSpentSeconds int             `json:"timeSpentSeconds"`
	Flagged          bool            `json:"flagged"`
}

// Config tunes the service.
type Config struct {
	// GradeConcurrency bounds parallel grading within one submission.
	GradeConcurrency int
}

// DefaultConfig returns the default service configuration.
func DefaultConfig() Config {
	return Config{GradeConcurrency: 8}
}

// Option configures a Service.
type Option func(*Service)

// WithListener registers a lifecycle listener.
func WithListener(l Listener) Option {
	return func(s *Service) { s.listener = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRand overrides the source used for sampling and shuffling.
func WithRand(src rand.Source) Option {
	return func(s *Service) { s.rng = rand.New(src) }
}

// Service drives the attempt state machine. Transitions of one attempt are
// serialized; different attempts proceed independently.
type Service struct {
	repo     Repo
	catalog  Catalog
	grader   *grader.Grader
	cfg      Config
	locks    *keylock.Locker
	listener Listener
	log      *zap.Logger
	now      func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewService creates an attempt Service.
func NewService(repo Repo, catalog Catalog, g *grader.Grader, cfg Config, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.GradeConcurrency <= 0 {
		cfg.GradeConcurrency = DefaultConfig().GradeConcurrency
	}
	s := &Service{
		repo:    repo,
		catalog: catalog,
		grader:  g,
		cfg:     cfg,
		locks:   keylock.New(),
		log:     log.With(zap.String("component", "attempt")),
		now:     time.Now,
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// effects are listener calls collected under lock and fired after release.
type effects struct {
	finalized *Attempt
	reviews   []ReviewRequest
}

func (s *Service) fire(ctx context.Context, eff effects) {
	if s.listener == nil {
		return
	}
	for _, r := range eff.reviews {
		s.listener.ReviewRequested(ctx, r)
	}
	if eff.finalized != nil {
		s.listener.AttemptFinalized(ctx, eff.finalized)
	}
}

// Start opens a new attempt, or resumes the student's in-progress one.
func (s *Service) Start(ctx context.Context, quizID, studentID string) (*Attempt, error) {
	unlock, err := s.locks.Lock(ctx, "start\x00"+quizID+"\x00"+studentID)
	if err != nil {
		return nil, fmt.Errorf("lock quiz start: %w", err)
	}
	defer unlock()

	quiz, err := s.catalog.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, fmt.Errorf("get quiz: %w", err)
	}
	now := s.now().UTC()
	if !quiz.Available(now) {
		return nil, fmt.Errorf("start quiz %s: %w", quizID, ErrQuizNotAvailable)
	}

	prior, err := s.repo.ListAttempts(ctx, quizID, studentID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	for _, p := range prior {
		if p.Status != StatusInProgress {
			continue
		}
		a, err := s.Get(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		if a.Status == StatusInProgress {
			return a, nil
		}
	}

	if quiz.MaxAttempts > 0 && len(prior) >= quiz.MaxAttempts {
		return nil, &LimitError{QuizID: quizID, Max: quiz.MaxAttempts, Used: len(prior)}
	}

	ids := s.present(quiz)
	maxScore := 0.0
	for _, id := range ids {
		q, err := s.catalog.GetQuestion(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get question %s: %w", id, err)
		}
		maxScore += q.Points
	}

	a := &Attempt{
		ID:           uuid.NewString(),
		QuizID:       quizID,
		StudentID:    studentID,
		Number:       len(prior) + 1,
		Status:       StatusInProgress,
		QuestionIDs:  ids,
		StartedAt:    now,
		MaxScore:     maxScore,
		PassingScore: quiz.PassingScore,
	}
	if quiz.TimeLimit > 0 {
		a.Deadline = now.Add(quiz.TimeLimit)
	}
	if err := s.repo.CreateAttempt(ctx, a); err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	s.log.Info("attempt started",
		zap.String("attempt", a.ID),
		zap.String("quiz", quizID),
		zap.String("student", studentID),
		zap.Int("number", a.Number),
		zap.Int("questions", len(ids)),
	)
	return a, nil
}

// present picks the questions shown in a new attempt. A sampled subset keeps
// the authored order unless the quiz randomizes.
func (s *Service) present(quiz *Quiz) []string {
	ids := append([]string(nil), quiz.QuestionIDs...)
	sample := quiz.QuestionsToShow > 0 && quiz.QuestionsToShow < len(ids)
	if !sample && !quiz.RandomizeQuestions {
		return ids
	}

	s.rngMu.Lock()
	s.rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	s.rngMu.Unlock()

	if sample {
		ids = ids[:quiz.QuestionsToShow]
		if !quiz.RandomizeQuestions {
			pos := make(map[string]int, len(quiz.QuestionIDs))
			for i, id := range quiz.QuestionIDs {
				pos[id] = i
			}
			sort.Slice(ids, func(i, j int) bool { return pos[ids[i]] < pos[ids[j]] })
		}
	}
	return ids
}

// Get returns an attempt after applying any pending clock transition.
func (s *Service) Get(ctx context.Context, id string) (*Attempt, error) {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lock attempt: %w", err)
	}
	a, eff, err := s.load(ctx, id)
	unlock()
	if err != nil {
		return nil, err
	}
	s.fire(ctx, eff)
	return a, nil
}

// load reads an attempt and applies the clock. Caller holds the lock.
func (s *Service) load(ctx context.Context, id string) (*Attempt, effects, error) {
	a, err := s.repo.GetAttempt(ctx, id)
	if err != nil {
		return nil, effects{}, fmt.Errorf("get attempt: %w", err)
	}
	now := s.now().UTC()
	if !a.Overdue(now) {
		return a, effects{}, nil
	}

	quiz, err := s.catalog.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return nil, effects{}, fmt.Errorf("get quiz: %w", err)
	}

	var eff effects
	if quiz.HardDeadline {
		eff, err = s.expire(ctx, a)
	} else {
		eff, err = s.submit(ctx, a, quiz, a.Deadline)
	}
	if err != nil {
		return nil, effects{}, err
	}
	return a, eff, nil
}

// SubmitAnswer records or replaces the answer to one presented question.
// The payload is decoded before anything is stored.
func (s *Service) SubmitAnswer(ctx context.Context, attemptID string, in AnswerInput) (*Attempt, error) {
	unlock, err := s.locks.Lock(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("lock attempt: %w", err)
	}
	a, eff, err := s.submitAnswer(ctx, attemptID, in)
	unlock()
	s.fire(ctx, eff)
	return a, err
}

func (s *Service) submitAnswer(ctx context.Context, attemptID string, in AnswerInput) (*Attempt, effects, error) {
	a, eff, err := s.load(ctx, attemptID)
	if err != nil {
		return nil, eff, err
	}
	if a.Status != StatusInProgress {
		return nil, eff, fmt.Errorf("answer question %s: %w (status %s)", in.QuestionID, ErrNotInProgress, a.Status)
	}
	if !a.Presents(in.QuestionID) {
		return nil, eff, fmt.Errorf("answer question %s: %w", in.QuestionID, ErrQuestionNotPresented)
	}

	q, err := s.catalog.GetQuestion(ctx, in.QuestionID)
	if err != nil {
		return nil, eff, fmt.Errorf("get question: %w", err)
	}
	if _, err := question.DecodeAnswer(q, in.Payload); err != nil {
		return nil, eff, err
	}

	existing := a.Answer(in.QuestionID)
	if existing != nil {
		quiz, err := s.catalog.GetQuiz(ctx, a.QuizID)
		if err != nil {
			return nil, eff, fmt.Errorf("get quiz: %w", err)
		}
		if quiz.LockQuestionsAfterAnswering {
			return nil, eff, fmt.Errorf("answer question %s: %w", in.QuestionID, ErrQuestionLocked)
		}
	}

	ans := Answer{
		QuestionID:       in.QuestionID,
		Payload:          in.Payload,
		TimeSpentSeconds: in.TimeSpentSeconds,
		Flagged:          in.Flagged,
		AnsweredAt:       s.now().UTC(),
	}
	if existing != nil {
		*existing = ans
	} else {
		a.Answers = append(a.Answers, ans)
	}

	if err := s.repo.SaveAttempt(ctx, a); err != nil {
		return nil, eff, fmt.Errorf("save attempt: %w", err)
	}
	return a, eff, nil
}

// Submit grades every presented question and closes the attempt. It ends in
// GRADED when the quiz auto-grades and nothing needs review, else SUBMITTED.
func (s *Service) Submit(ctx context.Context, attemptID string) (*Attempt, error) {
	unlock, err := s.locks.Lock(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("lock attempt: %w", err)
	}
	a, eff, err := s.submitNow(ctx, attemptID)
	unlock()
	s.fire(ctx, eff)
	return a, err
}

func (s *Service) submitNow(ctx context.Context, attemptID string) (*Attempt, effects, error) {
	a, eff, err := s.load(ctx, attemptID)
	if err != nil {
		return nil, eff, err
	}
	if a.Status != StatusInProgress {
		return a, eff, fmt.Errorf("submit attempt: %w (status %s)", ErrNotInProgress, a.Status)
	}
	quiz, err := s.catalog.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return nil, eff, fmt.Errorf("get quiz: %w", err)
	}
	eff, err = s.submit(ctx, a, quiz, s.now().UTC())
	if err != nil {
		return nil, eff, err
	}
	return a, eff, nil
}

// submit grades a and moves it to SUBMITTED or GRADED. On error nothing is
// saved and a must be discarded.
func (s *Service) submit(ctx context.Context, a *Attempt, quiz *Quiz, at time.Time) (effects, error) {
	if err := s.gradeAll(ctx, a); err != nil {
		return effects{}, err
	}
	if err := a.transition(StatusSubmitted); err != nil {
		return effects{}, err
	}
	a.SubmittedAt = at

	var eff effects
	for i := range a.Answers {
		ans := &a.Answers[i]
		if !ans.Result.RequiresManualReview && ans.GradeError == "" && quiz.AutoGrade {
			continue
		}
		if !ans.Answered() && ans.GradeError == "" {
			continue
		}
		ans.ReviewID = uuid.NewString()
		q, _ := s.catalog.GetQuestion(ctx, ans.QuestionID)
		eff.reviews = append(eff.reviews, ReviewRequest{
			ReviewID:    ans.ReviewID,
			AttemptID:   a.ID,
			QuizID:      a.QuizID,
			StudentID:   a.StudentID,
			Question:    q,
			Payload:     ans.Payload,
			Provisional: *ans.Result,
			GradeError:  ans.GradeError,
		})
	}

	a.aggregate()
	if len(eff.reviews) == 0 {
		if err := a.transition(StatusGraded); err != nil {
			return effects{}, err
		}
		a.GradedAt = s.now().UTC()
		eff.finalized = a
	}

	if err := s.repo.SaveAttempt(ctx, a); err != nil {
		return effects{}, fmt.Errorf("save attempt: %w", err)
	}

	s.log.Info("attempt submitted",
		zap.String("attempt", a.ID),
		zap.String("status", string(a.Status)),
		zap.Float64("score", a.TotalScore),
		zap.Float64("max", a.MaxScore),
		zap.Int("pending_reviews", len(eff.reviews)),
	)
	return eff, nil
}

// expire scores the answers for the record and closes the attempt as
// EXPIRED without requesting reviews.
func (s *Service) expire(ctx context.Context, a *Attempt) (effects, error) {
	if err := s.gradeAll(ctx, a); err != nil {
		return effects{}, err
	}
	if err := a.transition(StatusExpired); err != nil {
		return effects{}, err
	}
	a.SubmittedAt = a.Deadline
	a.aggregate()

	if err := s.repo.SaveAttempt(ctx, a); err != nil {
		return effects{}, fmt.Errorf("save attempt: %w", err)
	}
	s.log.Info("attempt expired",
		zap.String("attempt", a.ID),
		zap.Float64("score", a.TotalScore),
	)
	return effects{finalized: a}, nil
}

// gradeAll grades every presented question in parallel. Unanswered
// questions score zero. A question that fails to grade is marked with
// GradeError and does not affect the others. Only cancellation fails the
// whole pass.
func (s *Service) gradeAll(ctx context.Context, a *Attempt) error {
	answers := make([]Answer, len(a.QuestionIDs))
	for i, id := range a.QuestionIDs {
		if ans := a.Answer(id); ans != nil {
			answers[i] = *ans
		} else {
			answers[i] = Answer{QuestionID: id}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.GradeConcurrency)
	for i := range answers {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s.gradeOne(gctx, &answers[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("grade attempt: %w", err)
	}

	a.Answers = answers
	return nil
}

func (s *Service) gradeOne(ctx context.Context, ans *Answer) {
	q, err := s.catalog.GetQuestion(ctx, ans.QuestionID)
	if err != nil {
		ans.GradeError = err.Error()
		ans.Result = &grader.Result{RequiresManualReview: true}
		return
	}
	if !ans.Answered() {
		f := false
		ans.Result = &grader.Result{Correct: &f, MaxPoints: q.Points, Feedback: "Not answered."}
		return
	}

	res, err := s.gradePayload(q, ans.Payload)
	if err != nil {
		s.log.Warn("grading failed",
			zap.String("question", q.ID),
			zap.Error(err),
		)
		ans.GradeError = err.Error()
		ans.Result = &grader.Result{MaxPoints: q.Points, RequiresManualReview: true}
		return
	}
	ans.Result = res
}

func (s *Service) gradePayload(q *question.Question, payload json.RawMessage) (res *grader.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("grade question %s: %v", q.ID, r)
		}
	}()
	ans, err := question.DecodeAnswer(q, payload)
	if err != nil {
		return nil, err
	}
	return s.grader.Grade(q, ans)
}

// ResolveReview applies a reviewer's grade. Points are clamped to the
// question maximum. The attempt becomes GRADED once no review is pending.
func (s *Service) ResolveReview(ctx context.Context, attemptID, reviewID string, res Resolution) (*Attempt, error) {
	unlock, err := s.locks.Lock(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("lock attempt: %w", err)
	}
	a, eff, err := s.resolve(ctx, attemptID, reviewID, res)
	unlock()
	s.fire(ctx, eff)
	return a, err
}

func (s *Service) resolve(ctx context.Context, attemptID, reviewID string, res Resolution) (*Attempt, effects, error) {
	a, eff, err := s.load(ctx, attemptID)
	if err != nil {
		return nil, eff, err
	}

	var ans *Answer
	for i := range a.Answers {
		if a.Answers[i].ReviewID == reviewID {
			ans = &a.Answers[i]
			break
		}
	}
	if ans == nil {
		return nil, eff, fmt.Errorf("resolve review %s: %w", reviewID, ErrReviewNotFound)
	}
	if ans.Reviewed {
		return a, eff, fmt.Errorf("resolve review %s: %w", reviewID, ErrReviewResolved)
	}
	if a.Status != StatusSubmitted {
		return nil, eff, fmt.Errorf("resolve review %s: %w (status %s)", reviewID, ErrInvalidTransition, a.Status)
	}

	maxPoints := ans.Result.MaxPoints
	if maxPoints <= 0 {
		q, err := s.catalog.GetQuestion(ctx, ans.QuestionID)
		if err != nil {
			return nil, eff, fmt.Errorf("get question: %w", err)
		}
		maxPoints = q.Points
	}
	points := min(max(res.PointsEarned, 0), maxPoints)
	correct := res.Correct
	if correct == nil {
		c := points >= maxPoints
		correct = &c
	}
	ans.Result = &grader.Result{
		Correct:      correct,
		PointsEarned: points,
		MaxPoints:    maxPoints,
		Confidence:   1,
		Feedback:     res.Feedback,
	}
	ans.Reviewed = true
	a.aggregate()

	if len(a.PendingReviews()) == 0 {
		if err := a.transition(StatusGraded); err != nil {
			return nil, eff, err
		}
		a.GradedAt = s.now().UTC()
		eff.finalized = a
	}

	if err := s.repo.SaveAttempt(ctx, a); err != nil {
		return nil, effects{}, fmt.Errorf("save attempt: %w", err)
	}
	s.log.Info("review resolved",
		zap.String("attempt", a.ID),
		zap.String("review", reviewID),
		zap.String("reviewer", res.Reviewer),
		zap.Float64("points", points),
		zap.String("status", string(a.Status)),
	)
	return a, eff, nil
}

// ExpireDue applies the clock to every in-progress attempt and returns how
// many changed state. It keeps going past individual failures.
func (s *Service) ExpireDue(ctx context.Context) (int, error) {
	open, err := s.repo.ListInProgress(ctx)
	if err != nil {
		return 0, fmt.Errorf("list in-progress attempts: %w", err)
	}
	now := s.now().UTC()
	var (
		changed int
		errs    []error
	)
	for _, p := range open {
		if !p.Overdue(now) {
			continue
		}
		a, err := s.Get(ctx, p.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if a.Status != StatusInProgress {
			changed++
		}
	}
	return changed, errors.Join(errs...)
}

// History returns a student's attempts at a quiz ordered by number.
func (s *Service) History(ctx context.Context, quizID, studentID string) ([]*Attempt, error) {
	out, err := s.repo.ListAttempts(ctx, quizID, studentID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return out, nil
}

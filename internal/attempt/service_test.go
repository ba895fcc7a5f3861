package attempt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/abhisek/gradewise/internal/grader"
	"github.com/abhisek/gradewise/internal/question"
)

// --- fakes ---

type memRepo struct {
	mu       sync.Mutex
	attempts map[string]Attempt
}

func newMemRepo() *memRepo { return &memRepo{attempts: make(map[string]Attempt)} }

func clone(a *Attempt) Attempt {
	data, _ := json.Marshal(a)
	var out Attempt
	_ = json.Unmarshal(data, &out)
	return out
}

func (r *memRepo) CreateAttempt(ctx context.Context, a *Attempt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.attempts {
		if p.QuizID == a.QuizID && p.StudentID == a.StudentID && p.Number == a.Number {
			return fmt.Errorf("duplicate attempt number %d", a.Number)
		}
	}
	r.attempts[a.ID] = clone(a)
	return nil
}

func (r *memRepo) SaveAttempt(ctx context.Context, a *Attempt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[a.ID] = clone(a)
	return nil
}

func (r *memRepo) GetAttempt(_ context.Context, id string) (*Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := clone(&a)
	return &c, nil
}

func (r *memRepo) ListAttempts(_ context.Context, quizID, studentID string) ([]*Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Attempt
	for _, a := range r.attempts {
		if a.QuizID == quizID && a.StudentID == studentID {
			c := clone(&a)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (r *memRepo) ListInProgress(_ context.Context) ([]*Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Attempt
	for _, a := range r.attempts {
		if a.Status == StatusInProgress {
			c := clone(&a)
			out = append(out, &c)
		}
	}
	return out, nil
}

type fakeCatalog struct {
	quizzes   map[string]*Quiz
	questions map[string]*question.Question
}

func (c *fakeCatalog) GetQuiz(_ context.Context, id string) (*Quiz, error) {
	q, ok := c.quizzes[id]
	if !ok {
		return nil, fmt.Errorf("quiz %q not found", id)
	}
	return q, nil
}

func (c *fakeCatalog) GetQuestion(_ context.Context, id string) (*question.Question, error) {
	q, ok := c.questions[id]
	if !ok {
		return nil, fmt.Errorf("question %q not found", id)
	}
	return q, nil
}

type recordingListener struct {
	mu        sync.Mutex
	finalized []*Attempt
	reviews   []ReviewRequest
}

func (l *recordingListener) AttemptFinalized(_ context.Context, a *Attempt) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.finalized = append(l.finalized, a)
}

func (l *recordingListener) ReviewRequested(_ context.Context, r ReviewRequest) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reviews = append(l.reviews, r)
}

// --- fixtures ---

var start = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	repo     *memRepo
	catalog  *fakeCatalog
	listener *recordingListener
	now      time.Time
}

func newFixture(t *testing.T, quiz *Quiz) *fixture {
	t.Helper()
	cat := &fakeCatalog{
		quizzes: map[string]*Quiz{quiz.ID: quiz},
		questions: map[string]*question.Question{
			"q-mc": {
				ID: "q-mc", Kind: question.KindMultipleChoice, Points: 2, Difficulty: question.DifficultyEasy,
				SkillKey: "addition", AutoGradable: true,
				Key: question.MultipleChoiceKey{
					Options: []question.Option{{ID: "a", Text: "3"}, {ID: "b", Text: "4"}},
					Correct: []string{"b"},
				},
			},
			"q-tf": {
				ID: "q-tf", Kind: question.KindTrueFalse, Points: 1, Difficulty: question.DifficultyMedium,
				SkillKey: "addition", AutoGradable: true,
				Key: question.TrueFalseKey{Answer: true},
			},
			"q-essay": {
				ID: "q-essay", Kind: question.KindEssay, Points: 5, Difficulty: question.DifficultyHard,
				SkillKey: "writing",
				Key:      question.EssayKey{MinWords: 3},
			},
			"q-broken": {
				ID: "q-broken", Kind: question.KindMultipleChoice, Points: 1,
				Key: question.MultipleChoiceKey{Options: []question.Option{{ID: "a"}}},
			},
		},
	}
	f := &fixture{repo: newMemRepo(), catalog: cat, listener: &recordingListener{}, now: start}
	f.svc = NewService(f.repo, cat, grader.New(grader.DefaultConfig()), DefaultConfig(), nil,
		WithListener(f.listener),
		WithClock(func() time.Time { return f.now }),
		WithRand(rand.NewPCG(1, 2)),
	)
	return f
}

func answer(t *testing.T, f *fixture, attemptID, questionID, payload string) {
	t.Helper()
	if _, err := f.svc.SubmitAnswer(context.Background(), attemptID, AnswerInput{QuestionID: questionID, Payload: json.RawMessage(payload)}); err != nil {
		t.Fatalf("SubmitAnswer(%s): %v", questionID, err)
	}
}

// --- tests ---

func TestSubmit_AutoGraded(t *testing.T) {
	f := newFixture(t, &Quiz{ID: "quiz", QuestionIDs: []string{"q-mc", "q-tf"}, AutoGrade: true, PassingScore: 60})
	ctx := context.Background()

	a, err := f.svc.Start(ctx, "quiz", "s1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if a.Status != StatusInProgress || a.Number != 1 || a.MaxScore != 3 {
		t.Fatalf("unexpected new attempt: %+v", a)
	}

	answer(t, f, a.ID, "q-mc", `{"selected":["b"]}`)
	answer(t, f, a.ID, "q-tf", `{"value":false}`)

	a, err = f.svc.Submit(ctx, a.ID)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if a.Status != StatusGraded {
		t.Errorf("status = %s, want GRADED", a.Status)
	}
	if a.TotalScore != 2 || a.Passed != true {
		t.Errorf("total = %v passed = %v, want 2/true", a.TotalScore, a.Passed)
	}
	if len(f.listener.finalized) != 1 || len(f.listener.reviews) != 0 {
		t.Errorf("listener saw %d finalized, %d reviews", len(f.listener.finalized), len(f.listener.reviews))
	}
}

func TestSubmit_EssayWaitsForReview(t *testing.T) {
	f := newFixture(t, &Quiz{ID: "quiz", QuestionIDs: []string{"q-mc", "q-essay"}, AutoGrade: true, PassingScore: 50})
	ctx := context.Background()

	a, _ := f.svc.Start(ctx, "quiz", "s1")
	answer(t, f, a.ID, "q-mc", `{"selected":["b"]}`)
	answer(t, f, a.ID, "q-essay", `{"text":"addition combines two numbers"}`)

	a, err := f.svc.Submit(ctx, a.ID)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if a.Status != StatusSubmitted {
		t.Fatalf("status = %s, want SUBMITTED", a.Status)
	}
	pending := a.PendingReviews()
	if len(pending) != 1 || len(f.listener.reviews) != 1 || f.listener.reviews[0].ReviewID != pending[0] {
		t.Fatalf("pending = %v, requested = %+v", pending, f.listener.reviews)
	}

	a, err = f.svc.ResolveReview(ctx, a.ID, pending[0], Resolution{PointsEarned: 9, Reviewer: "teacher"})
	if err != nil {
		t.Fatalf("ResolveReview: %v", err)
	}
	if a.Status != StatusGraded {
		t.Errorf("status = %s, want GRADED", a.Status)
	}
	essay := a.Answer("q-essay")
	if essay.Result.PointsEarned != 5 || essay.Result.Correct == nil || !*essay.Result.Correct {
		t.Errorf("essay result = %+v, want clamped 5 and correct", essay.Result)
	}
	if a.TotalScore != 7 {
		t.Errorf("total = %v, want 7", a.TotalScore)
	}

	if _, err := f.svc.ResolveReview(ctx, a.ID, pending[0], Resolution{}); !errors.Is(err, ErrReviewResolved) {
		t.Errorf("second resolve: got %v, want ErrReviewResolved", err)
	}
}

func TestSubmit_ConcurrentSubmitsSerialized(t *testing.T) {
	f := newFixture(t, &Quiz{ID: "quiz", QuestionIDs: []string{"q-mc", "q-tf"}, AutoGrade: true, PassingScore: 60})
	ctx := context.Background()

	a, _ := f.svc.Start(ctx, "quiz", "s1")
	answer(t, f, a.ID, "q-mc", `{"selected":["b"]}`)
	answer(t, f, a.ID, "q-tf", `{"value":true}`)

	const callers = 20
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.Submit(ctx, a.ID)
		}()
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case !errors.Is(err, ErrNotInProgress):
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Errorf("%d submits succeeded, want 1", ok)
	}
	if len(f.listener.finalized) != 1 {
		t.Errorf("finalized %d times, want 1", len(f.listener.finalized))
	}
	got, _ := f.svc.Get(ctx, a.ID)
	if got.Status != StatusGraded || got.TotalScore != 3 {
		t.Errorf("attempt = %s %v, want GRADED 3", got.Status, got.TotalScore)
	}
}

func TestResolveReview_ConcurrentResolvesSerialized(t *testing.T) {
	f := newFixture(t, &Quiz{ID: "quiz", QuestionIDs: []string{"q-mc", "q-essay"}, AutoGrade: true, PassingScore: 50})
	ctx := context.Background()

	a, _ := f.svc.Start(ctx, "quiz", "s1")
	answer(t, f, a.ID, "q-mc", `{"selected":["b"]}`)
	answer(t, f, a.ID, "q-essay", `{"text":"addition combines two numbers"}`)
	a, err := f.svc.Submit(ctx, a.ID)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	reviewID := a.PendingReviews()[0]

	const callers = 20
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.ResolveReview(ctx, a.ID, reviewID, Resolution{
				PointsEarned: float64(i % 6),
				Reviewer:     fmt.Sprintf("grader-%d", i),
			})
		}()
	}
	wg.Wait()

	winner := -1
	for i, err := range errs {
		switch {
		case err == nil:
			if winner >= 0 {
				t.Errorf("resolvers %d and %d both succeeded", winner, i)
			}
			winner = i
		case !errors.Is(err, ErrReviewResolved):
			t.Errorf("resolver %d: unexpected error: %v", i, err)
		}
	}
	if winner < 0 {
		t.Fatal("no resolver succeeded")
	}
	if len(f.listener.finalized) != 1 {
		t.Errorf("finalized %d times, want 1", len(f.listener.finalized))
	}

	got, _ := f.svc.Get(ctx, a.ID)
	essay := got.Answer("q-essay")
	if got.Status != StatusGraded || essay.Result.PointsEarned != float64(winner%6) {
		t.Errorf("attempt = %s, essay = %+v, want the winner's %d points", got.Status, essay.Result, winner%6)
	}
}

func TestSubmit_ManualSignOffWithoutAutoGrade(t *testing.T) {
	f := newFixture(t, &Quiz{ID: "quiz", QuestionIDs: []string{"q-mc", "q-tf"}})
	ctx := context.Background()

	a, _ := f.svc.Start(ctx, "quiz", "s1")
	answer(t, f, a.ID, "q-mc", `{"selected":["b"]}`)

	a, err := f.svc.Submit(ctx, a.ID)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if a.Status != StatusSubmitted || len(a.PendingReviews()) != 1 {
		t.Errorf("status = %s pending = %v, want SUBMITTED with the answered question pending", a.Status, a.PendingReviews())
	}
}

func TestStart_AttemptLimit(t *testing.T) {
	f := newFixture(t, &Quiz{ID: "quiz", QuestionIDs: []string{"q-tf"}, MaxAttempts: 2, AutoGrade: true})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		a, err := f.svc.Start(ctx, "quiz", "s1")
		if err != nil {
			t.Fatalf("Start #%d: %v", i+1, err)
		}
		if _, err := f.svc.Submit(ctx, a.ID); err != nil {
			t.Fatalf("Submit #%d: %v", i+1, err)
		}
	}

	_, err := f.svc.Start(ctx, "quiz", "s1")
	if !errors.Is(err, ErrAttemptLimitExceeded) {
		t.Fatalf("third Start: got %v, want ErrAttemptLimitExceeded", err)
	}
	var le *LimitError
	if !errors.As(err, &le) || le.Max != 2 || le.Used != 2 {
		t.Errorf("LimitError = %+v", le)
	}
}

func TestStart_ResumesInProgress(t *testing.T) {
	f := newFixture(t, &Quiz{ID: "quiz", QuestionIDs: []string{"q-tf"}, MaxAttempts: 1})
	ctx := context.Background()

	first, _ := f.svc.Start(ctx, "quiz", "s1")
	again, err := f.svc.Start(ctx, "quiz", "s1")
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if again.ID != first.ID {
		t.Errorf("expected resumed attempt %s, got %s", first.ID, again.ID)
	}
}

func TestStart_Window(t *testing.T) {
	f := newFixture(t, &Quiz{
		ID: "quiz", QuestionIDs: []string{"q-tf"},
		AvailableFrom: start.Add(time.Hour), AvailableUntil: start.Add(2 * time.Hour),
	})
	if _, err := f.svc.Start(context.Background(), "quiz", "s1"); !errors.Is(err, ErrQuizNotAvailable) {
		t.Fatalf("before window: got %v", err)
	}
	f.now = start.Add(3 * time.Hour)
	if _, err := f.svc.Start(context.Background(), "quiz", "s1"); !errors.Is(err, ErrQuizNotAvailable) {
		t.Fatalf("after window: got %v", err)
	}
	f.now = start.Add(90 * time.Minute)
	if _, err := f.svc.Start(context.Background(), "quiz", "s1"); err != nil {
		t.Fatalf("inside window: %v", err)
	}
}

func TestSubmitAnswer_Rules(t *testing.T) {
	f := newFixture(t, &Quiz{ID: "quiz", QuestionIDs: []string{"q-mc", "q-tf"}, LockQuestionsAfterAnswering: true})
	ctx := context.Background()
	a, _ := f.svc.Start(ctx, "quiz", "s1")

	_, err := f.svc.SubmitAnswer(ctx, a.ID, AnswerInput{QuestionID: "q-mc", Payload: json.RawMessage(`{"value":true}`)})
	if !errors.Is(err, question.ErrMalformedSubmission) {
		t.Fatalf("malformed payload: got %v", err)
	}
	stored, _ := f.svc.Get(ctx, a.ID)
	if len(stored.Answers) != 0 {
		t.Errorf("malformed answer was stored")
	}

	answer(t, f, a.ID, "q-mc", `{"selected":["a"]}`)
	_, err = f.svc.SubmitAnswer(ctx, a.ID, AnswerInput{QuestionID: "q-mc", Payload: json.RawMessage(`{"selected":["b"]}`)})
	if !errors.Is(err, ErrQuestionLocked) {
		t.Errorf("resubmission: got %v, want ErrQuestionLocked", err)
	}

	_, err = f.svc.SubmitAnswer(ctx, a.ID, AnswerInput{QuestionID: "q-essay", Payload: json.RawMessage(`{"text":"x"}`)})
	if !errors.Is(err, ErrQuestionNotPresented) {
		t.Errorf("foreign question: got %v", err)
	}

	if _, err := f.svc.Submit(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	_, err = f.svc.SubmitAnswer(ctx, a.ID, AnswerInput{QuestionID: "q-tf", Payload: json.RawMessage(`{"value":true}`)})
	if !errors.Is(err, ErrNotInProgress) {
		t.Errorf("answer after submit: got %v, want ErrNotInProgress", err)
	}
}

func TestClock_HardDeadlineExpires(t *testing.T) {
	f := newFixture(t, &Quiz{ID: "quiz", QuestionIDs: []string{"q-tf"}, TimeLimit: 10 * time.Minute, HardDeadline: true, AutoGrade: true})
	ctx := context.Background()
	a, _ := f.svc.Start(ctx, "quiz", "s1")
	answer(t, f, a.ID, "q-tf", `{"value":true}`)

	f.now = start.Add(11 * time.Minute)
	a, err := f.svc.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a.Status != StatusExpired || a.TotalScore != 1 {
		t.Errorf("status = %s total = %v, want EXPIRED with recorded score", a.Status, a.TotalScore)
	}
	if _, err := f.svc.Submit(ctx, a.ID); !errors.Is(err, ErrNotInProgress) {
		t.Errorf("submit after expiry: got %v", err)
	}
}

func TestClock_SoftDeadlineAutoSubmits(t *testing.T) {
	f := newFixture(t, &Quiz{ID: "quiz", QuestionIDs: []string{"q-tf", "q-mc"}, TimeLimit: 10 * time.Minute, AutoGrade: true})
	ctx := context.Background()
	a, _ := f.svc.Start(ctx, "quiz", "s1")
	answer(t, f, a.ID, "q-tf", `{"value":true}`)

	f.now = start.Add(time.Hour)
	n, err := f.svc.ExpireDue(ctx)
	if err != nil || n != 1 {
		t.Fatalf("ExpireDue = %d, %v", n, err)
	}
	a, _ = f.svc.Get(ctx, a.ID)
	if a.Status != StatusGraded {
		t.Errorf("status = %s, want GRADED", a.Status)
	}
	if !a.SubmittedAt.Equal(a.Deadline) {
		t.Errorf("submittedAt = %v, want deadline %v", a.SubmittedAt, a.Deadline)
	}
	if mc := a.Answer("q-mc"); mc == nil || mc.Answered() || mc.Result.PointsEarned != 0 {
		t.Errorf("unanswered question result = %+v", mc)
	}
}

func TestStart_SamplesInAuthoredOrder(t *testing.T) {
	f := newFixture(t, &Quiz{ID: "quiz", QuestionIDs: []string{"q-mc", "q-tf", "q-essay"}, QuestionsToShow: 2})
	a, err := f.svc.Start(context.Background(), "quiz", "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(a.QuestionIDs) != 2 {
		t.Fatalf("presented %v", a.QuestionIDs)
	}
	order := map[string]int{"q-mc": 0, "q-tf": 1, "q-essay": 2}
	if order[a.QuestionIDs[0]] > order[a.QuestionIDs[1]] {
		t.Errorf("sample lost authored order: %v", a.QuestionIDs)
	}
	want := 0.0
	for _, id := range a.QuestionIDs {
		want += f.catalog.questions[id].Points
	}
	if a.MaxScore != want {
		t.Errorf("maxScore = %v, want %v", a.MaxScore, want)
	}
}

func TestSubmit_CorruptKeyIsolated(t *testing.T) {
	f := newFixture(t, &Quiz{ID: "quiz", QuestionIDs: []string{"q-tf", "q-broken"}, AutoGrade: true})
	ctx := context.Background()
	a, _ := f.svc.Start(ctx, "quiz", "s1")
	answer(t, f, a.ID, "q-tf", `{"value":true}`)
	answer(t, f, a.ID, "q-broken", `{"selected":["a"]}`)

	a, err := f.svc.Submit(ctx, a.ID)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if a.Answer("q-tf").Result.PointsEarned != 1 {
		t.Errorf("healthy question lost its score")
	}
	broken := a.Answer("q-broken")
	if broken.GradeError == "" || !broken.Pending() {
		t.Errorf("broken answer = %+v, want grade error routed to review", broken)
	}
	if a.Status != StatusSubmitted {
		t.Errorf("status = %s, want SUBMITTED", a.Status)
	}
}

func TestSubmit_CancelledLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t, &Quiz{ID: "quiz", QuestionIDs: []string{"q-tf"}, AutoGrade: true})
	a, _ := f.svc.Start(context.Background(), "quiz", "s1")
	answer(t, f, a.ID, "q-tf", `{"value":true}`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.svc.Submit(ctx, a.ID); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	stored, _ := f.repo.GetAttempt(context.Background(), a.ID)
	if stored.Status != StatusInProgress || stored.Answer("q-tf").Result != nil {
		t.Errorf("cancelled submit mutated state: %+v", stored)
	}
}

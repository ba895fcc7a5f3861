package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/gradewise/internal/attempt"
	"github.com/abhisek/gradewise/internal/mastery"
	"github.com/abhisek/gradewise/internal/notify"
	"github.com/abhisek/gradewise/internal/peerreview"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s, err := Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err, "open test store")
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPragmasApplied(t *testing.T) {
	s := openTestStore(t)

	tests := []struct {
		pragma string
		want   string
	}{
		// WAL falls back to "memory" for in-memory databases.
		{"foreign_keys", "1"},
		{"synchronous", "1"}, // NORMAL = 1
	}
	for _, tt := range tests {
		var got string
		require.NoError(t, s.DB().QueryRow("PRAGMA "+tt.pragma).Scan(&got))
		assert.Equal(t, tt.want, got, "PRAGMA %s", tt.pragma)
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := t.TempDir() + "/gradewise.db"
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func bump(level float64) mastery.UpdateFunc {
	return func(prev *mastery.Record) (*mastery.Record, error) {
		next := &mastery.Record{StudentID: "s1", SkillKey: "fractions"}
		if prev != nil {
			next = prev
		}
		next.MasteryLevel += level
		next.TotalAttempts++
		return next, nil
	}
}

func TestMasteryRepo_UpdateAndGet(t *testing.T) {
	repo := openTestStore(t).MasteryRepo()
	ctx := context.Background()

	rec, err := repo.GetRecord(ctx, "s1", "fractions")
	require.NoError(t, err)
	assert.Nil(t, rec)

	in := &mastery.Interaction{ID: "i-1", StudentID: "s1", SkillKey: "fractions", Outcome: mastery.OutcomeCorrect, Score: 1, At: time.Now()}
	rec, err = repo.UpdateRecord(ctx, "s1", "fractions", in, bump(10))
	require.NoError(t, err)
	assert.Equal(t, 10.0, rec.MasteryLevel)

	_, err = repo.UpdateRecord(ctx, "s1", "fractions", in, bump(10))
	assert.ErrorIs(t, err, mastery.ErrDuplicateInteraction)

	rec, err = repo.GetRecord(ctx, "s1", "fractions")
	require.NoError(t, err)
	assert.Equal(t, 10.0, rec.MasteryLevel, "duplicate must not write")
	assert.Equal(t, 1, rec.TotalAttempts)

	_, err = repo.UpdateRecord(ctx, "s1", "addition", nil, bump(5))
	require.NoError(t, err)
	list, err := repo.ListRecords(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "addition", list[0].SkillKey)

	history, err := repo.ListInteractions(ctx, "s1", "", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "i-1", history[0].ID)
}

func TestMasteryRepo_FailedUpdateRollsBack(t *testing.T) {
	repo := openTestStore(t).MasteryRepo()
	ctx := context.Background()

	boom := errors.New("boom")
	in := &mastery.Interaction{ID: "i-1", StudentID: "s1", SkillKey: "fractions", Outcome: mastery.OutcomeCorrect}
	_, err := repo.UpdateRecord(ctx, "s1", "fractions", in, func(*mastery.Record) (*mastery.Record, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	// The interaction ID was not consumed.
	_, err = repo.UpdateRecord(ctx, "s1", "fractions", in, bump(1))
	require.NoError(t, err)
}

func TestMasteryRepo_CancelledContext(t *testing.T) {
	repo := openTestStore(t).MasteryRepo()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.UpdateRecord(ctx, "s1", "fractions", nil, bump(1))
	require.Error(t, err)

	rec, err := repo.GetRecord(context.Background(), "s1", "fractions")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestMasteryRepo_ConcurrentTracker(t *testing.T) {
	repo := openTestStore(t).MasteryRepo()
	tr := mastery.NewTracker(repo, mastery.DefaultConfig(), nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tr.RecordInteraction(ctx, mastery.Interaction{
				ID:        fmt.Sprintf("i-%d", i),
				StudentID: "s1",
				SkillKey:  "fractions",
				Outcome:   mastery.OutcomeCorrect,
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rec, err := repo.GetRecord(ctx, "s1", "fractions")
	require.NoError(t, err)
	assert.Equal(t, 20, rec.TotalAttempts)
}

func TestAttemptRepo(t *testing.T) {
	repo := openTestStore(t).AttemptRepo()
	ctx := context.Background()

	a := &attempt.Attempt{ID: "a1", QuizID: "quiz", StudentID: "s1", Number: 1, Status: attempt.StatusInProgress, StartedAt: time.Now()}
	require.NoError(t, repo.CreateAttempt(ctx, a))

	dup := *a
	dup.ID = "a2"
	assert.Error(t, repo.CreateAttempt(ctx, &dup), "same quiz/student/number")

	a.Status = attempt.StatusGraded
	a.Percentage = 75
	require.NoError(t, repo.SaveAttempt(ctx, a))

	got, err := repo.GetAttempt(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, attempt.StatusGraded, got.Status)
	assert.Equal(t, 75.0, got.Percentage)

	_, err = repo.GetAttempt(ctx, "missing")
	assert.ErrorIs(t, err, attempt.ErrNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.SaveAttempt(ctx, &attempt.Attempt{ID: "missing"}), attempt.ErrNotFound)

	second := &attempt.Attempt{ID: "a3", QuizID: "quiz", StudentID: "s1", Number: 2, Status: attempt.StatusInProgress, StartedAt: time.Now()}
	require.NoError(t, repo.CreateAttempt(ctx, second))

	list, err := repo.ListAttempts(ctx, "quiz", "s1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 1, list[0].Number)

	open, err := repo.ListInProgress(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "a3", open[0].ID)
}

func TestFeedBacklog(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	b := s.FeedBacklog()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, b.Mark(ctx, "att-2", "bo", errors.New("disk full"), t0.Add(time.Minute)))
	require.NoError(t, b.Mark(ctx, "att-1", "ana", errors.New("locked"), t0))
	require.NoError(t, b.Mark(ctx, "att-1", "ana", errors.New("locked again"), t0.Add(time.Hour)))

	list, err := b.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "att-1", list[0].AttemptID, "oldest failure first")
	assert.Equal(t, 2, list[0].Tries)
	assert.Equal(t, "locked again", list[0].LastError)
	assert.True(t, list[0].QueuedAt.Equal(t0), "first failure time is kept")
	assert.Equal(t, "bo", list[1].StudentID)

	require.NoError(t, b.Clear(ctx, "att-1"))
	require.NoError(t, b.Clear(ctx, "att-1"), "clearing twice")
	list, err = b.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "att-2", list[0].AttemptID)
}

func TestPeerReviewRepo(t *testing.T) {
	repo := openTestStore(t).PeerReviewRepo()
	ctx := context.Background()

	require.NoError(t, repo.SaveAssignments(ctx, []peerreview.Assignment{
		{SubmissionID: "sub-a", ReviewerID: "bob", Anonymous: true},
		{SubmissionID: "sub-b", ReviewerID: "bob"},
		{SubmissionID: "sub-a", ReviewerID: "cat"},
	}))

	as, err := repo.ListAssignments(ctx, "sub-a")
	require.NoError(t, err)
	require.Len(t, as, 2)
	assert.True(t, as[0].Anonymous)

	err = repo.SaveReview(ctx, peerreview.Review{SubmissionID: "sub-a", ReviewerID: "dan"})
	assert.ErrorIs(t, err, peerreview.ErrNotAssigned)

	rv := peerreview.Review{SubmissionID: "sub-a", ReviewerID: "bob", Scores: map[string]float64{"accuracy": 3}, SubmittedAt: time.Now()}
	require.NoError(t, repo.SaveReview(ctx, rv))
	rv.Scores["accuracy"] = 4
	require.NoError(t, repo.SaveReview(ctx, rv), "resubmission replaces")

	reviews, err := repo.ListReviews(ctx, "sub-a")
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, 4.0, reviews[0].Scores["accuracy"])

	pending, err := repo.PendingForReviewer(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "sub-b", pending[0].SubmissionID)

	// A failing batch leaves nothing behind.
	err = repo.SaveAssignments(ctx, []peerreview.Assignment{
		{SubmissionID: "sub-c", ReviewerID: "eve"},
		{SubmissionID: "sub-a", ReviewerID: "bob"},
	})
	require.Error(t, err)
	as, err = repo.ListAssignments(ctx, "sub-c")
	require.NoError(t, err)
	assert.Empty(t, as)
}

func TestOutbox(t *testing.T) {
	s := openTestStore(t)
	out := s.Outbox()
	ctx := context.Background()

	e1, err := notify.NewEvent(notify.KindAttemptGraded, "s1", "quiz", map[string]any{"percentage": 80})
	require.NoError(t, err)
	e2, err := notify.NewEvent(notify.KindReviewNeeded, "s2", "a1", nil)
	require.NoError(t, err)

	require.NoError(t, out.AppendEvent(ctx, e1))
	require.NoError(t, out.AppendEvent(ctx, e2))
	require.NoError(t, out.AppendEvent(ctx, e1), "re-append is a no-op")

	all, err := out.ListEvents(ctx, EventFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Less(t, all[0].Sequence, all[1].Sequence)
	assert.Equal(t, e1.ID, all[0].ID)

	var payload map[string]float64
	require.NoError(t, json.Unmarshal(all[0].Payload, &payload))
	assert.Equal(t, 80.0, payload["percentage"])

	only, err := out.ListEvents(ctx, EventFilter{Kind: notify.KindReviewNeeded})
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, "s2", only[0].StudentID)

	after, err := out.ListEvents(ctx, EventFilter{QueryOpts: QueryOpts{After: all[0].Sequence}})
	require.NoError(t, err)
	assert.Len(t, after, 1)
}

func TestEventRepo_LLMRequests(t *testing.T) {
	repo := openTestStore(t).EventRepo()
	ctx := context.Background()

	for i, purpose := range []string{"answer-review", "answer-review", "feedback"} {
		failed := i == 2
		errMsg := ""
		if failed {
			errMsg = "rate limited"
		}
		require.NoError(t, repo.AppendLLMRequest(ctx, LLMRequestEventData{
			Provider:     "mock",
			Model:        "mock-model",
			Purpose:      purpose,
			InputTokens:  100,
			OutputTokens: 10 * (i + 1),
			LatencyMs:    int64(100 * (i + 1)),
			Success:      !failed,
			ErrorMessage: errMsg,
			RequestBody:  "[user]\nhello",
		}))
	}

	events, err := repo.QueryLLMEvents(ctx, QueryOpts{Limit: 2})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "feedback", events[0].Purpose, "newest first")
	assert.False(t, events[0].Success)

	e, err := repo.GetLLMEvent(ctx, events[1].ID)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "[user]\nhello", e.RequestBody)

	_, err = repo.GetLLMEvent(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)

	byPurpose, err := repo.LLMUsageByPurpose(ctx)
	require.NoError(t, err)
	require.Len(t, byPurpose, 2)
	assert.Equal(t, LLMUsage{Purpose: "answer-review", Calls: 2, InputTokens: 200, OutputTokens: 30, AvgLatencyMs: 150}, byPurpose[0])

	byModel, err := repo.LLMUsageByModel(ctx)
	require.NoError(t, err)
	require.Len(t, byModel, 1)
	assert.Equal(t, 3, byModel[0].Calls)
}

func TestSequence_SharedAcrossTables(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	e, _ := notify.NewEvent(notify.KindAttemptGraded, "s1", "", nil)
	require.NoError(t, s.Outbox().AppendEvent(ctx, e))
	require.NoError(t, s.EventRepo().AppendLLMRequest(ctx, LLMRequestEventData{Provider: "mock", Model: "m", Purpose: "p", Success: true}))
	require.NoError(t, s.Outbox().AppendEvent(ctx, mustEvent(t)))

	events, err := s.Outbox().ListEvents(ctx, EventFilter{})
	require.NoError(t, err)
	llm, err := s.EventRepo().QueryLLMEvents(ctx, QueryOpts{})
	require.NoError(t, err)

	assert.Equal(t, int64(1), events[0].Sequence)
	assert.Equal(t, int64(2), llm[0].Sequence)
	assert.Equal(t, int64(3), events[1].Sequence)
}

func mustEvent(t *testing.T) notify.Event {
	t.Helper()
	e, err := notify.NewEvent(notify.KindPeerReviewAssigned, "s1", "sub", nil)
	require.NoError(t, err)
	return e
}

func TestDefaultDBPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GRADEWISE_DB", dir+"/custom/db.sqlite")
	p, err := DefaultDBPath()
	require.NoError(t, err)
	assert.Equal(t, dir+"/custom/db.sqlite", p)

	t.Setenv("GRADEWISE_DB", "")
	t.Setenv("XDG_DATA_HOME", dir)
	p, err = DefaultDBPath()
	require.NoError(t, err)
	assert.Equal(t, dir+"/gradewise/gradewise.db", p)
}

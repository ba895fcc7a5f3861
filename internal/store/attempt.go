package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/abhisek/gradewise/internal/attempt"
)

// AttemptRepo persists quiz attempts as JSON documents keyed by ID, with
// the lookup columns broken out.
type AttemptRepo struct {
	s *Store
}

var _ attempt.Repo = (*AttemptRepo)(nil)

// CreateAttempt implements attempt.Repo. A second attempt with the same
// (quiz, student, number) violates the unique index.
func (r *AttemptRepo) CreateAttempt(ctx context.Context, a *attempt.Attempt) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}
	return r.s.withTx(ctx, func(tx dialect.Tx) error {
		query, args := builder().Insert("attempts").
			Columns("id", "quiz_id", "student_id", "number", "status", "started_at", "body").
			Values(a.ID, a.QuizID, a.StudentID, a.Number, string(a.Status), millis(a.StartedAt), string(body)).
			Query()
		if err := tx.Exec(ctx, query, args, nil); err != nil {
			return fmt.Errorf("create attempt: %w", err)
		}
		return nil
	})
}

// SaveAttempt implements attempt.Repo.
func (r *AttemptRepo) SaveAttempt(ctx context.Context, a *attempt.Attempt) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}
	return r.s.withTx(ctx, func(tx dialect.Tx) error {
		query, args := builder().Update("attempts").
			Set("status", string(a.Status)).
			Set("body", string(body)).
			Where(entsql.EQ("id", a.ID)).
			Query()
		var res sql.Result
		if err := tx.Exec(ctx, query, args, &res); err != nil {
			return fmt.Errorf("save attempt: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("save attempt %q: %w: %w", a.ID, attempt.ErrNotFound, ErrNotFound)
		}
		return nil
	})
}

// GetAttempt implements attempt.Repo.
func (r *AttemptRepo) GetAttempt(ctx context.Context, id string) (*attempt.Attempt, error) {
	query, args := builder().Select("body").From(entsql.Table("attempts")).
		Where(entsql.EQ("id", id)).
		Query()
	list, err := r.list(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("attempt %q: %w: %w", id, attempt.ErrNotFound, ErrNotFound)
	}
	return list[0], nil
}

// ListAttempts implements attempt.Repo, ordered by attempt number.
func (r *AttemptRepo) ListAttempts(ctx context.Context, quizID, studentID string) ([]*attempt.Attempt, error) {
	query, args := builder().Select("body").From(entsql.Table("attempts")).
		Where(entsql.And(entsql.EQ("quiz_id", quizID), entsql.EQ("student_id", studentID))).
		OrderBy("number").
		Query()
	return r.list(ctx, query, args)
}

// ListInProgress implements attempt.Repo.
func (r *AttemptRepo) ListInProgress(ctx context.Context) ([]*attempt.Attempt, error) {
	query, args := builder().Select("body").From(entsql.Table("attempts")).
		Where(entsql.EQ("status", string(attempt.StatusInProgress))).
		OrderBy("started_at", "id").
		Query()
	return r.list(ctx, query, args)
}

func (r *AttemptRepo) list(ctx context.Context, query string, args []any) ([]*attempt.Attempt, error) {
	var out []*attempt.Attempt
	err := scanAll(ctx, r.s.drv, query, args, func(rows *entsql.Rows) error {
		a, err := scanJSON[attempt.Attempt](rows)
		if err != nil {
			return err
		}
		out = append(out, a)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	return out, nil
}

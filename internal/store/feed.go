package store

import (
	"context"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
)

// PendingFeed is a finalized attempt whose answers have not all reached
// the mastery tracker.
type PendingFeed struct {
	AttemptID string
	StudentID string
	Tries     int
	LastError string
	QueuedAt  time.Time
}

// FeedBacklog remembers failed mastery feeds until a replay lands them.
type FeedBacklog struct {
	s *Store
}

// Mark queues the attempt, or bumps its try count and error when it is
// already queued. QueuedAt keeps the first failure time.
func (b *FeedBacklog) Mark(ctx context.Context, attemptID, studentID string, cause error, at time.Time) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return b.s.withTx(ctx, func(tx dialect.Tx) error {
		query, args := builder().Insert("mastery_feed_pending").
			Columns("attempt_id", "student_id", "tries", "last_error", "queued_at").
			Values(attemptID, studentID, 1, msg, millis(at)).
			OnConflict(
				entsql.ConflictColumns("attempt_id"),
				entsql.ResolveWith(func(u *entsql.UpdateSet) {
					u.SetExcluded("last_error")
					u.Add("tries", 1)
				}),
			).
			Query()
		if err := tx.Exec(ctx, query, args, nil); err != nil {
			return fmt.Errorf("mark feed pending: %w", err)
		}
		return nil
	})
}

// Clear drops the attempt from the backlog. Clearing an absent attempt is
// not an error.
func (b *FeedBacklog) Clear(ctx context.Context, attemptID string) error {
	query, args := builder().Delete("mastery_feed_pending").
		Where(entsql.EQ("attempt_id", attemptID)).
		Query()
	if err := b.s.drv.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("clear feed pending: %w", err)
	}
	return nil
}

// List returns the backlog, oldest failure first.
func (b *FeedBacklog) List(ctx context.Context) ([]PendingFeed, error) {
	query, args := builder().
		Select("attempt_id", "student_id", "tries", "last_error", "queued_at").
		From(entsql.Table("mastery_feed_pending")).
		OrderBy("queued_at", "attempt_id").
		Query()
	var out []PendingFeed
	err := scanAll(ctx, b.s.drv, query, args, func(rows *entsql.Rows) error {
		var p PendingFeed
		var queued int64
		if err := rows.Scan(&p.AttemptID, &p.StudentID, &p.Tries, &p.LastError, &queued); err != nil {
			return err
		}
		p.QueuedAt = fromMillis(queued)
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query feed backlog: %w", err)
	}
	return out, nil
}

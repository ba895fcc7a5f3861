package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/abhisek/gradewise/internal/notify"
)

// QueryOpts configures event queries with filtering and pagination.
type QueryOpts struct {
	Limit  int       // max results (0 = unlimited)
	After  int64     // sequence > After
	Before int64     // sequence < Before
	From   time.Time // timestamp >= From
	To     time.Time // timestamp <= To
}

func (o QueryOpts) predicates(timeCol string) []*entsql.Predicate {
	var ps []*entsql.Predicate
	if o.After > 0 {
		ps = append(ps, entsql.GT("sequence", o.After))
	}
	if o.Before > 0 {
		ps = append(ps, entsql.LT("sequence", o.Before))
	}
	if !o.From.IsZero() {
		ps = append(ps, entsql.GTE(timeCol, millis(o.From)))
	}
	if !o.To.IsZero() {
		ps = append(ps, entsql.LTE(timeCol, millis(o.To)))
	}
	return ps
}

// StoredEvent is a notification event with its position in the global
// sequence.
type StoredEvent struct {
	Sequence int64 `json:"sequence"`
	notify.Event
}

// EventFilter narrows ListEvents.
type EventFilter struct {
	QueryOpts
	Kind      notify.Kind
	StudentID string
}

// Outbox is the durable notification log. It implements notify.Outbox.
type Outbox struct {
	s *Store
}

var _ notify.Outbox = (*Outbox)(nil)

// AppendEvent stores e. Re-appending an event ID is a no-op.
func (o *Outbox) AppendEvent(ctx context.Context, e notify.Event) error {
	return o.s.withTx(ctx, func(tx dialect.Tx) error {
		seq, err := o.s.seq.Next(ctx, tx)
		if err != nil {
			return err
		}
		query, args := builder().Insert("events").
			Columns("sequence", "id", "kind", "student_id", "subject", "payload", "created_at").
			Values(seq, e.ID, string(e.Kind), e.StudentID, e.Subject, string(e.Payload), millis(e.At)).
			OnConflict(entsql.ConflictColumns("id"), entsql.DoNothing()).
			Query()
		if err := tx.Exec(ctx, query, args, nil); err != nil {
			return fmt.Errorf("append event: %w", err)
		}
		return nil
	})
}

// ListEvents returns events in sequence order.
func (o *Outbox) ListEvents(ctx context.Context, f EventFilter) ([]StoredEvent, error) {
	ps := f.predicates("created_at")
	if f.Kind != "" {
		ps = append(ps, entsql.EQ("kind", string(f.Kind)))
	}
	if f.StudentID != "" {
		ps = append(ps, entsql.EQ("student_id", f.StudentID))
	}
	sel := builder().Select("sequence", "id", "kind", "student_id", "subject", "payload", "created_at").
		From(entsql.Table("events")).
		OrderBy("sequence")
	if len(ps) > 0 {
		sel.Where(entsql.And(ps...))
	}
	if f.Limit > 0 {
		sel.Limit(f.Limit)
	}
	query, args := sel.Query()

	var out []StoredEvent
	err := scanAll(ctx, o.s.drv, query, args, func(rows *entsql.Rows) error {
		var (
			e       StoredEvent
			kind    string
			payload string
			at      int64
		)
		if err := rows.Scan(&e.Sequence, &e.ID, &kind, &e.StudentID, &e.Subject, &payload, &at); err != nil {
			return err
		}
		e.Kind = notify.Kind(kind)
		if payload != "" {
			e.Payload = json.RawMessage(payload)
		}
		e.At = fromMillis(at)
		out = append(out, e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return out, nil
}

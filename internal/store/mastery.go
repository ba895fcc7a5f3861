package store

import (
	"context"
	"encoding/json"
	"fmt"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/abhisek/gradewise/internal/mastery"
)

// MasteryRepo persists mastery records and the interaction log.
type MasteryRepo struct {
	s *Store
}

var _ mastery.Repo = (*MasteryRepo)(nil)

// UpdateRecord implements mastery.Repo. The interaction row and the record
// are written in one transaction.
func (r *MasteryRepo) UpdateRecord(ctx context.Context, studentID, skillKey string, in *mastery.Interaction, fn mastery.UpdateFunc) (*mastery.Record, error) {
	var out *mastery.Record
	err := r.s.withTx(ctx, func(tx dialect.Tx) error {
		if in != nil {
			dup, err := exists(ctx, tx, builder().Select("id").From(entsql.Table("interactions")).
				Where(entsql.EQ("id", in.ID)))
			if err != nil {
				return fmt.Errorf("check interaction: %w", err)
			}
			if dup {
				return fmt.Errorf("interaction %q: %w", in.ID, mastery.ErrDuplicateInteraction)
			}
		}

		prev, err := getRecord(ctx, tx, studentID, skillKey)
		if err != nil {
			return err
		}
		next, err := fn(prev)
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		body, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		query, args := builder().Insert("mastery_records").
			Columns("student_id", "skill_key", "mastery_level", "next_review_at", "updated_at", "body").
			Values(studentID, skillKey, next.MasteryLevel, millis(next.NextReviewAt), millis(next.UpdatedAt), string(body)).
			OnConflict(entsql.ConflictColumns("student_id", "skill_key"), entsql.ResolveWithNewValues()).
			Query()
		if err := tx.Exec(ctx, query, args, nil); err != nil {
			return fmt.Errorf("save record: %w", err)
		}

		if in != nil {
			if err := r.appendInteraction(ctx, tx, in); err != nil {
				return err
			}
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *MasteryRepo) appendInteraction(ctx context.Context, tx dialect.Tx, in *mastery.Interaction) error {
	seq, err := r.s.seq.Next(ctx, tx)
	if err != nil {
		return err
	}
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal interaction: %w", err)
	}
	query, args := builder().Insert("interactions").
		Columns("id", "sequence", "student_id", "skill_key", "outcome", "score", "at", "body").
		Values(in.ID, seq, in.StudentID, in.SkillKey, string(in.Outcome), in.Score, millis(in.At), string(body)).
		Query()
	if err := tx.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("save interaction: %w", err)
	}
	return nil
}

// GetRecord implements mastery.Repo.
func (r *MasteryRepo) GetRecord(ctx context.Context, studentID, skillKey string) (*mastery.Record, error) {
	return getRecord(ctx, r.s.drv, studentID, skillKey)
}

// ListRecords implements mastery.Repo.
func (r *MasteryRepo) ListRecords(ctx context.Context, studentID string) ([]*mastery.Record, error) {
	query, args := builder().Select("body").From(entsql.Table("mastery_records")).
		Where(entsql.EQ("student_id", studentID)).
		OrderBy("skill_key").
		Query()
	var out []*mastery.Record
	err := scanAll(ctx, r.s.drv, query, args, func(rows *entsql.Rows) error {
		rec, err := scanJSON[mastery.Record](rows)
		if err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list mastery records: %w", err)
	}
	return out, nil
}

// ListInteractions returns the logged interactions of a student, oldest
// first. An empty skillKey matches every skill; limit 0 means unlimited and
// otherwise keeps the most recent entries.
func (r *MasteryRepo) ListInteractions(ctx context.Context, studentID, skillKey string, limit int) ([]*mastery.Interaction, error) {
	preds := []*entsql.Predicate{entsql.EQ("student_id", studentID)}
	if skillKey != "" {
		preds = append(preds, entsql.EQ("skill_key", skillKey))
	}
	sel := builder().Select("body").From(entsql.Table("interactions")).
		Where(entsql.And(preds...)).
		OrderBy(entsql.Desc("sequence"))
	if limit > 0 {
		sel.Limit(limit)
	}
	query, args := sel.Query()

	var out []*mastery.Interaction
	err := scanAll(ctx, r.s.drv, query, args, func(rows *entsql.Rows) error {
		in, err := scanJSON[mastery.Interaction](rows)
		if err != nil {
			return err
		}
		out = append(out, in)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func getRecord(ctx context.Context, q dialect.ExecQuerier, studentID, skillKey string) (*mastery.Record, error) {
	query, args := builder().Select("body").From(entsql.Table("mastery_records")).
		Where(entsql.And(entsql.EQ("student_id", studentID), entsql.EQ("skill_key", skillKey))).
		Query()
	var rec *mastery.Record
	err := scanAll(ctx, q, query, args, func(rows *entsql.Rows) error {
		var err error
		rec, err = scanJSON[mastery.Record](rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get mastery record: %w", err)
	}
	return rec, nil
}

// scanJSON decodes a single JSON body column.
func scanJSON[T any](rows *entsql.Rows) (*T, error) {
	var body string
	if err := rows.Scan(&body); err != nil {
		return nil, fmt.Errorf("scan body: %w", err)
	}
	var v T
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return &v, nil
}

package mastery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abhisek/gradewise/internal/keylock"
	"github.com/abhisek/gradewise/internal/spacedrep"
)

// ErrDuplicateInteraction is returned when an interaction ID has already been
// applied; the stored record is left unchanged.
var (
	ErrDuplicateInteraction = errors.New("duplicate interaction")
	ErrInvalidInteraction   = errors.New("invalid interaction")
	ErrLevelOutOfRange      = errors.New("mastery level out of range")
)

// UpdateFunc computes the next record from the stored one (nil if absent).
type UpdateFunc func(prev *Record) (*Record, error)

// Repo persists mastery records.
type Repo interface {
	// UpdateRecord loads the record for (studentID, skillKey), applies fn and
	// saves the result in a single transaction. When in is non-nil it is
	// logged in the same transaction; a previously logged in.ID yields
	// ErrDuplicateInteraction and nothing is written.
	UpdateRecord(ctx context.Context, studentID, skillKey string, in *Interaction, fn UpdateFunc) (*Record, error)

	// GetRecord returns the record, or nil if none exists.
	GetRecord(ctx context.Context, studentID, skillKey string) (*Record, error)

	// ListRecords returns all records of a student ordered by skill key.
	ListRecords(ctx context.Context, studentID string) ([]*Record, error)
}

// Tracker applies learning interactions to persisted mastery records.
// Updates for one (student, skill) pair are serialized; different pairs run
// in parallel.
type Tracker struct {
	repo  Repo
	cfg   Config
	locks *keylock.Locker
	log   *zap.Logger
	now   func() time.Time
}

// NewTracker creates a Tracker.
func NewTracker(repo Repo, cfg Config, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{
		repo:  repo,
		cfg:   cfg,
		locks: keylock.New(),
		log:   log.With(zap.String("component", "mastery")),
		now:   time.Now,
	}
}

// Config returns the tracker's update constants.
func (t *Tracker) Config() Config { return t.cfg }

// RecordInteraction applies one interaction and returns the updated record.
// A replayed interaction ID returns the current record together with
// ErrDuplicateInteraction. A cancelled context leaves the record unchanged.
func (t *Tracker) RecordInteraction(ctx context.Context, in Interaction) (*Record, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.At.IsZero() {
		in.At = t.now().UTC()
	}

	unlock, err := t.locks.Lock(ctx, Key(in.StudentID, in.SkillKey))
	if err != nil {
		return nil, fmt.Errorf("lock mastery record: %w", err)
	}
	defer unlock()

	rec, err := t.repo.UpdateRecord(ctx, in.StudentID, in.SkillKey, &in, func(prev *Record) (*Record, error) {
		return Apply(t.cfg, prev, in), nil
	})
	if errors.Is(err, ErrDuplicateInteraction) {
		current, getErr := t.repo.GetRecord(ctx, in.StudentID, in.SkillKey)
		if getErr != nil {
			return nil, fmt.Errorf("load record after duplicate: %w", getErr)
		}
		return current, err
	}
	if err != nil {
		return nil, fmt.Errorf("update mastery record: %w", err)
	}

	t.log.Debug("mastery updated",
		zap.String("student", in.StudentID),
		zap.String("skill", in.SkillKey),
		zap.String("outcome", string(in.Outcome)),
		zap.Float64("level", rec.MasteryLevel),
		zap.String("signal", string(rec.Signal)),
	)
	return rec, nil
}

// Adjust overrides the mastery level of a record, creating it if needed.
func (t *Tracker) Adjust(ctx context.Context, studentID, skillKey string, level float64, reason string) (*Record, error) {
	if level < 0 || level > 100 {
		return nil, fmt.Errorf("%w: %v not within [0,100]", ErrLevelOutOfRange, level)
	}
	unlock, err := t.locks.Lock(ctx, Key(studentID, skillKey))
	if err != nil {
		return nil, fmt.Errorf("lock mastery record: %w", err)
	}
	defer unlock()

	now := t.now().UTC()
	rec, err := t.repo.UpdateRecord(ctx, studentID, skillKey, nil, func(prev *Record) (*Record, error) {
		next := Record{StudentID: studentID, SkillKey: skillKey, Signal: SignalNone, LastPracticedAt: now, NextReviewAt: now}
		if prev != nil {
			next = *prev
		}
		next.MasteryLevel = level
		next.UpdatedAt = now
		return &next, nil
	})
	if err != nil {
		return nil, fmt.Errorf("adjust mastery: %w", err)
	}
	t.log.Info("mastery adjusted",
		zap.String("student", studentID),
		zap.String("skill", skillKey),
		zap.Float64("level", level),
		zap.String("reason", reason),
	)
	return rec, nil
}

// Reset zeroes the estimate of a record while keeping the row.
func (t *Tracker) Reset(ctx context.Context, studentID, skillKey string) (*Record, error) {
	unlock, err := t.locks.Lock(ctx, Key(studentID, skillKey))
	if err != nil {
		return nil, fmt.Errorf("lock mastery record: %w", err)
	}
	defer unlock()

	now := t.now().UTC()
	rec, err := t.repo.UpdateRecord(ctx, studentID, skillKey, nil, func(_ *Record) (*Record, error) {
		return &Record{
			StudentID:       studentID,
			SkillKey:        skillKey,
			Signal:          SignalNone,
			LastPracticedAt: now,
			NextReviewAt:    now,
			UpdatedAt:       now,
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("reset mastery: %w", err)
	}
	return rec, nil
}

// Get returns the record for a pair, or nil if the student never practiced it.
func (t *Tracker) Get(ctx context.Context, studentID, skillKey string) (*Record, error) {
	return t.repo.GetRecord(ctx, studentID, skillKey)
}

// Records returns all of a student's records.
func (t *Tracker) Records(ctx context.Context, studentID string) ([]*Record, error) {
	return t.repo.ListRecords(ctx, studentID)
}

// ReviewQueue returns the student's skills due for review, most overdue first.
func (t *Tracker) ReviewQueue(ctx context.Context, studentID string, now time.Time) ([]spacedrep.Item, error) {
	records, err := t.repo.ListRecords(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list mastery records: %w", err)
	}
	schedule := make(map[string]time.Time, len(records))
	for _, r := range records {
		schedule[r.SkillKey] = r.NextReviewAt
	}
	return spacedrep.Queue(schedule, now), nil
}

// Stats summarizes a student's records.
func (t *Tracker) Stats(ctx context.Context, studentID string, now time.Time) (Stats, error) {
	records, err := t.repo.ListRecords(ctx, studentID)
	if err != nil {
		return Stats{}, fmt.Errorf("list mastery records: %w", err)
	}
	return Summarize(records, t.cfg.MasteredThreshold, now), nil
}

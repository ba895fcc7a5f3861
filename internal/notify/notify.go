// Package notify emits fire-and-forget events about grading and learning
// progress. Delivery failures are logged and never fail the caller.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Kind names an event type.
type Kind string

const (
	KindAttemptGraded       Kind = "attempt.graded"
	KindReviewNeeded        Kind = "review.needed"
	KindPrerequisiteBlocked Kind = "prerequisite.blocked"
	KindPeerReviewAssigned  Kind = "peer_review.assigned"
)

// Event is one notification.
type Event struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	StudentID string          `json:"studentId,omitempty"`
	Subject   string          `json:"subject,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	At        time.Time       `json:"at"`
}

// NewEvent builds an event with a fresh ID and a JSON payload.
func NewEvent(kind Kind, studentID, subject string, payload any) (Event, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("marshal %s payload: %w", kind, err)
		}
		raw = b
	}
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		StudentID: studentID,
		Subject:   subject,
		Payload:   raw,
		At:        time.Now().UTC(),
	}, nil
}

// Dispatcher delivers events.
type Dispatcher interface {
	Dispatch(ctx context.Context, e Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Dispatch(context.Context, Event) error { return nil }

// LogDispatcher writes events to a zap logger.
type LogDispatcher struct {
	log *zap.Logger
}

// NewLogDispatcher creates a LogDispatcher.
func NewLogDispatcher(log *zap.Logger) *LogDispatcher {
	return &LogDispatcher{log: log.With(zap.String("component", "notify"))}
}

func (d *LogDispatcher) Dispatch(_ context.Context, e Event) error {
	d.log.Info("event",
		zap.String("id", e.ID),
		zap.String("kind", string(e.Kind)),
		zap.String("student", e.StudentID),
		zap.String("subject", e.Subject),
		zap.ByteString("payload", e.Payload),
	)
	return nil
}

// Outbox stores events for later consumers.
type Outbox interface {
	AppendEvent(ctx context.Context, e Event) error
}

// OutboxDispatcher appends events to a persistent outbox.
type OutboxDispatcher struct {
	outbox Outbox
}

// NewOutboxDispatcher creates an OutboxDispatcher.
func NewOutboxDispatcher(o Outbox) *OutboxDispatcher {
	return &OutboxDispatcher{outbox: o}
}

func (d *OutboxDispatcher) Dispatch(ctx context.Context, e Event) error {
	if err := d.outbox.AppendEvent(ctx, e); err != nil {
		return fmt.Errorf("append event to outbox: %w", err)
	}
	return nil
}

// Multi fans an event out to every dispatcher and joins their errors.
type Multi []Dispatcher

func (m Multi) Dispatch(ctx context.Context, e Event) error {
	var errs []error
	for _, d := range m {
		if err := d.Dispatch(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Async delivers events on a background goroutine so callers never wait on
// slow sinks. Events are dropped when the buffer is full.
type Async struct {
	next   Dispatcher
	log    *zap.Logger
	onDrop func()

	mu      sync.RWMutex
	closed  bool
	pending chan asyncJob
	done    chan struct{}
}

type asyncJob struct {
	ctx context.Context
	e   Event
}

// NewAsync wraps next with a buffer of size events.
func NewAsync(next Dispatcher, size int, log *zap.Logger, onDrop func()) *Async {
	if size <= 0 {
		size = 64
	}
	if log == nil {
		log = zap.NewNop()
	}
	a := &Async{
		next:    next,
		log:     log.With(zap.String("component", "notify")),
		onDrop:  onDrop,
		pending: make(chan asyncJob, size),
		done:    make(chan struct{}),
	}
	go a.loop()
	return a
}

// Dispatch enqueues e and returns immediately. It never fails.
func (a *Async) Dispatch(ctx context.Context, e Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil
	}
	select {
	case a.pending <- asyncJob{ctx: context.WithoutCancel(ctx), e: e}:
	default:
		a.log.Warn("event buffer full, dropping", zap.String("kind", string(e.Kind)), zap.String("id", e.ID))
		if a.onDrop != nil {
			a.onDrop()
		}
	}
	return nil
}

func (a *Async) loop() {
	defer close(a.done)
	for job := range a.pending {
		if err := a.next.Dispatch(job.ctx, job.e); err != nil {
			a.log.Warn("event delivery failed",
				zap.String("kind", string(job.e.Kind)),
				zap.String("id", job.e.ID),
				zap.Error(err),
			)
		}
	}
}

// Close flushes buffered events and stops the worker.
func (a *Async) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.pending)
	a.mu.Unlock()
	<-a.done
}

// Package app wires the grading, mastery, recommendation and peer review
// services into one Engine shared by the HTTP server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/abhisek/gradewise/internal/attempt"
	"github.com/abhisek/gradewise/internal/catalog"
	"github.com/abhisek/gradewise/internal/config"
	"github.com/abhisek/gradewise/internal/grader"
	"github.com/abhisek/gradewise/internal/llm"
	"github.com/abhisek/gradewise/internal/mastery"
	"github.com/abhisek/gradewise/internal/metrics"
	"github.com/abhisek/gradewise/internal/notify"
	"github.com/abhisek/gradewise/internal/peerreview"
	"github.com/abhisek/gradewise/internal/review"
	"github.com/abhisek/gradewise/internal/store"
)

// Engine is the composition root. Graded attempts flow into the mastery
// tracker, which the recommender reads on demand.
type Engine struct {
	cfg     *config.Config
	catalog *catalog.Catalog
	grader  *grader.Grader

	attempts *attempt.Service
	tracker  *mastery.Tracker
	backlog  *store.FeedBacklog
	reviews  *review.Service
	peers    *peerreview.Service
	aiReview bool

	notifier notify.Dispatcher
	async    *notify.Async
	redis    *notify.RedisDispatcher

	metrics *metrics.Metrics
	tracer  trace.Tracer
	log     *zap.Logger
	now     func() time.Time
}

type options struct {
	provider    llm.Provider
	providerSet bool
	metrics     *metrics.Metrics
	dispatchers []notify.Dispatcher
	now         func() time.Time
	rand        rand.Source
	masteryRepo mastery.Repo
}

// Option configures an Engine.
type Option func(*options)

// WithProvider replaces provider discovery. A nil provider disables AI
// review so every review request waits for a human.
func WithProvider(p llm.Provider) Option {
	return func(o *options) {
		o.provider = p
		o.providerSet = true
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithDispatcher adds an event sink next to the log and outbox sinks.
func WithDispatcher(d notify.Dispatcher) Option {
	return func(o *options) { o.dispatchers = append(o.dispatchers, d) }
}

// WithClock overrides the time source of the engine and attempt service.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithRand fixes question sampling and shuffling.
func WithRand(src rand.Source) Option {
	return func(o *options) { o.rand = src }
}

// WithMasteryRepo stores mastery records somewhere other than the store's
// own repository.
func WithMasteryRepo(r mastery.Repo) Option {
	return func(o *options) { o.masteryRepo = r }
}

// New builds an Engine over the catalog and store. The LLM provider is
// discovered from cfg.LLM unless WithProvider is given; when none is
// configured, AI review is disabled.
func New(ctx context.Context, cfg *config.Config, cat *catalog.Catalog, st *store.Store, log *zap.Logger, opts ...Option) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.masteryRepo == nil {
		o.masteryRepo = st.MasteryRepo()
	}

	e := &Engine{
		cfg:     cfg,
		catalog: cat,
		grader:  grader.New(cfg.GraderConfig()),
		tracker: mastery.NewTracker(o.masteryRepo, cfg.MasteryConfig(), log),
		backlog: st.FeedBacklog(),
		metrics: o.metrics,
		tracer:  otel.Tracer("github.com/abhisek/gradewise/internal/app"),
		log:     log.With(zap.String("component", "engine")),
		now:     o.now,
	}

	provider := o.provider
	if !o.providerSet {
		p, err := llm.NewProvider(ctx, cfg.LLM, llm.Deps{
			Events:  st.EventRepo(),
			Observe: e.metrics.ObserveLLMCall,
			Log:     log,
			Tracing: cfg.Tracing.Enabled,
		})
		switch {
		case errors.Is(err, llm.ErrNotConfigured):
			e.log.Info("no LLM provider configured, AI review disabled")
		case err != nil:
			return nil, fmt.Errorf("creating LLM provider: %w", err)
		default:
			provider = p
		}
	}
	var reviewer *review.AIReviewer
	if provider != nil {
		reviewer = review.NewAIReviewer(provider, cfg.AIReviewConfig())
		e.aiReview = true
		e.log.Info("AI review enabled", zap.String("model", provider.ModelID()))
	}

	sinks := notify.Multi{notify.NewLogDispatcher(log), notify.NewOutboxDispatcher(st.Outbox())}
	if cfg.Redis.Addr != "" {
		rd, err := notify.NewRedisDispatcher(ctx, notify.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
		})
		if err != nil {
			e.log.Warn("redis unavailable, events stay in the outbox", zap.Error(err))
		} else {
			e.redis = rd
			sinks = append(sinks, rd)
		}
	}
	sinks = append(sinks, o.dispatchers...)
	e.async = notify.NewAsync(sinks, 256, log, nil)
	e.notifier = e.async

	attemptOpts := []attempt.Option{attempt.WithListener(e), attempt.WithClock(o.now)}
	if o.rand != nil {
		attemptOpts = append(attemptOpts, attempt.WithRand(o.rand))
	}
	e.attempts = attempt.NewService(st.AttemptRepo(), cat, e.grader, cfg.AttemptConfig(), log, attemptOpts...)
	e.reviews = review.NewService(reviewer, cat, e.applyReview, cfg.ReviewConfig(), log,
		review.WithDropHook(e.metrics.ReviewDropped),
		review.WithManualFallback(e.announceManualReview))

	var src rand.Source
	if seed := cfg.PeerReview.Seed; seed != 0 {
		src = rand.NewPCG(uint64(seed), uint64(seed))
	}
	e.peers = peerreview.NewService(peerreview.NewAllocator(src), st.PeerReviewRepo(), cat, log)

	return e, nil
}

// Catalog returns the content the engine serves.
func (e *Engine) Catalog() *catalog.Catalog { return e.catalog }

// AIReviewEnabled reports whether review requests go to an LLM first.
func (e *Engine) AIReviewEnabled() bool { return e.aiReview }

// RunExpiry sweeps overdue attempts and replays failed mastery feeds every
// interval until ctx ends.
func (e *Engine) RunExpiry(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			e.sweep(ctx)
		}
	}
}

func (e *Engine) sweep(ctx context.Context) {
	n, err := e.attempts.ExpireDue(ctx)
	if err != nil {
		e.log.Warn("expiring overdue attempts", zap.Error(err))
	} else if n > 0 {
		e.log.Info("closed overdue attempts", zap.Int("count", n))
	}

	landed, err := e.ResyncMastery(ctx)
	if err != nil {
		e.log.Warn("replaying mastery feeds", zap.Error(err))
	}
	if landed > 0 {
		e.log.Info("replayed mastery feeds", zap.Int("count", landed))
	}
}

// Close drains queued reviews, then flushes pending events.
func (e *Engine) Close() {
	e.reviews.Close()
	e.async.Close()
	if e.redis != nil {
		_ = e.redis.Close()
	}
}

func (e *Engine) notify(ctx context.Context, kind notify.Kind, studentID, subject string, payload any) {
	ev, err := notify.NewEvent(kind, studentID, subject, payload)
	if err != nil {
		e.log.Warn("building event", zap.String("kind", string(kind)), zap.Error(err))
		return
	}
	if err := e.notifier.Dispatch(ctx, ev); err != nil {
		e.log.Warn("dispatching event", zap.String("kind", string(kind)), zap.Error(err))
	}
}

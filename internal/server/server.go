// Package server exposes the engine over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/abhisek/gradewise/internal/app"
	"github.com/abhisek/gradewise/internal/config"
	"github.com/abhisek/gradewise/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

// Server routes HTTP requests to the engine.
type Server struct {
	engine  *app.Engine
	metrics *metrics.Metrics
	router  *gin.Engine
	cfg     config.ServerConfig
	log     *zap.Logger
}

// Options carries the optional collaborators of a Server.
type Options struct {
	Metrics *metrics.Metrics
	// TraceService enables request spans under this service name.
	TraceService string
	Log          *zap.Logger
}

func New(eng *app.Engine, cfg config.ServerConfig, opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	s := &Server{
		engine:  eng,
		metrics: opts.Metrics,
		router:  gin.New(),
		cfg:     cfg,
		log:     log.With(zap.String("component", "http")),
	}

	s.router.Use(gin.Recovery(), s.requestLog())
	if len(cfg.CORSOrigins) > 0 {
		s.router.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CORSOrigins,
			AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders: []string{"Authorization", "Content-Type", "X-Requested-With"},
			MaxAge:       12 * time.Hour,
		}))
	}
	if opts.TraceService != "" {
		s.router.Use(otelgin.Middleware(opts.TraceService))
	}
	if s.metrics != nil {
		s.router.Use(s.metrics.Middleware())
	}
	s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", s.cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) routes() {
	r := s.router
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "aiReview": s.engine.AIReviewEnabled()})
	})
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	api := r.Group("/api/v1")
	api.POST("/grade", s.grade)

	api.POST("/quizzes/:quizID/attempts", s.startAttempt)
	api.GET("/attempts/:attemptID", s.getAttempt)
	api.PUT("/attempts/:attemptID/answers/:questionID", s.submitAnswer)
	api.POST("/attempts/:attemptID/submit", s.submitAttempt)
	api.POST("/attempts/:attemptID/reviews/:reviewID", s.resolveReview)

	api.POST("/interactions", s.recordInteraction)
	students := api.Group("/students/:studentID")
	students.GET("/attempts", s.attemptHistory)
	students.GET("/mastery", s.mastery)
	students.PUT("/mastery/:skillKey", s.adjustMastery)
	students.DELETE("/mastery/:skillKey", s.resetMastery)
	students.GET("/review-queue", s.reviewQueue)
	students.GET("/recommendation", s.recommend)

	api.GET("/reviewers/:reviewerID/peer-reviews", s.pendingReviews)
	peer := api.Group("/peer-reviews")
	peer.POST("/assignments", s.assignReviews)
	peer.POST("/:submissionID/reviews", s.submitPeerReview)
	peer.GET("/:submissionID/summary", s.peerReviewSummary)
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("error", c.Errors.String()))
		}
		switch {
		case status >= http.StatusInternalServerError:
			s.log.Error("request", fields...)
		case status >= http.StatusBadRequest:
			s.log.Info("request", fields...)
		default:
			s.log.Debug("request", fields...)
		}
	}
}

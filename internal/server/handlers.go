package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/abhisek/gradewise/internal/attempt"
	"github.com/abhisek/gradewise/internal/mastery"
	"github.com/abhisek/gradewise/internal/peerreview"
)

type gradeRequest struct {
	QuestionID string          `json:"questionId" binding:"required"`
	Answer     json.RawMessage `json:"answer" binding:"required"`
}

func (s *Server) grade(c *gin.Context) {
	var req gradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := s.engine.Grade(c.Request.Context(), req.QuestionID, req.Answer)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type startAttemptRequest struct {
	StudentID string `json:"studentId" binding:"required"`
}

func (s *Server) startAttempt(c *gin.Context) {
	var req startAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	a, err := s.engine.StartAttempt(c.Request.Context(), c.Param("quizID"), req.StudentID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (s *Server) getAttempt(c *gin.Context) {
	a, err := s.engine.GetAttempt(c.Request.Context(), c.Param("attemptID"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

type answerRequest struct {
	Answer           json.RawMessage `json:"answer"`
	TimeSpentSeconds int             `json:"timeSpentSeconds" binding:"gte=0"`
	Flagged          bool            `json:"flagged"`
}

func (s *Server) submitAnswer(c *gin.Context) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	a, err := s.engine.SubmitAnswer(c.Request.Context(), c.Param("attemptID"), attempt.AnswerInput{
		QuestionID:       c.Param("questionID"),
		Payload:          req.Answer,
		TimeSpentSeconds: req.TimeSpentSeconds,
		Flagged:          req.Flagged,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) submitAttempt(c *gin.Context) {
	a, err := s.engine.SubmitAttempt(c.Request.Context(), c.Param("attemptID"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

type resolveRequest struct {
	PointsEarned float64 `json:"pointsEarned" binding:"gte=0"`
	Correct      *bool   `json:"correct"`
	Feedback     string  `json:"feedback"`
	Reviewer     string  `json:"reviewer" binding:"required"`
}

func (s *Server) resolveReview(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	a, err := s.engine.ResolveReview(c.Request.Context(), c.Param("attemptID"), c.Param("reviewID"), attempt.Resolution{
		PointsEarned: req.PointsEarned,
		Correct:      req.Correct,
		Feedback:     req.Feedback,
		Reviewer:     req.Reviewer,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) attemptHistory(c *gin.Context) {
	quizID := c.Query("quiz")
	if quizID == "" {
		badRequest(c, errors.New("quiz query parameter is required"))
		return
	}
	history, err := s.engine.AttemptHistory(c.Request.Context(), quizID, c.Param("studentID"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attempts": history})
}

// recordInteraction answers 201 for a new interaction and 200 with the
// unchanged record for a replayed one.
func (s *Server) recordInteraction(c *gin.Context) {
	var in mastery.Interaction
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	rec, err := s.engine.RecordInteraction(c.Request.Context(), in)
	switch {
	case errors.Is(err, mastery.ErrDuplicateInteraction):
		c.JSON(http.StatusOK, gin.H{"duplicate": true, "record": rec})
	case err != nil:
		s.fail(c, err)
	default:
		c.JSON(http.StatusCreated, gin.H{"duplicate": false, "record": rec})
	}
}

// mastery returns one record when ?skill= is given, else every record
// with summary stats.
func (s *Server) mastery(c *gin.Context) {
	ctx := c.Request.Context()
	studentID := c.Param("studentID")

	if skill := c.Query("skill"); skill != "" {
		rec, err := s.engine.Mastery(ctx, studentID, skill)
		if err != nil {
			s.fail(c, err)
			return
		}
		if rec == nil {
			notFound(c, "no mastery record for "+skill)
			return
		}
		c.JSON(http.StatusOK, rec)
		return
	}

	records, err := s.engine.MasteryRecords(ctx, studentID)
	if err != nil {
		s.fail(c, err)
		return
	}
	stats, err := s.engine.MasteryStats(ctx, studentID)
	if err != nil {
		s.fail(c, err)
		return
	}
	if records == nil {
		records = []*mastery.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"studentId": studentID, "records": records, "stats": stats})
}

type adjustRequest struct {
	Level  *float64 `json:"level" binding:"required"`
	Reason string   `json:"reason"`
}

func (s *Server) adjustMastery(c *gin.Context) {
	var req adjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rec, err := s.engine.AdjustMastery(c.Request.Context(), c.Param("studentID"), c.Param("skillKey"), *req.Level, req.Reason)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) resetMastery(c *gin.Context) {
	rec, err := s.engine.ResetMastery(c.Request.Context(), c.Param("studentID"), c.Param("skillKey"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

type queueItem struct {
	SkillKey     string    `json:"skillKey"`
	NextReviewAt time.Time `json:"nextReviewAt"`
	OverdueDays  float64   `json:"overdueDays"`
}

func (s *Server) reviewQueue(c *gin.Context) {
	items, err := s.engine.ReviewQueue(c.Request.Context(), c.Param("studentID"))
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]queueItem, len(items))
	for i, it := range items {
		out[i] = queueItem{SkillKey: it.Key, NextReviewAt: it.NextReview, OverdueDays: it.OverdueDays}
	}
	c.JSON(http.StatusOK, gin.H{"due": out})
}

func (s *Server) recommend(c *gin.Context) {
	rec, err := s.engine.Recommend(c.Request.Context(), c.Param("studentID"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

type assignRequest struct {
	CohortID               string   `json:"cohortId" binding:"required"`
	SubmissionIDs          []string `json:"submissionIds" binding:"required,min=1"`
	ReviewersPerSubmission int      `json:"reviewersPerSubmission" binding:"required,gte=1"`
	AllowSelfReview        bool     `json:"allowSelfReview"`
	Anonymous              bool     `json:"anonymous"`
}

func (s *Server) assignReviews(c *gin.Context) {
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	as, err := s.engine.AssignReviews(c.Request.Context(), req.CohortID, req.SubmissionIDs, req.ReviewersPerSubmission,
		peerreview.Options{AllowSelfReview: req.AllowSelfReview, Anonymous: req.Anonymous})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"assignments": as})
}

func (s *Server) pendingReviews(c *gin.Context) {
	as, err := s.engine.PendingPeerReviews(c.Request.Context(), c.Param("reviewerID"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if as == nil {
		as = []peerreview.Assignment{}
	}
	c.JSON(http.StatusOK, gin.H{"assignments": as})
}

type peerReviewRequest struct {
	RubricID   string             `json:"rubricId" binding:"required"`
	ReviewerID string             `json:"reviewerId" binding:"required"`
	Scores     map[string]float64 `json:"scores" binding:"required"`
	Comment    string             `json:"comment"`
}

func (s *Server) submitPeerReview(c *gin.Context) {
	var req peerReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	err := s.engine.SubmitPeerReview(c.Request.Context(), req.RubricID, peerreview.Review{
		SubmissionID: c.Param("submissionID"),
		ReviewerID:   req.ReviewerID,
		Scores:       req.Scores,
		Comment:      req.Comment,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) peerReviewSummary(c *gin.Context) {
	rubricID := c.Query("rubric")
	if rubricID == "" {
		badRequest(c, errors.New("rubric query parameter is required"))
		return
	}
	sum, err := s.engine.PeerReviewSummary(c.Request.Context(), rubricID, c.Param("submissionID"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

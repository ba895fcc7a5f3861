package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/abhisek/gradewise/internal/attempt"
	"github.com/abhisek/gradewise/internal/catalog"
	"github.com/abhisek/gradewise/internal/mastery"
	"github.com/abhisek/gradewise/internal/peerreview"
	"github.com/abhisek/gradewise/internal/question"
	"github.com/abhisek/gradewise/internal/recommend"
	"github.com/abhisek/gradewise/internal/rubric"
	"github.com/abhisek/gradewise/internal/store"
)

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

var statusByError = []struct {
	err    error
	status int
}{
	{question.ErrMalformedSubmission, http.StatusBadRequest},
	{mastery.ErrInvalidInteraction, http.StatusBadRequest},
	{mastery.ErrLevelOutOfRange, http.StatusBadRequest},
	{rubric.ErrUnknownCriterion, http.StatusBadRequest},
	{attempt.ErrQuestionNotPresented, http.StatusBadRequest},

	{attempt.ErrQuizNotAvailable, http.StatusForbidden},

	{catalog.ErrNotFound, http.StatusNotFound},
	{store.ErrNotFound, http.StatusNotFound},
	{attempt.ErrNotFound, http.StatusNotFound},
	{attempt.ErrReviewNotFound, http.StatusNotFound},
	{peerreview.ErrNotAssigned, http.StatusNotFound},

	{attempt.ErrAttemptLimitExceeded, http.StatusConflict},
	{attempt.ErrQuestionLocked, http.StatusConflict},
	{attempt.ErrNotInProgress, http.StatusConflict},
	{attempt.ErrReviewResolved, http.StatusConflict},
	{attempt.ErrInvalidTransition, http.StatusConflict},
	{peerreview.ErrAlreadyAssigned, http.StatusConflict},

	{peerreview.ErrInsufficientReviewers, http.StatusUnprocessableEntity},
	{peerreview.ErrUnbalanced, http.StatusUnprocessableEntity},
	{recommend.ErrNoModules, http.StatusUnprocessableEntity},
}

// statusFor maps domain errors onto HTTP statuses. Anything unrecognized
// is an internal error.
func statusFor(err error) int {
	for _, m := range statusByError {
		if errors.Is(err, m.err) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	_ = c.Error(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	c.AbortWithStatusJSON(status, errorBody{Code: status, Message: msg})
}

func badRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Code: http.StatusBadRequest, Message: err.Error()})
}

func notFound(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusNotFound, errorBody{Code: http.StatusNotFound, Message: msg})
}

package attempt

import (
	"errors"
	"fmt"
)

var (
	ErrAttemptLimitExceeded = errors.New("attempt limit exceeded")
	ErrQuizNotAvailable     = errors.New("quiz not available")
	ErrQuestionLocked       = errors.New("question locked")
	ErrNotInProgress        = errors.New("attempt not in progress")
	ErrNotFound             = errors.New("attempt not found")
	ErrQuestionNotPresented = errors.New("question not presented in attempt")
	ErrReviewNotFound       = errors.New("review not found")
	ErrReviewResolved       = errors.New("review already resolved")
	ErrInvalidTransition    = errors.New("invalid status transition")
)

// LimitError reports how many attempts were used against the quiz maximum.
type LimitError struct {
	QuizID string
	Max    int
	Used   int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("quiz %s: %d of %d attempts used", e.QuizID, e.Used, e.Max)
}

func (e *LimitError) Unwrap() error { return ErrAttemptLimitExceeded }

package app

import (
	"time"

	"quiz-attempt-service/internal/domain"
)

// RemainingSeconds is the advisory countdown: nil for untimed quizzes, never negative.
// Submission re-checks the deadline on its own.
func RemainingSeconds(attempt domain.Attempt, quiz domain.Quiz, now time.Time) *int {
	limit, ok := quiz.TimeLimit()
	if !ok {
		return nil
	}
	remaining := int(limit/time.Second) - elapsedSeconds(attempt.StartedAt, now)
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}

func deadlinePassed(attempt domain.Attempt, quiz domain.Quiz, now time.Time) bool {
	limit, ok := quiz.TimeLimit()
	if !ok {
		return false
	}
	return elapsedSeconds(attempt.StartedAt, now) > int(limit/time.Second)
}

// elapsedSeconds counts whole seconds since start; clock skew never yields a negative value.
func elapsedSeconds(startedAt, now time.Time) int {
	elapsed := now.Sub(startedAt)
	if elapsed < 0 {
		return 0
	}
	return int(elapsed / time.Second)
}

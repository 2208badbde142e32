package domain

import "errors"

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrAttemptNotFound is returned for an unknown attempt id or when no in-progress attempt exists.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrNotAllowed means retakes are disabled and the user already submitted this quiz.
	ErrNotAllowed = errors.New("user is not allowed to attempt this quiz")
	// ErrQuestionNotInQuiz indicates a question id outside the attempt's quiz.
	ErrQuestionNotInQuiz = errors.New("question does not belong to this quiz")
	// ErrOptionNotInQuestion indicates an option id outside the answered question.
	ErrOptionNotInQuestion = errors.New("option does not belong to this question")
	// ErrAttemptAlreadySubmitted is returned for writes against a submitted attempt.
	ErrAttemptAlreadySubmitted = errors.New("attempt already submitted")
	// ErrTimeLimitExceeded is returned when the authoritative deadline has passed.
	ErrTimeLimitExceeded = errors.New("time limit exceeded")
	// ErrNotAttemptOwner is returned when a user acts on someone else's attempt.
	ErrNotAttemptOwner = errors.New("attempt belongs to another user")
	// ErrAttemptNotSubmitted is returned when results are requested before grading.
	ErrAttemptNotSubmitted = errors.New("attempt has not been submitted")
	// ErrAttemptInProgress signals that the open-attempt slot for (user, quiz) is taken.
	ErrAttemptInProgress = errors.New("an attempt is already in progress")
)

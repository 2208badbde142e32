package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"quiz-attempt-service/internal/domain"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// writeServiceError maps domain failures onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("request failed: %v", err)
		message = "internal error"
	}
	writeError(w, status, code, message)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrQuizNotFound):
		return http.StatusNotFound, "quiz_not_found"
	case errors.Is(err, domain.ErrAttemptNotFound):
		return http.StatusNotFound, "attempt_not_found"
	case errors.Is(err, domain.ErrNotAllowed):
		return http.StatusForbidden, "not_allowed"
	case errors.Is(err, domain.ErrNotAttemptOwner):
		return http.StatusForbidden, "not_attempt_owner"
	case errors.Is(err, domain.ErrQuestionNotInQuiz):
		return http.StatusUnprocessableEntity, "question_not_in_quiz"
	case errors.Is(err, domain.ErrOptionNotInQuestion):
		return http.StatusUnprocessableEntity, "option_not_in_question"
	case errors.Is(err, domain.ErrAttemptAlreadySubmitted):
		return http.StatusConflict, "attempt_already_submitted"
	case errors.Is(err, domain.ErrTimeLimitExceeded):
		return http.StatusConflict, "time_limit_exceeded"
	case errors.Is(err, domain.ErrAttemptNotSubmitted):
		return http.StatusConflict, "attempt_not_submitted"
	case errors.Is(err, domain.ErrAttemptInProgress):
		return http.StatusConflict, "attempt_in_progress"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

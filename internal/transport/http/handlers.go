package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

// AttemptHandler exposes the attempt lifecycle over REST.
type AttemptHandler struct {
	service  *app.AttemptService
	validate *validator.Validate
}

func NewAttemptHandler(service *app.AttemptService) *AttemptHandler {
	return &AttemptHandler{service: service, validate: validator.New()}
}

func (h *AttemptHandler) Eligibility(w http.ResponseWriter, r *http.Request) {
	quizID := mux.Vars(r)["quizID"]
	allowed, err := h.service.CanAttempt(r.Context(), userFromContext(r.Context()), quizID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eligibilityResponse{QuizID: quizID, Allowed: allowed})
}

func (h *AttemptHandler) Start(w http.ResponseWriter, r *http.Request) {
	attempt, err := h.service.StartOrResume(r.Context(), userFromContext(r.Context()), mux.Vars(r)["quizID"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAttemptResponse(attempt))
}

func (h *AttemptHandler) Current(w http.ResponseWriter, r *http.Request) {
	attempt, found, err := h.service.GetInProgressAttempt(r.Context(), userFromContext(r.Context()), mux.Vars(r)["quizID"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !found {
		writeServiceError(w, domain.ErrAttemptNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toAttemptResponse(attempt))
}

// History lists the caller's submitted attempts for a quiz, newest first.
func (h *AttemptHandler) History(w http.ResponseWriter, r *http.Request) {
	attempts, err := h.service.History(r.Context(), userFromContext(r.Context()), mux.Vars(r)["quizID"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	resp := make([]attemptResponse, 0, len(attempts))
	for _, attempt := range attempts {
		resp = append(resp, toAttemptResponse(attempt))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AttemptHandler) Preview(w http.ResponseWriter, r *http.Request) {
	questions, err := h.service.Prepare(r.Context(), mux.Vars(r)["quizID"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, questions)
}

func (h *AttemptHandler) Questions(w http.ResponseWriter, r *http.Request) {
	questions, err := h.service.QuestionsForAttempt(r.Context(), userFromContext(r.Context()), mux.Vars(r)["attemptID"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, questions)
}

func (h *AttemptHandler) Answers(w http.ResponseWriter, r *http.Request) {
	answers, err := h.service.Answers(r.Context(), userFromContext(r.Context()), mux.Vars(r)["attemptID"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answers)
}

func (h *AttemptHandler) RecordAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if !h.decode(w, r, &req) {
		return
	}
	vars := mux.Vars(r)
	err := h.service.RecordAnswer(r.Context(), userFromContext(r.Context()), vars["attemptID"], vars["questionID"], req.OptionID, req.TimeSpentSeconds)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AttemptHandler) Skip(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.service.SkipQuestion(r.Context(), userFromContext(r.Context()), vars["attemptID"], vars["questionID"]); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AttemptHandler) Remaining(w http.ResponseWriter, r *http.Request) {
	attemptID := mux.Vars(r)["attemptID"]
	remaining, err := h.service.RemainingSeconds(r.Context(), userFromContext(r.Context()), attemptID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, remainingResponse{AttemptID: attemptID, RemainingSeconds: remaining})
}

func (h *AttemptHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !h.decode(w, r, &req) {
		return
	}
	mode := req.Mode
	if mode == "" {
		mode = domain.SubmitManual
	}
	summary, err := h.service.Submit(r.Context(), userFromContext(r.Context()), mux.Vars(r)["attemptID"], mode)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryResponse(summary))
}

func (h *AttemptHandler) Result(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Result(r.Context(), userFromContext(r.Context()), mux.Vars(r)["attemptID"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResultResponse(result))
}

func (h *AttemptHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	// An empty body decodes to the zero request; validation decides whether that is enough.
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", verrs[0].Field()+" failed "+verrs[0].Tag())
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return false
	}
	return true
}

package http

import (
	"time"

	"quiz-attempt-service/internal/domain"
)

type answerRequest struct {
	OptionID         string `json:"optionId" validate:"required"`
	TimeSpentSeconds *int   `json:"timeSpentSeconds" validate:"omitempty,min=0"`
}

type submitRequest struct {
	Mode domain.SubmitMode `json:"mode" validate:"omitempty,oneof=manual auto"`
}

type eligibilityResponse struct {
	QuizID  string `json:"quizId"`
	Allowed bool   `json:"allowed"`
}

type attemptResponse struct {
	ID               string     `json:"id"`
	QuizID           string     `json:"quizId"`
	StartedAt        time.Time  `json:"startedAt"`
	SubmittedAt      *time.Time `json:"submittedAt,omitempty"`
	Score            *string    `json:"score,omitempty"`
	CorrectCount     *int       `json:"correctCount,omitempty"`
	WrongCount       *int       `json:"wrongCount,omitempty"`
	TimeTakenSeconds *int       `json:"timeTakenSeconds,omitempty"`
}

type remainingResponse struct {
	AttemptID        string `json:"attemptId"`
	RemainingSeconds *int   `json:"remainingSeconds"`
}

type summaryResponse struct {
	AttemptID        string `json:"attemptId"`
	Score            string `json:"score"`
	CorrectCount     int    `json:"correctCount"`
	WrongCount       int    `json:"wrongCount"`
	TimeTakenSeconds int    `json:"timeTakenSeconds"`
}

type resultQuestion struct {
	ID               string          `json:"id"`
	Text             string          `json:"text"`
	Explanation      string          `json:"explanation,omitempty"`
	Options          []domain.Option `json:"options"`
	SelectedOptionID *string         `json:"selectedOptionId"`
	IsCorrect        *bool           `json:"isCorrect"`
}

type resultResponse struct {
	Attempt   attemptResponse  `json:"attempt"`
	QuizTitle string           `json:"quizTitle"`
	Questions []resultQuestion `json:"questions"`
}

func toAttemptResponse(a domain.Attempt) attemptResponse {
	resp := attemptResponse{
		ID:               a.ID,
		QuizID:           a.QuizID,
		StartedAt:        a.StartedAt,
		SubmittedAt:      a.SubmittedAt,
		CorrectCount:     a.CorrectCount,
		WrongCount:       a.WrongCount,
		TimeTakenSeconds: a.TimeTakenSeconds,
	}
	if a.Score.Valid {
		score := a.Score.Decimal.StringFixed(2)
		resp.Score = &score
	}
	return resp
}

func toSummaryResponse(s domain.GradeSummary) summaryResponse {
	return summaryResponse{
		AttemptID:        s.AttemptID,
		Score:            s.Score.StringFixed(2),
		CorrectCount:     s.CorrectCount,
		WrongCount:       s.WrongCount,
		TimeTakenSeconds: s.TimeTakenSeconds,
	}
}

// toResultResponse lists every quiz question in content order with the recorded answer,
// if any. Unanswered questions carry nil selection and correctness.
func toResultResponse(result domain.AttemptResult) resultResponse {
	byQuestion := make(map[string]domain.AttemptAnswer, len(result.Answers))
	for _, answer := range result.Answers {
		byQuestion[answer.QuestionID] = answer
	}
	questions := make([]resultQuestion, 0, len(result.Quiz.Questions))
	for _, question := range result.Quiz.Questions {
		rq := resultQuestion{
			ID:          question.ID,
			Text:        question.Text,
			Explanation: question.Explanation,
			Options:     question.Options,
		}
		if answer, ok := byQuestion[question.ID]; ok {
			rq.SelectedOptionID = answer.SelectedOptionID
			rq.IsCorrect = answer.IsCorrect
		}
		questions = append(questions, rq)
	}
	return resultResponse{
		Attempt:   toAttemptResponse(result.Attempt),
		QuizTitle: result.Quiz.Title,
		Questions: questions,
	}
}

package app

import (
	"time"

	"github.com/shopspring/decimal"
	"quiz-attempt-service/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// gradeAttempt validates the authoritative deadline and grades every recorded answer.
// Only rows that exist are graded; a question the user never touched counts neither way.
// Past the limit a manual submission fails, an auto submission is accepted within grace
// and a deadline submission is always accepted; accepted late submissions record the limit.
func gradeAttempt(quiz domain.Quiz, attempt domain.Attempt, answers []domain.AttemptAnswer, now time.Time, mode domain.SubmitMode, grace time.Duration) (domain.Grading, error) {
	if attempt.Submitted() {
		return domain.Grading{}, domain.ErrAttemptAlreadySubmitted
	}

	timeTaken := elapsedSeconds(attempt.StartedAt, now)
	if limit, ok := quiz.TimeLimit(); ok {
		limitSeconds := int(limit / time.Second)
		if timeTaken > limitSeconds {
			switch {
			case mode == domain.SubmitDeadline:
			case mode == domain.SubmitAuto && timeTaken <= int((limit+grace)/time.Second):
			default:
				return domain.Grading{}, domain.ErrTimeLimitExceeded
			}
			timeTaken = limitSeconds
		}
	}

	correctOptions := make(map[string]string, len(quiz.Questions))
	for _, question := range quiz.Questions {
		if optionID, ok := question.CorrectOptionID(); ok {
			correctOptions[question.ID] = optionID
		}
	}

	grading := domain.Grading{
		SubmittedAt:      now,
		TimeTakenSeconds: timeTaken,
		Correctness:      make(map[string]bool, len(answers)),
	}
	for _, answer := range answers {
		correct := false
		if answer.SelectedOptionID != nil {
			optionID, ok := correctOptions[answer.QuestionID]
			correct = ok && optionID == *answer.SelectedOptionID
		}
		grading.Correctness[answer.ID] = correct
		if correct {
			grading.CorrectCount++
		}
	}
	grading.WrongCount = len(answers) - grading.CorrectCount
	grading.Score = scorePercent(grading.CorrectCount, len(answers))
	return grading, nil
}

// scorePercent is correct/total*100 rounded half away from zero to two places.
func scorePercent(correct, total int) decimal.Decimal {
	if total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(correct)).Mul(hundred).DivRound(decimal.NewFromInt(int64(total)), 2)
}

// ApplyGrading copies a grading onto an attempt and its answers.
// Stores share it so every backend persists the same fields.
func ApplyGrading(attempt domain.Attempt, answers []domain.AttemptAnswer, grading domain.Grading) (domain.Attempt, []domain.AttemptAnswer) {
	submittedAt := grading.SubmittedAt
	correct := grading.CorrectCount
	wrong := grading.WrongCount
	timeTaken := grading.TimeTakenSeconds

	attempt.SubmittedAt = &submittedAt
	attempt.Score = decimal.NewNullDecimal(grading.Score)
	attempt.CorrectCount = &correct
	attempt.WrongCount = &wrong
	attempt.TimeTakenSeconds = &timeTaken

	graded := make([]domain.AttemptAnswer, len(answers))
	for i, answer := range answers {
		isCorrect := grading.Correctness[answer.ID]
		answer.IsCorrect = &isCorrect
		graded[i] = answer
	}
	return attempt, graded
}

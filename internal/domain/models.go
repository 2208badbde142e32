package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Difficulty tags a question.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Option represents a possible answer for a question.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
	Order   int    `json:"order"`
}

// Question models an MCQ question. Content curation guarantees a single correct option.
type Question struct {
	ID          string     `json:"id"`
	Text        string     `json:"text"`
	Explanation string     `json:"explanation,omitempty"`
	Difficulty  Difficulty `json:"difficulty"`
	ImagePath   string     `json:"imagePath,omitempty"`
	Options     []Option   `json:"options"`
}

// Quiz is a collection of questions plus the attempt policy.
type Quiz struct {
	ID                    string     `json:"id"`
	Title                 string     `json:"title"`
	Description           string     `json:"description,omitempty"`
	QuestionCount         int        `json:"questionCount"`
	TimeLimitMinutes      *int       `json:"timeLimitMinutes,omitempty"`
	ShuffleQuestions      bool       `json:"shuffleQuestions"`
	ShuffleAnswers        bool       `json:"shuffleAnswers"`
	AllowMultipleAttempts bool       `json:"allowMultipleAttempts"`
	Questions             []Question `json:"questions"`
}

// TimeLimit returns the limit as a duration and whether the quiz is timed.
func (q Quiz) TimeLimit() (time.Duration, bool) {
	if q.TimeLimitMinutes == nil {
		return 0, false
	}
	return time.Duration(*q.TimeLimitMinutes) * time.Minute, true
}

// FindQuestion looks up a question by id.
func (q Quiz) FindQuestion(questionID string) (Question, bool) {
	for _, question := range q.Questions {
		if question.ID == questionID {
			return question, true
		}
	}
	return Question{}, false
}

// HasOption reports whether optionID belongs to the question.
func (q Question) HasOption(optionID string) bool {
	for _, opt := range q.Options {
		if opt.ID == optionID {
			return true
		}
	}
	return false
}

// CorrectOptionID returns the first option flagged correct.
func (q Question) CorrectOptionID() (string, bool) {
	for _, opt := range q.Options {
		if opt.Correct {
			return opt.ID, true
		}
	}
	return "", false
}

// ContentProblems lists curation faults that make grading ambiguous: a question without
// options, without exactly one correct option, or reusing an id.
func (q Quiz) ContentProblems() []string {
	var problems []string
	seen := make(map[string]bool)
	for _, question := range q.Questions {
		if seen[question.ID] {
			problems = append(problems, fmt.Sprintf("duplicate question id %s", question.ID))
		}
		seen[question.ID] = true
		if len(question.Options) == 0 {
			problems = append(problems, fmt.Sprintf("question %s has no options", question.ID))
			continue
		}
		correct := 0
		for _, opt := range question.Options {
			if opt.Correct {
				correct++
			}
		}
		if correct != 1 {
			problems = append(problems, fmt.Sprintf("question %s has %d correct options", question.ID, correct))
		}
	}
	return problems
}

// PublicOption is an option as shown to a learner: no correctness flag.
type PublicOption struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Order int    `json:"order"`
}

// PresentedQuestion is a question as shown to a learner during an attempt.
type PresentedQuestion struct {
	ID         string         `json:"id"`
	Text       string         `json:"text"`
	Difficulty Difficulty     `json:"difficulty"`
	ImagePath  string         `json:"imagePath,omitempty"`
	Options    []PublicOption `json:"options"`
}

// Attempt is one user taking one quiz. Grading fields stay nil until submission.
type Attempt struct {
	ID               string              `json:"id"`
	UserID           string              `json:"userId"`
	QuizID           string              `json:"quizId"`
	StartedAt        time.Time           `json:"startedAt"`
	SubmittedAt      *time.Time          `json:"submittedAt"`
	Score            decimal.NullDecimal `json:"score"`
	CorrectCount     *int                `json:"correctCount"`
	WrongCount       *int                `json:"wrongCount"`
	TimeTakenSeconds *int                `json:"timeTakenSeconds"`
}

// Submitted reports whether the attempt reached its terminal state.
func (a Attempt) Submitted() bool {
	return a.SubmittedAt != nil
}

// AttemptAnswer is the recorded selection for one question within one attempt.
// A nil SelectedOptionID is a skipped question.
type AttemptAnswer struct {
	ID               string    `json:"id"`
	AttemptID        string    `json:"attemptId"`
	QuestionID       string    `json:"questionId"`
	SelectedOptionID *string   `json:"selectedOptionId"`
	IsCorrect        *bool     `json:"isCorrect"`
	TimeSpentSeconds *int      `json:"timeSpentSeconds,omitempty"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// AnswerSet maps question id to selected option id for an in-progress attempt.
// A missing key means the question is unanswered; an empty value means it was skipped.
type AnswerSet map[string]string

// Selected returns the option chosen for a question and whether the question was answered.
func (s AnswerSet) Selected(questionID string) (string, bool) {
	optionID, ok := s[questionID]
	if !ok || optionID == "" {
		return "", false
	}
	return optionID, true
}

// Grading is the outcome the scoring engine persists for an attempt.
type Grading struct {
	SubmittedAt      time.Time
	TimeTakenSeconds int
	Score            decimal.Decimal
	CorrectCount     int
	WrongCount       int
	// Correctness holds the graded flag for every answer, keyed by answer id.
	Correctness map[string]bool
}

// GradeSummary is returned to the caller of a submission.
type GradeSummary struct {
	AttemptID        string          `json:"attemptId"`
	Score            decimal.Decimal `json:"score"`
	CorrectCount     int             `json:"correctCount"`
	WrongCount       int             `json:"wrongCount"`
	TimeTakenSeconds int             `json:"timeTakenSeconds"`
}

// SubmitMode distinguishes a learner's submission from a timer-driven one.
type SubmitMode string

const (
	SubmitManual SubmitMode = "manual"
	// SubmitAuto is a client timer firing; it is honoured only shortly after the deadline.
	SubmitAuto SubmitMode = "auto"
	// SubmitDeadline is the server's own expiry of an attempt and is accepted at any delay.
	SubmitDeadline SubmitMode = "deadline"
)

// AttemptResult is the owner's view of a submitted attempt.
type AttemptResult struct {
	Attempt Attempt         `json:"attempt"`
	Quiz    Quiz            `json:"quiz"`
	Answers []AttemptAnswer `json:"answers"`
}

package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"quiz-attempt-service/internal/domain"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// GradeFunc computes the grading of an attempt from its locked state and recorded answers.
// Returning an error aborts the finalization without any mutation.
type GradeFunc func(attempt domain.Attempt, answers []domain.AttemptAnswer) (domain.Grading, error)

// AttemptRepository persists attempts and their answers.
//
// Implementations must guarantee:
//   - CreateAttempt fails with domain.ErrAttemptInProgress when (user, quiz) already has an open attempt.
//   - UpsertAnswer is keyed by (attempt, question) and fails with domain.ErrAttemptAlreadySubmitted
//     once the attempt is submitted, checked atomically with the write.
//   - Finalize runs check, grade and write as one atomic unit.
//   - Without allowRetake, CreateAttempt and Finalize fail with domain.ErrNotAllowed when
//     (user, quiz) already has a submitted attempt, checked atomically with the write.
type AttemptRepository interface {
	HasSubmittedAttempt(ctx context.Context, userID, quizID string) (bool, error)
	FindInProgress(ctx context.Context, userID, quizID string) (domain.Attempt, error)
	CreateAttempt(ctx context.Context, attempt domain.Attempt, allowRetake bool) error
	GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error)
	ListAnswers(ctx context.Context, attemptID string) ([]domain.AttemptAnswer, error)
	// ListSubmitted returns the submitted attempts for (user, quiz), newest first.
	ListSubmitted(ctx context.Context, userID, quizID string) ([]domain.Attempt, error)
	UpsertAnswer(ctx context.Context, answer domain.AttemptAnswer) error
	Finalize(ctx context.Context, attemptID string, allowRetake bool, grade GradeFunc) (domain.Attempt, error)
}

// DefaultAutoSubmitGrace bounds how late a client-driven auto submission may arrive.
const DefaultAutoSubmitGrace = 30 * time.Second

// startRetries bounds how often StartOrResume re-reads after losing the open slot.
const startRetries = 3

// Options tunes an AttemptService. Zero values select production defaults.
type Options struct {
	Now   func() time.Time
	NewID func() string
	// ReshuffleOnEachCall re-randomizes the presented order on every call
	// instead of fixing it for the lifetime of an attempt.
	ReshuffleOnEachCall bool
	// AutoSubmitGrace is how long past the limit SubmitAuto is still honoured.
	// Zero selects DefaultAutoSubmitGrace.
	AutoSubmitGrace time.Duration
}

// AttemptService contains the attempt lifecycle and scoring use cases.
type AttemptService struct {
	attempts  AttemptRepository
	quizzes   QuizRepository
	now       func() time.Time
	newID     func() string
	reshuffle bool
	grace     time.Duration
}

func NewAttemptService(attempts AttemptRepository, quizzes QuizRepository, opts Options) *AttemptService {
	s := &AttemptService{
		attempts:  attempts,
		quizzes:   quizzes,
		now:       opts.Now,
		newID:     opts.NewID,
		reshuffle: opts.ReshuffleOnEachCall,
		grace:     opts.AutoSubmitGrace,
	}
	if s.grace <= 0 {
		s.grace = DefaultAutoSubmitGrace
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// CanAttempt reports whether the user may start or continue the quiz.
func (s *AttemptService) CanAttempt(ctx context.Context, userID, quizID string) (bool, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return false, err
	}
	return s.canAttempt(ctx, userID, quiz)
}

func (s *AttemptService) canAttempt(ctx context.Context, userID string, quiz domain.Quiz) (bool, error) {
	if quiz.AllowMultipleAttempts {
		return true, nil
	}
	submitted, err := s.attempts.HasSubmittedAttempt(ctx, userID, quiz.ID)
	if err != nil {
		return false, err
	}
	return !submitted, nil
}

// StartOrResume returns the user's open attempt for the quiz, creating one if none exists.
func (s *AttemptService) StartOrResume(ctx context.Context, userID, quizID string) (domain.Attempt, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Attempt{}, err
	}
	allowed, err := s.canAttempt(ctx, userID, quiz)
	if err != nil {
		return domain.Attempt{}, err
	}
	if !allowed {
		return domain.Attempt{}, domain.ErrNotAllowed
	}

	// The store re-checks eligibility atomically, so a submission landing between the
	// check above and the create below cannot open a second attempt.
	for i := 0; i < startRetries; i++ {
		existing, found, err := s.GetInProgressAttempt(ctx, userID, quizID)
		if err != nil {
			return domain.Attempt{}, err
		}
		if found {
			return existing, nil
		}

		attempt := domain.Attempt{
			ID:        s.newID(),
			UserID:    userID,
			QuizID:    quiz.ID,
			StartedAt: s.now(),
		}
		err = s.attempts.CreateAttempt(ctx, attempt, quiz.AllowMultipleAttempts)
		if errors.Is(err, domain.ErrAttemptInProgress) {
			// Lost the race for the open slot; pick up the winner's attempt.
			continue
		}
		if err != nil {
			return domain.Attempt{}, err
		}
		log.Printf("attempt %s started: user=%s quiz=%s", attempt.ID, userID, quiz.ID)
		return attempt, nil
	}
	return domain.Attempt{}, domain.ErrAttemptInProgress
}

// GetInProgressAttempt returns the open attempt for (user, quiz), if any.
func (s *AttemptService) GetInProgressAttempt(ctx context.Context, userID, quizID string) (domain.Attempt, bool, error) {
	attempt, err := s.attempts.FindInProgress(ctx, userID, quizID)
	if errors.Is(err, domain.ErrAttemptNotFound) {
		return domain.Attempt{}, false, nil
	}
	if err != nil {
		return domain.Attempt{}, false, err
	}
	return attempt, true, nil
}

// Prepare returns the quiz questions in presentation order with correctness stripped.
// The order is re-randomized on every call.
func (s *AttemptService) Prepare(ctx context.Context, quizID string) ([]domain.PresentedQuestion, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	return Prepare(quiz, newRandomSource()), nil
}

// QuestionsForAttempt returns the presented questions for an attempt.
// Unless reshuffling is enabled the order is stable for the attempt's lifetime.
func (s *AttemptService) QuestionsForAttempt(ctx context.Context, userID, attemptID string) ([]domain.PresentedQuestion, error) {
	attempt, err := s.ownedAttempt(ctx, userID, attemptID)
	if err != nil {
		return nil, err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return nil, err
	}
	rnd := seededSource(attempt.ID)
	if s.reshuffle {
		rnd = newRandomSource()
	}
	return Prepare(quiz, rnd), nil
}

// RemainingSeconds returns the advisory countdown for an attempt; nil means untimed.
func (s *AttemptService) RemainingSeconds(ctx context.Context, userID, attemptID string) (*int, error) {
	remaining, _, err := s.Countdown(ctx, userID, attemptID)
	return remaining, err
}

// Countdown returns the advisory countdown together with whether the attempt is
// already submitted, so a timer can stop once the attempt is finished.
func (s *AttemptService) Countdown(ctx context.Context, userID, attemptID string) (*int, bool, error) {
	attempt, err := s.ownedAttempt(ctx, userID, attemptID)
	if err != nil {
		return nil, false, err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return nil, false, err
	}
	return RemainingSeconds(attempt, quiz, s.now()), attempt.Submitted(), nil
}

// History returns the user's submitted attempts for a quiz, newest first.
func (s *AttemptService) History(ctx context.Context, userID, quizID string) ([]domain.Attempt, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	return s.attempts.ListSubmitted(ctx, userID, quiz.ID)
}

// RecordAnswer stores the user's current choice for a question.
func (s *AttemptService) RecordAnswer(ctx context.Context, userID, attemptID, questionID, optionID string, timeSpentSeconds *int) error {
	attempt, quiz, err := s.openAttempt(ctx, userID, attemptID)
	if err != nil {
		return err
	}
	question, ok := quiz.FindQuestion(questionID)
	if !ok {
		return domain.ErrQuestionNotInQuiz
	}
	if !question.HasOption(optionID) {
		return domain.ErrOptionNotInQuestion
	}

	selected := optionID
	return s.attempts.UpsertAnswer(ctx, domain.AttemptAnswer{
		ID:               s.newID(),
		AttemptID:        attempt.ID,
		QuestionID:       question.ID,
		SelectedOptionID: &selected,
		TimeSpentSeconds: timeSpentSeconds,
		UpdatedAt:        s.now(),
	})
}

// SkipQuestion records an explicit skip; it is graded as incorrect.
func (s *AttemptService) SkipQuestion(ctx context.Context, userID, attemptID, questionID string) error {
	attempt, quiz, err := s.openAttempt(ctx, userID, attemptID)
	if err != nil {
		return err
	}
	if _, ok := quiz.FindQuestion(questionID); !ok {
		return domain.ErrQuestionNotInQuiz
	}
	return s.attempts.UpsertAnswer(ctx, domain.AttemptAnswer{
		ID:         s.newID(),
		AttemptID:  attempt.ID,
		QuestionID: questionID,
		UpdatedAt:  s.now(),
	})
}

// Answers returns the selections recorded so far, used to restore an in-progress attempt.
func (s *AttemptService) Answers(ctx context.Context, userID, attemptID string) (domain.AnswerSet, error) {
	attempt, err := s.ownedAttempt(ctx, userID, attemptID)
	if err != nil {
		return nil, err
	}
	answers, err := s.attempts.ListAnswers(ctx, attempt.ID)
	if err != nil {
		return nil, err
	}
	set := make(domain.AnswerSet, len(answers))
	for _, answer := range answers {
		if answer.SelectedOptionID != nil {
			set[answer.QuestionID] = *answer.SelectedOptionID
		} else {
			set[answer.QuestionID] = ""
		}
	}
	return set, nil
}

// Submit grades the attempt and finalizes it. Manual submissions past the deadline fail with
// domain.ErrTimeLimitExceeded. Auto submissions are accepted within the grace window and
// deadline submissions at any delay, both with the time capped at the limit.
func (s *AttemptService) Submit(ctx context.Context, userID, attemptID string, mode domain.SubmitMode) (domain.GradeSummary, error) {
	attempt, err := s.ownedAttempt(ctx, userID, attemptID)
	if err != nil {
		return domain.GradeSummary{}, err
	}
	if attempt.Submitted() {
		return domain.GradeSummary{}, domain.ErrAttemptAlreadySubmitted
	}
	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return domain.GradeSummary{}, err
	}

	finalized, err := s.attempts.Finalize(ctx, attempt.ID, quiz.AllowMultipleAttempts, func(current domain.Attempt, answers []domain.AttemptAnswer) (domain.Grading, error) {
		return gradeAttempt(quiz, current, answers, s.now(), mode, s.grace)
	})
	if err != nil {
		return domain.GradeSummary{}, err
	}

	summary := summarize(finalized)
	log.Printf("attempt %s submitted (%s): score=%s correct=%d wrong=%d",
		finalized.ID, mode, summary.Score.StringFixed(2), summary.CorrectCount, summary.WrongCount)
	return summary, nil
}

// Result returns the owner's graded view of a submitted attempt, including correctness.
func (s *AttemptService) Result(ctx context.Context, userID, attemptID string) (domain.AttemptResult, error) {
	attempt, err := s.ownedAttempt(ctx, userID, attemptID)
	if err != nil {
		return domain.AttemptResult{}, err
	}
	if !attempt.Submitted() {
		return domain.AttemptResult{}, domain.ErrAttemptNotSubmitted
	}
	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return domain.AttemptResult{}, err
	}
	answers, err := s.attempts.ListAnswers(ctx, attempt.ID)
	if err != nil {
		return domain.AttemptResult{}, err
	}
	return domain.AttemptResult{Attempt: attempt, Quiz: quiz, Answers: answers}, nil
}

func (s *AttemptService) ownedAttempt(ctx context.Context, userID, attemptID string) (domain.Attempt, error) {
	attempt, err := s.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if attempt.UserID != userID {
		return domain.Attempt{}, domain.ErrNotAttemptOwner
	}
	return attempt, nil
}

// openAttempt loads an owned attempt that still accepts answers.
func (s *AttemptService) openAttempt(ctx context.Context, userID, attemptID string) (domain.Attempt, domain.Quiz, error) {
	attempt, err := s.ownedAttempt(ctx, userID, attemptID)
	if err != nil {
		return domain.Attempt{}, domain.Quiz{}, err
	}
	if attempt.Submitted() {
		return domain.Attempt{}, domain.Quiz{}, domain.ErrAttemptAlreadySubmitted
	}
	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return domain.Attempt{}, domain.Quiz{}, err
	}
	if deadlinePassed(attempt, quiz, s.now()) {
		return domain.Attempt{}, domain.Quiz{}, domain.ErrTimeLimitExceeded
	}
	return attempt, quiz, nil
}

func summarize(attempt domain.Attempt) domain.GradeSummary {
	summary := domain.GradeSummary{AttemptID: attempt.ID}
	if attempt.Score.Valid {
		summary.Score = attempt.Score.Decimal
	}
	if attempt.CorrectCount != nil {
		summary.CorrectCount = *attempt.CorrectCount
	}
	if attempt.WrongCount != nil {
		summary.WrongCount = *attempt.WrongCount
	}
	if attempt.TimeTakenSeconds != nil {
		summary.TimeTakenSeconds = *attempt.TimeTakenSeconds
	}
	return summary
}

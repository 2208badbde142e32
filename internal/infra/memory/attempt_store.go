package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

type openKey struct {
	userID string
	quizID string
}

// AttemptStore keeps attempts in process memory. A single mutex serializes every
// read-check-write sequence, which gives the same guarantees the SQL stores get
// from unique indexes and row locks.
type AttemptStore struct {
	mu       sync.Mutex
	attempts map[string]domain.Attempt
	open     map[openKey]string
	answers  map[string]map[string]domain.AttemptAnswer
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		attempts: make(map[string]domain.Attempt),
		open:     make(map[openKey]string),
		answers:  make(map[string]map[string]domain.AttemptAnswer),
	}
}

func (s *AttemptStore) HasSubmittedAttempt(_ context.Context, userID, quizID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasSubmittedLocked(userID, quizID), nil
}

func (s *AttemptStore) hasSubmittedLocked(userID, quizID string) bool {
	for _, attempt := range s.attempts {
		if attempt.UserID == userID && attempt.QuizID == quizID && attempt.Submitted() {
			return true
		}
	}
	return false
}

func (s *AttemptStore) ListSubmitted(_ context.Context, userID, quizID string) ([]domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Attempt
	for _, attempt := range s.attempts {
		if attempt.UserID == userID && attempt.QuizID == quizID && attempt.Submitted() {
			out = append(out, attempt)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(*out[j].SubmittedAt)
	})
	return out, nil
}

func (s *AttemptStore) FindInProgress(_ context.Context, userID, quizID string) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.open[openKey{userID: userID, quizID: quizID}]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return s.attempts[id], nil
}

func (s *AttemptStore) CreateAttempt(_ context.Context, attempt domain.Attempt, allowRetake bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := openKey{userID: attempt.UserID, quizID: attempt.QuizID}
	if _, taken := s.open[key]; taken {
		return domain.ErrAttemptInProgress
	}
	if !allowRetake && s.hasSubmittedLocked(attempt.UserID, attempt.QuizID) {
		return domain.ErrNotAllowed
	}
	s.attempts[attempt.ID] = attempt
	s.open[key] = attempt.ID
	s.answers[attempt.ID] = make(map[string]domain.AttemptAnswer)
	return nil
}

func (s *AttemptStore) GetAttempt(_ context.Context, attemptID string) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return attempt, nil
}

func (s *AttemptStore) ListAnswers(_ context.Context, attemptID string) ([]domain.AttemptAnswer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attempts[attemptID]; !ok {
		return nil, domain.ErrAttemptNotFound
	}
	return s.listLocked(attemptID), nil
}

func (s *AttemptStore) UpsertAnswer(_ context.Context, answer domain.AttemptAnswer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[answer.AttemptID]
	if !ok {
		return domain.ErrAttemptNotFound
	}
	if attempt.Submitted() {
		return domain.ErrAttemptAlreadySubmitted
	}

	rows := s.answers[answer.AttemptID]
	if existing, ok := rows[answer.QuestionID]; ok {
		answer.ID = existing.ID
		if answer.TimeSpentSeconds == nil {
			answer.TimeSpentSeconds = existing.TimeSpentSeconds
		}
	}
	answer.IsCorrect = nil
	rows[answer.QuestionID] = answer
	return nil
}

func (s *AttemptStore) Finalize(_ context.Context, attemptID string, allowRetake bool, grade app.GradeFunc) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if attempt.Submitted() {
		return domain.Attempt{}, domain.ErrAttemptAlreadySubmitted
	}
	if !allowRetake && s.hasSubmittedLocked(attempt.UserID, attempt.QuizID) {
		return domain.Attempt{}, domain.ErrNotAllowed
	}

	answers := s.listLocked(attemptID)
	grading, err := grade(attempt, answers)
	if err != nil {
		return domain.Attempt{}, err
	}

	graded, gradedAnswers := app.ApplyGrading(attempt, answers, grading)
	rows := s.answers[attemptID]
	for _, answer := range gradedAnswers {
		rows[answer.QuestionID] = answer
	}
	s.attempts[attemptID] = graded
	delete(s.open, openKey{userID: attempt.UserID, quizID: attempt.QuizID})
	return graded, nil
}

func (s *AttemptStore) listLocked(attemptID string) []domain.AttemptAnswer {
	rows := s.answers[attemptID]
	out := make([]domain.AttemptAnswer, 0, len(rows))
	for _, answer := range rows {
		out = append(out, answer)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].QuestionID < out[j].QuestionID
	})
	return out
}

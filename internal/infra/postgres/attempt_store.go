package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

type attemptModel struct {
	bun.BaseModel `bun:"table:attempts,alias:a"`

	ID               string              `bun:"id,pk"`
	UserID           string              `bun:"user_id,notnull"`
	QuizID           string              `bun:"quiz_id,notnull"`
	StartedAt        time.Time           `bun:"started_at,notnull"`
	SubmittedAt      *time.Time          `bun:"submitted_at"`
	Score            decimal.NullDecimal `bun:"score,type:numeric(5,2)"`
	CorrectCount     *int                `bun:"correct_count"`
	WrongCount       *int                `bun:"wrong_count"`
	TimeTakenSeconds *int                `bun:"time_taken_seconds"`
}

type answerModel struct {
	bun.BaseModel `bun:"table:attempt_answers,alias:aa"`

	ID               string    `bun:"id,pk"`
	AttemptID        string    `bun:"attempt_id,notnull"`
	QuestionID       string    `bun:"question_id,notnull"`
	SelectedOptionID *string   `bun:"selected_option_id"`
	IsCorrect        *bool     `bun:"is_correct"`
	TimeSpentSeconds *int      `bun:"time_spent_seconds"`
	UpdatedAt        time.Time `bun:"updated_at,notnull"`
}

const upsertAnswerSQL = `
INSERT INTO attempt_answers (id, attempt_id, question_id, selected_option_id, is_correct, time_spent_seconds, updated_at)
VALUES (?, ?, ?, ?, NULL, ?, ?)
ON CONFLICT (attempt_id, question_id) DO UPDATE SET
    selected_option_id = EXCLUDED.selected_option_id,
    is_correct         = NULL,
    time_spent_seconds = COALESCE(EXCLUDED.time_spent_seconds, attempt_answers.time_spent_seconds),
    updated_at         = EXCLUDED.updated_at`

// AttemptStore persists attempts in Postgres through bun. Writes that depend on the
// submitted flag lock the attempt row first.
type AttemptStore struct {
	db *bun.DB
}

func NewAttemptStore(db *bun.DB) *AttemptStore {
	return &AttemptStore{db: db}
}

func (s *AttemptStore) HasSubmittedAttempt(ctx context.Context, userID, quizID string) (bool, error) {
	return hasSubmitted(ctx, s.db, userID, quizID)
}

func hasSubmitted(ctx context.Context, db bun.IDB, userID, quizID string) (bool, error) {
	exists, err := db.NewSelect().
		Model((*attemptModel)(nil)).
		Where("user_id = ?", userID).
		Where("quiz_id = ?", quizID).
		Where("submitted_at IS NOT NULL").
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check submitted attempts: %w", err)
	}
	return exists, nil
}

func (s *AttemptStore) ListSubmitted(ctx context.Context, userID, quizID string) ([]domain.Attempt, error) {
	var rows []attemptModel
	err := s.db.NewSelect().
		Model(&rows).
		Where("user_id = ?", userID).
		Where("quiz_id = ?", quizID).
		Where("submitted_at IS NOT NULL").
		Order("submitted_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list submitted attempts: %w", err)
	}
	attempts := make([]domain.Attempt, len(rows))
	for i, row := range rows {
		attempts[i] = row.toDomain()
	}
	return attempts, nil
}

func (s *AttemptStore) FindInProgress(ctx context.Context, userID, quizID string) (domain.Attempt, error) {
	var m attemptModel
	err := s.db.NewSelect().
		Model(&m).
		Where("user_id = ?", userID).
		Where("quiz_id = ?", quizID).
		Where("submitted_at IS NULL").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Attempt{}, notFound(err, "find open attempt")
	}
	return m.toDomain(), nil
}

func (s *AttemptStore) CreateAttempt(ctx context.Context, attempt domain.Attempt, allowRetake bool) error {
	m := attemptModel{
		ID:        attempt.ID,
		UserID:    attempt.UserID,
		QuizID:    attempt.QuizID,
		StartedAt: attempt.StartedAt,
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockUserQuiz(ctx, tx, attempt.UserID, attempt.QuizID); err != nil {
			return err
		}
		if !allowRetake {
			submitted, err := hasSubmitted(ctx, tx, attempt.UserID, attempt.QuizID)
			if err != nil {
				return err
			}
			if submitted {
				return domain.ErrNotAllowed
			}
		}
		if _, err := tx.NewInsert().Model(&m).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrAttemptInProgress
			}
			return fmt.Errorf("insert attempt: %w", err)
		}
		return nil
	})
}

func (s *AttemptStore) GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error) {
	var m attemptModel
	if err := s.db.NewSelect().Model(&m).Where("id = ?", attemptID).Scan(ctx); err != nil {
		return domain.Attempt{}, notFound(err, "load attempt")
	}
	return m.toDomain(), nil
}

func (s *AttemptStore) ListAnswers(ctx context.Context, attemptID string) ([]domain.AttemptAnswer, error) {
	return listAnswers(ctx, s.db, attemptID)
}

func (s *AttemptStore) UpsertAnswer(ctx context.Context, answer domain.AttemptAnswer) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		locked, err := lockAttempt(ctx, tx, answer.AttemptID)
		if err != nil {
			return err
		}
		if locked.SubmittedAt != nil {
			return domain.ErrAttemptAlreadySubmitted
		}
		_, err = tx.ExecContext(ctx, upsertAnswerSQL,
			answer.ID, answer.AttemptID, answer.QuestionID, answer.SelectedOptionID,
			answer.TimeSpentSeconds, answer.UpdatedAt)
		if err != nil {
			return fmt.Errorf("upsert answer: %w", err)
		}
		return nil
	})
}

func (s *AttemptStore) Finalize(ctx context.Context, attemptID string, allowRetake bool, grade app.GradeFunc) (domain.Attempt, error) {
	var finalized domain.Attempt
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// Owner and quiz never change, so they can be read before any lock is held.
		var owner attemptModel
		err := tx.NewSelect().Model(&owner).Column("user_id", "quiz_id").Where("id = ?", attemptID).Scan(ctx)
		if err != nil {
			return notFound(err, "load attempt")
		}
		// Same lock order as CreateAttempt: (user, quiz) first, then the row.
		if err := lockUserQuiz(ctx, tx, owner.UserID, owner.QuizID); err != nil {
			return err
		}
		locked, err := lockAttempt(ctx, tx, attemptID)
		if err != nil {
			return err
		}
		if locked.SubmittedAt != nil {
			return domain.ErrAttemptAlreadySubmitted
		}
		if !allowRetake {
			submitted, err := hasSubmitted(ctx, tx, locked.UserID, locked.QuizID)
			if err != nil {
				return err
			}
			if submitted {
				return domain.ErrNotAllowed
			}
		}
		answers, err := listAnswers(ctx, tx, attemptID)
		if err != nil {
			return err
		}

		grading, err := grade(locked.toDomain(), answers)
		if err != nil {
			return err
		}
		graded, gradedAnswers := app.ApplyGrading(locked.toDomain(), answers, grading)

		m := fromDomain(graded)
		_, err = tx.NewUpdate().
			Model(&m).
			Column("submitted_at", "score", "correct_count", "wrong_count", "time_taken_seconds").
			WherePK().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("finalize attempt: %w", err)
		}
		if err := markAnswers(ctx, tx, attemptID, gradedAnswers); err != nil {
			return err
		}
		finalized = graded
		return nil
	})
	if err != nil {
		return domain.Attempt{}, err
	}
	return finalized, nil
}

// lockUserQuiz takes a transaction-scoped advisory lock on (user, quiz). Attempt creation
// and finalization hold it, so the retake check and the write cannot interleave.
func lockUserQuiz(ctx context.Context, tx bun.Tx, userID, quizID string) error {
	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext(? || ':' || ?))", userID, quizID); err != nil {
		return fmt.Errorf("lock attempts for user %s quiz %s: %w", userID, quizID, err)
	}
	return nil
}

func lockAttempt(ctx context.Context, tx bun.Tx, attemptID string) (attemptModel, error) {
	var m attemptModel
	err := tx.NewSelect().Model(&m).Where("id = ?", attemptID).For("UPDATE").Scan(ctx)
	if err != nil {
		return attemptModel{}, notFound(err, "lock attempt")
	}
	return m, nil
}

func markAnswers(ctx context.Context, tx bun.Tx, attemptID string, answers []domain.AttemptAnswer) error {
	if len(answers) == 0 {
		return nil
	}
	var correctIDs []string
	for _, answer := range answers {
		if answer.IsCorrect != nil && *answer.IsCorrect {
			correctIDs = append(correctIDs, answer.ID)
		}
	}
	_, err := tx.NewUpdate().
		Model((*answerModel)(nil)).
		Set("is_correct = FALSE").
		Where("attempt_id = ?", attemptID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("grade answers: %w", err)
	}
	if len(correctIDs) == 0 {
		return nil
	}
	_, err = tx.NewUpdate().
		Model((*answerModel)(nil)).
		Set("is_correct = TRUE").
		Where("id IN (?)", bun.In(correctIDs)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("grade correct answers: %w", err)
	}
	return nil
}

func listAnswers(ctx context.Context, db bun.IDB, attemptID string) ([]domain.AttemptAnswer, error) {
	var rows []answerModel
	err := db.NewSelect().
		Model(&rows).
		Where("attempt_id = ?", attemptID).
		Order("question_id").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	answers := make([]domain.AttemptAnswer, len(rows))
	for i, row := range rows {
		answers[i] = domain.AttemptAnswer{
			ID:               row.ID,
			AttemptID:        row.AttemptID,
			QuestionID:       row.QuestionID,
			SelectedOptionID: row.SelectedOptionID,
			IsCorrect:        row.IsCorrect,
			TimeSpentSeconds: row.TimeSpentSeconds,
			UpdatedAt:        row.UpdatedAt.UTC(),
		}
	}
	return answers, nil
}

func (m attemptModel) toDomain() domain.Attempt {
	return domain.Attempt{
		ID:               m.ID,
		UserID:           m.UserID,
		QuizID:           m.QuizID,
		StartedAt:        m.StartedAt.UTC(),
		SubmittedAt:      m.SubmittedAt,
		Score:            m.Score,
		CorrectCount:     m.CorrectCount,
		WrongCount:       m.WrongCount,
		TimeTakenSeconds: m.TimeTakenSeconds,
	}
}

func fromDomain(a domain.Attempt) attemptModel {
	return attemptModel{
		ID:               a.ID,
		UserID:           a.UserID,
		QuizID:           a.QuizID,
		StartedAt:        a.StartedAt,
		SubmittedAt:      a.SubmittedAt,
		Score:            a.Score,
		CorrectCount:     a.CorrectCount,
		WrongCount:       a.WrongCount,
		TimeTakenSeconds: a.TimeTakenSeconds,
	}
}

func notFound(err error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrAttemptNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

// isUniqueViolation matches SQLSTATE 23505.
func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == "23505"
}
